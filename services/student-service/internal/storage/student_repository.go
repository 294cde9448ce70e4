package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/model"
)

var (
	ErrNotFound = errors.New("student not found")
	ErrConflict = errors.New("student conflict")
)

type StudentRepository struct {
	pool *db.Pool
}

func NewStudentRepository(pool *db.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

func (r *StudentRepository) Create(ctx context.Context, tx pgx.Tx, s *model.Student) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO students (id, first_name, last_name, email, status)
		VALUES ($1, $2, $3, $4, $5)
	`, id, s.FirstName, s.LastName, s.Email, string(s.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", err
	}
	return id, nil
}

func (r *StudentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*model.Student, error) {
	var s model.Student
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id::text, first_name, last_name, email, status, created_at, updated_at
		FROM students
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Status = events.StudentStatus(status)
	return &s, nil
}

func (r *StudentRepository) Update(ctx context.Context, tx pgx.Tx, s *model.Student) error {
	ct, err := tx.Exec(ctx, `
		UPDATE students
		SET first_name = $2, last_name = $3, email = $4, status = $5, updated_at = now()
		WHERE id = $1
	`, s.ID, s.FirstName, s.LastName, s.Email, string(s.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *StudentRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	ct, err := tx.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *StudentRepository) List(ctx context.Context, limit int) ([]model.Student, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, first_name, last_name, email, status, created_at, updated_at
		FROM students
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Student
	for rows.Next() {
		var s model.Student
		var status string
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = events.StudentStatus(status)
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
