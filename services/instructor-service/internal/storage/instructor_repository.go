package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
)

var (
	ErrNotFound = errors.New("instructor not found")
	ErrConflict = errors.New("instructor conflict")
)

type Instructor struct {
	ID         string
	FirstName  string
	LastName   string
	Email      string
	Department string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (i *Instructor) Subject() string {
	return "instructor/" + i.ID
}

type InstructorRepository struct {
	pool *db.Pool
}

func NewInstructorRepository(pool *db.Pool) *InstructorRepository {
	return &InstructorRepository{pool: pool}
}

func (r *InstructorRepository) Create(ctx context.Context, tx pgx.Tx, i *Instructor) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO instructors (id, first_name, last_name, email, department)
		VALUES ($1, $2, $3, $4, $5)
	`, id, i.FirstName, i.LastName, i.Email, i.Department)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", err
	}
	return id, nil
}

func (r *InstructorRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (*Instructor, error) {
	var i Instructor
	err := tx.QueryRow(ctx, `
		SELECT id::text, first_name, last_name, email, department, created_at, updated_at
		FROM instructors
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&i.ID, &i.FirstName, &i.LastName, &i.Email, &i.Department, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &i, nil
}

func (r *InstructorRepository) Update(ctx context.Context, tx pgx.Tx, i *Instructor) error {
	ct, err := tx.Exec(ctx, `
		UPDATE instructors
		SET first_name = $2, last_name = $3, email = $4, department = $5, updated_at = now()
		WHERE id = $1
	`, i.ID, i.FirstName, i.LastName, i.Email, i.Department)
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
