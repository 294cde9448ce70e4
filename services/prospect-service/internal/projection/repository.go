package projection

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
)

var ErrNotFound = errors.New("prospect summary not found")

// StatusDeleted marks a soft-deleted summary. The row stays so the
// timestamp guard keeps rejecting out-of-order updates after a delete.
const StatusDeleted = "deleted"

// ProspectSummary is the read model folded from student events. Version is
// the optimistic-concurrency token: it increments exactly once per applied
// event and never decreases.
type ProspectSummary struct {
	StudentID   string
	FirstName   string
	LastName    string
	Email       string
	Status      string
	Version     int64
	UpdatedAt   time.Time
	LastEventID string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetForUpdate locks the summary row for the rest of the transaction so two
// appliers for the same subject serialize on the row, not on a global lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, studentID string) (*ProspectSummary, error) {
	var p ProspectSummary
	err := tx.QueryRow(ctx, `
		SELECT student_id::text, first_name, last_name, email, status, version, updated_at, last_event_id
		FROM prospect_summaries
		WHERE student_id = $1
		FOR UPDATE
	`, studentID).Scan(&p.StudentID, &p.FirstName, &p.LastName, &p.Email, &p.Status, &p.Version, &p.UpdatedAt, &p.LastEventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, p *ProspectSummary) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO prospect_summaries (student_id, first_name, last_name, email, status, version, updated_at, last_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.StudentID, p.FirstName, p.LastName, p.Email, p.Status, p.Version, p.UpdatedAt, p.LastEventID)
	return err
}

func (r *Repository) Update(ctx context.Context, tx pgx.Tx, p *ProspectSummary) error {
	ct, err := tx.Exec(ctx, `
		UPDATE prospect_summaries
		SET first_name = $2, last_name = $3, email = $4, status = $5,
		    version = $6, updated_at = $7, last_event_id = $8
		WHERE student_id = $1
	`, p.StudentID, p.FirstName, p.LastName, p.Email, p.Status, p.Version, p.UpdatedAt, p.LastEventID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, limit int) ([]ProspectSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT student_id::text, first_name, last_name, email, status, version, updated_at, last_event_id
		FROM prospect_summaries
		WHERE status <> $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, StatusDeleted, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProspectSummary
	for rows.Next() {
		var p ProspectSummary
		if err := rows.Scan(&p.StudentID, &p.FirstName, &p.LastName, &p.Email, &p.Status, &p.Version, &p.UpdatedAt, &p.LastEventID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
