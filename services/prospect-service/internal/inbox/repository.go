package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
)

// Repository records processed event ids. A row existing for an event id
// means "already applied"; rows are write-once and never updated.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert attempts to claim the event id inside the caller's transaction.
// Returns false when the id is already recorded. A concurrent claim of the
// same id blocks on the conflict check until the first transaction commits,
// so exactly one caller ever sees true.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, env events.Envelope) (bool, error) {
	ct, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type, correlation_id, subject)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, env.EventID, env.EventType, env.CorrelationID, env.Subject)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
