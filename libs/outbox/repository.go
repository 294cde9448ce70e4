package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
)

// Record is one not-yet-published event in the outbox table. The payload is
// the serialized envelope; event_id mirrors the envelope id so the unique
// index can reject accidental double inserts.
type Record struct {
	ID          int64
	EventID     string
	EventType   string
	Subject     string
	Payload     []byte
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
	Published   bool
	PublishedAt *time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes the envelope into the outbox inside the caller's transaction.
// Command handlers must pass the same tx that mutates the aggregate row; the
// commit (or rollback) of both together is the atomicity guarantee.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, env events.Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, event_type, subject, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, env.EventID, env.EventType, env.Subject, payload, traceparent, tracestate)
	return err
}

// FetchUnpublished reads pending records in creation order. No row locks:
// two publisher instances racing over the same record publish it twice,
// which the consumer-side inbox absorbs. A lease column would only be a
// throughput optimization.
func (r *Repository) FetchUnpublished(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, event_type, subject, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published = false
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.EventType, &rcd.Subject, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// MarkPublished flips a record to published after the broker ack. Kept as a
// single small statement so a crash between publish and mark only causes a
// duplicate publish, never a lost one.
func (r *Repository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET published = true, published_at = now()
		WHERE id = $1
	`, id)
	return err
}
