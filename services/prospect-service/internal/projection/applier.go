package projection

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/inbox"
)

// Outcome classifies what Apply did with an envelope. Duplicate and stale
// are normal results of at-least-once delivery, not errors.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeSkipped   Outcome = "skipped"
)

// Applier makes event application idempotent and order-tolerant. The inbox
// insert and the projection mutation commit in one transaction: either the
// event is marked processed AND its effect is visible, or neither is.
type Applier struct {
	pool      *db.Pool
	inbox     *inbox.Repository
	prospects *Repository
	logger    *slog.Logger
}

func NewApplier(pool *db.Pool, inboxRepo *inbox.Repository, prospects *Repository, logger *slog.Logger) *Applier {
	return &Applier{pool: pool, inbox: inboxRepo, prospects: prospects, logger: logger}
}

func (a *Applier) Apply(ctx context.Context, env events.Envelope) (Outcome, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := a.inbox.Insert(ctx, tx, env)
	if err != nil {
		return "", err
	}
	if !inserted {
		// Already processed. Committing is harmless: nothing changed.
		if err := tx.Commit(ctx); err != nil {
			return "", err
		}
		return OutcomeDuplicate, nil
	}

	outcome, err := a.applyEffect(ctx, tx, env)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return outcome, nil
}

func (a *Applier) applyEffect(ctx context.Context, tx pgx.Tx, env events.Envelope) (Outcome, error) {
	payload, err := env.DecodePayload()
	if err != nil {
		return "", err
	}

	switch data := payload.(type) {
	case events.StudentCreatedData:
		return a.upsert(ctx, tx, env, studentID(data.StudentID, env.Subject), func(p *ProspectSummary) {
			p.FirstName = data.FirstName
			p.LastName = data.LastName
			p.Email = data.Email
			p.Status = statusOrDefault(data.Status)
		})
	case events.StudentUpdatedData:
		return a.upsert(ctx, tx, env, studentID(data.StudentID, env.Subject), func(p *ProspectSummary) {
			if data.FirstName != "" {
				p.FirstName = data.FirstName
			}
			if data.LastName != "" {
				p.LastName = data.LastName
			}
			if data.Email != "" {
				p.Email = data.Email
			}
			if data.Status != "" {
				p.Status = string(data.Status)
			}
			if p.Status == "" {
				p.Status = statusOrDefault("")
			}
		})
	case events.StudentDeletedData:
		// A tombstone row (not a DELETE) so the timestamp guard still
		// rejects out-of-order updates arriving after the delete.
		return a.upsert(ctx, tx, env, studentID(data.StudentID, env.Subject), func(p *ProspectSummary) {
			p.Status = StatusDeleted
		})
	default:
		// Not for this projection. The inbox row still commits so a
		// redelivery of the same event stays a cheap no-op.
		a.logger.Warn("event type not projected, skipping", "event_type", env.EventType, "event_id", env.EventID)
		return OutcomeSkipped, nil
	}
}

// upsert creates the summary on first sight of a subject, otherwise applies
// mutate under the supersedes guard.
func (a *Applier) upsert(ctx context.Context, tx pgx.Tx, env events.Envelope, id string, mutate func(*ProspectSummary)) (Outcome, error) {
	if id == "" {
		a.logger.Warn("event missing student id, skipping", "event_id", env.EventID, "subject", env.Subject)
		return OutcomeSkipped, nil
	}

	current, err := a.prospects.GetForUpdate(ctx, tx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		fresh := &ProspectSummary{
			StudentID:   id,
			Version:     1,
			UpdatedAt:   env.OccurredAt,
			LastEventID: env.EventID,
		}
		mutate(fresh)
		if fresh.Status == "" {
			fresh.Status = statusOrDefault("")
		}
		if err := a.prospects.Insert(ctx, tx, fresh); err != nil {
			return "", err
		}
		return OutcomeCreated, nil
	}

	if !supersedes(env.OccurredAt, env.EventID, current.UpdatedAt, current.LastEventID) {
		// Event-time ordering wins over arrival ordering: the inbox row
		// commits (event is processed) but its data is already superseded.
		return OutcomeStale, nil
	}

	mutate(current)
	current.Version++
	current.UpdatedAt = env.OccurredAt
	current.LastEventID = env.EventID
	if err := a.prospects.Update(ctx, tx, current); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// supersedes decides last-writer-by-event-time-wins. Equal timestamps break
// the tie on lexicographic event id so concurrent replays converge on the
// same state regardless of arrival order.
func supersedes(eventTime time.Time, eventID string, rowTime time.Time, rowEventID string) bool {
	if eventTime.After(rowTime) {
		return true
	}
	if eventTime.Equal(rowTime) {
		return eventID > rowEventID
	}
	return false
}

func studentID(fromPayload, subject string) string {
	if fromPayload != "" {
		return fromPayload
	}
	if rest, ok := strings.CutPrefix(subject, "student/"); ok {
		return rest
	}
	return ""
}

func statusOrDefault(status events.StudentStatus) string {
	if status == "" {
		return string(events.StudentApplied)
	}
	return string(status)
}
