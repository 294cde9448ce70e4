package commands_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/libs/outbox"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/commands"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/storage"
)

// Set TEST_DATABASE_URL to run these; they assert the command/outbox
// atomicity contract against a real database.
func setupService(t *testing.T) (*db.Pool, *commands.Service) {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("db open failed: %v", err)
	}
	t.Cleanup(pool.Close)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id UUID PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'applied',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS students_email_uq ON students (email)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id BIGSERIAL PRIMARY KEY,
			event_id UUID NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			subject TEXT NOT NULL,
			payload JSONB NOT NULL,
			traceparent TEXT NOT NULL DEFAULT '',
			tracestate TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			published BOOLEAN NOT NULL DEFAULT false,
			published_at TIMESTAMPTZ
		)`,
		`ALTER TABLE outbox_events DROP CONSTRAINT IF EXISTS outbox_events_block_student_created`,
		`TRUNCATE students, outbox_events`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("schema setup failed: %v", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := commands.NewService(pool, storage.NewStudentRepository(pool), outbox.NewRepository(pool), logger)
	return pool, svc
}

func TestCreateStudentWritesAggregateAndOutboxTogether(t *testing.T) {
	pool, svc := setupService(t)
	ctx := context.Background()

	id, err := svc.CreateStudent(ctx, commands.CreateStudent{
		FirstName:     "Jane",
		Email:         "jane@x.com",
		CorrelationID: "corr-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var students, records int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM students WHERE id = $1`, id).Scan(&students); err != nil {
		t.Fatalf("count students: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE subject = $1`, "student/"+id).Scan(&records); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if students != 1 || records != 1 {
		t.Fatalf("expected one student row and one outbox record, got %d and %d", students, records)
	}

	var eventType string
	var payload []byte
	err = pool.QueryRow(ctx, `SELECT event_type, payload FROM outbox_events WHERE subject = $1`, "student/"+id).
		Scan(&eventType, &payload)
	if err != nil {
		t.Fatalf("read outbox record: %v", err)
	}
	if eventType != events.TypeStudentCreated {
		t.Fatalf("expected StudentCreated, got %q", eventType)
	}

	env, err := events.Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var data events.StudentCreatedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if data.StudentID != id {
		t.Fatalf("payload student id %q must match aggregate id %q", data.StudentID, id)
	}
	if env.CorrelationID != "corr-1" {
		t.Fatalf("correlation id not carried, got %q", env.CorrelationID)
	}
}

func TestFailedCreateLeavesNoPartialState(t *testing.T) {
	pool, svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.CreateStudent(ctx, commands.CreateStudent{
		FirstName: "Jane", Email: "taken@x.com",
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Unique email violation aborts the transaction mid-command: the failed
	// attempt must leave neither a student row nor an outbox record behind.
	_, err := svc.CreateStudent(ctx, commands.CreateStudent{
		FirstName: "Janet", Email: "taken@x.com",
	})
	if err == nil {
		t.Fatal("expected duplicate email to fail")
	}

	var students, records int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM students`).Scan(&students); err != nil {
		t.Fatalf("count students: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox_events`).Scan(&records); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if students != 1 || records != 1 {
		t.Fatalf("failed command must not leave partial state, got %d students and %d records", students, records)
	}
}

func TestOutboxFailureRollsBackAggregate(t *testing.T) {
	pool, svc := setupService(t)
	ctx := context.Background()

	// Make the outbox insert fail after the aggregate row is written: the
	// whole command transaction must roll back, leaving no student behind.
	if _, err := pool.Exec(ctx, `ALTER TABLE outbox_events
		ADD CONSTRAINT outbox_events_block_student_created CHECK (event_type <> 'StudentCreated')`); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `ALTER TABLE outbox_events
			DROP CONSTRAINT IF EXISTS outbox_events_block_student_created`)
	})

	if _, err := svc.CreateStudent(ctx, commands.CreateStudent{
		FirstName: "Jane", Email: "rollback@x.com",
	}); err == nil {
		t.Fatal("expected the outbox insert to fail")
	}

	var students int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM students WHERE email = 'rollback@x.com'`).Scan(&students); err != nil {
		t.Fatalf("count students: %v", err)
	}
	if students != 0 {
		t.Fatal("aggregate write must roll back with the failed outbox insert")
	}
}

func TestValidationFailureHasNoSideEffect(t *testing.T) {
	pool, svc := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateStudent(ctx, commands.CreateStudent{Email: "not-an-email"})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	var verrs commands.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	var students int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM students`).Scan(&students); err != nil {
		t.Fatalf("count students: %v", err)
	}
	if students != 0 {
		t.Fatalf("validation failure must not touch storage, got %d rows", students)
	}
}
