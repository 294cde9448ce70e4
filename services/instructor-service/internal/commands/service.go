package commands

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/libs/outbox"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
	"github.com/md-rashed-zaman/campuscrm/services/instructor-service/internal/storage"
)

const producer = "instructor-service"

type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Service executes instructor commands on the same outbox substrate as the
// student service: aggregate write and event write share one transaction.
type Service struct {
	pool   *db.Pool
	repo   *storage.InstructorRepository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewService(pool *db.Pool, repo *storage.InstructorRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *Service {
	return &Service{pool: pool, repo: repo, outbox: outboxRepo, logger: logger}
}

type CreateInstructor struct {
	FirstName     string
	LastName      string
	Email         string
	Department    string
	CorrelationID string
	TenantID      string
}

type UpdateInstructor struct {
	InstructorID  string
	FirstName     string
	LastName      string
	Email         string
	Department    string
	CorrelationID string
	TenantID      string
}

func (c *CreateInstructor) validate() error {
	errs := ValidationErrors{}
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Department = strings.TrimSpace(c.Department)

	if c.FirstName == "" {
		errs["firstName"] = "required"
	}
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		errs["email"] = "valid address required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (s *Service) CreateInstructor(ctx context.Context, cmd CreateInstructor) (string, error) {
	if err := cmd.validate(); err != nil {
		return "", err
	}

	instructor := &storage.Instructor{
		FirstName:  cmd.FirstName,
		LastName:   cmd.LastName,
		Email:      cmd.Email,
		Department: cmd.Department,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := s.repo.Create(ctx, tx, instructor)
	if err != nil {
		if storage.IsConflict(err) {
			return "", ValidationErrors{"email": "already registered"}
		}
		return "", err
	}
	instructor.ID = id

	env, err := s.buildEnvelope(ctx, events.TypeInstructorCreated, instructor.Subject(), cmd.CorrelationID, cmd.TenantID,
		events.InstructorCreatedData{
			InstructorID: id,
			FirstName:    instructor.FirstName,
			LastName:     instructor.LastName,
			Email:        instructor.Email,
			Department:   instructor.Department,
		})
	if err != nil {
		return "", err
	}
	if err := s.outbox.Insert(ctx, tx, env); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	s.logger.Info("instructor created", "instructor_id", id, "event_id", env.EventID)
	return id, nil
}

func (c *UpdateInstructor) validate() error {
	errs := ValidationErrors{}
	c.InstructorID = strings.TrimSpace(c.InstructorID)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Department = strings.TrimSpace(c.Department)

	if c.InstructorID == "" {
		errs["instructorId"] = "required"
	}
	if c.FirstName == "" && c.LastName == "" && c.Email == "" && c.Department == "" {
		errs["fields"] = "at least one field must change"
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		errs["email"] = "invalid address"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (s *Service) UpdateInstructor(ctx context.Context, cmd UpdateInstructor) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	instructor, err := s.repo.GetForUpdate(ctx, tx, cmd.InstructorID)
	if err != nil {
		return err
	}

	data := events.InstructorUpdatedData{InstructorID: instructor.ID}
	if cmd.FirstName != "" {
		instructor.FirstName = cmd.FirstName
		data.FirstName = cmd.FirstName
	}
	if cmd.LastName != "" {
		instructor.LastName = cmd.LastName
		data.LastName = cmd.LastName
	}
	if cmd.Email != "" {
		instructor.Email = cmd.Email
		data.Email = cmd.Email
	}
	if cmd.Department != "" {
		instructor.Department = cmd.Department
		data.Department = cmd.Department
	}

	if err := s.repo.Update(ctx, tx, instructor); err != nil {
		if storage.IsConflict(err) {
			return ValidationErrors{"email": "already registered"}
		}
		return err
	}

	env, err := s.buildEnvelope(ctx, events.TypeInstructorUpdated, instructor.Subject(), cmd.CorrelationID, cmd.TenantID, data)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, env); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("instructor updated", "instructor_id", instructor.ID, "event_id", env.EventID)
	return nil
}

func (s *Service) buildEnvelope(ctx context.Context, eventType, subject, correlationID, tenantID string, data any) (events.Envelope, error) {
	opts := []events.Option{}
	if tenantID != "" {
		opts = append(opts, events.WithTenantID(tenantID))
	}
	if traceparent, _ := otelx.TraceContextStrings(ctx); traceparent != "" {
		opts = append(opts, events.WithTraceContext(traceparent))
	}
	return events.New(eventType, producer, subject, correlationID, data, opts...)
}
