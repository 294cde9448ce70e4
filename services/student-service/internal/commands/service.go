package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/libs/outbox"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/model"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/storage"
)

const producer = "student-service"

// Service executes student commands. Every mutation writes the aggregate row
// and the describing outbox event in one transaction, so the event can never
// exist without the mutation or the mutation without the event.
type Service struct {
	pool   *db.Pool
	repo   *storage.StudentRepository
	outbox *outbox.Repository
	logger *slog.Logger
}

func NewService(pool *db.Pool, repo *storage.StudentRepository, outboxRepo *outbox.Repository, logger *slog.Logger) *Service {
	return &Service{pool: pool, repo: repo, outbox: outboxRepo, logger: logger}
}

type CreateStudent struct {
	FirstName     string
	LastName      string
	Email         string
	Status        string
	CorrelationID string
	TenantID      string
}

type UpdateStudent struct {
	StudentID     string
	FirstName     string
	LastName      string
	Email         string
	Status        string
	CorrelationID string
	TenantID      string
}

type DeleteStudent struct {
	StudentID     string
	CorrelationID string
	TenantID      string
}

func (c *CreateStudent) validate() error {
	errs := ValidationErrors{}
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Status = strings.TrimSpace(strings.ToLower(c.Status))

	if c.FirstName == "" {
		errs.add("firstName", "required")
	}
	if c.Email == "" {
		errs.add("email", "required")
	} else if !validEmail(c.Email) {
		errs.add("email", "invalid address")
	}
	if c.Status == "" {
		c.Status = string(events.StudentApplied)
	} else if !model.ValidStatus(events.StudentStatus(c.Status)) {
		errs.add("status", "must be one of applied, enrolled, withdrawn")
	}
	return errs.orNil()
}

func (s *Service) CreateStudent(ctx context.Context, cmd CreateStudent) (string, error) {
	if err := cmd.validate(); err != nil {
		return "", err
	}

	student := &model.Student{
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Email:     cmd.Email,
		Status:    events.StudentStatus(cmd.Status),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := s.repo.Create(ctx, tx, student)
	if err != nil {
		if storage.IsConflict(err) {
			return "", ValidationErrors{"email": "already registered"}
		}
		return "", err
	}
	student.ID = id

	env, err := s.buildEnvelope(ctx, events.TypeStudentCreated, student.Subject(), cmd.CorrelationID, cmd.TenantID,
		events.StudentCreatedData{
			StudentID: id,
			FirstName: student.FirstName,
			LastName:  student.LastName,
			Email:     student.Email,
			Status:    student.Status,
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
	s.logger.Info("student created", "student_id", id, "event_id", env.EventID)
	return id, nil
}

func (c *UpdateStudent) validate() error {
	errs := ValidationErrors{}
	c.StudentID = strings.TrimSpace(c.StudentID)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(strings.ToLower(c.Email))
	c.Status = strings.TrimSpace(strings.ToLower(c.Status))

	if c.StudentID == "" {
		errs.add("studentId", "required")
	}
	if c.FirstName == "" && c.LastName == "" && c.Email == "" && c.Status == "" {
		errs.add("fields", "at least one field must change")
	}
	if c.Email != "" && !validEmail(c.Email) {
		errs.add("email", "invalid address")
	}
	if c.Status != "" && !model.ValidStatus(events.StudentStatus(c.Status)) {
		errs.add("status", "must be one of applied, enrolled, withdrawn")
	}
	return errs.orNil()
}

func (s *Service) UpdateStudent(ctx context.Context, cmd UpdateStudent) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	student, err := s.repo.GetForUpdate(ctx, tx, cmd.StudentID)
	if err != nil {
		return err
	}

	data := events.StudentUpdatedData{StudentID: student.ID}
	if cmd.FirstName != "" {
		student.FirstName = cmd.FirstName
		data.FirstName = cmd.FirstName
	}
	if cmd.LastName != "" {
		student.LastName = cmd.LastName
		data.LastName = cmd.LastName
	}
	if cmd.Email != "" {
		student.Email = cmd.Email
		data.Email = cmd.Email
	}
	if cmd.Status != "" {
		student.Status = events.StudentStatus(cmd.Status)
		data.Status = student.Status
	}

	if err := s.repo.Update(ctx, tx, student); err != nil {
		if storage.IsConflict(err) {
			return ValidationErrors{"email": "already registered"}
		}
		return err
	}

	env, err := s.buildEnvelope(ctx, events.TypeStudentUpdated, student.Subject(), cmd.CorrelationID, cmd.TenantID, data)
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, env); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("student updated", "student_id", student.ID, "event_id", env.EventID)
	return nil
}

func (c *DeleteStudent) validate() error {
	errs := ValidationErrors{}
	c.StudentID = strings.TrimSpace(c.StudentID)
	if c.StudentID == "" {
		errs.add("studentId", "required")
	}
	return errs.orNil()
}

func (s *Service) DeleteStudent(ctx context.Context, cmd DeleteStudent) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.Delete(ctx, tx, cmd.StudentID); err != nil {
		return err
	}

	env, err := s.buildEnvelope(ctx, events.TypeStudentDeleted, "student/"+cmd.StudentID, cmd.CorrelationID, cmd.TenantID,
		events.StudentDeletedData{StudentID: cmd.StudentID})
	if err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, env); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("student deleted", "student_id", cmd.StudentID, "event_id", env.EventID)
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
