package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/libs/kafkax"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/projection"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var errMissingEventID = errors.New("envelope missing eventId")

// Consumer pulls envelopes off the broker and feeds them to the projection
// applier. Offsets commit only after Apply returns, so a crash mid-apply
// redelivers and the inbox absorbs the duplicate.
type Consumer struct {
	reader  *kafka.Reader
	applier *projection.Applier
	retries *retryBudget
	logger  *slog.Logger
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// RetryBudget bounds how many times one event's apply may fail before
	// the message is skipped and its offset committed.
	RetryBudget int
}

func New(logger *slog.Logger, applier *projection.Applier, cfg Config) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{
		reader:  reader,
		applier: applier,
		retries: newRetryBudget(cfg.RetryBudget),
		logger:  logger,
	}
}

// decode parses a broker message into an envelope usable as an inbox key.
// An envelope without an event id cannot be deduplicated and is treated the
// same as undecodable JSON.
func decode(msg kafka.Message) (events.Envelope, error) {
	env, err := events.Unmarshal(msg.Value)
	if err != nil {
		return events.Envelope{}, err
	}
	if env.EventID == "" {
		return events.Envelope{}, errMissingEventID
	}
	return env, nil
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		env, err := decode(msg)
		if err != nil {
			// Malformed messages cannot become valid on redelivery.
			// Log, commit, move on.
			meta := kafkax.ExtractEventMeta(msg)
			c.logger.Error("malformed event message dropped",
				"topic", msg.Topic, "offset", msg.Offset, "event_id", meta.EventID, "err", err)
			span.RecordError(err)
			span.End()
			c.commit(ctx, msg)
			continue
		}

		outcome, err := c.applier.Apply(ctxSpan, env)
		if err != nil {
			span.RecordError(err)
			span.End()
			attempts, exhausted := c.retries.failure(env.EventID)
			if exhausted {
				// Could be a payload the applier can never decode or an
				// outage outliving the budget. Either way the partition must
				// not stay blocked; skip and surface for operations.
				c.logger.Error("event exceeded retry budget, skipping, needs attention",
					"event_id", env.EventID, "event_type", env.EventType, "attempts", attempts, "err", err)
				c.commit(ctx, msg)
				continue
			}
			// Offset stays uncommitted so the event is redelivered; the
			// inbox makes the retry idempotent.
			c.logger.Warn("event apply failed, will retry",
				"event_id", env.EventID, "event_type", env.EventType, "attempts", attempts, "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		c.retries.success(env.EventID)

		switch outcome {
		case projection.OutcomeDuplicate:
			c.logger.Info("duplicate event ignored", "event_id", env.EventID, "event_type", env.EventType)
		case projection.OutcomeStale:
			c.logger.Info("stale event discarded", "event_id", env.EventID, "event_type", env.EventType)
		}
		span.End()
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("kafka commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
	}
}
