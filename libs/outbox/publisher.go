package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/db"
	"github.com/md-rashed-zaman/campuscrm/libs/kafkax"
	otelx "github.com/md-rashed-zaman/campuscrm/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Publisher drains the outbox to Kafka on a fixed poll interval. Multiple
// instances may run concurrently; correctness never depends on mutual
// exclusion between them.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	topic     string
	pollEvery time.Duration
	batchSize int
	retries   *retryTracker
}

type PublisherConfig struct {
	Brokers string
	// Topic is the bounded-context topic, e.g. campuscrm.students.v1.
	// Event type and subject travel as message headers for subscriber-side
	// filtering; the key is the subject for best-effort per-subject FIFO.
	Topic       string
	PollEvery   time.Duration
	BatchSize   int
	RetryBase   time.Duration
	RetryCap    time.Duration
	RetryBudget int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   brokers,
		topic:     cfg.Topic,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		retries:   newRetryTracker(cfg.RetryBase, cfg.RetryCap, cfg.RetryBudget),
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 || p.topic == "" {
		p.logger.Warn("outbox publisher disabled (no kafka brokers or topic configured)")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  p.brokers,
		Topic:    p.topic,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx, writer); err != nil {
				p.logger.Error("outbox batch failed", "err", err)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context, writer *kafka.Writer) error {
	records, err := p.repo.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, r := range records {
		if !p.retries.ready(r.ID, now) {
			continue
		}

		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msg := kafka.Message{
			Key:   []byte(r.Subject),
			Value: r.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(r.EventID)},
				{Key: "event_type", Value: []byte(r.EventType)},
				{Key: "subject", Value: []byte(r.Subject)},
			},
		}
		msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)

		if err := writer.WriteMessages(ctx, msg); err != nil {
			attempts, exhausted := p.retries.failure(r.ID, now)
			if exhausted {
				p.logger.Error("outbox record exceeded retry budget, needs attention",
					"event_id", r.EventID, "event_type", r.EventType, "attempts", attempts, "err", err)
			} else {
				p.logger.Warn("outbox publish failed, will retry",
					"event_id", r.EventID, "attempts", attempts, "err", err)
			}
			continue
		}

		// Mark after the broker ack. A crash here re-publishes the record on
		// the next cycle; the consumer inbox deduplicates by event id.
		if err := p.repo.MarkPublished(ctx, r.ID); err != nil {
			p.logger.Error("outbox mark published failed", "event_id", r.EventID, "err", err)
			continue
		}
		p.retries.success(r.ID)
	}
	return nil
}
