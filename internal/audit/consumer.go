package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codexgate/codexgate/internal/events"
)

// Consumer listens on the gateway event subjects and persists every event
// to the database, giving admins a durable trail behind the NATS stream's
// retention window.
type Consumer struct {
	repo        *Repository
	consumerMgr *events.ConsumerManager
}

// NewConsumer creates a new event-trail Consumer.
func NewConsumer(repo *Repository, consumerMgr *events.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, events.StreamEvents, "event-persister", "codexgate.events.>")
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", "event-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	subject := msg.Subject()
	entry := &Entry{
		ID:        uuid.New(),
		EventType: eventType(subject),
		Subject:   subject,
		Payload:   json.RawMessage(msg.Data()),
	}

	// Every gateway event payload carries a user_id field; index it when
	// present so per-user trails stay queryable.
	var envelope struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(msg.Data(), &envelope); err == nil && envelope.UserID != "" {
		if parsed, err := uuid.Parse(envelope.UserID); err == nil {
			entry.UserID = &parsed
		}
	}

	if err := c.repo.Insert(ctx, entry); err != nil {
		slog.Error("audit consumer: persisting entry", "error", err, "subject", subject)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event", "subject", subject, "event_type", entry.EventType)
}

// eventType maps "codexgate.events.redemption" to "redemption".
func eventType(subject string) string {
	if i := strings.LastIndex(subject, "."); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
