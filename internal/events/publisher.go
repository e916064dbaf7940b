package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing gateway events to NATS
// JetStream. A nil Publisher is valid and drops events, so callers never
// have to branch on whether eventing is enabled. Publish failures are
// logged, not returned: the event trail is best-effort and must never fail
// the request that produced the event.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// CodeRedeemed publishes a redemption event.
func (p *Publisher) CodeRedeemed(ctx context.Context, event RedemptionEvent) {
	p.publish(ctx, SubjectRedemption, event)
}

// PlanChanged publishes a plan lifecycle event.
func (p *Publisher) PlanChanged(ctx context.Context, event PlanEvent) {
	p.publish(ctx, SubjectPlan, event)
}

// UsageRecorded publishes a usage event.
func (p *Publisher) UsageRecorded(ctx context.Context, event UsageEvent) {
	p.publish(ctx, SubjectUsage, event)
}

// AdmissionRejected publishes a rate-limit rejection event.
func (p *Publisher) AdmissionRejected(ctx context.Context, event AdmissionEvent) {
	p.publish(ctx, SubjectAdmission, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) {
	if p == nil || p.js == nil {
		return
	}
	if err := p.tryPublish(ctx, subject, data); err != nil {
		slog.Warn("publishing event failed", "subject", subject, "error", err)
	}
}

func (p *Publisher) tryPublish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
