package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
)

// BreachPublisher drains committed breach events from the detector
// partitions and publishes them to alerts.breach.{instrument}. The Msg-Id
// header carries the alert_id so crash re-emission and multi-instance races
// collapse into one stream entry.
type BreachPublisher struct {
	js      jetstream.JetStream
	in      <-chan *event.Breach
	metrics *observability.Metrics
}

func NewBreachPublisher(js jetstream.JetStream, in <-chan *event.Breach, metrics *observability.Metrics) *BreachPublisher {
	return &BreachPublisher{js: js, in: in, metrics: metrics}
}

// Run publishes until the input channel closes. A breach on the channel is
// already committed to the event log, so publish failures retry forever;
// dropping here would strand the alert until the next restart's
// re-publication pass.
func (bp *BreachPublisher) Run(ctx context.Context) {
	for b := range bp.in {
		bp.publishWithRetry(ctx, b)
	}
	log.Println("INFO: breach publisher drained")
}

func (bp *BreachPublisher) publishWithRetry(ctx context.Context, b *event.Breach) {
	backoff := 200 * time.Millisecond
	for {
		err := bp.Publish(ctx, b)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			log.Printf("ERROR: shutdown with unpublished breach alert_id=%s, restart re-publication will cover it", b.AlertID)
			return
		}
		log.Printf("WARN: breach publish failed alert_id=%s, retrying in %v: %v", b.AlertID, backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
}

// Publish sends one breach event wrapped in the wire envelope. Safe to call
// with the same breach more than once inside the dedup window.
func (bp *BreachPublisher) Publish(ctx context.Context, b *event.Breach) error {
	env, err := event.Wrap(b, b.FirstBreachTs)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal breach envelope: %w", err)
	}
	subject := fmt.Sprintf("alerts.breach.%s", b.Instrument)
	_, err = bp.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Republish re-emits already-committed breaches, typically the current
// trading day's on startup. Msg-Id dedup suppresses entries the stream
// already has; beyond the window the notification ledger absorbs the replay.
func (bp *BreachPublisher) Republish(ctx context.Context, events []*event.Breach) error {
	for _, b := range events {
		if err := bp.Publish(ctx, b); err != nil {
			return err
		}
		if bp.metrics != nil {
			bp.metrics.BreachRepublished.Inc()
		}
	}
	if len(events) > 0 {
		log.Printf("INFO: republished %d breach events", len(events))
	}
	return nil
}

// IntentOutbox publishes delivery intents to alerts.intents.{instrument}
// with the idempotency key as Msg-Id. It is the production fanout.Outbox.
type IntentOutbox struct {
	js jetstream.JetStream
}

func NewIntentOutbox(js jetstream.JetStream) *IntentOutbox {
	return &IntentOutbox{js: js}
}

func (o *IntentOutbox) Enqueue(ctx context.Context, intent *event.DeliveryIntent) error {
	env, err := event.Wrap(intent, intent.EnqueuedAt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal intent envelope: %w", err)
	}
	subject := fmt.Sprintf("alerts.intents.%s", intent.Instrument)
	_, err = o.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
