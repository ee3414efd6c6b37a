package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATS layout. Ticks come in on md.ticks.{instrument}; breach events and
// delivery intents go out on alerts.breach.{instrument} and
// alerts.intents.{instrument}; rule changes arrive on alerts.rules.updates.
const (
	TickStream   = "MD_TICKS"
	BreachStream = "ALERT_BREACHES"
	IntentStream = "ALERT_INTENTS"
	RuleStream   = "ALERT_RULES"

	TickSubjects   = "md.ticks.>"
	BreachSubjects = "alerts.breach.>"
	IntentSubjects = "alerts.intents.>"
	RuleSubject    = "alerts.rules.updates"
)

// dedupWindow is the broker-side duplicate suppression window for streams
// published with Nats-Msg-Id (breaches keyed by alert_id, intents by the
// idempotency key). The notification ledger covers duplicates beyond it.
const dedupWindow = 2 * time.Hour

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      TickStream,
			Subjects:  []string{TickSubjects},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       BreachStream,
			Subjects:   []string{BreachSubjects},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: dedupWindow,
			Replicas:   1,
		},
		{
			Name:       IntentStream,
			Subjects:   []string{IntentSubjects},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: dedupWindow,
			Replicas:   1,
		},
		{
			Name:      RuleStream,
			Subjects:  []string{RuleSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// Consumer wraps a durable JetStream consumer with explicit ACK semantics.
type Consumer struct {
	ctx jetstream.ConsumeContext
}

func (c *Consumer) Stop() {
	if c.ctx != nil {
		c.ctx.Stop()
	}
}

// consume binds a handler to a durable consumer. Explicit ACK, max_deliver
// is unbounded for ticks and breaches: processing is fail-closed, a message
// stays with the broker until the pipeline accepts it.
func consume(ctx context.Context, js jetstream.JetStream, stream, durable, filter string, ackWait time.Duration, handler func(jetstream.Msg)) (*Consumer, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: filter,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    -1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", durable, err)
	}

	cc, err := consumer.Consume(handler)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", durable, err)
	}
	log.Printf("INFO: subscribed to %s (consumer=%s)", filter, durable)
	return &Consumer{ctx: cc}, nil
}
