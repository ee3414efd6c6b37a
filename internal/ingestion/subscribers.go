package ingestion

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"BreachLedger/internal/detector"
	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
	"BreachLedger/internal/rules"
)

// TickSink receives routed tick messages. Satisfied by detector.Router.
type TickSink interface {
	Route(ctx context.Context, msg detector.TickMsg) error
}

// BreachHandler processes one breach end to end. Satisfied by fanout.Engine.
type BreachHandler interface {
	FanOut(ctx context.Context, b *event.Breach) error
}

// SubscribeTicks feeds md.ticks.> into the partition router. Malformed
// payloads are poison: acked and dropped, they would never parse on
// redelivery either.
func SubscribeTicks(ctx context.Context, js jetstream.JetStream, sink TickSink, metrics *observability.Metrics) (*Consumer, error) {
	return consume(ctx, js, TickStream, "breach-ticks", TickSubjects, 30*time.Second, func(msg jetstream.Msg) {
		tick, err := ParseTick(msg.Data())
		if err != nil {
			log.Printf("WARN: dropping malformed tick on %s: %v", msg.Subject(), err)
			if metrics != nil {
				metrics.TicksRejected.WithLabelValues("malformed").Inc()
			}
			msg.Ack()
			return
		}

		tm := detector.TickMsg{
			Tick: tick,
			Ack:  msg.Ack,
			Nak:  msg.Nak,
		}
		if err := sink.Route(ctx, tm); err != nil {
			// Shutdown race: the router is gone, let the broker redeliver.
			msg.Nak()
		}
	})
}

// SubscribeBreaches drives the fan-out engine from alerts.breach.>. A failed
// fan-out naks with a delay so the broker replays the whole breach; the
// notification ledger makes the replay converge. AckWait is generous because
// one fan-out spans all shards.
func SubscribeBreaches(ctx context.Context, js jetstream.JetStream, handler BreachHandler) (*Consumer, error) {
	return consume(ctx, js, BreachStream, "breach-fanout", BreachSubjects, 5*time.Minute, func(msg jetstream.Msg) {
		b, err := ParseBreach(msg.Data())
		if err != nil {
			log.Printf("WARN: dropping malformed breach on %s: %v", msg.Subject(), err)
			msg.Ack()
			return
		}

		if err := handler.FanOut(ctx, b); err != nil {
			log.Printf("WARN: fan-out failed alert_id=%s, redelivering: %v", b.AlertID, err)
			msg.NakWithDelay(10 * time.Second)
			return
		}
		msg.Ack()
	})
}

// SubscribeRuleUpdates applies alerts.rules.updates to the live rule
// snapshot. Invalid updates are acked and dropped; redelivering them cannot
// make them valid.
func SubscribeRuleUpdates(ctx context.Context, js jetstream.JetStream, mgr *rules.Manager, metrics *observability.Metrics) (*Consumer, error) {
	return consume(ctx, js, RuleStream, "breach-rules", RuleSubject, 30*time.Second, func(msg jetstream.Msg) {
		upd, err := ParseRuleUpdate(msg.Data())
		if err != nil {
			log.Printf("WARN: dropping malformed rule update: %v", err)
			msg.Ack()
			return
		}

		if err := mgr.Apply(upd); err != nil {
			log.Printf("WARN: %v", err)
			msg.Ack()
			return
		}
		if metrics != nil {
			metrics.ActiveRuleVersion.Set(float64(upd.RuleVersion))
		}
		log.Printf("INFO: rule update applied threshold_ppm=%d rule_version=%d", upd.ThresholdPPM, upd.RuleVersion)
		msg.Ack()
	})
}
