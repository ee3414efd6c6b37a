package detector

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"BreachLedger/internal/event"
	"BreachLedger/internal/observability"
	"BreachLedger/internal/rules"
)

const (
	// Backoff applied between retries of a tick that failed on an
	// infrastructure error. The partition stays paused until the store
	// recovers; upstream redelivery is the buffer.
	initialPauseBackoff = 200 * time.Millisecond
	maxPauseBackoff     = 5 * time.Second
)

// TickMsg carries a tick together with its delivery callbacks. Ack consumes
// the message, Nak asks the broker to redeliver it.
type TickMsg struct {
	Tick *event.Tick
	Ack  func() error
	Nak  func() error
}

// Router fans ticks out to partition workers. All ticks for one instrument
// hash to the same partition, which gives each Detector exclusive ownership
// of its instruments' state without locking.
type Router struct {
	partitions []*partition
	wg         sync.WaitGroup
	log        zerolog.Logger
}

type partition struct {
	id       int
	detector *Detector
	in       chan TickMsg
	backoff  time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewRouter(
	numPartitions int,
	bufferSize int,
	ruleMgr *rules.Manager,
	store StateStore,
	breachChan chan<- *event.Breach,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Router {
	if numPartitions < 1 {
		numPartitions = 1
	}
	r := &Router{
		partitions: make([]*partition, numPartitions),
		log:        log,
	}
	for i := 0; i < numPartitions; i++ {
		name := strconv.Itoa(i)
		r.partitions[i] = &partition{
			id:       i,
			detector: NewDetector(name, ruleMgr, store, breachChan, metrics, log.With().Int("partition", i).Logger()),
			in:       make(chan TickMsg, bufferSize),
			metrics:  metrics,
			log:      log.With().Int("partition", i).Logger(),
		}
	}
	return r
}

// Start launches one goroutine per partition. Workers drain until Stop
// closes the inputs.
func (r *Router) Start(ctx context.Context) {
	for _, p := range r.partitions {
		r.wg.Add(1)
		go func(p *partition) {
			defer r.wg.Done()
			p.run(ctx)
		}(p)
	}
	r.log.Info().Int("partitions", len(r.partitions)).Msg("tick router started")
}

// Route delivers a tick to its owning partition. Blocks when the partition
// buffer is full so broker-side flow control kicks in.
func (r *Router) Route(ctx context.Context, msg TickMsg) error {
	idx := r.partitionFor(msg.Tick.Instrument)
	p := r.partitions[idx]
	select {
	case p.in <- msg:
		if p.metrics != nil {
			p.metrics.PartitionDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(p.in)))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) partitionFor(instrument string) int {
	h := fnv.New32a()
	h.Write([]byte(instrument))
	return int(h.Sum32()) % len(r.partitions)
}

// Stop closes all partition inputs and waits for workers to drain.
func (r *Router) Stop() {
	for _, p := range r.partitions {
		close(p.in)
	}
	r.wg.Wait()
	r.log.Info().Msg("tick router stopped")
}

func (p *partition) run(ctx context.Context) {
	label := strconv.Itoa(p.id)
	for msg := range p.in {
		if p.metrics != nil {
			p.metrics.PartitionDepth.WithLabelValues(label).Set(float64(len(p.in)))
		}
		p.handle(ctx, msg)
	}
}

// handle processes one tick, classifying errors into consume-and-ack
// (validation) versus nak-and-pause (infrastructure).
func (p *partition) handle(ctx context.Context, msg TickMsg) {
	err := p.detector.ProcessTick(ctx, msg.Tick)
	switch {
	case err == nil:
		p.backoff = 0
		p.ack(msg)

	case errors.Is(err, ErrDuplicateTick):
		// Stale or replayed sequence: consumed without effect.
		p.ack(msg)

	case errors.Is(err, ErrInvalidReferencePrice):
		p.log.Warn().
			Str("instrument", msg.Tick.Instrument).
			Int64("source_seq", msg.Tick.SourceSeq).
			Err(err).
			Msg("tick rejected")
		p.ack(msg)

	case errors.Is(err, ErrStateUnavailable):
		// Fail closed: redeliver the tick and pause before touching the
		// next one so a down store is not hammered.
		p.log.Error().
			Str("instrument", msg.Tick.Instrument).
			Err(err).
			Msg("state store unavailable, nak and pause")
		p.nak(msg)
		p.pause(ctx)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.nak(msg)

	default:
		p.log.Error().Err(err).Msg("unexpected tick processing error, redelivering")
		p.nak(msg)
		p.pause(ctx)
	}
}

func (p *partition) ack(msg TickMsg) {
	if msg.Ack == nil {
		return
	}
	if err := msg.Ack(); err != nil {
		p.log.Warn().Err(err).Msg("tick ack failed")
	}
}

func (p *partition) nak(msg TickMsg) {
	if msg.Nak == nil {
		return
	}
	if err := msg.Nak(); err != nil {
		p.log.Warn().Err(err).Msg("tick nak failed")
	}
}

// pause sleeps before the next tick is attempted. Consecutive infra failures
// double the pause up to maxPauseBackoff; a successful tick resets it.
func (p *partition) pause(ctx context.Context) {
	if p.backoff == 0 {
		p.backoff = initialPauseBackoff
	} else {
		p.backoff *= 2
		if p.backoff > maxPauseBackoff {
			p.backoff = maxPauseBackoff
		}
	}

	label := strconv.Itoa(p.id)
	if p.metrics != nil {
		p.metrics.PartitionPaused.WithLabelValues(label).Set(1)
		defer p.metrics.PartitionPaused.WithLabelValues(label).Set(0)
	}
	select {
	case <-time.After(p.backoff):
	case <-ctx.Done():
	}
}
