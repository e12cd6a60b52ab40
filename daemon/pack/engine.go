package pack

import (
	"context"
	"sync"
	"time"
)

// queueCapacity is the bounded capacity of both the snapshot and telemetry
// queues; overflow drops the newest item.
const queueCapacity = 10

// stopGracePeriod is how long Stop waits for the pipeline tasks to quiesce
// before returning anyway.
const stopGracePeriod = 2 * time.Second

// Engine is the cooperative processing pipeline: ingestion offers
// snapshots onto a bounded queue, one worker drives feature extraction,
// classification, the state machine, the cascade estimator, and the
// telemetry encoder in order, and publishers drain a second bounded
// queue. Engine state is owned exclusively by the processing goroutine.
type Engine struct {
	snapshotQueue  chan Snapshot
	telemetryQueue chan Telemetry

	state EngineState
	seq   uint64
	prev  *Snapshot

	counters   DecodeErrorCounters
	countersMu sync.Mutex

	onHealth      func(HealthRecord)
	onSourceReset func(prevMs, newMs int64)

	wg     sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine constructs an Engine with zeroed EngineState. onHealth, if
// non-nil, is invoked periodically from the processing goroutine with a
// HealthRecord snapshot carrying the dropped-input counters.
func NewEngine(onHealth func(HealthRecord)) *Engine {
	return &Engine{
		snapshotQueue:  make(chan Snapshot, queueCapacity),
		telemetryQueue: make(chan Telemetry, queueCapacity),
		onHealth:       onHealth,
		done:           make(chan struct{}),
	}
}

// OnSourceReset registers a callback invoked from the processing goroutine
// whenever a decreasing timestamp triggers a full engine-state reset.
// Used by the orchestrator to publish domain.SourceResetEvent without the
// pack package importing domain (which itself imports pack).
func (e *Engine) OnSourceReset(fn func(prevMs, newMs int64)) {
	e.onSourceReset = fn
}

// Ingest offers a snapshot to the bounded snapshot queue. On overflow the
// newest snapshot (this one) is dropped and the QueueOverflow counter is
// incremented. Ingest never blocks.
func (e *Engine) Ingest(s Snapshot) {
	select {
	case e.snapshotQueue <- s:
	default:
		e.countersMu.Lock()
		e.counters.QueueOverflow++
		e.countersMu.Unlock()
	}
}

// Telemetry returns the channel telemetry consumers should range over.
// Closed when the engine stops.
func (e *Engine) Telemetry() <-chan Telemetry { return e.telemetryQueue }

// Start launches the processing goroutine; telemetry is drained by callers
// through Telemetry(). Ingest may be
// called concurrently with Start/Stop; it is safe before Start as well
// (snapshots simply queue).
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.processLoop(ctx)
}

// Stop requests the processing task to quiesce and waits up to
// stopGracePeriod for it to do so. Pending snapshots in the queue at stop
// are discarded; no telemetry is emitted after Stop returns.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()

	doneCh := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(stopGracePeriod):
	}
	close(e.telemetryQueue)
	close(e.done)
}

// Done is closed once Stop has finished quiescing the engine.
func (e *Engine) Done() <-chan struct{} { return e.done }

// processLoop is the single processing worker. Each snapshot runs through
// every stage atomically to completion; there are no suspension points
// inside the stages themselves.
func (e *Engine) processLoop(ctx context.Context) {
	defer e.wg.Done()

	healthTicker := time.NewTicker(1 * time.Second)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-healthTicker.C:
			e.reportHealth()
		case s, ok := <-e.snapshotQueue:
			if !ok {
				return
			}
			e.processOne(s)
		}
	}
}

func (e *Engine) processOne(s Snapshot) {
	start := time.Now()

	if e.state.LastEvalMs != nil && e.prev != nil && s.TimestampMs < e.prev.TimestampMs {
		e.countersMu.Lock()
		e.counters.SourceReset++
		e.countersMu.Unlock()
		prevMs := e.prev.TimestampMs
		ResetEngineState(&e.state)
		e.prev = nil
		if e.onSourceReset != nil {
			e.onSourceReset(prevMs, s.TimestampMs)
		}
	}

	var prevVoltage *float64
	if e.prev != nil {
		v := e.prev.PackVoltageV
		prevVoltage = &v
	}
	coerced := CoerceSnapshot(&s, prevVoltage)
	if coerced > 0 {
		e.countersMu.Lock()
		e.counters.FieldCoerced += uint64(coerced)
		e.countersMu.Unlock()
	}

	features := ExtractFeatures(&s)
	classification := Classify(&s, &features, e.prev)

	if ShouldTick(&e.state, s.TimestampMs, classification) {
		Tick(&e.state, s.TimestampMs, classification)
	}

	cascade := EstimateCascade(&features, &s, e.state.CurrentState, classification, s.CascadeHint)

	e.seq++
	latency := time.Since(start).Milliseconds()
	telemetry := BuildTelemetry(s, features, classification, e.state.CurrentState, cascade, e.seq, latency)

	sCopy := s
	e.prev = &sCopy

	select {
	case e.telemetryQueue <- telemetry:
	default:
		e.countersMu.Lock()
		e.counters.QueueOverflow++
		e.countersMu.Unlock()
	}
}

func (e *Engine) reportHealth() {
	if e.onHealth == nil {
		return
	}
	e.countersMu.Lock()
	counters := e.counters
	e.countersMu.Unlock()

	var ts int64
	if e.state.LastEvalMs != nil {
		ts = *e.state.LastEvalMs
	}
	e.onHealth(HealthRecord{
		TimestampMs: ts,
		Counters:    counters,
		QueueDepth:  len(e.snapshotQueue),
		Running:     true,
	})
}

// NoteFrameError increments the appropriate decode-error counter for an
// error returned by the inbound decoder (scanFrame/InboundDecoder.Feed). It
// is exported so callers feeding the engine from a byte stream (the
// orchestrator's serial source) can report framing faults through the same
// counters.
func (e *Engine) NoteFrameError(err error) {
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	switch err {
	case ErrBadSync:
		e.counters.BadSync++
	case ErrBadLength:
		e.counters.BadLength++
	case ErrBadChecksum:
		e.counters.BadChecksum++
	case ErrUnknownType:
		e.counters.UnknownType++
	case ErrIncompleteCycle:
		e.counters.IncompleteCycle++
	}
}
