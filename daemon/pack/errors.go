package pack

import "errors"

// Sentinel error kinds from the framing and field-coercion layers. None
// of these abort the pipeline on their own; each is paired with a counter
// increment and, where noted, an eventbus notification.
var (
	ErrBadSync     = errors.New("pack: bad sync byte")
	ErrBadLength   = errors.New("pack: bad frame length")
	ErrBadChecksum = errors.New("pack: bad xor checksum")
	ErrUnknownType = errors.New("pack: unknown frame type")

	// ErrIncompleteCycle is reported when a new pack frame arrives before
	// all eight module frames of the previous cycle were collected.
	ErrIncompleteCycle = errors.New("pack: incomplete frame cycle")

	// ErrSourceReset marks a decoded timestamp that decreased relative to
	// the previous snapshot; engine state is reset, not aborted.
	ErrSourceReset = errors.New("pack: source timestamp reset")

	// ErrQueueOverflow marks a bounded queue that was full; the newest
	// item is dropped and a counter incremented.
	ErrQueueOverflow = errors.New("pack: queue overflow, dropped newest")

	// ErrIoUnavailable marks a serial device that could not be opened at
	// startup. The orchestrator returns it wrapped and main exits with
	// code 3; opening is not retried.
	ErrIoUnavailable = errors.New("pack: io unavailable")

	// ErrConfigInvalid is the only error kind that should terminate the
	// process (exit code 2 at startup).
	ErrConfigInvalid = errors.New("pack: invalid configuration")
)

// DecodeErrorCounters tallies framing and coercion faults for periodic
// health reporting: dropped inputs surface as counters in a health
// record, never as missing ticks. Mutated from both the
// engine's processing goroutine and any external decoder feeding it over a
// byte stream (serial framing errors arrive on a separate reader goroutine);
// callers must hold Engine's counter lock when touching a shared instance.
type DecodeErrorCounters struct {
	BadSync         uint64
	BadLength       uint64
	BadChecksum     uint64
	UnknownType     uint64
	IncompleteCycle uint64
	FieldCoerced    uint64
	SourceReset     uint64
	QueueOverflow   uint64
}

// HealthRecord is the periodic snapshot of DecodeErrorCounters plus basic
// liveness data, published on the eventbus and surfaced over REST/MQTT.
type HealthRecord struct {
	TimestampMs int64
	Counters    DecodeErrorCounters
	QueueDepth  int
	Running     bool
}
