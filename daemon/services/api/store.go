package api

import (
	"sync"

	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// historyCapacity bounds the in-memory telemetry ring buffer backing
// /api/v1/telemetry/history. The engine publishes one record per
// snapshot, so 600 records is one minute at a 100ms snapshot period.
const historyCapacity = 600

// telemetryStore holds the most recently published telemetry record, a
// ring buffer of recent history, and the last health record. Safe for
// concurrent use: written from the telemetry fan-out task, read from
// arbitrary HTTP/MCP request goroutines.
type telemetryStore struct {
	mu         sync.RWMutex
	latest     pack.Telemetry
	haveLatest bool
	history    []pack.Telemetry
	next       int
	filled     bool
	health     pack.HealthRecord
}

func newTelemetryStore(capacity int) *telemetryStore {
	return &telemetryStore{history: make([]pack.Telemetry, capacity)}
}

func (s *telemetryStore) push(t pack.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = t
	s.haveLatest = true
	s.history[s.next] = t
	s.next = (s.next + 1) % len(s.history)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *telemetryStore) setHealth(h pack.HealthRecord) {
	s.mu.Lock()
	s.health = h
	s.mu.Unlock()
}

func (s *telemetryStore) getHealth() pack.HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *telemetryStore) getLatest() (pack.Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.haveLatest
}

// getHistory returns up to limit of the most recently published records,
// oldest first. limit <= 0 means "no limit" (the full buffer).
func (s *telemetryStore) getHistory(limit int) []pack.Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ordered []pack.Telemetry
	if s.filled {
		ordered = append(ordered, s.history[s.next:]...)
		ordered = append(ordered, s.history[:s.next]...)
	} else {
		ordered = append(ordered, s.history[:s.next]...)
	}
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
