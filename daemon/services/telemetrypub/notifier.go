package telemetrypub

import (
	"fmt"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// notifyCooldown is the minimum interval between two notifications so
// that a flapping state doesn't flood the configured channels.
const notifyCooldown = 60 * time.Second

// Notifier sends a shoutrrr notification on correlation-state transitions
// (cooldown-gated, see Notify), not on every telemetry record. It only reports levels; it
// never actuates anything itself.
type Notifier struct {
	urls []string

	mu        sync.Mutex
	lastSent  time.Time
	lastState pack.State
	haveState bool
}

// NewNotifier creates a Notifier that sends to every URL in urls (any
// scheme shoutrrr supports: ntfy, gotify, discord, slack, generic webhook,
// ...). An empty slice makes Notify a no-op.
func NewNotifier(urls []string) *Notifier {
	return &Notifier{urls: urls}
}

// Notify inspects t.SystemState against the last state it saw and, on a
// change, sends a formatted message to every configured channel subject to
// notifyCooldown. Safe for concurrent use, though the orchestrator only
// calls it from the single publisher task.
func (n *Notifier) Notify(t pack.Telemetry) {
	if len(n.urls) == 0 {
		return
	}

	n.mu.Lock()
	from := n.lastState
	changed := !n.haveState || from != t.SystemState
	if changed {
		n.lastState = t.SystemState
		n.haveState = true
	}
	withinCooldown := time.Since(n.lastSent) < notifyCooldown
	if changed && !withinCooldown {
		n.lastSent = time.Now()
	}
	n.mu.Unlock()

	if !changed || withinCooldown {
		return
	}

	message := formatTransition(from, t)
	for _, url := range n.urls {
		if err := shoutrrr.Send(url, message); err != nil {
			logger.Error("notifier: sending to channel failed: %v", err)
		}
	}
}

func formatTransition(from pack.State, t pack.Telemetry) string {
	icon := "ℹ️" // info
	switch t.SystemState {
	case pack.StateWarning:
		icon = "⚠️"
	case pack.StateCritical, pack.StateEmergency:
		icon = "\U0001f6a8"
	}
	return fmt.Sprintf(
		"%s battcorrelate: %s -> %s\nhotspot %s, risk %d%%, cascade %s\nlatched=%v t=%d",
		icon, from, t.SystemState, t.HotspotLabel, t.RiskPct, t.CascadeStage,
		t.SystemState == pack.StateEmergency, t.TimestampMs,
	)
}
