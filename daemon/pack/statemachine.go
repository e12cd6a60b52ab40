package pack

// ShouldTick reports whether a state-machine evaluation is due: a tick
// fires when 500ms of snapshot time has elapsed since the previous tick,
// or immediately when a short-circuit, emergency-direct, or three-category
// condition is present in the current snapshot.
func ShouldTick(st *EngineState, timestampMs int64, c Classification) bool {
	if c.ShortCircuit || c.EmergencyDirect || c.ActiveCount() >= 3 {
		return true
	}
	if st.LastEvalMs == nil {
		return true
	}
	return timestampMs-*st.LastEvalMs >= TickPeriodMs
}

// Tick advances the correlation state machine by exactly one evaluation.
// c is the classification for the current snapshot; timestampMs is the
// snapshot's timestamp, used only to record LastEvalMs (ticks are
// snapshot-clock driven, never wall-clock).
func Tick(st *EngineState, timestampMs int64, c Classification) {
	n := c.ActiveCount()
	anomalous := c.ShortCircuit || c.EmergencyDirect || n >= 1

	switch {
	case st.EmergencyLatched:
		if anomalous {
			st.CurrentState = StateEmergency
			st.EmergencyRecoveryCounter = 0
		} else if st.EmergencyRecoveryCounter >= EmergencyRecoveryLimit {
			// The full recovery window has been observed latch-held; this
			// tick is the first one allowed to report NORMAL.
			st.EmergencyLatched = false
			st.EmergencyRecoveryCounter = 0
			st.CurrentState = StateNormal
		} else {
			st.EmergencyRecoveryCounter++
			st.CurrentState = StateEmergency
		}

	case c.ShortCircuit || c.EmergencyDirect || n >= 3:
		st.CurrentState = StateEmergency
		st.EmergencyLatched = true
		st.EmergencyRecoveryCounter = 0

	case n >= 2:
		if st.CurrentState != StateCritical {
			st.CurrentState = StateCritical
			st.CriticalCountdown = 0
		}
		st.CriticalCountdown++
		st.DeescalationCounter = 0
		if st.CriticalCountdown >= CriticalCountdownLimit {
			st.CurrentState = StateEmergency
			st.EmergencyLatched = true
			st.EmergencyRecoveryCounter = 0
		}

	case n == 1:
		st.CurrentState = StateWarning
		st.CriticalCountdown = 0
		st.DeescalationCounter = 0

	default: // n == 0
		if st.CurrentState != StateNormal {
			st.DeescalationCounter++
			if st.DeescalationCounter >= DeescalationLimit {
				st.CurrentState = StateNormal
				st.DeescalationCounter = 0
			}
		}
		st.CriticalCountdown = 0
	}

	st.LastEvalMs = &timestampMs
}

// ResetEngineState zeroes all persistent engine counters and returns the
// state machine to NORMAL. Applied in full on a source restart (decreasing
// timestamp) so latch behavior is never ambiguous across restarts.
func ResetEngineState(st *EngineState) {
	*st = EngineState{}
}
