package pack

import "strconv"

// hotspotLabel renders the "M{m}:G{g}" label used in telemetry. Both m
// and g are 1-based.
func hotspotLabel(m, g int) string {
	return "M" + strconv.Itoa(m) + ":G" + strconv.Itoa(g)
}

// BuildTelemetry assembles the canonical output record from a decoded
// snapshot and the results of every pipeline stage. seq is the
// monotonically increasing publish sequence number; latencyMs is the
// elapsed time between the start of processing the snapshot and this
// call.
func BuildTelemetry(
	s Snapshot,
	f Features,
	c Classification,
	state State,
	cascade CascadeResult,
	seq uint64,
	latencyMs int64,
) Telemetry {
	t := Telemetry{
		Snapshot: s,
		Features: f,

		SystemState:       state,
		StateNum:          int(state),
		AnomalyModuleMask: c.ModuleBitmask(),
		HotspotLabel:      hotspotLabel(f.Hottest.Ref.Module+1, f.Hottest.Ref.Group+1),
		RiskPct:           riskPct(cascade.RiskFactor, c.ShortCircuit),
		CascadeStage:      cascade.Stage,
		EmergencyDirect:   c.EmergencyDirect,
		ShortCircuit:      c.ShortCircuit,
		SequenceNum:       seq,
		LatencyMs:         latencyMs,
	}
	for _, a := range c.Active {
		t.ActiveCategories = append(t.ActiveCategories, a.Category)
	}
	return t
}

// riskPct converts the [0,1] risk factor to an integer percentage,
// forcing 100 whenever the short-circuit flag is set.
func riskPct(risk float64, shortCircuit bool) int {
	if shortCircuit {
		return 100
	}
	pct := int(risk*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
