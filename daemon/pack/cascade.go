package pack

// cascadeTempBoundaries are the inclusive upper core-temperature bounds
// (°C) for each stage except the last, which is unbounded.
var cascadeTempBoundaries = [cascadeStageCount - 1]float64{60, 80, 120, 150, 200, 300}

// stageFromTemp maps the hottest core temperature to a cascade stage by
// the boundaries above.
func stageFromTemp(tmax float64) CascadeStage {
	for i, bound := range cascadeTempBoundaries {
		if tmax <= bound {
			return CascadeStage(i)
		}
	}
	return CascadeFullRunaway
}

// stageFromState maps the current alarm state to a cascade stage.
func stageFromState(state State) CascadeStage {
	switch state {
	case StateWarning:
		return CascadeElevated
	case StateCritical:
		return CascadeSeiDecomposition
	case StateEmergency:
		return CascadeFullRunaway
	default:
		return CascadeNormal
	}
}

// EstimateCascade computes the cascade stage, risk factor, and per-stage
// ETA. The reported stage is the maximum of the temperature-derived stage,
// the state-derived stage, and the snapshot's external hint. state is the
// state machine's current state after its tick.
func EstimateCascade(f *Features, s *Snapshot, state State, c Classification, hint CascadeStage) CascadeResult {
	var r CascadeResult

	byTemp := stageFromTemp(f.MaxTempC)
	byState := stageFromState(state)
	r.Stage = maxStage(maxStage(byTemp, byState), hint)

	risk := 0.35*clamp01((f.MaxTempC-45)/55) +
		0.25*clamp01(f.MaxDtDtCPerMin/5) +
		0.20*clamp01((0.85-f.GasRatioMin)/0.45) +
		0.10*clamp01(f.PressureDeltaMax/8) +
		0.10*clamp01(f.MaxSwellingPct/10)

	switch state {
	case StateWarning:
		risk = max(risk, 0.30)
	case StateCritical:
		risk = max(risk, 0.62)
	case StateEmergency:
		risk = max(risk, 0.92)
	}
	if c.ShortCircuit {
		risk = 1.0
	}
	r.RiskFactor = clamp01(risk)

	for stage := CascadeStage(0); stage < cascadeStageCount; stage++ {
		r.EtaMinutes[stage] = etaToStage(stage, f.MaxTempC, f.MaxDtDtCPerMin)
	}

	return r
}

func maxStage(a, b CascadeStage) CascadeStage {
	if a > b {
		return a
	}
	return b
}

// etaToStage computes minutes-to-reach the given stage's upper temperature
// bound at the current dT/dt: 0 if already at or past the bound, -1 if the
// slope is too shallow to ever reach it or the stage has no finite upper
// bound (FULL_RUNAWAY).
func etaToStage(stage CascadeStage, tmax, dtdtMax float64) float64 {
	if stage == CascadeFullRunaway {
		return -1
	}
	bound := cascadeTempBoundaries[stage]
	if tmax >= bound {
		return 0
	}
	if dtdtMax > 0.01 {
		return (bound - tmax) / dtdtMax
	}
	return -1
}
