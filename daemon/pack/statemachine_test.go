package pack

import "testing"

// nominalSnapshot returns a healthy-pack baseline: ~28C, ~2A, gas 0.98,
// pressure 0.2hPa, swelling 2%.
func nominalSnapshot(timestampMs int64) Snapshot {
	s := Snapshot{
		TimestampMs:       timestampMs,
		PackVoltageV:      332.8,
		PackCurrentA:      2.0,
		PackSocFrac:       0.6,
		AmbientTempC:      28,
		CoolantInletC:     25,
		CoolantOutletC:    30,
		HumidityPct:       45,
		IsolationMohm:     500,
		GasRatio1:         0.98,
		GasRatio2:         0.98,
		PressureDelta1Hpa: 0.2,
		PressureDelta2Hpa: 0.2,
	}
	for mi := range s.Modules {
		m := &s.Modules[mi]
		m.Ntc1C = 28
		m.Ntc2C = 28
		m.SwellingPct = 2
		for gi := range m.Groups {
			g := &m.Groups[gi]
			g.VoltageV = 3.2
			g.TempSurfaceC = 28
			g.TempCoreC = 28
			g.DtDtCPerMin = 0.05
			g.RintGroupMohm = 0.8
		}
	}
	return s
}

func runTicks(t *testing.T, st *EngineState, snaps []Snapshot) []State {
	t.Helper()
	var states []State
	var prev *Snapshot
	for i := range snaps {
		s := snaps[i]
		f := ExtractFeatures(&s)
		c := Classify(&s, &f, prev)
		if ShouldTick(st, s.TimestampMs, c) {
			Tick(st, s.TimestampMs, c)
		}
		states = append(states, st.CurrentState)
		sCopy := s
		prev = &sCopy
	}
	return states
}

// A long nominal soak stays NORMAL on every tick.
func TestStateMachine_NormalSoak(t *testing.T) {
	var st EngineState
	var snaps []Snapshot
	for i := 0; i < 60; i++ {
		snaps = append(snaps, nominalSnapshot(int64(i)*500))
	}
	states := runTicks(t, &st, snaps)
	for i, s := range states {
		if s != StateNormal {
			t.Fatalf("tick %d: want NORMAL, got %s", i, s)
		}
	}
}

// A single NTC drift fault never escalates past WARNING.
func TestStateMachine_SingleNtcDrift(t *testing.T) {
	var st EngineState
	var snaps []Snapshot
	for i := 0; i < 180; i++ {
		s := nominalSnapshot(int64(i) * 500)
		// Phantom NTC1 reading; the classifier keys on the intra-module
		// delta, not the raw per-thermistor value.
		s.Modules[3].Ntc1C += 15
		s.Modules[3].DeltaTIntraC = 15
		snaps = append(snaps, s)
	}
	states := runTicks(t, &st, snaps)

	sawWarning := false
	for i, s := range states {
		if s == StateEmergency || s == StateCritical {
			t.Fatalf("tick %d: unexpected escalation to %s for a thermal-only NTC drift", i, s)
		}
		if s == StateWarning {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Fatal("expected WARNING to appear at some point")
	}
}

// A three-category burst forces EMERGENCY + latch on the very
// next tick, with risk_pct >= 92.
func TestStateMachine_ThreeCategoryBurst(t *testing.T) {
	var st EngineState
	s0 := nominalSnapshot(0)
	s1 := nominalSnapshot(500)
	for mi := range s1.Modules {
		for gi := range s1.Modules[mi].Groups {
			s1.Modules[mi].Groups[gi].TempCoreC = 70
		}
	}
	s1.GasRatio1, s1.GasRatio2 = 0.35, 0.35
	s1.PressureDelta1Hpa, s1.PressureDelta2Hpa = 8, 8

	states := runTicks(t, &st, []Snapshot{s0, s1})
	if states[1] != StateEmergency {
		t.Fatalf("want EMERGENCY on the burst tick, got %s", states[1])
	}
	if !st.EmergencyLatched {
		t.Fatal("want emergency latched")
	}

	f := ExtractFeatures(&s1)
	c := Classify(&s1, &f, &s0)
	cascade := EstimateCascade(&f, &s1, st.CurrentState, c, CascadeNormal)
	if riskPct(cascade.RiskFactor, c.ShortCircuit) < 92 {
		t.Fatalf("want risk_pct >= 92, got %d", riskPct(cascade.RiskFactor, c.ShortCircuit))
	}
}

// A sustained {thermal, gas} soak reaches
// EMERGENCY by tick 20 and stays latched.
func TestStateMachine_CriticalSoakEscalatesToEmergency(t *testing.T) {
	var st EngineState
	var snaps []Snapshot
	for i := 0; i < 25; i++ {
		s := nominalSnapshot(int64(i) * 500)
		for mi := range s.Modules {
			for gi := range s.Modules[mi].Groups {
				s.Modules[mi].Groups[gi].TempCoreC = 65
			}
		}
		s.GasRatio1, s.GasRatio2 = 0.6, 0.6
		snaps = append(snaps, s)
	}
	states := runTicks(t, &st, snaps)

	for i := 0; i < 19; i++ {
		if states[i] != StateCritical {
			t.Fatalf("tick %d: want CRITICAL, got %s", i, states[i])
		}
	}
	for i := 19; i < 25; i++ {
		if states[i] != StateEmergency {
			t.Fatalf("tick %d: want EMERGENCY, got %s", i, states[i])
		}
	}
	if !st.EmergencyLatched {
		t.Fatal("want emergency latched")
	}
}

// One short-circuit-magnitude current tick forces EMERGENCY
// and latches; 12 subsequent nominal ticks recover to NORMAL exactly at
// tick 12 (recovery counter reaches EmergencyRecoveryLimit=10).
func TestStateMachine_RecoveryFromEmergency(t *testing.T) {
	var st EngineState
	var snaps []Snapshot
	s0 := nominalSnapshot(0)
	s0.PackCurrentA = 620
	snaps = append(snaps, s0)
	for i := 1; i <= 12; i++ {
		snaps = append(snaps, nominalSnapshot(int64(i)*500))
	}
	states := runTicks(t, &st, snaps)

	if states[0] != StateEmergency {
		t.Fatalf("tick 1: want EMERGENCY, got %s", states[0])
	}
	for i := 1; i <= 10; i++ { // ticks 2..11 (index 1..10)
		if states[i] != StateEmergency {
			t.Fatalf("tick %d: want EMERGENCY (latch held), got %s", i+1, states[i])
		}
	}
	if states[11] != StateNormal { // tick 12 (index 11)
		t.Fatalf("tick 12: want NORMAL after recovery, got %s", states[11])
	}
	if st.EmergencyLatched {
		t.Fatal("want latch cleared after recovery")
	}
}

// Short-circuit via current magnitude plus collapsing dV/dt
// forces EMERGENCY on the very next tick.
func TestStateMachine_ShortCircuitSlope(t *testing.T) {
	s0 := nominalSnapshot(0)
	s0.PackVoltageV = 332
	s0.PackCurrentA = 40

	s1 := nominalSnapshot(100)
	s1.PackVoltageV = 310
	s1.PackCurrentA = 300

	f0 := ExtractFeatures(&s0)
	_ = Classify(&s0, &f0, nil)

	f1 := ExtractFeatures(&s1)
	c1 := Classify(&s1, &f1, &s0)
	if !c1.ShortCircuit {
		t.Fatal("want short_circuit true")
	}

	var st EngineState
	if ShouldTick(&st, s1.TimestampMs, c1) {
		Tick(&st, s1.TimestampMs, c1)
	}
	if st.CurrentState != StateEmergency {
		t.Fatalf("want EMERGENCY, got %s", st.CurrentState)
	}
}

// Single-category cap: n<=1 and no overrides never reaches CRITICAL or
// EMERGENCY, regardless of run length.
func TestStateMachine_SingleCategoryCap(t *testing.T) {
	var st EngineState
	var snaps []Snapshot
	for i := 0; i < 200; i++ {
		s := nominalSnapshot(int64(i) * 500)
		s.Modules[0].DeltaTIntraC = 10 // thermal-only, every tick
		snaps = append(snaps, s)
	}
	states := runTicks(t, &st, snaps)
	for i, s := range states {
		if s == StateCritical || s == StateEmergency {
			t.Fatalf("tick %d: single-category run reached %s", i, s)
		}
	}
}

// Latch safety: once EMERGENCY is entered, no tick with n>=1 reports
// anything below EMERGENCY while still latched.
func TestStateMachine_LatchSafety(t *testing.T) {
	var st EngineState
	burst := nominalSnapshot(0)
	for mi := range burst.Modules {
		for gi := range burst.Modules[mi].Groups {
			burst.Modules[mi].Groups[gi].TempCoreC = 70
		}
	}
	burst.GasRatio1, burst.GasRatio2 = 0.35, 0.35
	burst.PressureDelta1Hpa, burst.PressureDelta2Hpa = 8, 8
	f := ExtractFeatures(&burst)
	c := Classify(&burst, &f, nil)
	Tick(&st, 0, c)
	if st.CurrentState != StateEmergency || !st.EmergencyLatched {
		t.Fatal("setup: expected emergency + latch")
	}

	// A single anomalous tick while latched must stay EMERGENCY.
	warn := nominalSnapshot(500)
	warn.Modules[0].DeltaTIntraC = 10
	fw := ExtractFeatures(&warn)
	cw := Classify(&warn, &fw, &burst)
	Tick(&st, 500, cw)
	if st.CurrentState != StateEmergency {
		t.Fatalf("want EMERGENCY held during latch with active anomaly, got %s", st.CurrentState)
	}
}

func TestResetEngineState(t *testing.T) {
	st := EngineState{CurrentState: StateEmergency, EmergencyLatched: true, CriticalCountdown: 5}
	ResetEngineState(&st)
	if st != (EngineState{}) {
		t.Fatalf("want zeroed state, got %+v", st)
	}
}
