package pack

import "testing"

func baselineSnapshot() Snapshot {
	s := Snapshot{
		PackVoltageV:  332.8,
		PackCurrentA:  2.0,
		IsolationMohm: 500,
		GasRatio1:     0.98,
		GasRatio2:     0.98,
		AmbientTempC:  28,
	}
	for mi := range s.Modules {
		for gi := range s.Modules[mi].Groups {
			g := &s.Modules[mi].Groups[gi]
			g.VoltageV = 3.2
			g.TempCoreC = 28
		}
	}
	return s
}

func TestClassify_NominalIsEmpty(t *testing.T) {
	s := baselineSnapshot()
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 0 {
		t.Fatalf("want no active categories, got %d (%v)", c.ActiveCount(), c.Active)
	}
	if c.EmergencyDirect || c.ShortCircuit {
		t.Fatal("want no overrides for a nominal snapshot")
	}
}

func TestClassify_ElectricalLowVoltage(t *testing.T) {
	s := baselineSnapshot()
	s.PackVoltageV = 250
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 1 || c.Active[0].Category != CategoryElectrical {
		t.Fatalf("want electrical only, got %v", c.Active)
	}
}

func TestClassify_ElectricalOutlierRecordsModule(t *testing.T) {
	s := baselineSnapshot()
	s.Modules[5].Groups[0].VoltageV = 3.22 // +20mV vs 3.2 median
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 1 || c.Active[0].Category != CategoryElectrical {
		t.Fatalf("want electrical only, got %v", c.Active)
	}
	found := false
	for _, m := range c.Active[0].Modules {
		if m == 6 { // 1-based
			found = true
		}
	}
	if !found {
		t.Fatalf("want module 6 recorded, got %v", c.Active[0].Modules)
	}
}

func TestClassify_ThermalCoreAvgDelta(t *testing.T) {
	s := baselineSnapshot()
	s.Modules[2].Groups[0].TempCoreC = 50 // avg ~28.21, delta ~21.8 > 20
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	foundThermal := false
	for _, a := range c.Active {
		if a.Category == CategoryThermal {
			foundThermal = true
		}
	}
	if !foundThermal {
		t.Fatalf("want thermal active, got %v", c.Active)
	}
}

func TestClassify_GasCategory(t *testing.T) {
	s := baselineSnapshot()
	s.GasRatio1, s.GasRatio2 = 0.5, 0.9
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 1 || c.Active[0].Category != CategoryGas {
		t.Fatalf("want gas only, got %v", c.Active)
	}
}

func TestClassify_PressureCategory(t *testing.T) {
	s := baselineSnapshot()
	s.PressureDelta1Hpa = 3.5
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 1 || c.Active[0].Category != CategoryPressure {
		t.Fatalf("want pressure only, got %v", c.Active)
	}
}

func TestClassify_SwellingCategoryRecordsModule(t *testing.T) {
	s := baselineSnapshot()
	s.Modules[7].SwellingPct = 4
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ActiveCount() != 1 || c.Active[0].Category != CategorySwelling {
		t.Fatalf("want swelling only, got %v", c.Active)
	}
	if len(c.Active[0].Modules) != 1 || c.Active[0].Modules[0] != 8 {
		t.Fatalf("want module 8 recorded, got %v", c.Active[0].Modules)
	}
}

func TestClassify_EmergencyDirectOnExtremeTemp(t *testing.T) {
	s := baselineSnapshot()
	s.Modules[0].Groups[0].TempCoreC = 85
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if !c.EmergencyDirect {
		t.Fatal("want emergency_direct for a core temp above 80C")
	}
}

func TestClassify_EmergencyDirectOnIsolationCollapse(t *testing.T) {
	s := baselineSnapshot()
	s.IsolationMohm = 50
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if !c.EmergencyDirect {
		t.Fatal("want emergency_direct for isolation below 100 mohm")
	}
}

func TestClassify_ShortCircuitByMagnitude(t *testing.T) {
	s := baselineSnapshot()
	s.PackCurrentA = 400
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if !c.ShortCircuit {
		t.Fatal("want short_circuit for |current| above 350A")
	}
}

func TestClassify_ShortCircuitByCollapsingVoltageSlope(t *testing.T) {
	s0 := baselineSnapshot()
	s0.TimestampMs = 0
	s0.PackCurrentA = 290 // 0.8*350 = 280, above frac threshold
	s0.PackVoltageV = 332

	s1 := baselineSnapshot()
	s1.TimestampMs = 100 // 0.1s
	s1.PackCurrentA = 290
	s1.PackVoltageV = 330 // dV/dt = -20 V/s < -15

	f1 := ExtractFeatures(&s1)
	c1 := Classify(&s1, &f1, &s0)
	if !c1.ShortCircuit {
		t.Fatal("want short_circuit from the collapsing dV/dt rule")
	}
}

func TestClassify_ShortCircuitSlopeRequiresPrevSnapshot(t *testing.T) {
	s := baselineSnapshot()
	s.PackCurrentA = 290
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)
	if c.ShortCircuit {
		t.Fatal("want no short_circuit without a previous snapshot to derive dV/dt")
	}
}

func TestClassify_ModuleBitmaskAndCategoryBitmask(t *testing.T) {
	s := baselineSnapshot()
	s.Modules[0].SwellingPct = 5
	s.Modules[3].SwellingPct = 5
	f := ExtractFeatures(&s)
	c := Classify(&s, &f, nil)

	if mask := c.ModuleBitmask(); mask != (1<<0)|(1<<3) {
		t.Fatalf("want module bitmask 0b1001, got %08b", mask)
	}
	if mask := c.CategoryBitmask(); mask != 1<<uint(CategorySwelling) {
		t.Fatalf("want category bitmask for swelling only, got %08b", mask)
	}
}
