package pack

import "testing"

func flatSnapshot(tempC, voltageV float64) Snapshot {
	var s Snapshot
	for mi := range s.Modules {
		for gi := range s.Modules[mi].Groups {
			g := &s.Modules[mi].Groups[gi]
			g.TempCoreC = tempC
			g.VoltageV = voltageV
		}
	}
	return s
}

func TestExtractFeatures_FlatSnapshotHasZeroSpreads(t *testing.T) {
	s := flatSnapshot(30, 3.2)
	f := ExtractFeatures(&s)
	if f.TempSpreadC != 0 {
		t.Fatalf("want zero temp spread, got %f", f.TempSpreadC)
	}
	if f.VSpreadMv != 0 {
		t.Fatalf("want zero voltage spread, got %f", f.VSpreadMv)
	}
	if f.MinTempC != 30 || f.MaxTempC != 30 || f.AvgTempC != 30 || f.MedianTempC != 30 {
		t.Fatalf("want every temp aggregate == 30, got %+v", f)
	}
}

func TestExtractFeatures_MedianEvenCountAveragesMiddleTwo(t *testing.T) {
	samples := []sample{{v: 10}, {v: 20}, {v: 30}, {v: 40}}
	_, med := medianOf(samples)
	if med != 25 {
		t.Fatalf("want median 25 (avg of 20 and 30), got %f", med)
	}
}

func TestExtractFeatures_MedianOddCountPicksMiddle(t *testing.T) {
	samples := []sample{{v: 10}, {v: 5}, {v: 30}}
	_, med := medianOf(samples)
	if med != 10 {
		t.Fatalf("want median 10, got %f", med)
	}
}

func TestExtractFeatures_HottestGroupTieBreaksLowestRef(t *testing.T) {
	s := flatSnapshot(30, 3.2)
	s.Modules[2].Groups[5].TempCoreC = 50
	s.Modules[1].Groups[9].TempCoreC = 50 // same max, earlier module wins
	f := ExtractFeatures(&s)
	if f.Hottest.Ref.Module != 1 || f.Hottest.Ref.Group != 9 {
		t.Fatalf("want hottest tie broken toward (1,9), got %+v", f.Hottest.Ref)
	}
	if f.Hottest.TempCoreC != 50 {
		t.Fatalf("want hottest temp 50, got %f", f.Hottest.TempCoreC)
	}
}

func TestExtractFeatures_VoltageOutliersSortedByDeviationDesc(t *testing.T) {
	s := flatSnapshot(30, 3.2)
	s.Modules[0].Groups[0].VoltageV = 3.25 // +50mV
	s.Modules[0].Groups[1].VoltageV = 3.18 // -20mV
	f := ExtractFeatures(&s)
	if f.VoltageOutlierCount < 2 {
		t.Fatalf("want at least 2 outliers, got %d", f.VoltageOutlierCount)
	}
	if f.VoltageOutliers[0].DeviationAbs < f.VoltageOutliers[1].DeviationAbs {
		t.Fatal("want outliers sorted by |deviation| descending")
	}
	if f.VoltageOutliers[0].Ref.Module != 0 || f.VoltageOutliers[0].Ref.Group != 0 {
		t.Fatalf("want the +50mV group first, got %+v", f.VoltageOutliers[0])
	}
}

func TestExtractFeatures_ResistanceOutliersArePercentDeviation(t *testing.T) {
	s := flatSnapshot(30, 3.2)
	for mi := range s.Modules {
		for gi := range s.Modules[mi].Groups {
			s.Modules[mi].Groups[gi].RintGroupMohm = 1.0
		}
	}
	s.Modules[4].Groups[3].RintGroupMohm = 1.5 // +50%
	f := ExtractFeatures(&s)
	if f.ResistanceOutlierCount == 0 {
		t.Fatal("want at least one resistance outlier")
	}
	top := f.ResistanceOutliers[0]
	if top.Ref.Module != 4 || top.Ref.Group != 3 {
		t.Fatalf("want the perturbed group to top the resistance table, got %+v", top.Ref)
	}
	if diff := top.DeviationAbs - 50; diff < -0.01 || diff > 0.01 {
		t.Fatalf("want ~50%% deviation, got %f", top.DeviationAbs)
	}
}

func TestExtractFeatures_ModuleRiskClampedToUnitInterval(t *testing.T) {
	var m Module
	m.MaxDtDtCPerMin = 100 // wildly over-range
	m.SwellingPct = 100
	for gi := range m.Groups {
		m.Groups[gi].TempCoreC = 500
		m.Groups[gi].VoltageV = 3.2
	}
	m.Groups[0].VoltageV = 10 // huge spread
	r := moduleRisk(&m)
	if r < 0 || r > 1 {
		t.Fatalf("want risk clamped to [0,1], got %f", r)
	}
	if r < 0.999999 {
		t.Fatalf("want risk saturated under extreme inputs, got %f", r)
	}
}

func TestExtractFeatures_GasAndPressureTakeWorstOfTwoSensors(t *testing.T) {
	s := flatSnapshot(30, 3.2)
	s.GasRatio1, s.GasRatio2 = 0.9, 0.6
	s.PressureDelta1Hpa, s.PressureDelta2Hpa = -3, 1
	f := ExtractFeatures(&s)
	if f.GasRatioMin != 0.6 {
		t.Fatalf("want gas_ratio_min 0.6, got %f", f.GasRatioMin)
	}
	if f.PressureDeltaMax != 3 {
		t.Fatalf("want pressure_delta_max 3 (abs of -3), got %f", f.PressureDeltaMax)
	}
}
