package pack

import "sort"

// sample pairs a group reference with one scalar reading, used while
// building aggregates and outlier tables.
type sample struct {
	ref GroupRef
	v   float64
}

// ExtractFeatures derives the per-snapshot statistics: deterministic and
// total, with no fallible path. Identical snapshots produce bitwise-identical
// features.
func ExtractFeatures(s *Snapshot) Features {
	var f Features

	temps := make([]sample, 0, ModuleCount*GroupsPerModule)
	voltages := make([]sample, 0, ModuleCount*GroupsPerModule)
	resistances := make([]sample, 0, ModuleCount*GroupsPerModule)

	for mi := 0; mi < ModuleCount; mi++ {
		m := &s.Modules[mi]
		f.MaxDtDtCPerMin = max(f.MaxDtDtCPerMin, m.MaxDtDtCPerMin)
		f.MaxSwellingPct = max(f.MaxSwellingPct, m.SwellingPct)
		for gi := 0; gi < GroupsPerModule; gi++ {
			g := &m.Groups[gi]
			ref := GroupRef{Module: mi, Group: gi}
			temps = append(temps, sample{ref, g.TempCoreC})
			voltages = append(voltages, sample{ref, g.VoltageV})
			resistances = append(resistances, sample{ref, g.RintGroupMohm})
			f.MaxDtDtCPerMin = max(f.MaxDtDtCPerMin, g.DtDtCPerMin)
		}
	}

	f.MinTempC, f.MaxTempC, f.AvgTempC = minMaxAvg(temps)
	_, f.MedianTempC = medianOf(temps)
	f.TempSpreadC = f.MaxTempC - f.MinTempC
	f.VSpreadMv = spreadMv(voltages)

	f.GasRatioMin = min(s.GasRatio1, s.GasRatio2)
	f.PressureDeltaMax = max(absf(s.PressureDelta1Hpa), absf(s.PressureDelta2Hpa))

	f.Hottest = hottestGroup(temps, s)

	_, vMedian := medianOf(voltages)
	f.VoltageOutliers, f.VoltageOutlierCount = topOutliers(voltages, vMedian, true)
	_, tMedian := medianOf(temps)
	f.TemperatureOutliers, f.TemperatureOutlierCount = topOutliers(temps, tMedian, false)
	_, rMedian := medianOf(resistances)
	f.ResistanceOutliers, f.ResistanceOutlierCount = topOutliersPct(resistances, rMedian)

	for mi := 0; mi < ModuleCount; mi++ {
		f.ModuleRisk[mi] = moduleRisk(&s.Modules[mi])
	}

	return f
}

func minMaxAvg(samples []sample) (lo, hi, avg float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	lo, hi = samples[0].v, samples[0].v
	sum := 0.0
	for _, s := range samples {
		lo = min(lo, s.v)
		hi = max(hi, s.v)
		sum += s.v
	}
	return lo, hi, sum / float64(len(samples))
}

// medianOf returns a copy sorted by value and the statistical median
// (average of the two middle elements for an even count).
func medianOf(samples []sample) ([]sample, float64) {
	sorted := make([]sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].v < sorted[j].v })
	n := len(sorted)
	if n == 0 {
		return sorted, 0
	}
	if n%2 == 1 {
		return sorted, sorted[n/2].v
	}
	return sorted, (sorted[n/2-1].v + sorted[n/2].v) / 2
}

func spreadMv(voltages []sample) float64 {
	if len(voltages) == 0 {
		return 0
	}
	lo, hi := voltages[0].v, voltages[0].v
	for _, s := range voltages {
		lo = min(lo, s.v)
		hi = max(hi, s.v)
	}
	return (hi - lo) * 1000
}

// hottestGroup picks the group with the largest core temperature, ties
// broken by smallest (module, group).
func hottestGroup(temps []sample, s *Snapshot) HottestGroup {
	best := temps[0]
	for _, t := range temps[1:] {
		if t.v > best.v ||
			(t.v == best.v && (t.ref.Module < best.ref.Module ||
				(t.ref.Module == best.ref.Module && t.ref.Group < best.ref.Group))) {
			best = t
		}
	}
	g := s.Modules[best.ref.Module].Groups[best.ref.Group]
	return HottestGroup{
		Ref:           best.ref,
		TempCoreC:     g.TempCoreC,
		DtDtCPerMin:   g.DtDtCPerMin,
		RintGroupMohm: g.RintGroupMohm,
	}
}

// deviation pairs a sample with its absolute deviation from the pack
// median, the sort key for the outlier tables.
type deviation struct {
	ref GroupRef
	v   float64
	d   float64
}

// topOutliers builds the top-5 table by |deviation| from the median, ties
// broken by (module, group) ascending. toMv converts value and deviation
// to millivolts for the voltage table.
func topOutliers(samples []sample, median float64, toMv bool) ([5]OutlierEntry, int) {
	devs := make([]deviation, len(samples))
	for i, s := range samples {
		devs[i] = deviation{s.ref, s.v, absf(s.v - median)}
	}
	sortDevsDesc(devs)
	var out [5]OutlierEntry
	n := min(len(devs), 5)
	for i := 0; i < n; i++ {
		v, d := devs[i].v, devs[i].d
		if toMv {
			v *= 1000
			d *= 1000
		}
		out[i] = OutlierEntry{Ref: devs[i].ref, Value: v, DeviationAbs: d}
	}
	return out, n
}

// topOutliersPct is topOutliers for the resistance table, which is
// reported as percent deviation from the median.
func topOutliersPct(samples []sample, median float64) ([5]OutlierEntry, int) {
	devs := make([]deviation, len(samples))
	for i, s := range samples {
		pct := 0.0
		if median != 0 {
			pct = (s.v - median) / median * 100
		}
		devs[i] = deviation{s.ref, s.v, absf(pct)}
	}
	sortDevsDesc(devs)
	var out [5]OutlierEntry
	n := min(len(devs), 5)
	for i := 0; i < n; i++ {
		out[i] = OutlierEntry{Ref: devs[i].ref, Value: devs[i].v, DeviationAbs: devs[i].d}
	}
	return out, n
}

func sortDevsDesc(devs []deviation) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].d != devs[j].d {
			return devs[i].d > devs[j].d
		}
		if devs[i].ref.Module != devs[j].ref.Module {
			return devs[i].ref.Module < devs[j].ref.Module
		}
		return devs[i].ref.Group < devs[j].ref.Group
	})
}

// moduleRisk computes the per-module risk score: each component clamped
// to [0,1] individually before weighting, then the weighted sum clamped
// to [0,1] again.
func moduleRisk(m *Module) float64 {
	maxGroupTemp := m.Groups[0].TempCoreC
	minV, maxV := m.Groups[0].VoltageV, m.Groups[0].VoltageV
	for _, g := range m.Groups {
		maxGroupTemp = max(maxGroupTemp, g.TempCoreC)
		minV = min(minV, g.VoltageV)
		maxV = max(maxV, g.VoltageV)
	}
	spreadMv := (maxV - minV) * 1000

	tempNorm := clamp01((maxGroupTemp - 45) / 35)
	dtDtNorm := clamp01(m.MaxDtDtCPerMin / 2.0)
	vSpreadNorm := clamp01(spreadMv / 80)
	swellingNorm := clamp01(m.SwellingPct / 10)

	risk := 0.35*tempNorm + 0.25*dtDtNorm + 0.20*vSpreadNorm + 0.20*swellingNorm
	return clamp01(risk)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
