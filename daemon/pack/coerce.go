package pack

import "math"

// Field-coercion defaults, applied at the decode boundary to the fields
// CoerceSnapshot covers. IsolationMohm, HumidityPct, PackSocFrac and CRate
// are not coerced and reach the feature extractor and classifier as
// decoded.
const (
	defaultAmbientC = 25.0
	defaultGasRatio = 1.0
	defaultPressure = 0.0
)

// coerceFinite returns v if finite, else def, and reports whether
// coercion happened.
func coerceFinite(v, def float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def, true
	}
	return v, false
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 { return clip(v, 0, 1) }

// CoerceSnapshot applies the documented defaults and clips in place,
// returning the number of fields that required coercion (for
// DecodeErrorCounters.FieldCoerced). previousVoltage is used for the
// "voltage: previous value or 0" rule when pack voltage is non-finite.
func CoerceSnapshot(s *Snapshot, previousVoltage *float64) int {
	n := 0

	if v, c := coerceFinite(s.AmbientTempC, defaultAmbientC); c {
		s.AmbientTempC = v
		n++
	}
	if v, c := coerceFinite(s.CoolantInletC, defaultAmbientC); c {
		s.CoolantInletC = v
		n++
	}
	if v, c := coerceFinite(s.CoolantOutletC, defaultAmbientC); c {
		s.CoolantOutletC = v
		n++
	}

	if v, c := coerceFinite(s.GasRatio1, defaultGasRatio); c {
		s.GasRatio1 = v
		n++
	}
	if v, c := coerceFinite(s.GasRatio2, defaultGasRatio); c {
		s.GasRatio2 = v
		n++
	}
	s.GasRatio1 = clip(s.GasRatio1, 0, 1)
	s.GasRatio2 = clip(s.GasRatio2, 0, 1)

	if v, c := coerceFinite(s.PressureDelta1Hpa, defaultPressure); c {
		s.PressureDelta1Hpa = v
		n++
	}
	if v, c := coerceFinite(s.PressureDelta2Hpa, defaultPressure); c {
		s.PressureDelta2Hpa = v
		n++
	}

	def := 0.0
	if previousVoltage != nil {
		def = *previousVoltage
	}
	if v, c := coerceFinite(s.PackVoltageV, def); c {
		s.PackVoltageV = v
		n++
	}
	if v, c := coerceFinite(s.PackCurrentA, 0); c {
		s.PackCurrentA = v
		n++
	}

	for mi := range s.Modules {
		m := &s.Modules[mi]
		if v, c := coerceFinite(m.SwellingPct, 0); c {
			m.SwellingPct = v
			n++
		}
		m.SwellingPct = clip(m.SwellingPct, 0, 100)

		if v, c := coerceFinite(m.Ntc1C, defaultAmbientC); c {
			m.Ntc1C = v
			n++
		}
		if v, c := coerceFinite(m.Ntc2C, defaultAmbientC); c {
			m.Ntc2C = v
			n++
		}
		if v, c := coerceFinite(m.DeltaTIntraC, 0); c {
			m.DeltaTIntraC = v
			n++
		}
		if v, c := coerceFinite(m.MaxDtDtCPerMin, 0); c {
			m.MaxDtDtCPerMin = v
			n++
		}

		for gi := range m.Groups {
			g := &m.Groups[gi]
			if v, c := coerceFinite(g.VoltageV, def/float64(ModuleCount)); c {
				g.VoltageV = v
				n++
			}
			if v, c := coerceFinite(g.TempSurfaceC, defaultAmbientC); c {
				g.TempSurfaceC = v
				n++
			}
			if v, c := coerceFinite(g.TempCoreC, defaultAmbientC); c {
				g.TempCoreC = v
				n++
			}
			if v, c := coerceFinite(g.DtDtCPerMin, 0); c {
				g.DtDtCPerMin = v
				n++
			}
			if v, c := coerceFinite(g.RintGroupMohm, 0); c {
				g.RintGroupMohm = v
				n++
			}
		}
	}

	return n
}
