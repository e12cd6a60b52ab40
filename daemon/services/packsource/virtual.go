// Package packsource synthesises snapshots for `run --virtual-board`,
// standing in for an external snapshot source so the engine can run
// without real hardware.
package packsource

import (
	"sync"

	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// nominal operating point for the 104s8p pack.
const (
	nominalPackVoltageV = 332.8
	nominalCurrentA     = 2.0
	nominalTempC        = 28.0
	nominalGasRatio     = 0.98
	nominalSwellingPct  = 2.0
)

// Scenario selects a named fault-injection profile.
type Scenario int

const (
	ScenarioNormal Scenario = iota
	ScenarioNtcDrift
	ScenarioThreeCategoryBurst
	ScenarioCriticalSoak
	ScenarioEmergencyRecovery
	ScenarioShortCircuit
)

// Source is a deterministic virtual snapshot generator. A mutex protects
// it against concurrent ingestion, scenario changes, and resets so that a
// reset is atomic with respect to snapshot generation.
type Source struct {
	mu       sync.Mutex
	tick     int64
	startMs  int64
	scenario Scenario
}

// NewSource creates a virtual source starting at simulated time 0.
func NewSource() *Source {
	return &Source{scenario: ScenarioNormal}
}

// SetScenario switches the active fault-injection profile. Safe for
// concurrent use with Next.
func (s *Source) SetScenario(sc Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenario = sc
}

// Reset zeroes the simulated clock, atomic with respect to Next.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = 0
}

// Next produces the next snapshot at 100ms simulated spacing.
func (s *Source) Next() pack.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	timestampMs := s.startMs + s.tick*100
	s.tick++

	snap := pack.Snapshot{
		TimestampMs:       timestampMs,
		PackVoltageV:      nominalPackVoltageV,
		PackCurrentA:      nominalCurrentA,
		PackSocFrac:       0.62,
		CRate:             nominalCurrentA / 120.0,
		AmbientTempC:      nominalTempC,
		CoolantInletC:     nominalTempC - 3,
		CoolantOutletC:    nominalTempC + 2,
		HumidityPct:       45,
		IsolationMohm:     500,
		GasRatio1:         nominalGasRatio,
		GasRatio2:         nominalGasRatio,
		PressureDelta1Hpa: 0.2,
		PressureDelta2Hpa: 0.2,
	}
	for mi := range snap.Modules {
		m := &snap.Modules[mi]
		m.Ntc1C = nominalTempC
		m.Ntc2C = nominalTempC
		m.SwellingPct = nominalSwellingPct
		baseV := nominalPackVoltageV / pack.ModuleCount / pack.GroupsPerModule
		for gi := range m.Groups {
			g := &m.Groups[gi]
			g.VoltageV = baseV
			g.TempSurfaceC = nominalTempC
			g.TempCoreC = nominalTempC
			g.DtDtCPerMin = 0.05
			g.RintGroupMohm = 0.8
		}
	}

	applyScenario(&snap, s.scenario, s.tick)
	return snap
}

// applyScenario perturbs the nominal snapshot according to the active
// fault profile.
func applyScenario(snap *pack.Snapshot, sc Scenario, tick int64) {
	switch sc {
	case ScenarioNormal:
		// nominal values already set

	case ScenarioNtcDrift:
		// A phantom NTC1 reading pulls that module's two thermistors
		// apart; the classifier watches the resulting intra-module
		// imbalance, not the raw NTC value.
		snap.Modules[3].Ntc1C += 15
		snap.Modules[3].DeltaTIntraC = 15

	case ScenarioThreeCategoryBurst:
		if tick == 1 {
			for mi := range snap.Modules {
				for gi := range snap.Modules[mi].Groups {
					snap.Modules[mi].Groups[gi].TempCoreC = 70
				}
			}
			snap.GasRatio1, snap.GasRatio2 = 0.35, 0.35
			snap.PressureDelta1Hpa, snap.PressureDelta2Hpa = 8, 8
		}

	case ScenarioCriticalSoak:
		for mi := range snap.Modules {
			for gi := range snap.Modules[mi].Groups {
				snap.Modules[mi].Groups[gi].TempCoreC = 65
			}
		}
		snap.GasRatio1, snap.GasRatio2 = 0.6, 0.6

	case ScenarioEmergencyRecovery:
		if tick == 1 {
			snap.PackCurrentA = 620
		}

	case ScenarioShortCircuit:
		if tick == 1 {
			snap.PackVoltageV = 332
			snap.PackCurrentA = 40
		} else if tick == 2 {
			snap.PackVoltageV = 310
			snap.PackCurrentA = 300
		}
	}
}
