package telemetrypub

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// metricsRegistry is a dedicated registry (not the global default) so
// this process's gauges never collide with anything else linked into the
// binary.
var metricsRegistry = prometheus.NewRegistry()

var (
	packVoltage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_pack_voltage_volts",
		Help: "Pack terminal voltage.",
	})
	packCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_pack_current_amps",
		Help: "Pack current, signed (discharge positive).",
	})
	maxCoreTemp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_max_core_temp_celsius",
		Help: "Hottest group core temperature across the pack.",
	})
	tempSpread = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_temp_spread_celsius",
		Help: "Spread between hottest and coolest group core temperature.",
	})
	riskPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_risk_pct",
		Help: "Cascade-stage estimator risk factor, percent.",
	})
	systemState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_system_state",
		Help: "Correlation state machine state: 0=NORMAL 1=WARNING 2=CRITICAL 3=EMERGENCY.",
	})
	cascadeStage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_cascade_stage",
		Help: "Cascade stage index, 0=NORMAL through 6=FULL_RUNAWAY.",
	})
	categoryActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battcorrelate_category_active",
		Help: "1 if the named anomaly category is currently active, else 0.",
	}, []string{"category"})
	emergencyLatched = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_emergency_latched",
		Help: "1 while the emergency latch is held.",
	})
	decodeErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battcorrelate_decode_errors_total",
		Help: "Cumulative decode-error counters by kind.",
	}, []string{"kind"})
	queueOverflow = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "battcorrelate_queue_overflow_total",
		Help: "Count of snapshots or telemetry records dropped due to queue overflow.",
	})
)

func init() {
	metricsRegistry.MustRegister(
		packVoltage, packCurrent, maxCoreTemp, tempSpread, riskPct,
		systemState, cascadeStage, categoryActive, emergencyLatched,
		decodeErrors, queueOverflow,
	)
}

// Metrics is the thin wrapper mounted at /metrics.
type Metrics struct{}

// NewMetrics returns a ready-to-use Metrics handler.
func NewMetrics() *Metrics { return &Metrics{} }

// Observe updates every gauge from one published telemetry record.
func (m *Metrics) Observe(t pack.Telemetry) {
	packVoltage.Set(t.PackVoltageV)
	packCurrent.Set(t.PackCurrentA)
	maxCoreTemp.Set(t.Hottest.TempCoreC)
	tempSpread.Set(t.TempSpreadC)
	riskPct.Set(float64(t.RiskPct))
	systemState.Set(float64(t.StateNum))
	cascadeStage.Set(float64(t.CascadeStage))

	active := make(map[string]bool, len(t.ActiveCategories))
	for _, c := range t.ActiveCategories {
		active[c.String()] = true
	}
	for _, name := range []string{"electrical", "thermal", "gas", "pressure", "swelling"} {
		v := 0.0
		if active[name] {
			v = 1.0
		}
		categoryActive.WithLabelValues(name).Set(v)
	}
	if t.SystemState == pack.StateEmergency {
		emergencyLatched.Set(1)
	} else {
		emergencyLatched.Set(0)
	}
}

// ObserveHealth updates the decode-error and queue-overflow gauges from a
// periodic HealthRecord.
func (m *Metrics) ObserveHealth(h pack.HealthRecord) {
	decodeErrors.WithLabelValues("bad_sync").Set(float64(h.Counters.BadSync))
	decodeErrors.WithLabelValues("bad_length").Set(float64(h.Counters.BadLength))
	decodeErrors.WithLabelValues("bad_checksum").Set(float64(h.Counters.BadChecksum))
	decodeErrors.WithLabelValues("unknown_type").Set(float64(h.Counters.UnknownType))
	decodeErrors.WithLabelValues("incomplete_cycle").Set(float64(h.Counters.IncompleteCycle))
	decodeErrors.WithLabelValues("field_coerced").Set(float64(h.Counters.FieldCoerced))
	decodeErrors.WithLabelValues("source_reset").Set(float64(h.Counters.SourceReset))
	queueOverflow.Set(float64(h.Counters.QueueOverflow))
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
