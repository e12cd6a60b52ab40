// Package bridge polls a digital-twin's JSON snapshot endpoint, encodes it
// to inbound framing, forwards it to a serial-attached board, and
// re-ingests the board's outbound framing for republication.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ruaan-deysel/battcorrelate/daemon/logger"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

// SerialPort is the subset of board.Port the bridge needs; kept as an
// interface so tests can substitute an in-memory pipe.
type SerialPort interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
}

// twinSnapshot mirrors the JSON shape served by the digital twin's HTTP
// endpoint. Field names follow the twin's own JSON, not pack.Snapshot.
type twinSnapshot struct {
	TimestampMs       int64         `json:"timestamp_ms"`
	PackVoltageV      float64       `json:"pack_voltage_v"`
	PackCurrentA      float64       `json:"pack_current_a"`
	PackSocFrac       float64       `json:"pack_soc_frac"`
	CRate             float64       `json:"c_rate"`
	AmbientTempC      float64       `json:"ambient_temp_c"`
	CoolantInletC     float64       `json:"coolant_inlet_c"`
	CoolantOutletC    float64       `json:"coolant_outlet_c"`
	HumidityPct       float64       `json:"humidity_pct"`
	IsolationMohm     float64       `json:"isolation_mohm"`
	GasRatio1         float64       `json:"gas_ratio_1"`
	GasRatio2         float64       `json:"gas_ratio_2"`
	PressureDelta1Hpa float64       `json:"pressure_delta_1_hpa"`
	PressureDelta2Hpa float64       `json:"pressure_delta_2_hpa"`
	Modules           [8]twinModule `json:"modules"`
}

type twinModule struct {
	Ntc1C          float64       `json:"ntc1_c"`
	Ntc2C          float64       `json:"ntc2_c"`
	DeltaTIntraC   float64       `json:"delta_t_intra_c"`
	MaxDtDtCPerMin float64       `json:"max_dt_dt_c_per_min"`
	SwellingPct    float64       `json:"swelling_pct"`
	Groups         [13]twinGroup `json:"groups"`
}

type twinGroup struct {
	VoltageV      float64 `json:"voltage_v"`
	TempSurfaceC  float64 `json:"temp_surface_c"`
	TempCoreC     float64 `json:"temp_core_c"`
	DtDtCPerMin   float64 `json:"dt_dt_c_per_min"`
	RintGroupMohm float64 `json:"rint_group_mohm"`
}

func (t twinSnapshot) toSnapshot() pack.Snapshot {
	s := pack.Snapshot{
		TimestampMs:       t.TimestampMs,
		PackVoltageV:      t.PackVoltageV,
		PackCurrentA:      t.PackCurrentA,
		PackSocFrac:       t.PackSocFrac,
		CRate:             t.CRate,
		AmbientTempC:      t.AmbientTempC,
		CoolantInletC:     t.CoolantInletC,
		CoolantOutletC:    t.CoolantOutletC,
		HumidityPct:       t.HumidityPct,
		IsolationMohm:     t.IsolationMohm,
		GasRatio1:         t.GasRatio1,
		GasRatio2:         t.GasRatio2,
		PressureDelta1Hpa: t.PressureDelta1Hpa,
		PressureDelta2Hpa: t.PressureDelta2Hpa,
	}
	for mi, m := range t.Modules {
		s.Modules[mi] = pack.Module{
			Ntc1C:          m.Ntc1C,
			Ntc2C:          m.Ntc2C,
			DeltaTIntraC:   m.DeltaTIntraC,
			MaxDtDtCPerMin: m.MaxDtDtCPerMin,
			SwellingPct:    m.SwellingPct,
		}
		for gi, g := range m.Groups {
			s.Modules[mi].Groups[gi] = pack.Group{
				VoltageV:      g.VoltageV,
				TempSurfaceC:  g.TempSurfaceC,
				TempCoreC:     g.TempCoreC,
				DtDtCPerMin:   g.DtDtCPerMin,
				RintGroupMohm: g.RintGroupMohm,
			}
		}
	}
	return s
}

// Bridge polls twinURL at pollInterval, forwards each snapshot through
// port in inbound framing, and publishes each re-ingested outbound
// telemetry frame via onTelemetry.
type Bridge struct {
	twinURL      string
	port         SerialPort
	client       *http.Client
	onTelemetry  func(pack.Telemetry)
	pollInterval time.Duration
}

// New constructs a Bridge. pollInterval defaults to 100ms, matching the
// snapshot source's native rate.
func New(twinURL string, port SerialPort, onTelemetry func(pack.Telemetry)) *Bridge {
	return &Bridge{
		twinURL:      twinURL,
		port:         port,
		client:       &http.Client{Timeout: 2 * time.Second},
		onTelemetry:  onTelemetry,
		pollInterval: 100 * time.Millisecond,
	}
}

// Run polls and forwards until ctx is cancelled. Transient HTTP or serial
// errors are logged and retried on the next tick rather than aborting; a
// hard board-open failure is handled by the caller, which owns the
// SerialPort lifecycle.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	readBuf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := b.pollOnce(readBuf); err != nil {
				logger.Warning("bridge: poll cycle failed: %v", err)
			}
		}
	}
}

func (b *Bridge) pollOnce(readBuf []byte) error {
	snap, err := b.fetchTwinSnapshot()
	if err != nil {
		return fmt.Errorf("fetching twin snapshot: %w", err)
	}

	frame := pack.EncodeInboundPack(&snap)
	if _, err := b.port.Write(frame); err != nil {
		return fmt.Errorf("writing inbound pack frame: %w", err)
	}
	for mi := range snap.Modules {
		frame := pack.EncodeInboundModule(mi, &snap.Modules[mi])
		if _, err := b.port.Write(frame); err != nil {
			return fmt.Errorf("writing inbound module frame %d: %w", mi, err)
		}
	}

	n, err := b.port.Read(readBuf)
	if err != nil {
		return fmt.Errorf("reading outbound frame: %w", err)
	}
	if n > 0 && b.onTelemetry != nil {
		// Only the sync byte, frame type and declared length are
		// checked here; the checksum is not verified. The bridge trusts a
		// well-formed board and hands the raw pack-frame payload to
		// DecodeOutboundPack directly when it matches the expected sync
		// and type.
		if n >= 4 && readBuf[0] == 0xAA && readBuf[2] == pack.FrameTypePack {
			length := int(readBuf[1])
			if length <= n {
				telemetry := pack.DecodeOutboundPack(readBuf[3 : length-1])
				b.onTelemetry(telemetry)
			}
		}
	}
	return nil
}

func (b *Bridge) fetchTwinSnapshot() (pack.Snapshot, error) {
	req, err := http.NewRequest(http.MethodGet, b.twinURL, nil)
	if err != nil {
		return pack.Snapshot{}, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return pack.Snapshot{}, err
	}
	defer resp.Body.Close()

	var t twinSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return pack.Snapshot{}, fmt.Errorf("decoding twin JSON: %w", err)
	}
	return t.toSnapshot(), nil
}
