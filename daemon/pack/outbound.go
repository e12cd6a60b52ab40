package pack

import "encoding/binary"

// Outbound framing (board to consumer, sync 0xAA). As with inbound
// framing, payload sizes are derived from the summed field widths.
const (
	outboundPackPayloadLen   = 34
	outboundModulePayloadLen = 1 + 2 + 2 + 1 + 1 + 1 + 2 + 2 + 1 // idx,ntc1,ntc2,swelling,Δintra,maxdtdt,voltage,vspread,reserved
)

// EncodeOutboundPack renders the pack-level telemetry fields of t as an
// outbound pack frame (type 0x01).
func EncodeOutboundPack(t *Telemetry) []byte {
	p := make([]byte, outboundPackPayloadLen)
	binary.LittleEndian.PutUint32(p[0:4], uint32(t.TimestampMs))
	binary.LittleEndian.PutUint16(p[4:6], uint16(t.PackVoltageV*10))
	binary.LittleEndian.PutUint16(p[6:8], uint16(int16(t.PackCurrentA*10)))
	binary.LittleEndian.PutUint16(p[8:10], uint16(t.Hottest.RintGroupMohm*100))

	maxTempC := t.Hottest.TempCoreC
	binary.LittleEndian.PutUint16(p[10:12], uint16(int16(maxTempC*10)))
	binary.LittleEndian.PutUint16(p[12:14], uint16(int16(t.AmbientTempC*10)))
	binary.LittleEndian.PutUint16(p[14:16], uint16(int16(maxTempC*10))) // core-temp-est == hottest core temp
	p[16] = clampU8(t.MaxDtDtCPerMin * 100)
	p[17] = clampU8(t.GasRatio1 * 100)
	p[18] = clampU8(t.GasRatio2 * 100)
	binary.LittleEndian.PutUint16(p[19:21], uint16(int16(t.PressureDelta1Hpa*100)))
	binary.LittleEndian.PutUint16(p[21:23], uint16(int16(t.PressureDelta2Hpa*100)))
	binary.LittleEndian.PutUint16(p[23:25], uint16(t.VSpreadMv*10))
	p[25] = clampU8(t.TempSpreadC * 10)
	p[26] = byte(t.StateNum)
	p[27] = t.categoryBitmaskOutbound()
	p[28] = byte(len(t.ActiveCategories))
	p[29] = t.AnomalyModuleMask
	p[30] = byte(outboundHotspotModule1Based(t))
	p[31] = byte(t.RiskPct)
	p[32] = byte(t.CascadeStage)
	p[33] = outboundFlags(t)
	return buildFrame(syncOutbound, FrameTypePack, p)
}

// categoryBitmaskOutbound mirrors Classification.CategoryBitmask for a
// Telemetry record (built from ActiveCategories rather than Anomaly).
func (t *Telemetry) categoryBitmaskOutbound() uint8 {
	var mask uint8
	for _, c := range t.ActiveCategories {
		mask |= 1 << uint(c)
	}
	return mask
}

func outboundFlags(t *Telemetry) byte {
	var flags byte
	if t.EmergencyDirect {
		flags |= 1
	}
	return flags
}

func outboundHotspotModule1Based(t *Telemetry) int {
	return t.Hottest.Ref.Module + 1
}

func clampU8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// EncodeOutboundModule renders module idx's telemetry-relevant fields as
// an outbound module frame (type 0x02).
func EncodeOutboundModule(idx int, m *Module) []byte {
	p := make([]byte, outboundModulePayloadLen)
	p[0] = byte(idx)
	binary.LittleEndian.PutUint16(p[1:3], uint16(int16(m.Ntc1C*10)))
	binary.LittleEndian.PutUint16(p[3:5], uint16(int16(m.Ntc2C*10)))
	p[5] = clampU8(m.SwellingPct)
	p[6] = clampU8(m.DeltaTIntraC * 10)
	p[7] = clampU8(m.MaxDtDtCPerMin * 100)

	minV, maxV := m.Groups[0].VoltageV, m.Groups[0].VoltageV
	sum := 0.0
	for _, g := range m.Groups {
		minV = min(minV, g.VoltageV)
		maxV = max(maxV, g.VoltageV)
		sum += g.VoltageV
	}
	avgV := sum / float64(GroupsPerModule)
	binary.LittleEndian.PutUint16(p[8:10], uint16(avgV*10))
	binary.LittleEndian.PutUint16(p[10:12], uint16((maxV-minV)*1000))
	p[12] = 0 // reserved
	return buildFrame(syncOutbound, FrameTypeModule, p)
}

// DecodeOutboundPack parses an outbound pack frame's payload back into
// the subset of Telemetry it carries. Used by the digital-twin bridge to
// re-ingest the board's already-computed telemetry for republication.
func DecodeOutboundPack(payload []byte) Telemetry {
	var t Telemetry
	t.TimestampMs = int64(binary.LittleEndian.Uint32(payload[0:4]))
	t.PackVoltageV = float64(binary.LittleEndian.Uint16(payload[4:6])) / 10
	t.PackCurrentA = float64(int16(binary.LittleEndian.Uint16(payload[6:8]))) / 10
	t.AmbientTempC = float64(int16(binary.LittleEndian.Uint16(payload[12:14]))) / 10
	t.GasRatio1 = float64(payload[17]) / 100
	t.GasRatio2 = float64(payload[18]) / 100
	t.PressureDelta1Hpa = float64(int16(binary.LittleEndian.Uint16(payload[19:21]))) / 100
	t.PressureDelta2Hpa = float64(int16(binary.LittleEndian.Uint16(payload[21:23]))) / 100
	t.VSpreadMv = float64(binary.LittleEndian.Uint16(payload[23:25])) / 10
	t.TempSpreadC = float64(payload[25]) / 10
	t.StateNum = int(payload[26])
	t.SystemState = State(t.StateNum)
	mask := payload[27]
	for c := Category(0); c < categoryCount; c++ {
		if mask&(1<<uint(c)) != 0 {
			t.ActiveCategories = append(t.ActiveCategories, c)
		}
	}
	t.AnomalyModuleMask = payload[29]
	hotspotModule := int(payload[30])
	t.RiskPct = int(payload[31])
	t.CascadeStage = CascadeStage(payload[32])
	flags := payload[33]
	t.EmergencyDirect = flags&1 != 0
	if hotspotModule >= 1 && hotspotModule <= ModuleCount {
		t.HotspotLabel = hotspotLabel(hotspotModule, 0)
	}
	return t
}
