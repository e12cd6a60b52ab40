package pack

import "encoding/binary"

// Inbound framing (snapshot to board, sync 0xBB). Each frame's total
// length is derived from the summed field widths plus the common
// [sync][len][type][...][checksum] overhead.
const (
	inboundPackPayloadLen   = 23
	inboundModulePayloadLen = 1 + 2 + 2 + 1 + 2 + GroupsPerModule // idx, ntc1, ntc2, swelling, baseV, 13 deltas
)

// EncodeInboundPack renders the pack-level fields of s as an inbound pack
// frame (type 0x01). Used by the digital-twin bridge to forward a
// snapshot to the physical board.
func EncodeInboundPack(s *Snapshot) []byte {
	p := make([]byte, inboundPackPayloadLen)
	binary.LittleEndian.PutUint16(p[0:2], uint16(s.PackVoltageV*10))
	binary.LittleEndian.PutUint16(p[2:4], uint16(int16(s.PackCurrentA*10)))
	binary.LittleEndian.PutUint16(p[4:6], uint16(int16(s.AmbientTempC*10)))
	binary.LittleEndian.PutUint16(p[6:8], uint16(int16(s.CoolantInletC*10)))
	binary.LittleEndian.PutUint16(p[8:10], uint16(int16(s.CoolantOutletC*10)))
	binary.LittleEndian.PutUint16(p[10:12], 0) // reserved, must-be-zero
	binary.LittleEndian.PutUint16(p[12:14], uint16(s.GasRatio1*100))
	binary.LittleEndian.PutUint16(p[14:16], uint16(s.GasRatio2*100))
	binary.LittleEndian.PutUint16(p[16:18], uint16(int16(s.PressureDelta1Hpa*100)))
	binary.LittleEndian.PutUint16(p[18:20], uint16(int16(s.PressureDelta2Hpa*100)))
	p[20] = byte(s.HumidityPct)
	binary.LittleEndian.PutUint16(p[21:23], uint16(s.IsolationMohm*10))
	return buildFrame(syncInbound, FrameTypePack, p)
}

// EncodeInboundModule renders module idx's fields as an inbound module
// frame (type 0x02). idx is the 0-based module index, matched to a
// Snapshot.Modules slot.
func EncodeInboundModule(idx int, m *Module) []byte {
	p := make([]byte, inboundModulePayloadLen)
	p[0] = byte(idx)
	binary.LittleEndian.PutUint16(p[1:3], uint16(int16(m.Ntc1C*10)))
	binary.LittleEndian.PutUint16(p[3:5], uint16(int16(m.Ntc2C*10)))
	p[5] = byte(m.SwellingPct)

	baseMv := int32(m.Groups[0].VoltageV * 1000)
	binary.LittleEndian.PutUint16(p[6:8], uint16(int16(baseMv)))
	for gi := 0; gi < GroupsPerModule; gi++ {
		deltaMv := int32(m.Groups[gi].VoltageV*1000) - baseMv
		p[8+gi] = byte(int8(clip(float64(deltaMv), -127, 127)))
	}
	return buildFrame(syncInbound, FrameTypeModule, p)
}

// InboundDecoder assembles a Snapshot across one pack frame and
// ModuleCount module frames. A new pack frame arriving before all
// module frames of the previous cycle are seen discards that cycle and
// reports ErrIncompleteCycle (frame_loss). Used directly by callers
// feeding the engine from a serial byte stream (the orchestrator's serial
// source).
type InboundDecoder struct {
	buf     []byte
	pending *Snapshot
	seen    [ModuleCount]bool
	seenN   int
}

// NewInboundDecoder returns an empty decoder ready to Feed.
func NewInboundDecoder() *InboundDecoder { return &InboundDecoder{} }

// Feed appends newBytes to the internal buffer and extracts as many
// complete snapshots as possible. It returns the completed snapshots (in
// order) and the decode errors encountered along the way (counters only;
// none of these abort decoding).
func (d *InboundDecoder) Feed(newBytes []byte) ([]Snapshot, []error) {
	d.buf = append(d.buf, newBytes...)
	var out []Snapshot
	var errs []error

	for len(d.buf) > 0 {
		frameType, payload, consumed, err := scanFrame(d.buf, syncInbound)
		if err == errNeedMoreData {
			break
		}
		if err != nil {
			errs = append(errs, err)
			d.buf = d.buf[consumed:]
			continue
		}
		wantLen := inboundPackPayloadLen
		if frameType == FrameTypeModule {
			wantLen = inboundModulePayloadLen
		}
		if (frameType == FrameTypePack || frameType == FrameTypeModule) && len(payload) != wantLen {
			errs = append(errs, ErrBadLength)
			d.buf = d.buf[1:]
			continue
		}
		d.buf = d.buf[consumed:]

		switch frameType {
		case FrameTypePack:
			if d.pending != nil && d.seenN < ModuleCount {
				errs = append(errs, ErrIncompleteCycle)
			}
			s := decodeInboundPackPayload(payload)
			d.pending = &s
			d.seen = [ModuleCount]bool{}
			d.seenN = 0
		case FrameTypeModule:
			if d.pending == nil {
				continue
			}
			idx, m := decodeInboundModulePayload(payload)
			if idx < 0 || idx >= ModuleCount {
				continue
			}
			d.pending.Modules[idx] = m
			if !d.seen[idx] {
				d.seen[idx] = true
				d.seenN++
			}
			if d.seenN == ModuleCount {
				out = append(out, *d.pending)
				d.pending = nil
				d.seenN = 0
			}
		}
	}
	return out, errs
}

func decodeInboundPackPayload(p []byte) Snapshot {
	var s Snapshot
	s.PackVoltageV = float64(binary.LittleEndian.Uint16(p[0:2])) / 10
	s.PackCurrentA = float64(int16(binary.LittleEndian.Uint16(p[2:4]))) / 10
	s.AmbientTempC = float64(int16(binary.LittleEndian.Uint16(p[4:6]))) / 10
	s.CoolantInletC = float64(int16(binary.LittleEndian.Uint16(p[6:8]))) / 10
	s.CoolantOutletC = float64(int16(binary.LittleEndian.Uint16(p[8:10]))) / 10
	// p[10:12] reserved, ignored on read.
	s.GasRatio1 = float64(binary.LittleEndian.Uint16(p[12:14])) / 100
	s.GasRatio2 = float64(binary.LittleEndian.Uint16(p[14:16])) / 100
	s.PressureDelta1Hpa = float64(int16(binary.LittleEndian.Uint16(p[16:18]))) / 100
	s.PressureDelta2Hpa = float64(int16(binary.LittleEndian.Uint16(p[18:20]))) / 100
	s.HumidityPct = float64(p[20])
	s.IsolationMohm = float64(binary.LittleEndian.Uint16(p[21:23])) / 10
	return s
}

func decodeInboundModulePayload(p []byte) (int, Module) {
	var m Module
	idx := int(p[0])
	m.Ntc1C = float64(int16(binary.LittleEndian.Uint16(p[1:3]))) / 10
	m.Ntc2C = float64(int16(binary.LittleEndian.Uint16(p[3:5]))) / 10
	m.SwellingPct = float64(p[5])
	baseMv := int32(int16(binary.LittleEndian.Uint16(p[6:8])))
	for gi := 0; gi < GroupsPerModule; gi++ {
		deltaMv := int32(int8(p[8+gi]))
		m.Groups[gi].VoltageV = float64(baseMv+deltaMv) / 1000
	}
	return idx, m
}
