package codec

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// Probe frame layout.
//
// Request:  AA 01 <probe> 06 00 <sum8 of bytes 1..4> BB
// Response: AA <body> BB, where body is
//
//	0      category, always 01
//	1      probe id
//	2      probe type, 02 = ullage output
//	3-5    M1, BCD, float to electronics distance
//	6-8    M2, BCD
//	9-11   M3, spare (big-endian integer)
//	12     temperature point count, BCD
//	13...  2 bytes per point, BCD tenths of (°C + 80)
//	       2 spare bytes
//	last   sum8 checksum
const (
	probeStart         byte = 0xAA
	probeEnd           byte = 0xBB
	probeCategory      byte = 0x01
	probeTypeUllage    byte = 0x02
	probeCmdRead       byte = 0x06
	probeHeaderLen          = 13
	probeSpareLen           = 2
	probeRequestLen         = 7
	probeMaxRecords         = 100
	probeMaxID              = 99
	probeTempOffset         = 80.0
	probeTempResolution     = 10.0
	probeCountOffset        = 1 + 12 // start byte + header bytes before the count
)

// ProbeAdapter speaks the YiTong tank-truck probe protocol.
type ProbeAdapter struct {
	strictChecksum bool
}

// ProbeOption configures a ProbeAdapter.
type ProbeOption func(*ProbeAdapter)

// WithStrictChecksum makes pairing and recognition reject frames whose
// trailing sum8 disagrees with the body. Field firmware has been seen to
// send checksums that do not follow the documented rule, so it is off by default.
func WithStrictChecksum(on bool) ProbeOption {
	return func(a *ProbeAdapter) {
		a.strictChecksum = on
	}
}

// NewProbeAdapter creates a probe adapter.
func NewProbeAdapter(opts ...ProbeOption) *ProbeAdapter {
	a := &ProbeAdapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DeviceType implements Adapter.
func (a *ProbeAdapter) DeviceType() device.DeviceType {
	return device.DeviceTypeProbeYiTongTankTruck
}

// MaxRecords implements Adapter.
func (a *ProbeAdapter) MaxRecords() int {
	return probeMaxRecords
}

// Serialize implements Adapter. Only Read is supported.
func (a *ProbeAdapter) Serialize(req device.Request) ([]byte, error) {
	if req.Action != device.ActionRead {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedAction, req.Action, a.DeviceType())
	}

	id, err := strconv.Atoi(req.Identity.PhysicalID)
	if err != nil || id < 1 || id > probeMaxID {
		return nil, fmt.Errorf("%w: probe id %q must be 1-%d", ErrInvalidPhysicalID, req.Identity.PhysicalID, probeMaxID)
	}

	frame := []byte{probeStart, probeCategory, byte(id), probeCmdRead, 0x00}
	frame = append(frame, sum8(frame[1:5]), probeEnd)
	return frame, nil
}

// PairMatches implements Adapter. The response must be a well-formed
// reading from the probe addressed by the request.
func (a *ProbeAdapter) PairMatches(request, response []byte, _ PairContext) bool {
	if len(request) != probeRequestLen || request[0] != probeStart {
		return false
	}
	body, err := a.body(response)
	if err != nil {
		return false
	}
	return body[1] == request[2]
}

// Deserialize implements Adapter.
func (a *ProbeAdapter) Deserialize(_, response []byte) (map[string]any, error) {
	body, err := a.body(response)
	if err != nil {
		return nil, err
	}
	return decodeProbeBody(body), nil
}

// TryRecognize implements Adapter.
func (a *ProbeAdapter) TryRecognize(topic string, payload []byte) (device.Identity, map[string]any, bool) {
	sn, ok := dtuSNFromTopic(topic)
	if !ok {
		return device.Identity{}, nil, false
	}
	body, err := a.body(payload)
	if err != nil {
		return device.Identity{}, nil, false
	}

	probeID := int(body[1])
	id := device.Identity{
		Name:       fmt.Sprintf("%s__%s__%02d", device.DeviceTypeProbeYiTongTankTruck, sn, probeID),
		DTUSN:      sn,
		DeviceType: device.DeviceTypeProbeYiTongTankTruck,
		PhysicalID: strconv.Itoa(probeID),
	}
	return id, decodeProbeBody(body), true
}

// body validates a response frame and returns the bytes between the start
// and end markers, checksum included.
func (a *ProbeAdapter) body(frame []byte) ([]byte, error) {
	if len(frame) <= probeCountOffset {
		return nil, fmt.Errorf("%w: probe frame too short (%d bytes)", ErrMalformedFrame, len(frame))
	}

	points := bcdToInt(frame[probeCountOffset : probeCountOffset+1])
	want := 1 + probeHeaderLen + 2*points + probeSpareLen + 1 + 1
	if len(frame) != want {
		return nil, fmt.Errorf("%w: probe frame length %d, want %d for %d points", ErrMalformedFrame, len(frame), want, points)
	}
	if points == 0 {
		return nil, fmt.Errorf("%w: probe reports no temperature points", ErrMalformedFrame)
	}
	if frame[0] != probeStart || frame[len(frame)-1] != probeEnd {
		return nil, fmt.Errorf("%w: probe frame markers %#02x..%#02x", ErrMalformedFrame, frame[0], frame[len(frame)-1])
	}

	body := frame[1 : len(frame)-1]
	if body[0] != probeCategory || body[2] != probeTypeUllage {
		return nil, fmt.Errorf("%w: probe category %#02x type %#02x", ErrMalformedFrame, body[0], body[2])
	}

	if a.strictChecksum {
		n := len(body) - 1
		if got := sum8(body[:n]); got != body[n] {
			return nil, fmt.Errorf("%w: probe checksum %#02x, computed %#02x", ErrMalformedFrame, body[n], got)
		}
	}
	return body, nil
}

func decodeProbeBody(body []byte) map[string]any {
	points := bcdToInt(body[12:13])
	temps := make([]float64, 0, points)
	for i := range points {
		off := probeHeaderLen + 2*i
		raw := float64(bcdToInt(body[off : off+2]))
		temps = append(temps, roundTo(raw/probeTempResolution-probeTempOffset, 1))
	}

	return map[string]any{
		"category":           int(body[0]),
		"probe_id":           int(body[1]),
		"probe_type":         int(body[2]),
		"m1":                 bcdToInt(body[3:6]),
		"m2":                 bcdToInt(body[6:9]),
		"m3":                 int(body[9])<<16 | int(body[10])<<8 | int(body[11]),
		"temperature_points": points,
		"temperatures":       temps,
	}
}

// roundTo rounds v to the given number of decimal places.
func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
