package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// Two-point reading from probe 1 as captured in the field. Its trailing
// checksum (0x87) does not match the body sum (0x54).
var probeFieldFrame = []byte{
	0xAA, 0x01, 0x01, 0x02, 0x03, 0x21, 0x37, 0x99, 0x99, 0x99, 0x00, 0x25, 0x01,
	0x02, 0x10, 0x67, 0x10, 0x49, 0x99, 0x99, 0x87, 0xBB,
}

func withProbeChecksum(frame []byte, sum byte) []byte {
	out := append([]byte(nil), frame...)
	out[len(out)-2] = sum
	return out
}

func probeRequest(id string) device.Request {
	return device.Request{
		Identity: device.Identity{DTUSN: "SN001", DeviceType: device.DeviceTypeProbeYiTongTankTruck, PhysicalID: id},
		Action:   device.ActionRead,
	}
}

func TestProbe_Serialize(t *testing.T) {
	a := NewProbeAdapter()

	frame, err := a.Serialize(probeRequest("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x01, 0x01, 0x06, 0x00, 0x08, 0xBB}, frame)

	frame, err = a.Serialize(probeRequest("12"))
	require.NoError(t, err)
	assert.Equal(t, byte(12), frame[2])
	assert.Equal(t, byte(0x01+12+0x06), frame[5])
}

func TestProbe_SerializeRejects(t *testing.T) {
	a := NewProbeAdapter()

	for _, id := range []string{"", "0", "100", "x1"} {
		_, err := a.Serialize(probeRequest(id))
		assert.ErrorIs(t, err, ErrInvalidPhysicalID, "id %q", id)
	}

	req := probeRequest("1")
	req.Action = device.ActionWrite
	_, err := a.Serialize(req)
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestProbe_Deserialize(t *testing.T) {
	data, err := NewProbeAdapter().Deserialize(nil, probeFieldFrame)
	require.NoError(t, err)

	assert.Equal(t, 1, data["category"])
	assert.Equal(t, 1, data["probe_id"])
	assert.Equal(t, 2, data["probe_type"])
	assert.Equal(t, 32137, data["m1"])
	assert.Equal(t, 999999, data["m2"])
	assert.Equal(t, 9473, data["m3"])
	assert.Equal(t, 2, data["temperature_points"])
	assert.Equal(t, []float64{26.7, 24.9}, data["temperatures"])
}

func TestProbe_StrictChecksum(t *testing.T) {
	strict := NewProbeAdapter(WithStrictChecksum(true))

	_, err := strict.Deserialize(nil, probeFieldFrame)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = strict.Deserialize(nil, withProbeChecksum(probeFieldFrame, 0x54))
	assert.NoError(t, err)
}

func TestProbe_MalformedFrames(t *testing.T) {
	a := NewProbeAdapter()

	zeroPoints := append([]byte(nil), probeFieldFrame[:13]...)
	zeroPoints = append(zeroPoints, 0x00, 0x99, 0x99, 0x00, 0xBB)

	badEnd := append([]byte(nil), probeFieldFrame...)
	badEnd[len(badEnd)-1] = 0xBC

	badType := append([]byte(nil), probeFieldFrame...)
	badType[3] = 0x03

	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short", probeFieldFrame[:10]},
		{"truncated", probeFieldFrame[:len(probeFieldFrame)-1]},
		{"trailing byte", append(append([]byte(nil), probeFieldFrame...), 0x00)},
		{"zero points", zeroPoints},
		{"bad end marker", badEnd},
		{"bad probe type", badType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Deserialize(nil, tt.frame)
			assert.ErrorIs(t, err, ErrMalformedFrame)

			_, _, ok := a.TryRecognize("dtu/SN001/up", tt.frame)
			assert.False(t, ok)
		})
	}
}

func TestProbe_PairMatches(t *testing.T) {
	a := NewProbeAdapter()
	req1, err := a.Serialize(probeRequest("1"))
	require.NoError(t, err)
	req2, err := a.Serialize(probeRequest("2"))
	require.NoError(t, err)

	assert.True(t, a.PairMatches(req1, probeFieldFrame, PairContext{}))
	assert.False(t, a.PairMatches(req2, probeFieldFrame, PairContext{}), "answer from another probe")
	assert.False(t, a.PairMatches(req1, probeFieldFrame[:12], PairContext{}))

	// Point count disagrees with the frame length.
	for _, count := range []byte{0x01, 0x03, 0x10} {
		frame := append([]byte(nil), probeFieldFrame...)
		frame[probeCountOffset] = count
		assert.False(t, a.PairMatches(req1, frame, PairContext{}), "declared count %#02x", count)
	}
	assert.False(t, a.PairMatches(nil, probeFieldFrame, PairContext{}))
}

func TestProbe_TryRecognize(t *testing.T) {
	a := NewProbeAdapter()

	id, data, ok := a.TryRecognize("dtu/SN001/up", probeFieldFrame)
	require.True(t, ok)
	assert.Equal(t, device.Identity{
		Name:       "Probe_YiTong_TankTruck__SN001__01",
		DTUSN:      "SN001",
		DeviceType: device.DeviceTypeProbeYiTongTankTruck,
		PhysicalID: "1",
	}, id)
	assert.Equal(t, 32137, data["m1"])

	_, _, ok = a.TryRecognize("no-serial", probeFieldFrame)
	assert.False(t, ok)
}
