package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dtu-hub/internal/device"
)

func TestRegistry_Resolve(t *testing.T) {
	r := Default(Options{})

	for _, dt := range device.AllDeviceTypes {
		a, err := r.Resolve(dt)
		require.NoError(t, err, "type %s", dt)
		assert.Equal(t, dt, a.DeviceType())
	}

	_, err := r.Resolve("Probe_YiTong")
	assert.ErrorIs(t, err, ErrUnsupportedDeviceType)
	_, err = r.Resolve("")
	assert.ErrorIs(t, err, ErrUnsupportedDeviceType)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(NewProbeAdapter(), NewProbeAdapter(WithStrictChecksum(true)))
	assert.ErrorIs(t, err, ErrDuplicateAdapter)
}

func TestRegistry_Recognize(t *testing.T) {
	r := Default(Options{})
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	r.SetClock(func() time.Time { return at })

	tests := []struct {
		name       string
		payload    []byte
		wantType   device.DeviceType
		wantMax    int
		wantRecord string
	}{
		{"probe", probeFieldFrame, device.DeviceTypeProbeYiTongTankTruck, 100, "m1"},
		{"gps", gpsFixFrame, device.DeviceTypeGPSEbyteE108D01, DefaultMaxRecords, "latitude"},
		{"nmea", []byte(gnrmcSample), device.DeviceTypeDTU, 100, "utc_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := r.Recognize("dtu/SN001/up", tt.payload)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, rec.Identity.DeviceType)
			assert.Equal(t, "SN001", rec.Identity.DTUSN)
			assert.Equal(t, tt.wantMax, rec.MaxRecords)
			assert.Equal(t, at, rec.Record.ReceivedAt)
			assert.Contains(t, rec.Record.Data, tt.wantRecord)
		})
	}

	_, ok := r.Recognize("dtu/SN001/up", []byte("hello"))
	assert.False(t, ok)
}

func TestRegistry_StrictProbeOption(t *testing.T) {
	r := Default(Options{ProbeStrictChecksum: true})
	_, ok := r.Recognize("dtu/SN001/up", probeFieldFrame)
	assert.False(t, ok)
}

func TestRegistry_AdaptersIsACopy(t *testing.T) {
	r := Default(Options{})
	list := r.Adapters()
	require.Len(t, list, 3)
	list[0] = nil
	assert.NotNil(t, r.Adapters()[0])
}
