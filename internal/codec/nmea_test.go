package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dtu-hub/internal/device"
)

const gnrmcSample = "$GNRMC,111700.00,A,2906.78084,N,11207.29890,E,0.114,,111125,,,A,V*10"

func TestNMEAChecksum(t *testing.T) {
	assert.Equal(t, "10", NMEAChecksum(gnrmcSample))
	assert.Equal(t, "10", NMEAChecksum(gnrmcSample[:len(gnrmcSample)-3]))
}

func TestNMEA_Decode(t *testing.T) {
	data, err := NewNMEAAdapter().Deserialize(nil, []byte(gnrmcSample+"\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "11:17:00.00", data["utc_time"])
	assert.Equal(t, "valid", data["status"])
	assert.InDelta(t, 29.113014, data["latitude"], 1e-9)
	assert.Equal(t, "N", data["latitude_heading"])
	assert.InDelta(t, 112.121648, data["longitude"], 1e-9)
	assert.Equal(t, "E", data["longitude_heading"])
	assert.InDelta(t, 0.114, data["speed_knots"], 1e-9)
	assert.InDelta(t, 0.211, data["speed_kmh"], 1e-9)
	assert.Equal(t, "", data["course"])
	assert.Equal(t, "11/11/25", data["utc_date"])
	assert.Equal(t, "autonomous", data["mode"])
	assert.Equal(t, "not_fixed", data["nav_status"])
	assert.Equal(t, gnrmcSample, data["sentence"])
}

func TestNMEA_SouthWest(t *testing.T) {
	body := "GNRMC,000000.00,A,3000.00000,S,01030.00000,W,,,010125,,,D"
	sentence := "$" + body + "*" + NMEAChecksum("$"+body)

	data, err := NewNMEAAdapter().Deserialize(nil, []byte(sentence))
	require.NoError(t, err)
	assert.InDelta(t, -30.0, data["latitude"], 1e-9)
	assert.InDelta(t, -10.5, data["longitude"], 1e-9)
	assert.Equal(t, "differential", data["mode"])
	assert.Equal(t, "", data["nav_status"])
}

func TestNMEA_Rejects(t *testing.T) {
	a := NewNMEAAdapter()

	tests := []struct {
		name    string
		payload string
	}{
		{"other sentence", "$GPGGA,111700.00,2906.78084,N*00"},
		{"no checksum", "$GNRMC,111700.00,A,2906.78084,N,11207.29890,E,0.114,,111125,,,A,V"},
		{"two checksums", gnrmcSample + "*10"},
		{"too few fields", "$GNRMC,111700.00,A*" + NMEAChecksum("$GNRMC,111700.00,A")},
		{"checksum mismatch", gnrmcSample[:len(gnrmcSample)-2] + "11"},
		{"binary", string(probeFieldFrame)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := a.TryRecognize("dtu/SN001/up", []byte(tt.payload))
			assert.False(t, ok)
		})
	}
}

func TestNMEA_PassiveOnly(t *testing.T) {
	a := NewNMEAAdapter()

	_, err := a.Serialize(device.Request{Action: device.ActionRead})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
	assert.False(t, a.PairMatches(nil, []byte(gnrmcSample), PairContext{}))
}

func TestNMEA_TryRecognize(t *testing.T) {
	id, data, ok := NewNMEAAdapter().TryRecognize("dtu/SN001/up", []byte(gnrmcSample))
	require.True(t, ok)
	assert.Equal(t, device.Identity{
		Name:       "GenericTimelyReportGpsDtuDevice__SN001",
		DTUSN:      "SN001",
		DeviceType: device.DeviceTypeDTU,
	}, id)
	assert.Equal(t, "valid", data["status"])
}
