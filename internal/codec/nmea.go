package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/dtu-hub/internal/device"
)

const (
	gnrmcPrefix      = "$GNRMC"
	gnrmcMinFields   = 13
	nmeaMaxRecords   = 100
	knotsToKmh       = 1.852
	nmeaCoordPlaces  = 6
	nmeaMotionPlaces = 3
	noData           = ""
)

// NMEAAdapter recognises the $GNRMC sentences some DTUs publish as a
// periodic heartbeat. It is passive: the DTU cannot be asked for a fix.
type NMEAAdapter struct{}

// NewNMEAAdapter creates an NMEA heartbeat adapter.
func NewNMEAAdapter() *NMEAAdapter {
	return &NMEAAdapter{}
}

// DeviceType implements Adapter.
func (a *NMEAAdapter) DeviceType() device.DeviceType {
	return device.DeviceTypeDTU
}

// MaxRecords implements Adapter.
func (a *NMEAAdapter) MaxRecords() int {
	return nmeaMaxRecords
}

// Serialize implements Adapter. Always ErrUnsupportedAction.
func (a *NMEAAdapter) Serialize(req device.Request) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s devices report on their own schedule", ErrUnsupportedAction, a.DeviceType())
}

// PairMatches implements Adapter. Nothing is ever requested, so nothing pairs.
func (a *NMEAAdapter) PairMatches(_, _ []byte, _ PairContext) bool {
	return false
}

// Deserialize implements Adapter.
func (a *NMEAAdapter) Deserialize(_, response []byte) (map[string]any, error) {
	return parseGNRMC(string(response))
}

// TryRecognize implements Adapter.
func (a *NMEAAdapter) TryRecognize(topic string, payload []byte) (device.Identity, map[string]any, bool) {
	sn, ok := dtuSNFromTopic(topic)
	if !ok {
		return device.Identity{}, nil, false
	}
	data, err := parseGNRMC(string(payload))
	if err != nil {
		return device.Identity{}, nil, false
	}

	id := device.Identity{
		Name:       "GenericTimelyReportGpsDtuDevice__" + sn,
		DTUSN:      sn,
		DeviceType: device.DeviceTypeDTU,
	}
	return id, data, true
}

// NMEAChecksum is the XOR of every byte between '$' and '*', formatted as
// two upper-case hex digits.
func NMEAChecksum(sentence string) string {
	sentence = strings.TrimPrefix(sentence, "$")
	if i := strings.IndexByte(sentence, '*'); i >= 0 {
		sentence = sentence[:i]
	}
	var sum byte
	for i := 0; i < len(sentence); i++ {
		sum ^= sentence[i]
	}
	return fmt.Sprintf("%02X", sum)
}

func parseGNRMC(raw string) (map[string]any, error) {
	sentence := strings.TrimRight(raw, "\r\n")
	if !strings.HasPrefix(sentence, gnrmcPrefix) {
		return nil, fmt.Errorf("%w: not a %s sentence", ErrMalformedFrame, gnrmcPrefix)
	}

	parts := strings.Split(sentence, "*")
	if len(parts) != 2 { //nolint:mnd // data and checksum
		return nil, fmt.Errorf("%w: %s sentence without a single checksum", ErrMalformedFrame, gnrmcPrefix)
	}
	fields := strings.Split(parts[0], ",")
	if len(fields) < gnrmcMinFields {
		return nil, fmt.Errorf("%w: %s has %d fields, want at least %d", ErrMalformedFrame, gnrmcPrefix, len(fields), gnrmcMinFields)
	}
	if want := NMEAChecksum(sentence); !strings.EqualFold(want, parts[1]) {
		return nil, fmt.Errorf("%w: NMEA checksum %s, computed %s", ErrMalformedFrame, parts[1], want)
	}

	lat, err := nmeaCoordinate(fields[3], 2, fields[4] == "S")
	if err != nil {
		return nil, err
	}
	lon, err := nmeaCoordinate(fields[5], 3, fields[6] == "W")
	if err != nil {
		return nil, err
	}
	knots := 0.0
	if fields[7] != "" {
		if knots, err = strconv.ParseFloat(fields[7], 64); err != nil {
			return nil, fmt.Errorf("%w: speed %q", ErrMalformedFrame, fields[7])
		}
	}

	navStatus := noData
	if len(fields) > gnrmcMinFields {
		navStatus = lookup(fields[13], map[string]string{"A": "fixed", "V": "not_fixed"})
	}

	return map[string]any{
		"sentence":                   sentence,
		"utc_time":                   splitEvery2(fields[1], ":", 2),
		"status":                     fixStatus(fields[2]),
		"latitude":                   roundTo(lat, nmeaCoordPlaces),
		"latitude_heading":           oneOf(fields[4], "N", "S"),
		"longitude":                  roundTo(lon, nmeaCoordPlaces),
		"longitude_heading":          oneOf(fields[6], "E", "W"),
		"speed_knots":                roundTo(knots, nmeaMotionPlaces),
		"speed_kmh":                  roundTo(knots*knotsToKmh, nmeaMotionPlaces),
		"course":                     fields[8],
		"utc_date":                   splitEvery2(fields[9], "/", 2),
		"magnetic_variation":         fields[10],
		"magnetic_variation_heading": oneOf(fields[11], "E", "W"),
		"mode": lookup(fields[12], map[string]string{
			"A": "autonomous", "D": "differential", "E": "estimated", "N": "invalid",
		}),
		"nav_status": navStatus,
	}, nil
}

// nmeaCoordinate converts (D)DDMM.MMMMM to signed decimal degrees.
func nmeaCoordinate(raw string, degreeDigits int, negative bool) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	if len(raw) <= degreeDigits {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedFrame, raw)
	}
	deg, err := strconv.Atoi(raw[:degreeDigits])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedFrame, raw)
	}
	minutes, err := strconv.ParseFloat(raw[degreeDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedFrame, raw)
	}
	v := float64(deg) + minutes/60 //nolint:mnd // minutes per degree
	if negative {
		v = -v
	}
	return v, nil
}

// splitEvery2 formats "hhmmss.ss" as "hh:mm:ss.ss" and "ddmmyy" as
// "dd/mm/yy". Short or empty input is returned as is.
func splitEvery2(s, sep string, groups int) string {
	if len(s) < 2*groups {
		return s
	}
	var b strings.Builder
	for i := range groups {
		b.WriteString(s[2*i : 2*i+2])
		b.WriteString(sep)
	}
	b.WriteString(s[2*groups:])
	return b.String()
}

func fixStatus(code string) string {
	switch code {
	case "A":
		return "valid"
	case "V":
		return "invalid"
	}
	return "unknown"
}

func lookup(code string, names map[string]string) string {
	if code == "" {
		return noData
	}
	if name, ok := names[code]; ok {
		return name
	}
	return "unknown(" + code + ")"
}

func oneOf(v string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return noData
}
