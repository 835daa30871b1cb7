package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// EBYTE E108-D01 Modbus register map. A location read asks for 17 holding
// registers starting at 0x00C8 and gets 34 data bytes back:
//
//	reg  0     fix valid (0/1)
//	reg  1-6   UTC year, month, day, hour, minute, second
//	reg  7     longitude hemisphere, ASCII in the low byte
//	reg  8-9   longitude, float32
//	reg 10     latitude hemisphere
//	reg 11-12  latitude, float32
//	reg 13-14  speed over ground, float32
//	reg 15-16  course over ground, float32
const (
	modbusReadHolding    byte   = 0x03
	gpsLocationRegister  uint16 = 0x00C8
	gpsLocationRegisters uint16 = 17
	gpsLocationBytes            = 2 * int(gpsLocationRegisters)
	gpsDefaultAddress           = 1
	gpsMaxAddress               = 247
	gpsMinYear                  = 2000
	gpsMaxYear                  = 2099
	gpsCoordPlaces              = 6
	gpsMotionPlaces             = 3
)

// GPSModbusAdapter reads location fixes from an EBYTE E108-D01 GPS module
// over Modbus RTU.
type GPSModbusAdapter struct{}

// NewGPSModbusAdapter creates a GPS Modbus adapter.
func NewGPSModbusAdapter() *GPSModbusAdapter {
	return &GPSModbusAdapter{}
}

// DeviceType implements Adapter.
func (a *GPSModbusAdapter) DeviceType() device.DeviceType {
	return device.DeviceTypeGPSEbyteE108D01
}

// MaxRecords implements Adapter.
func (a *GPSModbusAdapter) MaxRecords() int {
	return DefaultMaxRecords
}

// Serialize implements Adapter. The physical id is the Modbus slave
// address; an empty id addresses slave 1.
func (a *GPSModbusAdapter) Serialize(req device.Request) ([]byte, error) {
	if req.Action != device.ActionRead {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedAction, req.Action, a.DeviceType())
	}

	addr, err := modbusAddress(req.Identity.PhysicalID)
	if err != nil {
		return nil, err
	}

	frame := []byte{addr, modbusReadHolding}
	frame = binary.BigEndian.AppendUint16(frame, gpsLocationRegister)
	frame = binary.BigEndian.AppendUint16(frame, gpsLocationRegisters)
	return appendCRC16(frame), nil
}

// PairMatches implements Adapter. The response must come from the
// addressed slave, echo the function code and pass location validation.
func (a *GPSModbusAdapter) PairMatches(request, response []byte, _ PairContext) bool {
	if len(request) < 2 || !validCRC16(request) {
		return false
	}
	if _, err := locationBody(response); err != nil {
		return false
	}
	return response[0] == request[0] && response[1] == request[1]
}

// Deserialize implements Adapter.
func (a *GPSModbusAdapter) Deserialize(_, response []byte) (map[string]any, error) {
	body, err := locationBody(response)
	if err != nil {
		return nil, err
	}
	return decodeLocation(body), nil
}

// TryRecognize implements Adapter. Modules polled by another master
// still produce valid location frames on the telemetry topic.
func (a *GPSModbusAdapter) TryRecognize(topic string, payload []byte) (device.Identity, map[string]any, bool) {
	sn, ok := dtuSNFromTopic(topic)
	if !ok {
		return device.Identity{}, nil, false
	}
	body, err := locationBody(payload)
	if err != nil {
		return device.Identity{}, nil, false
	}

	addr := int(payload[0])
	id := device.Identity{
		Name:       fmt.Sprintf("%s__%s__%02d", device.DeviceTypeGPSEbyteE108D01, sn, addr),
		DTUSN:      sn,
		DeviceType: device.DeviceTypeGPSEbyteE108D01,
		PhysicalID: strconv.Itoa(addr),
	}
	return id, decodeLocation(body), true
}

func modbusAddress(physicalID string) (byte, error) {
	if physicalID == "" {
		return gpsDefaultAddress, nil
	}
	n, err := strconv.Atoi(physicalID)
	if err != nil || n < 1 || n > gpsMaxAddress {
		return 0, fmt.Errorf("%w: modbus address %q must be 1-%d", ErrInvalidPhysicalID, physicalID, gpsMaxAddress)
	}
	return byte(n), nil
}

// locationBody validates a read-holding-registers response carrying a
// location fix and returns its data bytes.
func locationBody(frame []byte) ([]byte, error) {
	if len(frame) < 5 { //nolint:mnd // address, function, length, CRC
		return nil, fmt.Errorf("%w: modbus frame too short (%d bytes)", ErrMalformedFrame, len(frame))
	}
	declared := int(frame[2])
	if len(frame) != 3+declared+2 {
		return nil, fmt.Errorf("%w: modbus frame length %d, declared %d data bytes", ErrMalformedFrame, len(frame), declared)
	}
	if !validCRC16(frame) {
		return nil, fmt.Errorf("%w: modbus CRC mismatch", ErrMalformedFrame)
	}
	if frame[1] != modbusReadHolding || declared != gpsLocationBytes {
		return nil, fmt.Errorf("%w: not a location read (function %#02x, %d bytes)", ErrMalformedFrame, frame[1], declared)
	}

	body := frame[3 : 3+declared]
	if body[0] != 0x00 || body[1] > 0x01 {
		return nil, fmt.Errorf("%w: fix flag %#02x%02x", ErrMalformedFrame, body[0], body[1])
	}
	if year := int(binary.BigEndian.Uint16(body[2:4])); year < gpsMinYear || year > gpsMaxYear {
		return nil, fmt.Errorf("%w: implausible year %d", ErrMalformedFrame, year)
	}
	if lon := body[15]; lon != 'E' && lon != 'W' {
		return nil, fmt.Errorf("%w: longitude hemisphere %#02x", ErrMalformedFrame, lon)
	}
	if lat := body[21]; lat != 'N' && lat != 'S' {
		return nil, fmt.Errorf("%w: latitude hemisphere %#02x", ErrMalformedFrame, lat)
	}
	// Registers 8, 11, 13 and 15 hold the float fields.
	for _, reg := range []int{8, 11, 13, 15} {
		v := float64(math.Float32frombits(binary.BigEndian.Uint32(body[2*reg : 2*reg+4])))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value in register %d", ErrMalformedFrame, reg)
		}
	}
	return body, nil
}

func decodeLocation(body []byte) map[string]any {
	reg := func(i int) int {
		return int(binary.BigEndian.Uint16(body[2*i : 2*i+2]))
	}
	f32 := func(i int) float64 {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(body[2*i : 2*i+4])))
	}

	return map[string]any{
		"is_location_valid": reg(0) == 1,
		"year":              reg(1),
		"month":             reg(2),
		"day":               reg(3),
		"hour":              reg(4),
		"min":               reg(5),
		"sec":               reg(6),
		"longitude_heading": string(rune(body[15])),
		"longitude":         roundTo(f32(8), gpsCoordPlaces),
		"latitude_heading":  string(rune(body[21])),
		"latitude":          roundTo(f32(11), gpsCoordPlaces),
		"speed_to_ground":   roundTo(f32(13), gpsMotionPlaces),
		"heading_to_ground": roundTo(f32(15), gpsMotionPlaces),
	}
}
