package device

import (
	"fmt"
	"time"
)

// DeviceType tags the family of a device. The set is closed: every tag
// here has exactly one protocol adapter registered for it.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

const (
	// DeviceTypeDTU is the gateway unit itself (e.g. a DTU reporting $GNRMC heartbeats).
	DeviceTypeDTU DeviceType = "DTU"

	// DeviceTypeProbeYiTongTankTruck is a tank-truck level/temperature probe behind a DTU.
	DeviceTypeProbeYiTongTankTruck DeviceType = "Probe_YiTong_TankTruck"

	// DeviceTypeGPSEbyteE108D01 is a Modbus GPS module behind a DTU.
	DeviceTypeGPSEbyteE108D01 DeviceType = "GPS_EBYTE_E108_D01"
)

// AllDeviceTypes lists every known device type.
var AllDeviceTypes = []DeviceType{
	DeviceTypeDTU,
	DeviceTypeProbeYiTongTankTruck,
	DeviceTypeGPSEbyteE108D01,
}

// ParseDeviceType validates a device type tag.
func ParseDeviceType(s string) (DeviceType, error) {
	for _, t := range AllDeviceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDeviceType, s)
}

// RequestAction is what a caller asks a device to do.
type RequestAction string

const (
	ActionRead         RequestAction = "Read"
	ActionReadAdvanced RequestAction = "Read_Advanced"
	ActionWrite        RequestAction = "Write"
	ActionReWrite      RequestAction = "ReWrite"
)

// ParseRequestAction validates a request action. An empty string means Read.
func ParseRequestAction(s string) (RequestAction, error) {
	switch RequestAction(s) {
	case "":
		return ActionRead, nil
	case ActionRead, ActionReadAdvanced, ActionWrite, ActionReWrite:
		return RequestAction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Overall state codes carried by a Response.
const (
	StateCodeSuccess = 200
	StateCodeFailure = 400
)

// Identity names a device. Two identities are the same device only when all
// four fields match.
type Identity struct {
	Name       string     `json:"name"`
	DTUSN      string     `json:"dtu_sn"`
	DeviceType DeviceType `json:"device_type"`
	PhysicalID string     `json:"device_physical_id,omitempty"`
}

// Equal reports structural equality.
func (i Identity) Equal(other Identity) bool {
	return i == other
}

// Request is a single call to a device. It is built per call and never stored.
type Request struct {
	Identity Identity       `json:"device_identity"`
	Action   RequestAction  `json:"request_action"`
	Data     map[string]any `json:"data,omitempty"`
}

// Response is the terminal result of a Request.
type Response struct {
	ID          string         `json:"id"`
	DTUSN       string         `json:"dtu_sn"`
	PhysicalID  string         `json:"physical_id"`
	DeviceType  DeviceType     `json:"device_type"`
	RequestType RequestAction  `json:"request_type"`
	StateCode   int            `json:"overall_state_code"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// OK reports whether the response carries a success code.
func (r Response) OK() bool {
	return r.StateCode == StateCodeSuccess
}

// Record is one decoded telemetry sample kept in a twin's history.
type Record struct {
	ReceivedAt time.Time      `json:"received_at"`
	Data       map[string]any `json:"data"`
}

// Twin is the in-memory picture of one device: its identity and a bounded,
// oldest-first history of records.
type Twin struct {
	Identity       Identity  `json:"device_identity"`
	LastReceivedAt time.Time `json:"last_message_received_at"`
	Description    string    `json:"description,omitempty"`
	Records        []Record  `json:"data_records"`
}

// DeepCopy returns a copy that shares no maps or slices with t.
func (t *Twin) DeepCopy() *Twin {
	if t == nil {
		return nil
	}
	cpy := *t
	cpy.Records = make([]Record, len(t.Records))
	for i, r := range t.Records {
		cpy.Records[i] = Record{ReceivedAt: r.ReceivedAt, Data: deepCopyMap(r.Data)}
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []float64:
		return append([]float64(nil), val...)
	default:
		return v
	}
}
