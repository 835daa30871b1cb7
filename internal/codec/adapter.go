package codec

import (
	"strings"
	"time"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// DefaultMaxRecords is the history cap for adapters that do not set their own.
const DefaultMaxRecords = 300

// PairContext is what a pairing predicate may know about the outstanding
// request besides its raw bytes.
type PairContext struct {
	RequestTopic  string
	ResponseTopic string
	SentAt        time.Time
}

// Adapter translates between structured requests/records and one device
// family's wire format.
//
// Implementations are stateless apart from static configuration and are
// shared across goroutines. PairMatches and TryRecognize run on the
// transport's delivery goroutine and must not block; neither may panic on
// malformed input.
type Adapter interface {
	// DeviceType is the tag this adapter serves.
	DeviceType() device.DeviceType

	// MaxRecords caps the twin history for devices of this type.
	MaxRecords() int

	// Serialize encodes a request as a raw frame. It returns
	// ErrUnsupportedAction when the action has no encoding.
	Serialize(req device.Request) ([]byte, error)

	// PairMatches reports whether response answers request.
	PairMatches(request, response []byte, pc PairContext) bool

	// Deserialize decodes a paired response into named, unit-resolved fields.
	Deserialize(request, response []byte) (map[string]any, error)

	// TryRecognize derives an identity and decoded data from an unsolicited
	// frame received on topic. ok is false when the frame is not ours.
	TryRecognize(topic string, payload []byte) (id device.Identity, data map[string]any, ok bool)
}

// dtuSNFromTopic extracts the serial number from "<prefix>/<dtu_sn>/...".
func dtuSNFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[1] == "" { //nolint:mnd // prefix + serial number
		return "", false
	}
	return parts[1], true
}
