package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the first level of every DTU topic.
const DefaultTopicPrefix = "dtu"

// presenceRoot is the base of online/offline status topics.
const presenceRoot = "rpc/rpc_client"

// Topics provides builders for DTU topics under one prefix.
//
//	topics := mqtt.Topics{Prefix: "dtu"}
//	topics.Inbox("SN001")   // "dtu/SN001/inbox"
//	topics.AllOutboxes()    // "dtu/+/outbox"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Inbox returns the topic a DTU reads commands from.
//
// Example: dtu/SN001/inbox
func (t Topics) Inbox(dtuSN string) string {
	return fmt.Sprintf("%s/%s/inbox", t.prefix(), dtuSN)
}

// Outbox returns the topic a DTU publishes responses and telemetry on.
//
// Example: dtu/SN001/outbox
func (t Topics) Outbox(dtuSN string) string {
	return fmt.Sprintf("%s/%s/outbox", t.prefix(), dtuSN)
}

// AllOutboxes returns a wildcard subscription covering every DTU outbox.
func (t Topics) AllOutboxes() string {
	return t.Outbox("+")
}

// PresenceTopic returns the retained status topic for a client name.
//
// Example: rpc/rpc_client/dtuhub/online_status
func PresenceTopic(name string) string {
	return fmt.Sprintf("%s/%s/online_status", presenceRoot, name)
}

// MatchTopic reports whether topic matches the subscription filter,
// honouring the + and # wildcards.
func MatchTopic(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
