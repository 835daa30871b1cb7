package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "fleet"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"inbox", topics.Inbox("SN001"), "fleet/SN001/inbox"},
		{"outbox", topics.Outbox("SN001"), "fleet/SN001/outbox"},
		{"all outboxes", topics.AllOutboxes(), "fleet/+/outbox"},
		{"default prefix", Topics{}.Inbox("SN001"), "dtu/SN001/inbox"},
		{"presence", PresenceTopic("dtuhub"), "rpc/rpc_client/dtuhub/online_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"dtu/+/outbox", "dtu/SN001/outbox", true},
		{"dtu/+/outbox", "dtu/SN001/inbox", false},
		{"dtu/+/outbox", "dtu/SN001/outbox/extra", false},
		{"dtu/+/outbox", "dtu/outbox", false},
		{"dtu/#", "dtu/SN001/outbox", true},
		{"dtu/#", "dtu", true},
		{"#", "anything/at/all", true},
		{"dtu/SN001/outbox", "dtu/SN001/outbox", true},
		{"dtu/SN001/outbox", "dtu/SN002/outbox", false},
		{"dtu/#/outbox", "dtu/SN001/outbox", false},
	}

	for _, tt := range tests {
		if got := MatchTopic(tt.filter, tt.topic); got != tt.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
