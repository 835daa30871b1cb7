package dtu

import (
	"context"
	"fmt"

	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
)

// Run consumes every DTU outbox until ctx ends, feeding recognised frames
// into the twin registry and on to the sinks.
//
// The ingest listener is attached before the wildcard subscription is made
// so no frame delivered after Subscribe returns is missed. Frames no
// adapter claims are telemetry noise and only logged at debug level.
func (s *Service) Run(ctx context.Context) error {
	filter := s.topics.AllOutboxes()
	l := s.transport.Listen(s.gateway.ListenerBuffer, func(m mqtt.Message) bool {
		return mqtt.MatchTopic(filter, m.Topic)
	})
	defer l.Close()

	if err := s.transport.Subscribe(filter, s.qos); err != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	s.logger.Info("telemetry ingest started", "topic", filter)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("telemetry ingest stopped", "dropped", l.Dropped())
			return nil
		case m, ok := <-l.C:
			if !ok {
				return nil
			}
			s.ingest(m)
		}
	}
}

// Ingest processes one outbox frame. Run calls it for every delivery; it
// is exported for callers that receive frames by other means.
func (s *Service) Ingest(topic string, payload []byte) bool {
	return s.ingest(mqtt.Message{Topic: topic, Payload: payload})
}

func (s *Service) ingest(m mqtt.Message) bool {
	rec, ok := s.codecs.Recognize(m.Topic, m.Payload)
	if !ok {
		s.observer.FrameUnrecognized()
		s.logger.Debug("unrecognised frame", "topic", m.Topic, "size", len(m.Payload))
		return false
	}

	upd, err := s.twins.Ingest(rec.Identity, rec.Record, rec.MaxRecords)
	if err != nil {
		s.logger.Error("twin ingest failed", "name", rec.Identity.Name, "error", err)
		return false
	}
	s.observer.FrameRecognized(rec.Identity.DeviceType)
	if upd.Created {
		s.observer.TwinCount(s.twins.Count())
	}

	for _, sink := range s.sinks {
		sink.Ingested(upd)
	}
	return true
}
