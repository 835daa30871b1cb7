package dtu

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/dtu-hub/internal/audit"
	"github.com/nerrad567/dtu-hub/internal/codec"
	"github.com/nerrad567/dtu-hub/internal/correlation"
	"github.com/nerrad567/dtu-hub/internal/device"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/config"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
)

// Response descriptions.
const (
	DescriptionSuccess = "Success"
	DescriptionTimeout = "Timeout to receive response from device"
)

// auditTimeout bounds the audit write that follows every request.
const auditTimeout = 2 * time.Second

// Auditor stores one entry per request. audit.SQLiteRepository satisfies it.
type Auditor interface {
	Append(ctx context.Context, e *audit.Entry) error
}

// Deps holds everything a Service needs. Gateway, Transport and Codecs are
// required; the rest are optional.
type Deps struct {
	Gateway   config.GatewayConfig
	QoS       byte
	Transport correlation.Transport
	Codecs    *codec.Registry
	Twins     *device.Registry
	Auditor   Auditor
	Observer  Observer
	Sinks     []Sink
	Logger    Logger
}

// Service is the gateway core: request/response calls to devices behind
// DTUs and the digital twins built from their telemetry.
type Service struct {
	gateway   config.GatewayConfig
	qos       byte
	topics    mqtt.Topics
	transport correlation.Transport
	engine    *correlation.Engine
	codecs    *codec.Registry
	twins     *device.Registry
	auditor   Auditor
	observer  Observer
	sinks     []Sink
	logger    Logger
	now       func() time.Time
}

// New builds a Service from deps.
func New(deps Deps) (*Service, error) {
	if deps.Transport == nil {
		return nil, errors.New("dtu: transport is required")
	}
	if deps.Codecs == nil {
		return nil, errors.New("dtu: codec registry is required")
	}

	s := &Service{
		gateway:   deps.Gateway,
		qos:       deps.QoS,
		topics:    mqtt.Topics{Prefix: deps.Gateway.TopicPrefix},
		transport: deps.Transport,
		engine:    correlation.NewEngine(deps.Transport),
		codecs:    deps.Codecs,
		twins:     deps.Twins,
		auditor:   deps.Auditor,
		observer:  deps.Observer,
		sinks:     deps.Sinks,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.twins == nil {
		s.twins = device.NewRegistry()
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// Topics returns the topic builder for the configured prefix.
func (s *Service) Topics() mqtt.Topics {
	return s.topics
}

// Query returns the twins matching q.
func (s *Service) Query(q device.Query) ([]device.Twin, error) {
	return s.twins.Query(q)
}

// State derives the liveness of the devices matching q from how recently
// their twins heard from them.
func (s *Service) State(q device.Query) device.ConnState {
	return s.twins.State(q, s.gateway.StaleDuration(), s.now())
}

// timeout picks the effective exchange timeout for a caller's request.
func (s *Service) timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return s.gateway.RequestTimeout()
	}
	if limit := s.gateway.MaxTimeout(); limit > 0 && requested > limit {
		return limit
	}
	return requested
}

// Send performs one request/response exchange with a device.
//
// timeout <= 0 uses the configured default; larger values are clamped to
// the configured maximum. Requests to the same DTU are serialised. Send
// returns an error only when the broker connection is down or ctx ends;
// every other failure is a Response with StateCodeFailure.
func (s *Service) Send(ctx context.Context, req device.Request, timeout time.Duration) (device.Response, error) {
	started := s.now()
	id := req.Identity
	if req.Action == "" {
		req.Action = device.ActionRead
	}

	resp := device.Response{
		ID:          uuid.NewString(),
		DTUSN:       id.DTUSN,
		PhysicalID:  id.PhysicalID,
		DeviceType:  id.DeviceType,
		RequestType: req.Action,
	}
	s.observer.RequestStarted(id.DeviceType)

	a, err := s.exchange(ctx, req, s.timeout(timeout), &resp)

	took := s.now().Sub(started)
	s.observer.RequestFinished(id.DeviceType, a.outcome, took)
	s.record(resp, a, took)

	return resp, err
}

// attempt is what one exchange left behind for metrics and audit.
type attempt struct {
	outcome string
	frame   []byte
	answer  []byte
}

// exchange fills resp. err is set only for the failures Send passes to its
// caller.
func (s *Service) exchange(ctx context.Context, req device.Request, timeout time.Duration, resp *device.Response) (attempt, error) {
	var a attempt
	id := req.Identity
	fail := func(outcome, description string, err error) (attempt, error) {
		a.outcome = outcome
		resp.StateCode = device.StateCodeFailure
		resp.Description = description
		return a, err
	}

	if id.DTUSN == "" {
		return fail(OutcomeRejected, device.ErrInvalidQuery.Error(), nil)
	}
	adapter, err := s.codecs.Resolve(id.DeviceType)
	if err != nil {
		return fail(OutcomeRejected, err.Error(), nil)
	}
	a.frame, err = adapter.Serialize(req)
	if err != nil {
		return fail(OutcomeRejected, fmt.Sprintf("serialization failed: %v", err), nil)
	}

	res, err := s.engine.Do(ctx, correlation.Exchange{
		RequestTopic:  s.topics.Inbox(id.DTUSN),
		ResponseTopic: s.topics.Outbox(id.DTUSN),
		Frame:         a.frame,
		Pair:          adapter.PairMatches,
		Timeout:       timeout,
		QoS:           s.qos,
		LockKey:       id.DTUSN,
	})
	switch {
	case err == nil:
	case errors.Is(err, correlation.ErrTimeout):
		s.logger.Info("device request timed out",
			"dtu_sn", id.DTUSN, "device_type", id.DeviceType, "physical_id", id.PhysicalID, "timeout", timeout)
		return fail(OutcomeTimeout, DescriptionTimeout, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fail(OutcomeCancelled, err.Error(), err)
	default:
		return fail(OutcomeUnavailable, err.Error(), err)
	}
	a.answer = res.Response

	data, err := adapter.Deserialize(a.frame, res.Response)
	if err != nil {
		s.logger.Warn("paired response failed to decode",
			"dtu_sn", id.DTUSN, "device_type", id.DeviceType, "error", err)
		return fail(OutcomeMalformed, fmt.Sprintf("malformed response: %v", err), nil)
	}

	a.outcome = OutcomeSuccess
	resp.StateCode = device.StateCodeSuccess
	resp.Description = DescriptionSuccess
	resp.Data = data
	return a, nil
}

// record writes the audit entry for one request. Audit failures are logged
// and never change the response.
func (s *Service) record(resp device.Response, a attempt, took time.Duration) {
	if s.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	err := s.auditor.Append(ctx, &audit.Entry{
		ID:          resp.ID,
		DTUSN:       resp.DTUSN,
		DeviceType:  string(resp.DeviceType),
		PhysicalID:  resp.PhysicalID,
		Action:      string(resp.RequestType),
		StateCode:   resp.StateCode,
		Description: resp.Description,
		DurationMS:  took.Milliseconds(),
		RequestHex:  hex.EncodeToString(a.frame),
		ResponseHex: hex.EncodeToString(a.answer),
		CreatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Warn("request audit failed", "id", resp.ID, "error", err)
	}
}
