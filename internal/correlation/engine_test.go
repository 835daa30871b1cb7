package correlation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dtu-hub/internal/codec"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt"
	"github.com/nerrad567/dtu-hub/internal/infrastructure/mqtt/mqtttest"
)

// sameAddress pairs frames whose first byte (the bus address) agrees.
func sameAddress(request, response []byte, _ codec.PairContext) bool {
	return len(response) > 0 && response[0] == request[0]
}

// echoAfter answers every publish on <sn>/inbox with the same bytes on
// <sn>/outbox after delay.
func echoAfter(delay time.Duration) mqtttest.Responder {
	return func(l *mqtttest.Loopback, p mqtttest.Published) {
		time.Sleep(delay)
		l.Inject(p.Topic[:len(p.Topic)-len("inbox")]+"outbox", p.Payload)
	}
}

func exchange(sn string, addr byte, timeout time.Duration) Exchange {
	return Exchange{
		RequestTopic:  "dtu/" + sn + "/inbox",
		ResponseTopic: "dtu/" + sn + "/outbox",
		Frame:         []byte{addr, 0x03},
		Pair:          sameAddress,
		Timeout:       timeout,
		LockKey:       sn,
	}
}

func TestEngine_ResolvesMatchingResponse(t *testing.T) {
	tr := mqtttest.New()
	tr.SetResponder(func(l *mqtttest.Loopback, p mqtttest.Published) {
		l.Inject("dtu/SN001/outbox", []byte{0x09, 0xFF}) // another device
		l.Inject("dtu/SN002/outbox", []byte{0x01, 0xEE}) // another DTU
		l.Inject("dtu/SN001/outbox", []byte{0x01, 0x42})
	})
	e := NewEngine(tr)

	res, err := e.Do(context.Background(), exchange("SN001", 0x01, time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x42}, res.Response)
	assert.False(t, res.ReceivedAt.Before(res.SentAt))

	pub := tr.Published()
	require.Len(t, pub, 1)
	assert.Equal(t, "dtu/SN001/inbox", pub[0].Topic)
	assert.Equal(t, 1, tr.Subscriptions()["dtu/SN001/outbox"])
	assert.Equal(t, 0, tr.Hub().Len(), "listener not released")
}

func TestEngine_DuplicateRepliesAreNotDrops(t *testing.T) {
	tr := mqtttest.New()
	var drops atomic.Int32
	tr.Hub().SetDropHandler(func(mqtt.Message) { drops.Add(1) })
	tr.SetResponder(func(l *mqtttest.Loopback, p mqtttest.Published) {
		l.Inject("dtu/SN001/outbox", []byte{0x01, 0x42})
		l.Inject("dtu/SN001/outbox", []byte{0x01, 0x43}) // device repeated itself
		l.Inject("dtu/SN001/outbox", []byte{0x01, 0x44})
	})
	e := NewEngine(tr)

	res, err := e.Do(context.Background(), exchange("SN001", 0x01, time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x42}, res.Response, "first accepted frame wins")

	// Let the responder finish injecting before counting.
	require.Eventually(t, func() bool { return tr.Hub().Len() == 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), drops.Load(), "duplicate replies counted as listener drops")
}

func TestEngine_Timeout(t *testing.T) {
	tr := mqtttest.New()
	e := NewEngine(tr)
	const timeout = 150 * time.Millisecond

	start := time.Now()
	_, err := e.Do(context.Background(), exchange("SN001", 0x01, timeout))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Equal(t, 0, tr.Hub().Len(), "listener leaked after timeout")
}

func TestEngine_TransportUnavailable(t *testing.T) {
	tr := mqtttest.New()
	tr.SetConnected(false)

	_, err := NewEngine(tr).Do(context.Background(), exchange("SN001", 0x01, time.Second))
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	assert.Empty(t, tr.Published())
}

func TestEngine_InvalidExchange(t *testing.T) {
	e := NewEngine(mqtttest.New())

	bad := exchange("SN001", 0x01, 0)
	_, err := e.Do(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidExchange)

	bad = exchange("SN001", 0x01, time.Second)
	bad.Pair = nil
	_, err = e.Do(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidExchange)
}

func TestEngine_ContextCancel(t *testing.T) {
	tr := mqtttest.New()
	e := NewEngine(tr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := e.Do(ctx, exchange("SN001", 0x01, 5*time.Second))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, tr.Hub().Len())
}

func TestEngine_SameDTUIsSerialised(t *testing.T) {
	tr := mqtttest.New()
	tr.SetResponder(echoAfter(100 * time.Millisecond))
	e := NewEngine(tr)

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Do(context.Background(), exchange("SN001", byte(i+1), time.Second))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	first, second := results[0], results[1]
	if second.SentAt.Before(first.SentAt) {
		first, second = second, first
	}
	assert.False(t, second.SentAt.Before(first.ReceivedAt),
		"second request published before the first resolved")
}

func TestEngine_DifferentDTUsRunInParallel(t *testing.T) {
	tr := mqtttest.New()
	tr.SetResponder(echoAfter(200 * time.Millisecond))
	e := NewEngine(tr)

	results := make([]Result, 2)
	var wg sync.WaitGroup
	for i, sn := range []string{"SN001", "SN002"} {
		wg.Add(1)
		go func(i int, sn string) {
			defer wg.Done()
			res, err := e.Do(context.Background(), exchange(sn, 0x01, time.Second))
			assert.NoError(t, err)
			results[i] = res
		}(i, sn)
	}
	wg.Wait()

	a, b := results[0], results[1]
	assert.True(t, a.SentAt.Before(b.ReceivedAt) && b.SentAt.Before(a.ReceivedAt),
		"calls to different DTUs did not overlap")
}

func TestEngine_SharedTopicCallsResolveIndependently(t *testing.T) {
	tr := mqtttest.New()
	// Answer in reverse order of the address so each call sees the other's
	// response first.
	tr.SetResponder(func(l *mqtttest.Loopback, p mqtttest.Published) {
		if p.Payload[0] == 0x01 {
			time.Sleep(100 * time.Millisecond)
		}
		l.Inject("dtu/SN001/outbox", []byte{p.Payload[0], 0xA0 + p.Payload[0]})
	})
	e := NewEngine(tr)

	got := make([][]byte, 3)
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ex := exchange("SN001", byte(i+1), time.Second)
			ex.LockKey = ""
			res, err := e.Do(context.Background(), ex)
			assert.NoError(t, err)
			got[i] = res.Response
		}(i)
	}
	wg.Wait()

	for i, resp := range got {
		addr := byte(i + 1)
		assert.Equal(t, []byte{addr, 0xA0 + addr}, resp)
	}
}
