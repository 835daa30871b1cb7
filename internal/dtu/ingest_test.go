package dtu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/dtu-hub/internal/device"
)

type collectingSink struct {
	mu      sync.Mutex
	updates []device.Update
}

func (c *collectingSink) Ingested(upd device.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, upd)
}

func (c *collectingSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

// startRun runs the ingest loop until the test ends and waits for its
// wildcard subscription.
func startRun(t *testing.T, f *fixture) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		return f.lb.Subscriptions()["dtu/+/outbox"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRun_BuildsTwinsFromTelemetry(t *testing.T) {
	sink := &collectingSink{}
	f := newFixture(t, sink)
	startRun(t, f)

	f.lb.Inject("dtu/SN009/outbox", []byte(gnrmc+"\r\n"))
	f.lb.Inject("dtu/SN009/outbox", probeFrame)
	f.lb.Inject("dtu/SN009/outbox", probeFrame)
	f.lb.Inject("dtu/SN009/outbox", []byte("garbage"))
	f.lb.Inject("dtu/SN009/inbox", probeFrame)     // not telemetry
	f.lb.Inject("other/SN009/outbox", gpsFixFrame) // other prefix

	require.Eventually(t, func() bool { return sink.len() == 3 }, time.Second, 5*time.Millisecond)

	twins, err := f.svc.Query(device.Query{DTUSN: "SN009"})
	require.NoError(t, err)
	require.Len(t, twins, 2)

	assert.Equal(t, "GenericTimelyReportGpsDtuDevice__SN009", twins[0].Identity.Name)
	assert.Equal(t, device.DeviceTypeDTU, twins[0].Identity.DeviceType)
	assert.Len(t, twins[0].Records, 1)

	assert.Equal(t, "Probe_YiTong_TankTruck__SN009__01", twins[1].Identity.Name)
	assert.Equal(t, "1", twins[1].Identity.PhysicalID)
	assert.Len(t, twins[1].Records, 2)

	sink.mu.Lock()
	assert.True(t, sink.updates[0].Created)
	assert.True(t, sink.updates[1].Created)
	assert.False(t, sink.updates[2].Created)
	assert.Equal(t, 2, sink.updates[2].Size)
	sink.mu.Unlock()

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	assert.Equal(t, 1, f.observer.recognized[device.DeviceTypeDTU])
	assert.Equal(t, 2, f.observer.recognized[device.DeviceTypeProbeYiTongTankTruck])
	assert.Equal(t, 1, f.observer.unrecognized)
	assert.Equal(t, 2, f.observer.twins)
}

func TestRun_ReturnsWhenContextEnds(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	require.Eventually(t, func() bool { return f.lb.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, f.lb.Hub().Len(), "listener detached")
}

func TestIngest_HistoryIsCapped(t *testing.T) {
	f := newFixture(t)

	// NMEA twins keep 100 records.
	for range 105 {
		require.True(t, f.svc.Ingest("dtu/SN010/outbox", []byte(gnrmc)))
	}

	twins, err := f.svc.Query(device.Query{DTUSN: "SN010", DeviceType: device.DeviceTypeDTU})
	require.NoError(t, err)
	require.Len(t, twins, 1)
	assert.Len(t, twins[0].Records, 100)
}

func TestState(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.svc.Ingest("dtu/SN011/outbox", probeFrame))

	assert.Equal(t, device.StateOnline, f.svc.State(device.Query{DTUSN: "SN011"}))
	assert.Equal(t, device.StateOnline, f.svc.State(device.Query{
		DTUSN: "SN011", DeviceType: device.DeviceTypeProbeYiTongTankTruck, PhysicalID: "1",
	}))
	assert.Equal(t, device.StateUnknown, f.svc.State(device.Query{
		DTUSN: "SN011", DeviceType: device.DeviceTypeProbeYiTongTankTruck, PhysicalID: "2",
	}))
	assert.Equal(t, device.StateUnknown, f.svc.State(device.Query{DTUSN: "SN999"}))

	f.svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	assert.Equal(t, device.StateOffline, f.svc.State(device.Query{DTUSN: "SN011"}))
}

func TestQuery_RequiresDTUSN(t *testing.T) {
	_, err := newFixture(t).svc.Query(device.Query{})
	assert.ErrorIs(t, err, device.ErrInvalidQuery)
}
