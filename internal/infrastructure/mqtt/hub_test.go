package mqtt

import (
	"sync"
	"testing"
	"time"
)

func msg(topic, payload string) Message {
	return Message{Topic: topic, Payload: []byte(payload), ReceivedAt: time.Now()}
}

func TestHub_FiltersPerListener(t *testing.T) {
	hub := NewHub(4)
	a := hub.Listen(0, func(m Message) bool { return m.Topic == "dtu/A/outbox" })
	b := hub.Listen(0, nil)
	defer a.Close()
	defer b.Close()

	hub.Deliver(msg("dtu/A/outbox", "1"))
	hub.Deliver(msg("dtu/B/outbox", "2"))

	if got := len(a.C); got != 1 {
		t.Errorf("listener a queued %d messages, want 1", got)
	}
	if got := len(b.C); got != 2 {
		t.Errorf("listener b queued %d messages, want 2", got)
	}
	if m := <-a.C; string(m.Payload) != "1" {
		t.Errorf("listener a got %q, want %q", m.Payload, "1")
	}
}

func TestHub_DropsForSlowListenerOnly(t *testing.T) {
	hub := NewHub(1)
	var drops int
	hub.SetDropHandler(func(Message) { drops++ })

	slow := hub.Listen(1, nil)
	fast := hub.Listen(8, nil)
	defer slow.Close()
	defer fast.Close()

	for i := 0; i < 3; i++ {
		hub.Deliver(msg("t", "x"))
	}

	if slow.Dropped() != 2 {
		t.Errorf("slow.Dropped() = %d, want 2", slow.Dropped())
	}
	if fast.Dropped() != 0 || len(fast.C) != 3 {
		t.Errorf("fast listener dropped %d, queued %d", fast.Dropped(), len(fast.C))
	}
	if drops != 2 {
		t.Errorf("drop handler called %d times, want 2", drops)
	}
}

func TestHub_CloseDetachesAndClosesChannel(t *testing.T) {
	hub := NewHub(2)
	l := hub.Listen(0, nil)
	if hub.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", hub.Len())
	}

	l.Close()
	l.Close()

	if hub.Len() != 0 {
		t.Errorf("Len() after Close = %d, want 0", hub.Len())
	}
	hub.Deliver(msg("t", "x"))
	if _, ok := <-l.C; ok {
		t.Error("expected closed channel")
	}
}

func TestHub_FilterPanicIsContained(t *testing.T) {
	hub := NewHub(2)
	var recovered any
	hub.SetPanicHandler(func(r any) { recovered = r })

	bad := hub.Listen(0, func(Message) bool { panic("boom") })
	good := hub.Listen(0, nil)
	defer bad.Close()
	defer good.Close()

	hub.Deliver(msg("t", "x"))

	if recovered != "boom" {
		t.Errorf("panic handler got %v, want boom", recovered)
	}
	if len(bad.C) != 0 || len(good.C) != 1 {
		t.Errorf("bad queued %d, good queued %d", len(bad.C), len(good.C))
	}
}

func TestHub_ConcurrentListenDeliverClose(t *testing.T) {
	hub := NewHub(16)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			hub.Deliver(msg("t", "x"))
		}
	}()
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l := hub.Listen(1, func(Message) bool { return true })
				l.Close()
			}
		}()
	}
	wg.Wait()

	if hub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", hub.Len())
	}
}
