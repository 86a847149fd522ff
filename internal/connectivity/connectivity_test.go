package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualTransitions(t *testing.T) {
	m := NewManual(false)
	var got []bool
	unsub := m.OnConnectivityChange(func(online bool) { got = append(got, online) })

	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(false)
	unsub()
	m.SetOnline(true)

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("transitions: got %v, want [true false]", got)
	}
	if !m.IsOnline() {
		t.Error("IsOnline should reflect the last SetOnline")
	}
}

func TestListenerPanicRecovered(t *testing.T) {
	m := NewManual(false)
	m.OnConnectivityChange(func(bool) { panic("boom") })
	called := false
	m.OnConnectivityChange(func(bool) { called = true })

	m.SetOnline(true)
	if !called {
		t.Error("second listener not called after panic")
	}
}

func TestProbeCheck(t *testing.T) {
	var fail atomic.Bool
	p := NewProbe(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("unreachable")
		}
		return nil
	}, time.Second)

	var mu sync.Mutex
	var got []bool
	p.OnConnectivityChange(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	ctx := context.Background()
	if !p.Check(ctx) || !p.IsOnline() {
		t.Fatal("probe should be online")
	}
	p.Check(ctx)
	fail.Store(true)
	if p.Check(ctx) {
		t.Fatal("probe should be offline")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("transitions: got %v, want [true false]", got)
	}
}

func TestProbeStartStop(t *testing.T) {
	var calls atomic.Int32
	p := NewProbe(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, 10*time.Millisecond)

	p.Start(context.Background())
	if !p.IsOnline() {
		t.Error("Start should check synchronously")
	}
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	n := calls.Load()
	if n < 2 {
		t.Errorf("expected polling, got %d checks", n)
	}
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != n {
		t.Error("probe kept polling after Stop")
	}
	p.Stop()
}
