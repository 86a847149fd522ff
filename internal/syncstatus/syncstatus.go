// Package syncstatus publishes the health of the sync engine to observers.
package syncstatus

import (
	"log/slog"
	"sync"
	"time"
)

// State is the engine state machine position.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Status is an immutable snapshot. Seq increases with every published change.
type Status struct {
	Seq               uint64     `json:"seq"`
	State             State      `json:"state"`
	IsOnline          bool       `json:"isOnline"`
	IsSyncing         bool       `json:"isSyncing"`
	LastSyncTime      *time.Time `json:"lastSyncTime,omitempty"`
	PendingOperations int        `json:"pendingOperations"`
	StuckOperations   int        `json:"stuckOperations"`
	Error             string     `json:"error,omitempty"`
}

type subscriber struct {
	mu      sync.Mutex
	fn      func(Status)
	lastSeq uint64
}

// Publisher holds the current status and notifies subscribers synchronously
// on every change. A subscriber never receives a status older than one it
// has already seen. Subscribers must not call Update from their callback.
type Publisher struct {
	mu     sync.Mutex
	cur    Status
	subs   map[int]*subscriber
	nextID int
}

// NewPublisher returns a publisher in the idle state.
func NewPublisher() *Publisher {
	return &Publisher{
		cur:  Status{Seq: 1, State: StateIdle},
		subs: make(map[int]*subscriber),
	}
}

// Current returns the latest status.
func (p *Publisher) Current() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur
}

// Update applies fn to a copy of the current status, publishes the result
// and returns it. Subscribers are notified before Update returns.
func (p *Publisher) Update(fn func(s *Status)) Status {
	p.mu.Lock()
	next := p.cur
	fn(&next)
	next.Seq = p.cur.Seq + 1
	if next.LastSyncTime != nil {
		t := *next.LastSyncTime
		next.LastSyncTime = &t
	}
	p.cur = next
	subs := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.deliver(next)
	}
	return next
}

// Subscribe registers fn and immediately delivers the current status to it.
// The returned func unsubscribes.
func (p *Publisher) Subscribe(fn func(Status)) func() {
	s := &subscriber{fn: fn}
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = s
	cur := p.cur
	p.mu.Unlock()

	s.deliver(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

func (s *subscriber) deliver(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Seq <= s.lastSeq {
		return
	}
	s.lastSeq = st.Seq
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("syncstatus: subscriber panicked", "panic", r)
		}
	}()
	s.fn(st)
}
