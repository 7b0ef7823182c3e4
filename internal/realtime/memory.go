package realtime

import (
	"context"
	"sync"
)

// Memory fans events out inside one process. Handlers run synchronously on
// the publisher's goroutine, after the hub lock is released.
type Memory struct {
	mu     sync.Mutex
	subs   map[string]map[int]*memorySub
	nextID int
	closed bool
}

type memorySub struct {
	hub     *Memory
	channel string
	id      int
	scope   Scope
	h       Handler
	once    sync.Once
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[int]*memorySub)}
}

func (m *Memory) Publish(_ context.Context, channel string, e Event) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(m.subs[channel]))
	for _, s := range m.subs[channel] {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	for _, s := range targets {
		if s.scope.Matches(e) {
			s.h(e)
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string, scope Scope, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.nextID++
	s := &memorySub{hub: m, channel: channel, id: m.nextID, scope: scope, h: h}
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]*memorySub)
	}
	m.subs[channel][s.id] = s
	return s, nil
}

// Subscribers reports how many live subscriptions channel has.
func (m *Memory) Subscribers(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[channel])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]map[int]*memorySub)
	return nil
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.channel], s.id)
		s.hub.mu.Unlock()
	})
	return nil
}
