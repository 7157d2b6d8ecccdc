// Package hub is the single authoritative registry of live sessions and the
// serialization point for message fan-out. Every accepted message passes
// through one worker goroutine, which fixes the delivery order every
// recipient observes.
package hub

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/metrics"
	"chat-relay/protocol"
)

// Recipient is a live session as the hub sees it. Enqueue must never block:
// it reports false when the recipient's outbound queue is full, and the hub
// drops the recipient in response. Drop tells the recipient to shut down.
type Recipient interface {
	ID() string
	Enqueue(frame protocol.ServerFrame) bool
	Drop()
}

// Envelope is one admitted message together with its sender, so the hub can
// apply the echo policy during fan-out.
type Envelope struct {
	SenderID string
	Frame    protocol.ServerFrame
}

type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]Recipient
	admissions chan Envelope

	metrics      *metrics.Registry
	log          *slog.Logger
	echoToSender bool
}

var _ contract.Worker = (*Hub)(nil)

func NewHub(m *metrics.Registry, log *slog.Logger, bufferSize int, echoToSender bool) *Hub {
	return &Hub{
		sessions:     make(map[string]Recipient),
		admissions:   make(chan Envelope, bufferSize),
		metrics:      m,
		log:          log,
		echoToSender: echoToSender,
	}
}

// Register adds a session to the live set. The gauge moves inside the same
// critical section as the map, so the two can never disagree.
func (h *Hub) Register(sess Recipient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[sess.ID()]; ok {
		return
	}
	h.sessions[sess.ID()] = sess
	h.metrics.ConnectedUsers.Inc()
}

// Unregister is idempotent: every termination path may call it and the gauge
// only moves when the session was actually present.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[id]; !ok {
		return
	}
	delete(h.sessions, id)
	h.metrics.ConnectedUsers.Dec()
}

// Broadcast admits a message for fan-out. It blocks only while the bounded
// admission channel is full and gives up when the caller's context ends.
func (h *Hub) Broadcast(ctx context.Context, env Envelope) error {
	select {
	case h.admissions <- env:
		return nil
	case <-ctx.Done():
		return errors.ErrAdmissionRefused
	}
}

// Run drains the admission channel until the context is cancelled. It is the
// only goroutine that fans out, which makes the admission order the global
// delivery order.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-h.admissions:
			h.fanOut(env)
		}
	}
}

func (h *Hub) fanOut(env Envelope) {
	h.metrics.MessagesTotal.Inc()

	var overflowed []Recipient
	h.mu.RLock()
	for id, sess := range h.sessions {
		if id == env.SenderID && !h.echoToSender {
			continue
		}
		if !sess.Enqueue(env.Frame) {
			overflowed = append(overflowed, sess)
		}
	}
	h.mu.RUnlock()

	// A slow consumer costs itself its session, never the fan-out.
	for _, sess := range overflowed {
		h.log.Warn("dropping session with full outbound queue", "session_id", sess.ID())
		h.Unregister(sess.ID())
		h.metrics.SessionsDropped.Inc()
		sess.Drop()
	}
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
