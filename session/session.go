// Package session owns one websocket connection per client: its state
// machine, its read and write pumps and its handoff to the broadcast hub.
package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/errors"
	"chat-relay/hub"
	"chat-relay/protocol"
	"chat-relay/services"
)

// State is the connection lifecycle. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Broadcaster is the slice of the hub a session needs.
type Broadcaster interface {
	Register(hub.Recipient)
	Unregister(id string)
	Broadcast(ctx context.Context, env hub.Envelope) error
}

type Config struct {
	OutboundBuffer  int
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	CloseGrace      time.Duration
	StoreTimeout    time.Duration
	MaxAuthAttempts int
	MaxBodyBytes    int64
	HistoryLimit    int
}

type Session struct {
	id   string
	conn *websocket.Conn
	hub  Broadcaster
	auth services.IAuthService
	chat services.IChatService
	cfg  Config
	log  *slog.Logger

	identity services.Identity
	outbound chan protocol.ServerFrame
	state    atomic.Int32
	done     chan struct{}
	closing  sync.Once

	// cancel aborts in-flight store calls when the session closes.
	cancel context.CancelFunc
}

func New(conn *websocket.Conn, b Broadcaster, auth services.IAuthService,
	chat services.IChatService, cfg Config, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		hub:      b,
		auth:     auth,
		chat:     chat,
		cfg:      cfg,
		log:      log.With("session_id", id),
		outbound: make(chan protocol.ServerFrame, cfg.OutboundBuffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Enqueue hands a frame to the write pump without ever blocking the caller.
// A false return means the outbound queue is full and the hub should drop
// this session.
func (s *Session) Enqueue(frame protocol.ServerFrame) bool {
	select {
	case <-s.done:
		return true // already closing, nothing to deliver to
	default:
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

// Drop is the hub telling the session to go away.
func (s *Session) Drop() { s.close(websocket.ClosePolicyViolation, "outbound queue overflow") }

// Run drives the state machine to completion and only returns once the
// connection is finished. Unregistration happens exactly once regardless of
// which path ends the session.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()
	defer s.close(websocket.CloseNormalClosure, "")

	s.conn.SetReadLimit(s.cfg.MaxBodyBytes)
	s.state.Store(int32(StateAuthenticating))

	if !s.authenticate(ctx) {
		return
	}

	s.state.Store(int32(StateActive))

	// The auth result and the backlog are queued before the session joins
	// the live set, and the write pump starts only after it joined: a client
	// that has seen its auth result is guaranteed to be in the fan-out.
	s.Enqueue(protocol.AuthOK(s.identity.Token))
	s.replayHistory(ctx)
	s.hub.Register(s)

	go s.writePump()
	s.readLoop(ctx)
}

// authenticate reads frames until a login or register succeeds, the attempt
// budget is spent, or the transport fails. Auth failures are reported to the
// client; transport failures just end the session.
func (s *Session) authenticate(ctx context.Context) bool {
	for attempt := 1; attempt <= s.cfg.MaxAuthAttempts; attempt++ {
		frame, err := s.readFrame()
		if stderrors.Is(err, errors.ErrProtocolViolation) {
			s.close(websocket.ClosePolicyViolation, "malformed frame")
			return false
		}
		if err != nil {
			return false
		}

		var identity services.Identity
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		switch frame.Type {
		case protocol.TypeLogin:
			identity, err = s.auth.Authenticate(callCtx, frame.Login, frame.Credential)
		case protocol.TypeRegister:
			identity, err = s.auth.Register(callCtx, frame.Login, frame.Credential)
		default:
			cancel()
			s.close(websocket.ClosePolicyViolation, "authentication required")
			return false
		}
		cancel()

		switch {
		case err == nil:
			s.identity = identity
			s.log.Info("session authenticated", "login", identity.Login, "attempt", attempt)
			return true
		case stderrors.Is(err, errors.ErrStorageUnavailable):
			s.writeDirect(protocol.Error("service unavailable, try again later"))
			s.close(websocket.CloseTryAgainLater, "storage unavailable")
			return false
		default:
			s.writeDirect(protocol.AuthFailed(authReason(err)))
		}
	}

	s.close(websocket.ClosePolicyViolation, "too many authentication attempts")
	return false
}

// authReason maps an auth error to the client-visible reason without leaking
// which logins exist.
func authReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrDuplicateLogin):
		return "login already taken"
	case stderrors.Is(err, errors.ErrInvalidCredential):
		return "credential rejected"
	default:
		return "authentication failed"
	}
}

// replayHistory queues the recent backlog before the session joins the live
// fan-out, so the client sees context first and live messages after.
func (s *Session) replayHistory(ctx context.Context) {
	if s.cfg.HistoryLimit <= 0 {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	history, err := s.chat.RecentMessages(callCtx, s.cfg.HistoryLimit)
	if err != nil {
		s.log.Warn("history replay failed", "error", err)
		return
	}
	for _, msg := range history {
		s.Enqueue(protocol.Delivered(msg))
	}
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		frame, err := s.readFrame()
		if stderrors.Is(err, errors.ErrProtocolViolation) {
			s.close(websocket.ClosePolicyViolation, "malformed frame")
			return
		}
		if err != nil {
			return
		}

		switch frame.Type {
		case protocol.TypeMessage:
			s.handleMessage(ctx, frame)
		case protocol.TypeAttachment:
			s.handleAttachment(ctx, frame)
		default:
			s.close(websocket.ClosePolicyViolation, "unexpected frame while active")
			return
		}
	}
}

// handleMessage persists first and broadcasts only after the store accepted
// the message. A storage failure is reported to the sender alone and nothing
// reaches the hub.
func (s *Session) handleMessage(ctx context.Context, frame protocol.ClientFrame) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	msg, err := s.chat.AppendMessage(callCtx, s.identity.UserID, frame.Body)
	cancel()
	if err != nil {
		s.log.Warn("message rejected", "error", err)
		s.Enqueue(protocol.Error("message not delivered: storage unavailable"))
		return
	}

	if err := s.hub.Broadcast(ctx, hub.Envelope{SenderID: s.id, Frame: protocol.Delivered(msg)}); err != nil {
		s.log.Warn("broadcast refused", "error", err)
	}
}

func (s *Session) handleAttachment(ctx context.Context, frame protocol.ClientFrame) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	msg, err := s.chat.AppendAttachment(callCtx, s.identity.UserID, frame.Name, frame.Payload)
	cancel()
	if stderrors.Is(err, errors.ErrProtocolViolation) {
		s.Enqueue(protocol.Error("attachment refused: unsupported content type"))
		return
	}
	if err != nil {
		s.log.Warn("attachment rejected", "error", err)
		s.Enqueue(protocol.Error("attachment not delivered: storage unavailable"))
		return
	}

	if err := s.hub.Broadcast(ctx, hub.Envelope{SenderID: s.id, Frame: protocol.Delivered(msg)}); err != nil {
		s.log.Warn("broadcast refused", "error", err)
	}
}

// readFrame enforces the idle timeout with a per-read deadline.
func (s *Session) readFrame() (protocol.ClientFrame, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
		return protocol.ClientFrame{}, err
	}
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return protocol.ClientFrame{}, err
	}
	return protocol.DecodeClientFrame(raw)
}

// writePump is the only goroutine writing to the connection after the
// session turns active.
func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.outbound:
			if err := s.write(frame); err != nil {
				s.close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (s *Session) write(frame protocol.ServerFrame) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame.Encode())
}

// writeDirect is used during authentication, before the write pump starts.
func (s *Session) writeDirect(frame protocol.ServerFrame) {
	if err := s.write(frame); err != nil {
		s.log.Debug("write during authentication failed", "error", err)
	}
}

// close tears the session down exactly once: unregister from the hub, tell
// the peer why, give the close frame a grace period to flush, drop the
// connection.
func (s *Session) close(code int, reason string) {
	s.closing.Do(func() {
		s.state.Store(int32(StateClosing))
		s.hub.Unregister(s.id)
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}

		deadline := time.Now().Add(s.cfg.CloseGrace)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			s.log.Debug("close handshake failed", "error", err)
		}
		_ = s.conn.Close()

		s.state.Store(int32(StateClosed))
		if reason != "" {
			s.log.Info("session closed", "reason", reason)
		} else {
			s.log.Info("session closed")
		}
	})
}
