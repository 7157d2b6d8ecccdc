package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/hub"
	"chat-relay/protocol"
	"chat-relay/search"
	"chat-relay/services"
)

type stubAuth struct {
	failFirst  int
	calls      int
	storageErr bool
}

func (a *stubAuth) Authenticate(_ context.Context, login, _ string) (services.Identity, error) {
	a.calls++
	if a.storageErr {
		return services.Identity{}, errors.ErrStorageUnavailable
	}
	if a.calls <= a.failFirst {
		return services.Identity{}, errors.ErrAuthFailure
	}
	return services.Identity{UserID: "user-1", Login: login, Token: "token-1"}, nil
}

func (a *stubAuth) Register(ctx context.Context, login, credential string) (services.Identity, error) {
	return a.Authenticate(ctx, login, credential)
}

type stubChat struct {
	mu         sync.Mutex
	appended   []string
	storageErr bool
	history    []domain.Message
}

func (c *stubChat) AppendMessage(_ context.Context, _, body string) (domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storageErr {
		return domain.Message{}, errors.ErrStorageUnavailable
	}
	c.appended = append(c.appended, body)
	return domain.Message{Author: "alice", Body: body, CreatedAt: time.Now()}, nil
}

func (c *stubChat) AppendAttachment(ctx context.Context, authorID, name string, _ []byte) (domain.Message, error) {
	return c.AppendMessage(ctx, authorID, "[shared file "+name+"]")
}

func (c *stubChat) RecentMessages(context.Context, int) ([]domain.Message, error) {
	return c.history, nil
}

func (c *stubChat) SearchMessages(context.Context, string, int) ([]search.Hit, error) {
	return nil, nil
}

func (c *stubChat) bodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.appended...)
}

type stubBroadcaster struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
	envelopes    []hub.Envelope
}

func (b *stubBroadcaster) Register(r hub.Recipient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = append(b.registered, r.ID())
}

func (b *stubBroadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unregistered = append(b.unregistered, id)
}

func (b *stubBroadcaster) Broadcast(_ context.Context, env hub.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *stubBroadcaster) broadcasts() []hub.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]hub.Envelope(nil), b.envelopes...)
}

func (b *stubBroadcaster) unregisters() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unregistered...)
}

func testConfig() Config {
	return Config{
		OutboundBuffer:  16,
		IdleTimeout:     2 * time.Second,
		WriteTimeout:    time.Second,
		CloseGrace:      250 * time.Millisecond,
		StoreTimeout:    time.Second,
		MaxAuthAttempts: 3,
		MaxBodyBytes:    4096,
		HistoryLimit:    8,
	}
}

// dialSession spins up a server that runs one Session per connection and
// returns the client side of the socket.
func dialSession(t *testing.T, b Broadcaster, auth services.IAuthService, chat services.IChatService) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sess := New(conn, b, auth, chat, testConfig(), slog.Default())
		sess.Run(context.Background())
		close(done)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
	})
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame protocol.ClientFrame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func recv(t *testing.T, conn *websocket.Conn) protocol.ServerFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame protocol.ServerFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestSession_AuthenticateThenSend(t *testing.T) {
	req := require.New(t)
	auth := &stubAuth{}
	chat := &stubChat{}
	b := &stubBroadcaster{}
	conn := dialSession(t, b, auth, chat)

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeLogin, Login: "alice", Credential: "Sup3rSecret"})
	authResult := recv(t, conn)
	req.Equal(protocol.TypeAuthResult, authResult.Type)
	req.True(authResult.Ok)
	req.Equal("token-1", authResult.Token)

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeMessage, Body: "hello there"})

	req.Eventually(func() bool { return len(b.broadcasts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"hello there"}, chat.bodies())
	req.Equal("hello there", b.broadcasts()[0].Frame.Body)
}

func TestSession_RetriesThenLocksOut(t *testing.T) {
	req := require.New(t)
	auth := &stubAuth{failFirst: 10}
	conn := dialSession(t, &stubBroadcaster{}, auth, &stubChat{})

	for i := 0; i < 3; i++ {
		send(t, conn, protocol.ClientFrame{Type: protocol.TypeLogin, Login: "alice", Credential: "nope1234"})
		result := recv(t, conn)
		req.False(result.Ok)
		req.Equal("authentication failed", result.Reason)
	}

	// Budget spent: the server closes instead of answering a fourth try.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err)
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestSession_MalformedFrameClosesConnection(t *testing.T) {
	req := require.New(t)
	conn := dialSession(t, &stubBroadcaster{}, &stubAuth{}, &stubChat{})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	req.Error(err)
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestSession_StorageDownKeepsMessageLocal(t *testing.T) {
	req := require.New(t)
	chat := &stubChat{storageErr: true}
	b := &stubBroadcaster{}
	conn := dialSession(t, b, &stubAuth{}, chat)

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeLogin, Login: "alice", Credential: "Sup3rSecret"})
	req.True(recv(t, conn).Ok)

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeMessage, Body: "lost message"})

	failure := recv(t, conn)
	req.Equal(protocol.TypeError, failure.Type)
	req.Contains(failure.Reason, "storage unavailable")
	req.Empty(b.broadcasts())
}

func TestSession_HistoryReplayBeforeLive(t *testing.T) {
	req := require.New(t)
	chat := &stubChat{history: []domain.Message{
		{Author: "bob", Body: "earlier one"},
		{Author: "bob", Body: "earlier two"},
	}}
	conn := dialSession(t, &stubBroadcaster{}, &stubAuth{}, chat)

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeRegister, Login: "alice", Credential: "Sup3rSecret"})
	req.True(recv(t, conn).Ok)

	req.Equal("earlier one", recv(t, conn).Body)
	req.Equal("earlier two", recv(t, conn).Body)
}

func TestSession_UnregisterOnDisconnect(t *testing.T) {
	req := require.New(t)
	b := &stubBroadcaster{}
	conn := dialSession(t, b, &stubAuth{}, &stubChat{})

	send(t, conn, protocol.ClientFrame{Type: protocol.TypeLogin, Login: "alice", Credential: "Sup3rSecret"})
	req.True(recv(t, conn).Ok)
	req.NoError(conn.Close())

	req.Eventually(func() bool { return len(b.unregisters()) == 1 }, 3*time.Second, 10*time.Millisecond)
}
