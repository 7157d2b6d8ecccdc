package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"chat-relay/client"
	"chat-relay/hub"
	"chat-relay/metrics"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/search"
	"chat-relay/server"
	"chat-relay/services"
	"chat-relay/session"
)

// BaseChatSuite starts a complete server per test: fresh store, fresh index,
// fresh metrics, supervised hub, all in-process behind an httptest listener.
type BaseChatSuite struct {
	suite.Suite
	Config Config

	DB      *badger.DB
	Metrics *metrics.Registry

	ts     *httptest.Server
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseChatSuite) SetupTest() {
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)
	s.DB = db

	index, err := search.Open(filepath.Join(s.T().TempDir(), "index"), log)
	s.Require().NoError(err)

	reg := metrics.NewRegistry()
	s.Metrics = reg

	wordlist, err := moderation.LoadWordlists()
	s.Require().NoError(err)
	moderator, err := moderation.NewModerator(wordlist.Words, '*', log)
	s.Require().NoError(err)

	users := repositories.NewUserRepository(db, reg)
	messages := repositories.NewMessageRepository(db, reg)
	authService := services.NewAuthService(users, reg, []byte("e2e-secret"), time.Hour)
	chatService := services.NewChatService(messages, index, &moderator, log)

	broadcastHub := hub.NewHub(reg, log, 64, false)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	sup := runtime.NewSupervisor(log, 50*time.Millisecond)
	go func() {
		sup.Add(broadcastHub).Run(ctx)
		close(s.done)
	}()

	srv := server.New(server.Config{
		MaxSessions:     16,
		ShutdownTimeout: time.Second,
		Session: session.Config{
			OutboundBuffer:  32,
			IdleTimeout:     5 * time.Second,
			WriteTimeout:    time.Second,
			CloseGrace:      200 * time.Millisecond,
			StoreTimeout:    2 * time.Second,
			MaxAuthAttempts: 3,
			MaxBodyBytes:    1 << 16,
			HistoryLimit:    20,
		},
	}, broadcastHub, authService, chatService, reg, log)

	s.ts = httptest.NewServer(srv.Handler())

	s.T().Cleanup(func() {
		s.ts.Close()
		s.cancel()
		<-s.done
		_ = index.Close()
		_ = db.Close()
	})
}

// Step prints a colorized scenario header in the test log.
func (s *BaseChatSuite) Step(format string, args ...any) {
	header := fmt.Sprintf("  ====== %s ======", fmt.Sprintf(format, args...))
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// WSURL is the websocket endpoint of the suite's server.
func (s *BaseChatSuite) WSURL() string {
	if s.Config.ServerAddr != "" {
		return "ws://" + s.Config.ServerAddr + "/ws"
	}
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws"
}

// MetricsURL is the scrape endpoint of the suite's server.
func (s *BaseChatSuite) MetricsURL() string {
	if s.Config.ServerAddr != "" {
		return "http://" + s.Config.ServerAddr + "/metrics"
	}
	return s.ts.URL + "/metrics"
}

// Connect dials a fresh client against the suite's server.
func (s *BaseChatSuite) Connect() *client.Client {
	c, err := client.Dial(s.WSURL(), s.Config.ReadTimeout)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = c.Close() })
	return c
}
