package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"chat-relay/hub"
	"chat-relay/internal"
	"chat-relay/metrics"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/search"
	"chat-relay/server"
	"chat-relay/services"
	"chat-relay/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer executes before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	censorChar, err := internal.CharacterRune(config.CensorChar)
	if err != nil {
		return err
	}

	// 2. Durable store (BadgerDB) and search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	index, err := search.Open(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Metrics, moderation, repositories, services
	reg := metrics.NewRegistry()

	wordlist, err := moderation.LoadWordlists()
	if err != nil {
		return fmt.Errorf("loading wordlists failed: %w", err)
	}
	moderator, err := moderation.NewModerator(wordlist.Words, censorChar, log)
	if err != nil {
		return fmt.Errorf("building moderator failed: %w", err)
	}

	users := repositories.NewUserRepository(db, reg)
	messages := repositories.NewMessageRepository(db, reg)

	authService := services.NewAuthService(users, reg, []byte(config.TokenSecret), config.TokenTTL)
	chatService := services.NewChatService(messages, index, &moderator, log)
	adminService := services.NewAdminService(users, log)

	// 4. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.BootstrapCredential != "" {
		if err := adminService.EnsureBootstrapAdmin(ctx, config.BootstrapLogin, config.BootstrapCredential); err != nil {
			return err
		}
	}

	// 5. Supervised workers: broadcast hub and system stats
	broadcastHub := hub.NewHub(reg, log, config.BroadcastBufferSize, config.EchoToSender)
	stats := observability.NewSystemStats(log, reg, config.StatsInterval)

	sup := runtime.NewSupervisor(log, config.RestartInterval)
	sup.Add(broadcastHub, stats)

	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. HTTP server: websocket endpoint, metrics, health
	srv := server.New(server.Config{
		Host:            config.Host,
		Port:            config.Port,
		MaxSessions:     config.MaxSessions,
		ShutdownTimeout: config.ShutdownTimeout,
		Session: session.Config{
			OutboundBuffer:  config.OutboundBufferSize,
			IdleTimeout:     config.IdleTimeout,
			WriteTimeout:    config.WriteTimeout,
			CloseGrace:      config.CloseGrace,
			StoreTimeout:    config.StoreTimeout,
			MaxAuthAttempts: config.MaxAuthAttempts,
			MaxBodyBytes:    config.MaxBodyBytes,
			HistoryLimit:    config.HistoryLimit,
		},
	}, broadcastHub, authService, chatService, reg, log)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil {
			errChan <- err
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}
