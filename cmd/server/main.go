package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradepost/messaging/internal/config"
	"github.com/tradepost/messaging/internal/database"
	"github.com/tradepost/messaging/internal/metrics"
	"github.com/tradepost/messaging/internal/notify"
	"github.com/tradepost/messaging/internal/repository"
	memoryrepo "github.com/tradepost/messaging/internal/repository/memory"
	postgresrepo "github.com/tradepost/messaging/internal/repository/postgres"
	"github.com/tradepost/messaging/internal/service"
	"github.com/tradepost/messaging/internal/syncer"
	"github.com/tradepost/messaging/internal/transport/http/handlers"
	"github.com/tradepost/messaging/internal/transport/http/middleware"
	"github.com/tradepost/messaging/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	var (
		directoryRepo repository.DirectoryRepository
		convRepo      repository.ConversationRepository
		msgRepo       repository.MessageRepository
	)
	switch cfg.StoreDriver {
	case "memory":
		store := memoryrepo.NewStore()
		directoryRepo, convRepo, msgRepo = store, store, store
		log.Warn("using in-memory store, nothing will survive a restart")
	case "postgres":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		directoryRepo = postgresrepo.NewDirectoryRepo(pool)
		convRepo = postgresrepo.NewConversationRepo(pool)
		msgRepo = postgresrepo.NewMessageRepo(pool)
		log.Info("connected to database", "host", cfg.DBHost, "db", cfg.DBName)
	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	// Core
	broker := syncer.NewBroker()
	resolver := service.NewResolver(directoryRepo, log, cfg.OpTimeout)
	registry := service.NewRegistry(convRepo, log, cfg.OpTimeout)
	messageLog := service.NewMessageLog(msgRepo, convRepo, log, cfg.OpTimeout)
	presence := service.NewPresence(cfg.TypingTTL)
	registry.SetNotifier(broker)
	messageLog.SetNotifier(broker)
	presence.SetNotifier(broker)
	defer presence.Stop()

	gateway := syncer.NewGateway(broker, convRepo, msgRepo, log, cfg.OpTimeout)

	// Downstream push dispatcher rides the same append stream as every other
	// subscriber.
	dispatcher := notify.NewDispatcher(convRepo, &notify.LogSink{Log: log}, log)
	defer dispatcher.Attach(gateway)()

	// Handlers
	chat := handlers.NewChatHandler(resolver, registry, messageLog, presence, log, cfg.RetryAttempts, cfg.RetryBackoff)
	auth := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("POST /api/v1/identity/resolve", auth(http.HandlerFunc(chat.ResolveIdentity)))
	mux.Handle("POST /api/v1/conversations", auth(http.HandlerFunc(chat.GetOrCreateConversation)))
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(chat.ListConversations)))
	mux.Handle("POST /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(chat.SendMessage)))
	mux.Handle("GET /api/v1/conversations/{id}/messages", auth(http.HandlerFunc(chat.ListMessages)))
	mux.Handle("POST /api/v1/conversations/{id}/read", auth(http.HandlerFunc(chat.MarkRead)))
	mux.Handle("POST /api/v1/conversations/{id}/typing", auth(http.HandlerFunc(chat.SetTyping)))

	mux.HandleFunc("GET /ws", ws.ServeWS(gateway, resolver, registry, presence, cfg.JWTSecret, log))

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
