package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/northbeam-digital/site/backend/internal/config"
	"github.com/northbeam-digital/site/backend/internal/handler"
	"github.com/northbeam-digital/site/backend/internal/logging"
	"github.com/northbeam-digital/site/backend/internal/realtime"
	"github.com/northbeam-digital/site/backend/internal/service/ai"
	"github.com/northbeam-digital/site/backend/internal/service/chat"
	"github.com/northbeam-digital/site/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Warn("no .env file loaded, continuing with system environment only", zap.Error(envErr))
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer st.Close()
	logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	hub := realtime.NewHub(cfg.Realtime.Buffer, logger)
	chatService := chat.NewService(st, hub, logger)

	// The widget keeps working without AI: the completion route answers 503.
	var responder ai.Responder
	if cfg.AI.Enabled() {
		r, err := ai.NewResponder(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("AI responder unavailable, continuing without completions", zap.Error(err))
		} else {
			responder = r
			logger.Info("AI responder initialized", zap.String("provider", cfg.AI.Provider))
		}
	} else {
		logger.Info("AI credentials not configured, skipping completion setup", zap.String("provider", cfg.AI.Provider))
	}

	router := handler.NewRouter(handler.Dependencies{
		Config:    cfg,
		Chat:      chatService,
		Hub:       hub,
		Responder: responder,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := runServer(ctx, srv, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("agency chat backend listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
