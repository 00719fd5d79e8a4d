package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rategate/internal/config"
	"rategate/internal/events"
	"rategate/internal/identity"
	"rategate/internal/logging"
	"rategate/internal/ratelimit"
	"rategate/internal/server"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer func() { _ = logging.Shutdown() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Build the window store
	store, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize store", "type", cfg.Store.Type, "error", err)
		os.Exit(1)
	}
	if stoppable, ok := store.(ratelimit.Stoppable); ok {
		defer stoppable.Stop()
	}
	limiter := ratelimit.NewDualLimiter(store)

	// 3. Decision event pipeline
	recorder, err := buildRecorder(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize event publisher", "type", cfg.Events.Type, "error", err)
		os.Exit(1)
	}
	defer func() { _ = recorder.Close() }()

	// 4. Identity
	tokens, err := identity.NewTokenService(cfg.Identity)
	if err != nil {
		slog.Error("Failed to initialize token service", "error", err)
		os.Exit(1)
	}

	// 5. HTTP server and routes
	srv := server.New(cfg.Server, slog.Default())
	registerRoutes(srv, cfg, limiter, recorder, tokens)

	// 6. Run until signalled
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	slog.Info("Stopped")
}

func buildStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		return ratelimit.NewRedisStore(ctx, cfg.Store.Redis)
	default:
		return ratelimit.NewMemoryStore(cfg.Store.Memory), nil
	}
}

func buildRecorder(ctx context.Context, cfg *config.Config) (*events.Recorder, error) {
	var pub events.Publisher
	switch cfg.Events.Type {
	case "nats":
		var err error
		pub, err = events.NewNATSPublisher(ctx, cfg.Events.NATS)
		if err != nil {
			return nil, err
		}
	case "memory":
		pub = events.NewMemoryPublisher()
	default:
		pub = events.NopPublisher{}
	}
	return events.NewRecorder(pub, cfg.Events.Recorder, slog.Default()), nil
}

func registerRoutes(srv server.Service, cfg *config.Config, limiter *ratelimit.DualLimiter, recorder *events.Recorder, tokens *identity.TokenService) {
	limited := func(route string, h http.Handler) http.Handler {
		mw := ratelimit.Middleware(limiter, route, cfg.RuleFor(route),
			ratelimit.WithRecorder(recorder),
		)
		return tokens.MiddlewareOptional(mw(h))
	}

	srv.RegisterHTTPHandler("/v1/check", limited("/v1/check", http.HandlerFunc(handleCheck)))
	srv.RegisterHTTPHandler("/v1/login", limited("/v1/login", handleLogin(tokens)))
	srv.RegisterHTTPHandler("/healthz", http.HandlerFunc(handleHealth))

	admin := ratelimit.NewAdminHandler(limiter, slog.Default())
	admin.Register(srv.HTTPMux())
}

// handleCheck is the protected probe endpoint: it does nothing except
// pass through the limiter, so clients and tests can observe limit
// behavior directly.
func handleCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"time":    time.Now().UTC(),
	})
}

// handleLogin mints a development token for the requested user.
// Deployments front an upstream auth service that verifies credentials
// and signs with the shared key; this endpoint gives the stricter
// login rule a target without that service running.
func handleLogin(tokens *identity.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			UserID   string `json:"userId"`
			Username string `json:"username"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}

		token, err := tokens.GenerateToken(req.UserID, req.Username, nil)
		if err != nil {
			slog.Error("Failed to issue token", "error", err)
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
