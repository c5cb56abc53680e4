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

	"github.com/blagoySimandov/trainer/internal/adapters"
	"github.com/blagoySimandov/trainer/internal/api"
	"github.com/blagoySimandov/trainer/internal/auth"
	"github.com/blagoySimandov/trainer/internal/config"
	"github.com/blagoySimandov/trainer/internal/db"
	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/metering"
	"github.com/blagoySimandov/trainer/internal/prediction"
	"github.com/blagoySimandov/trainer/internal/state"
	"github.com/blagoySimandov/trainer/internal/training"
	"github.com/blagoySimandov/trainer/internal/user"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()
	zerolog.SetGlobalLevel(logger.ZerologLevel(os.Getenv("LOG_LEVEL")))

	ledger, store, cleanup := openBackends(cfg)
	defer cleanup()

	verifier, err := newVerifier(cfg)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer verifier.Close()

	registry := adapters.NewRegistry()
	envelope := metering.NewEnvelope(
		ledger,
		training.NewTrainer(registry, store),
		prediction.NewPredictor(registry, store),
		store,
		metering.Costs{Train: cfg.TrainTokenCost, Predict: cfg.PredictTokenCost},
	)
	userService := user.NewUserService(ledger, store, cfg.InitialTokens)

	router := api.SetupRoutes(
		api.NewModelHandler(envelope, registry, cfg.MaxUploadBytes),
		api.NewAdminHandler(userService),
		auth.NewMiddleware(verifier),
		userService,
		api.RouterConfig{AllowedOrigin: cfg.AllowedOrigin, AdminUserIDs: cfg.AdminUserIDs},
	)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Log.Error("server shutdown error", "error", err)
		}
	}()

	logger.Log.Info("server starting", "addr", cfg.ServerAddr, "store_backend", cfg.StoreBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	logger.Log.Info("server stopped")
}

func openBackends(cfg *config.Config) (user.Repository, state.Store, func()) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		bunDB, err := db.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		return user.NewUserRepository(bunDB), state.NewPostgresStore(bunDB), func() { bunDB.Close() }
	case config.StoreBackendFile:
		store, err := state.NewFileStore(cfg.ArtifactDir)
		if err != nil {
			log.Fatalf("Failed to open artifact directory: %v", err)
		}
		return user.NewMemoryLedger(), store, func() { store.Close() }
	case config.StoreBackendMemory:
		return user.NewMemoryLedger(), state.NewMemoryStore(), func() {}
	default:
		log.Fatalf("Unknown STORE_BACKEND %q", cfg.StoreBackend)
		return nil, nil, nil
	}
}

func newVerifier(cfg *config.Config) (*auth.JWTVerifier, error) {
	if cfg.JWKSURL != "" {
		return auth.NewJWTVerifier(cfg.JWKSURL)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("one of JWKS_URL or JWT_SECRET must be set")
	}
	return auth.NewHMACVerifier([]byte(cfg.JWTSecret))
}
