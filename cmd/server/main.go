package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/yshiba/kujibiki/internal/config"
	"github.com/yshiba/kujibiki/internal/gateway"
	"github.com/yshiba/kujibiki/internal/httpapi"
	"github.com/yshiba/kujibiki/internal/lottery"
	"github.com/yshiba/kujibiki/internal/registry"
	"github.com/yshiba/kujibiki/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Dur("session_ttl", cfg.SessionTTL()).
		Dur("sweep_interval", cfg.SweepInterval()).
		Msg("starting lottery server")

	// Session store with background eviction
	sessionStore := store.New(clockwork.NewRealClock(), cfg.SessionTTL(), cfg.SweepInterval())
	sessionStore.Start()
	defer sessionStore.Stop()

	// Core services
	reg := registry.NewApp(sessionStore)
	engine := lottery.NewEngine()
	gatewayService := gateway.NewService(gateway.DefaultConnectionConfig(), reg, engine)
	api := httpapi.NewHandler(reg)

	server := setupServer(cfg, gatewayService, api)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gatewayService.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("lottery server shutdown complete")
}

func setupServer(cfg *config.Config, gatewayService *gateway.Service, api *httpapi.Handler) *http.Server {
	mux := http.NewServeMux()

	api.RegisterRoutes(mux)
	gatewayService.RegisterRoutes(mux)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := gatewayService.Stats()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"service":"kujibiki","participant_connections":%d,"host_connections":%d}`,
			stats["participant_connections"], stats["host_connections"])
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}
}
