package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentdial/agentdial/internal/brain"
	"github.com/agentdial/agentdial/internal/call"
	"github.com/agentdial/agentdial/internal/config"
	"github.com/agentdial/agentdial/internal/engine"
	"github.com/agentdial/agentdial/internal/events"
	"github.com/agentdial/agentdial/internal/httpapi"
	"github.com/agentdial/agentdial/internal/observability"
	"github.com/agentdial/agentdial/internal/supervisor"
	"github.com/agentdial/agentdial/internal/telephony"
	"github.com/agentdial/agentdial/internal/transcript"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer store.Close()

	decider, err := brain.NewDecider(brain.Config{
		Mode:            cfg.BrainAdapterMode,
		Endpoint:        cfg.OpenAIEndpoint,
		APIKey:          cfg.OpenAIKey,
		DeploymentModel: cfg.OpenAIDeploymentModel,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}

	if cfg.ACSConnectionString == "" {
		log.Fatalf("ACS_CONNECTION_STRING is required")
	}
	acsClient, err := telephony.NewClient(cfg.ACSConnectionString)
	if err != nil {
		log.Fatalf("telephony client init failed: %v", err)
	}
	adapter := telephony.NewAdapter(acsClient, cfg.TTSVoiceName, metrics)

	registry := call.NewRegistry()
	hub := supervisor.NewHub(registry, metrics)

	eng := engine.New(
		registry,
		decider,
		adapter,
		hub,
		store,
		metrics,
		cfg.GreetingText,
		cfg.TargetPhoneNumber,
		cfg.DecisionTimeout,
	)
	hub.SetInputHandler(eng)

	dispatcher := events.NewDispatcher(
		registry,
		eng,
		acsClient,
		metrics,
		cfg.CallbackURL(),
		cfg.SpeechEndpoint,
	)

	api := httpapi.New(cfg, registry, acsClient, dispatcher, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
