package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/escalation"
	"github.com/ocx/backend/internal/fees"
	"github.com/ocx/backend/internal/govevents"
	"github.com/ocx/backend/internal/govmetrics"
	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/handlers"
	"github.com/ocx/backend/internal/ledger"
	"github.com/ocx/backend/internal/pipeline"
	"github.com/ocx/backend/internal/policy"
	"github.com/ocx/backend/internal/session"
	"github.com/ocx/backend/internal/trace"
	"github.com/ocx/backend/internal/verify"
)

func main() {
	cfg := config.Get()

	var store govstore.Store
	if cfg.Governor.Store.Backend == "supabase" && cfg.GetSupabaseURL() != "" && cfg.GetSupabaseKey() != "" {
		client, err := supabase.NewClient(cfg.GetSupabaseURL(), cfg.GetSupabaseKey(), &supabase.ClientOptions{})
		if err != nil {
			slog.Warn("supabase client init failed, falling back to in-memory store", "error", err)
			store = govstore.NewMemoryStore()
		} else {
			store = govstore.NewSupabaseStore(client)
			slog.Info("governor store backed by Supabase")
		}
	} else {
		store = govstore.NewMemoryStore()
		slog.Info("governor store backed by in-memory fallback")
	}

	policyRegistry := policy.NewRegistry("config/base_policies.yaml", store)
	sessionResolver := session.NewResolver(store)
	evaluator := pipeline.NewEvaluator(store, policyRegistry, sessionResolver)

	driftDetector := verify.NewDrift(store)
	verifyEngine := verify.NewEngine(policyRegistry, driftDetector)

	feeLedger := fees.NewLedger(store, cfg.Governor.FeeGatingEnabled)

	bus := govevents.NewBus()
	metrics := govmetrics.New()
	bus.SetRecorder(metrics)

	dispatcher := escalation.NewDispatcher(store, cfg.Governor.Escalation.DispatcherWorkers)
	defer dispatcher.Shutdown()
	escalationEngine := escalation.NewEngine(store, dispatcher, bus)

	merkleLedger := ledger.NewLedger()
	traceLinker := trace.NewLinker(store, merkleLedger)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"ocx-governor"}`))
	}).Methods("GET")

	api := router.PathPrefix("/api/v1/govern").Subrouter()
	api.HandleFunc("/evaluate", handlers.HandleEvaluate(evaluator, feeLedger, store, escalationEngine, traceLinker, bus, metrics)).Methods("POST")
	api.HandleFunc("/verify", handlers.HandleVerify(verifyEngine, store, escalationEngine, traceLinker, bus, metrics)).Methods("POST")
	api.HandleFunc("/trace/{traceId}", handlers.HandleTrace(traceLinker)).Methods("GET")
	api.HandleFunc("/spans", handlers.HandleIngestSpan(traceLinker)).Methods("POST")
	api.HandleFunc("/events/stream", handlers.HandleGovernorEvents(bus, metrics)).Methods("GET")
	api.HandleFunc("/wallets/{agentId}", handlers.HandleWalletStatus(store)).Methods("GET")

	router.Handle("/metrics", promhttp.Handler())

	port := cfg.GetPort()
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("governor: received shutdown signal")
		os.Exit(0)
	}()

	slog.Info("governor starting", "port", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("governor server failed to start: %v", err)
	}
}
