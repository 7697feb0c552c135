// Command convoflow runs the conversation workflow service: an HTTP API
// that executes dynamic plans of reconstruction, persistence, notification,
// and AI analysis steps.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/convoflow/client"
	"github.com/dshills/convoflow/config"
	"github.com/dshills/convoflow/flow"
	"github.com/dshills/convoflow/flow/emit"
	"github.com/dshills/convoflow/model"
	"github.com/dshills/convoflow/server"
	"github.com/dshills/convoflow/steps"
	"github.com/dshills/convoflow/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	runs, analyses, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = runs.Close() }()

	chatModel, err := openModel(cfg)
	if err != nil {
		return err
	}

	var apiClient *client.Client
	if cfg.InternalAPIKey != "" {
		apiClient, err = client.New(cfg.InternalAPIKey,
			client.WithBaseURL(cfg.BaseURL),
			client.WithGoogleAPIURL(cfg.GoogleAPIURL),
			client.WithFileServiceURL(cfg.FileServiceURL),
			client.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("create internal API client: %w", err)
		}
	} else {
		logger.Warn("INTERNAL_API_KEY not set, reconstruction and persistence steps will fail")
	}

	registry := flow.NewRegistry()
	if err := steps.Register(registry, steps.Deps{
		Client:        apiClient,
		Model:         chatModel,
		Analyses:      analyses,
		EmailEndpoint: cfg.EmailEndpoint,
		Logger:        logger,
	}); err != nil {
		return fmt.Errorf("register steps: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := flow.NewMetrics(promRegistry)

	flows := flow.DefaultFlows()
	if len(cfg.DefaultFlow) > 0 {
		plan := make(flow.Plan, 0, len(cfg.DefaultFlow))
		for _, name := range cfg.DefaultFlow {
			plan = append(plan, flow.StepID(name))
		}
		flows.Default = plan
		logger.Info("default flow overridden", "plan", plan.Strings())
	}
	engine, err := flow.New(registry, flows,
		flow.WithStore(runs),
		flow.WithEmitter(emit.NewLogEmitter(os.Stdout, true)),
		flow.WithMetrics(metrics),
		flow.WithLogger(logger),
		flow.WithMaxSteps(cfg.MaxSteps))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	srv := server.New(server.Deps{
		Engine:   engine,
		Resolver: flow.NewResolver(flows, registry),
		Registry: registry,
		Runs:     runs,
		Gatherer: promRegistry,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: srv.SetupRoutes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "store", cfg.StoreBackend, "model", cfg.ModelProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStores builds the run store and the analysis store from the
// configured backend. The SQL backends serve both roles from one database.
func openStores(cfg *config.Config) (store.Store[flow.State], store.AnalysisStore, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		s, err := store.NewSQLiteStore[flow.State](cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, nil
	case config.StoreMySQL:
		s, err := store.NewMySQLStore[flow.State](cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql store: %w", err)
		}
		return s, s, nil
	default:
		s := store.NewMemStore[flow.State]()
		return s, s, nil
	}
}

func openModel(cfg *config.Config) (model.ChatModel, error) {
	switch cfg.ModelProvider {
	case config.ProviderAnthropic:
		return model.NewAnthropicModel(cfg.ModelAPIKey, cfg.ModelName)
	case config.ProviderOpenAI:
		return model.NewOpenAIModel(cfg.ModelAPIKey, cfg.ModelName)
	case config.ProviderGoogle:
		return model.NewGoogleModel(context.Background(), cfg.ModelAPIKey, cfg.ModelName)
	default:
		return &model.MockModel{}, nil
	}
}
