package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fentz26/ntbk/internal/agent"
	"github.com/fentz26/ntbk/internal/config"
	"github.com/fentz26/ntbk/internal/degrade"
	"github.com/fentz26/ntbk/internal/logger"
	"github.com/fentz26/ntbk/internal/metrics"
	"github.com/fentz26/ntbk/internal/store"
	"github.com/fentz26/ntbk/internal/taskclient"
	"github.com/fentz26/ntbk/internal/tools"
)

// runtime is everything the daemon owns.
type runtime struct {
	cfg     *config.Config
	log     logger.Logger
	store   store.Store
	metrics *metrics.Recorder
	router  *tools.KeywordRouter
	client  *taskclient.Client
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func newLogger(cfg *config.Config) logger.Logger {
	lc := logger.DefaultConfig()
	lc.Level = logger.Level(cfg.Log.Level)
	lc.JSON = cfg.Log.JSON
	lc.Output = os.Stderr
	return logger.New(lc)
}

func newToolRouter(cfg *tools.Config) (*tools.KeywordRouter, error) {
	reg, err := cfg.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	return tools.NewRouter(cfg, reg)
}

// buildRuntime wires the store, remote agent, tool router and task client.
// Callers must call close.
func buildRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*runtime, error) {
	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}

	router, err := newToolRouter(&cfg.Tools)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	defaults, err := cfg.AgentDefaults()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("agent defaults: %w", err)
	}

	policy := cfg.Policy()
	opts := taskclient.Options{
		Store:              st,
		Policy:             policy,
		Logger:             log,
		Metrics:            metrics.New(),
		Tools:              router,
		DefaultAgentConfig: &defaults,
		MaxConcurrent:      cfg.Agent.MaxConcurrent,
		PollInterval:       cfg.Agent.PollInterval,
	}

	if cfg.Agent.BaseURL != "" {
		ac, err := agent.New(agent.Options{BaseURL: cfg.Agent.BaseURL, APIKey: cfg.Agent.APIKey})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		policy.Health = degrade.NewHealthTracker(ac, cfg.Agent.HealthTTL)
		opts.Agent = ac
		log.Info("remote agent configured", "base_url", cfg.Agent.BaseURL)
	} else {
		log.Warn("no remote agent configured, serving templates only")
	}

	return &runtime{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: opts.Metrics,
		router:  router,
		client:  taskclient.New(opts),
	}, nil
}

func (r *runtime) close() error {
	if err := r.client.Close(); err != nil {
		r.log.Error("task client close", "error", err)
	}
	return r.store.Close()
}
