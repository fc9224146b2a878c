// ABOUTME: Shared wiring for subcommands: config, logger, store, identity and agent client
// ABOUTME: Each subcommand opens an app and closes it when done

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/2389/agentchat/internal/agentapi"
	"github.com/2389/agentchat/internal/config"
	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/identity"
	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/warehouse"
)

type app struct {
	cfgPath  string
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	client   *agentapi.Client
	identity identity.Provider
	svc      *conversation.Service

	// warehouse runs generated SQL; nil unless configured
	warehouse *warehouse.PgxRunner
}

// loadConfig resolves and loads the config file and builds the logger.
func loadConfig() (*config.Config, string, *slog.Logger, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)
	return cfg, path, logger, nil
}

// newAgentClient builds the HTTP client for the agent API.
func newAgentClient(cfg *config.Config, logger *slog.Logger) (*agentapi.Client, error) {
	client, err := agentapi.NewClient(cfg.Agent.BaseURL,
		agentapi.WithToken(cfg.Agent.Token),
		agentapi.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating agent client: %w", err)
	}
	return client, nil
}

// conversationConfig maps the agent section onto the reconciler settings.
func conversationConfig(a config.AgentConfig) conversation.Config {
	return conversation.Config{
		Model:      a.Model,
		UserAgent:  a.UserAgent,
		Timeout:    a.Timeout,
		ThreadPath: a.ThreadPath,
		RunPath:    a.RunPath,
		Tools: agentapi.ToolBindings{
			AnalystName:       a.Tools.AnalystName,
			SemanticModelFile: a.Tools.SemanticModelFile,
			SearchName:        a.Tools.SearchName,
			SearchService:     a.Tools.SearchService,
			MaxResults:        a.Tools.MaxResults,
		},
	}
}

func openApp(ctx context.Context) (*app, error) {
	cfg, path, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	id, err := identity.New(cfg.Identity.Source, cfg.Identity.User, st)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("configuring identity: %w", err)
	}

	client, err := newAgentClient(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	var wh *warehouse.PgxRunner
	if cfg.Warehouse.Enabled() {
		wh, err = warehouse.Open(ctx, cfg.Warehouse.URL, warehouse.Options{
			MaxRows: cfg.Warehouse.MaxRows,
			Timeout: cfg.Warehouse.Timeout,
		}, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	logger.Debug("app ready",
		"config", path,
		"driver", cfg.Database.Driver,
		"agent", cfg.Agent.BaseURL,
		"identity", cfg.Identity.Source,
		"warehouse", wh != nil)

	return &app{
		cfgPath:  path,
		cfg:      cfg,
		logger:   logger,
		store:    st,
		client:   client,
		identity: id,
		svc:      conversation.New(st, client, conversationConfig(cfg.Agent), logger),

		warehouse: wh,
	}, nil
}

// sqlRunner returns the warehouse as a Runner, or nil when none is configured.
func (a *app) sqlRunner() warehouse.Runner {
	if a.warehouse == nil {
		return nil
	}
	return a.warehouse
}

func (a *app) Close() error {
	if a.warehouse != nil {
		a.warehouse.Close()
	}
	return a.store.Close()
}
