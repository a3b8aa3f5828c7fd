// Package gateway provides the HTTP API: chat, core memory, cron job
// management, message history, and health.
package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jholhewres/steward/pkg/steward/agent"
	"github.com/jholhewres/steward/pkg/steward/channels"
	"github.com/jholhewres/steward/pkg/steward/config"
	"github.com/jholhewres/steward/pkg/steward/store"
)

// Gateway is the HTTP API server.
type Gateway struct {
	agent     *agent.Agent
	store     *store.Store
	scheduler agent.Scheduler
	channels  *channels.Manager
	config    config.GatewayConfig
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a Gateway. scheduler and channels may be nil when the
// process runs without them.
func New(ag *agent.Agent, st *store.Store, sched agent.Scheduler, chmgr *channels.Manager, cfg config.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	return &Gateway{
		agent:     ag,
		store:     st,
		scheduler: sched,
		channels:  chmgr,
		config:    cfg,
		logger:    logger.With("component", "gateway"),
	}
}

// Start starts the HTTP server.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	mux := http.NewServeMux()

	// Health (always public)
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/chat", g.handleChat)
	mux.HandleFunc("/core-memory", g.handleCoreMemory)
	mux.HandleFunc("/core-memory/", g.handleCoreMemoryBlock)
	mux.HandleFunc("/cron/timezones", g.handleTimezones)
	mux.HandleFunc("/cron/jobs", g.handleCronJobs)
	mux.HandleFunc("/cron/jobs/", g.handleCronJobByID)
	mux.HandleFunc("/messages", g.handleMessages)

	handler := g.requestIDMiddleware(g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux))))
	g.server = &http.Server{
		Addr:    g.config.Address,
		Handler: handler,
	}

	// Warn when the gateway has no auth token and is bound to a non-loopback address.
	if g.config.AuthToken == "" {
		host, _, _ := net.SplitHostPort(g.config.Address)
		if host == "" {
			host = "0.0.0.0"
		}
		ip := net.ParseIP(host)
		isLoopback := ip != nil && ip.IsLoopback()
		if !isLoopback && host != "localhost" {
			g.logger.Warn("SECURITY: gateway has no auth token and is bound to a non-loopback address — anyone on the network can access the API",
				"address", g.config.Address)
		}
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", g.config.Address)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}
