package forge

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Engine bundles the wiring a front-end (CLI, HTTP status server, MCP
// adapter) needs: a configured store, chain, OTS client, metrics
// registry, and logger. It is a convenience composition root, not a new
// abstraction the core itself depends on — every field is usable on its
// own via the package-level functions.
type Engine struct {
	Config   *Config
	Store    *JSONStore
	Chain    *Chain
	OTS      *OTSClient
	Metrics  *Metrics
	Logger   *zap.SugaredLogger
	Registry *prometheus.Registry
}

// NewEngine wires an Engine from cfg, opening (or creating) its store.
func NewEngine(cfg *Config) (*Engine, error) {
	logger, err := NewLogger(true)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	store, err := NewJSONStore(cfg.StoreDir, logger)
	if err != nil {
		return nil, err
	}

	chain := NewChain(cfg.Owner, store, logger, metrics)

	ots := NewOTSClient(store, OTSConfig{
		Calendars:         cfg.Calendars,
		RequestsPerSecond: rateLimit(cfg.RequestsPerSecond),
		Burst:             cfg.Burst,
	}, logger, metrics)

	return &Engine{
		Config:   cfg,
		Store:    store,
		Chain:    chain,
		OTS:      ots,
		Metrics:  metrics,
		Logger:   logger,
		Registry: registry,
	}, nil
}

// Close releases the engine's store resources (the badger history index).
func (e *Engine) Close() error {
	return e.Store.Close()
}

func rateLimit(requestsPerSecond float64) rate.Limit {
	if requestsPerSecond <= 0 {
		return rate.Limit(2)
	}
	return rate.Limit(requestsPerSecond)
}
