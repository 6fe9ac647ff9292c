package api

import (
	"context"
	"fmt"
	"log"
	"strings"

	"rallytiming/internal/cache"
	"rallytiming/internal/config"
	"rallytiming/internal/integrations"
	"rallytiming/internal/integrations/csvimport"
	"rallytiming/internal/metrics"
	"rallytiming/internal/standings"
	"rallytiming/internal/store"
)

type Server struct {
	Store     store.Store
	Cache     cache.Cache
	Standings *standings.Service
	Importer  integrations.TimingSource
	Config    config.Config
	Limiter   *RateLimiter
}

// NewServer wires the store, cache and classification service. If the
// database URL is unset, uses the in-memory store; without a Redis URL the
// cache is process-local.
func NewServer(cfg config.Config) (*Server, error) {
	metrics.RegisterDefault()

	var s store.Store
	if strings.TrimSpace(cfg.Database.URL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := sp.MigrateDir(cfg.Database.MigrationsDir); err != nil {
				log.Printf("migrations: %v", err)
			}
		}
		s = sp
	}
	if cfg.SeedFile != "" {
		seed, err := store.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if err := s.Seed(context.Background(), seed); err != nil {
			return nil, fmt.Errorf("seed %s: %w", cfg.SeedFile, err)
		}
	}

	var c cache.Cache
	switch {
	case !cfg.Cache.Enabled:
		c = cache.Disabled{}
	case cfg.Cache.RedisURL != "":
		rc, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Printf("redis cache unavailable, using memory: %v", err)
			c = cache.NewMemory(cfg.Cache.TTL)
		} else {
			c = rc
		}
	default:
		c = cache.NewMemory(cfg.Cache.TTL)
	}

	srv := &Server{
		Store:     s,
		Cache:     c,
		Standings: standings.NewService(s, c, cfg.Policy),
		Importer:  csvimport.Adapter{},
		Config:    cfg,
	}
	if cfg.Rate.RPS > 0 {
		srv.Limiter = NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst)
	}
	return srv, nil
}
