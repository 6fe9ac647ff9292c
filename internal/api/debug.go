package api

import (
	"encoding/json"
	"net/http"
	"time"

	"rallytiming/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":             cfg.Server.Port,
			"RATE_RPS":         cfg.Rate.RPS,
			"RATE_BURST":       cfg.Rate.Burst,
			"CACHE_ENABLED":    cfg.Cache.Enabled,
			"CACHE_TTL":        cfg.Cache.TTL.String(),
			"HAS_DATABASE_URL": cfg.Database.URL != "",
			"HAS_REDIS_URL":    cfg.Cache.RedisURL != "",
			"SEED_FILE":        cfg.SeedFile,
			"SIGNED_IMPORTS":   cfg.Import.Secret != "",
		},
		"policy": s.Standings.Policy(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
