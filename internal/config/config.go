package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rallytiming/internal/classify"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Cache    CacheConfig     `yaml:"cache"`
	Rate     RateConfig      `yaml:"rate"`
	Import   ImportConfig    `yaml:"import"`
	Policy   classify.Policy `yaml:"policy"`
	SeedFile string          `yaml:"seedFile"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig selects Postgres when URL is set; the in-memory store otherwise
type DatabaseConfig struct {
	URL           string `yaml:"url"`
	Migrate       bool   `yaml:"migrate"`
	MigrationsDir string `yaml:"migrationsDir"`
}

// CacheConfig selects Redis when RedisURL is set; a process-local cache otherwise
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	RedisURL string        `yaml:"redisUrl"`
	TTL      time.Duration `yaml:"ttl"`
}

// RateConfig is the per-client token bucket; RPS <= 0 disables it
type RateConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ImportConfig requires signed timing uploads when Secret is set
type ImportConfig struct {
	Secret string `yaml:"secret"`
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Migrate: true, MigrationsDir: "db/migrations"},
		Cache:    CacheConfig{Enabled: true, TTL: 10 * time.Minute},
		Rate:     RateConfig{RPS: 0, Burst: 20},
		Policy:   classify.DefaultPolicy(),
	}
}

// Load reads the optional YAML file at path (empty path skips it) and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := GetDefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	p, err := classify.ParsePolicy(string(cfg.Policy.Neutralized), string(cfg.Policy.NegativeTime), string(cfg.Policy.Untimed))
	if err != nil {
		return cfg, err
	}
	cfg.Policy = p
	return cfg, nil
}

// FromEnv is Load with the file path taken from CONFIG_FILE.
func FromEnv() (Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	boolean("DB_MIGRATE", &c.Database.Migrate)
	str("MIGRATIONS_DIR", &c.Database.MigrationsDir)
	str("REDIS_URL", &c.Cache.RedisURL)
	boolean("CACHE_ENABLED", &c.Cache.Enabled)
	if v, ok := lookup("CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, "CACHE_TTL")
		} else {
			c.Cache.TTL = d
		}
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, "RATE_RPS")
		} else {
			c.Rate.RPS = f
		}
	}
	if v, ok := lookup("RATE_BURST"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, "RATE_BURST")
		} else {
			c.Rate.Burst = n
		}
	}
	str("SEED_FILE", &c.SeedFile)
	str("IMPORT_SECRET", &c.Import.Secret)

	var neutralized, negative, untimed string
	str("NEUTRALIZED_POLICY", &neutralized)
	str("NEGATIVE_TIME_POLICY", &negative)
	str("UNTIMED_POLICY", &untimed)
	if neutralized != "" {
		c.Policy.Neutralized = classify.NeutralizedPolicy(neutralized)
	}
	if negative != "" {
		c.Policy.NegativeTime = classify.NegativeTimePolicy(negative)
	}
	if untimed != "" {
		c.Policy.Untimed = classify.UntimedPolicy(untimed)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, ", "))
	}
	return nil
}
