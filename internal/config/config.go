package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stayview/reviewgate/internal/ratelimit"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Upstream struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

// Redis configures the shared counter store. An empty addr selects the
// in-process store, which is only safe for single-replica deployments.
type Redis struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Client struct {
	KeyHeader         string `yaml:"key_header"`          // trusted client identity header, optional
	TrustForwardedFor bool   `yaml:"trust_forwarded_for"` // first X-Forwarded-For entry wins
}

type TierLimits struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

type Route struct {
	PathPrefix string   `yaml:"path_prefix"`
	Methods    []string `yaml:"methods"`
	Tier       string   `yaml:"tier"`
}

type Limits struct {
	DefaultTier string                `yaml:"default_tier"`
	Tiers       map[string]TierLimits `yaml:"tiers"`
	Routes      []Route               `yaml:"routes"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Upstream      Upstream      `yaml:"upstream"`
	Observability Observability `yaml:"observability"`
	Redis         Redis         `yaml:"redis"`
	Client        Client        `yaml:"client"`
	Limits        Limits        `yaml:"limits"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 10 << 20
	}
	return s.MaxBodyBytes
} // default 10MB

func (u Upstream) Timeout() time.Duration {
	if u.TimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

func (r Redis) Timeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// TierConfigs converts the YAML tier table into the limiter's config map.
func (l Limits) TierConfigs() map[ratelimit.Tier]ratelimit.TierConfig {
	out := make(map[ratelimit.Tier]ratelimit.TierConfig, len(l.Tiers))
	for name, t := range l.Tiers {
		out[ratelimit.Tier(name)] = ratelimit.TierConfig{
			WindowSeconds: t.WindowSeconds,
			MaxRequests:   t.MaxRequests,
		}
	}
	return out
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Limits.DefaultTier == "" {
		cfg.Limits.DefaultTier = string(ratelimit.TierAPI)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate refuses to start with an incomplete policy table: silently
// serving unlimited traffic on a misconfigured tier is worse than failing
// to boot.
func (cfg *Root) validate() error {
	if cfg.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if _, err := url.Parse(cfg.Upstream.URL); err != nil {
		return fmt.Errorf("upstream.url: %w", err)
	}

	if len(cfg.Limits.Tiers) == 0 {
		return fmt.Errorf("limits.tiers must define at least one tier")
	}
	for name, t := range cfg.Limits.Tiers {
		if t.WindowSeconds <= 0 {
			return fmt.Errorf("limits.tiers.%s: window_seconds must be > 0", name)
		}
		if t.MaxRequests <= 0 {
			return fmt.Errorf("limits.tiers.%s: max_requests must be > 0", name)
		}
	}

	if _, ok := cfg.Limits.Tiers[cfg.Limits.DefaultTier]; !ok {
		return fmt.Errorf("limits.default_tier %q has no tier config", cfg.Limits.DefaultTier)
	}

	for i, rt := range cfg.Limits.Routes {
		if rt.PathPrefix == "" {
			return fmt.Errorf("limits.routes[%d]: path_prefix is required", i)
		}
		if rt.Tier == "" {
			return fmt.Errorf("limits.routes[%d] (%s): tier is required", i, rt.PathPrefix)
		}
		if _, ok := cfg.Limits.Tiers[rt.Tier]; !ok {
			return fmt.Errorf("limits.routes[%d] (%s): tier %q has no tier config", i, rt.PathPrefix, rt.Tier)
		}
	}

	return nil
}
