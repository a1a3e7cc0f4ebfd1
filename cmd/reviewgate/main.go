package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stayview/reviewgate/internal/config"
	"github.com/stayview/reviewgate/internal/gateway"
	"github.com/stayview/reviewgate/internal/obs"
	"github.com/stayview/reviewgate/internal/proxy"
	"github.com/stayview/reviewgate/internal/ratelimit"
	"github.com/stayview/reviewgate/internal/ratelimit/memory"
	"github.com/stayview/reviewgate/internal/ratelimit/redisstore"
	"github.com/stayview/reviewgate/internal/routing"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("counter store: %v", err)
	}
	defer func() { _ = store.Close() }()

	registry, err := ratelimit.NewRegistry(store, cfg.Limits.TierConfigs())
	if err != nil {
		log.Fatalf("limiter registry: %v", err)
	}

	table := routing.NewTable(ratelimit.Tier(cfg.Limits.DefaultTier), buildRules(cfg.Limits.Routes))

	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		log.Fatalf("invalid upstream url: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := obs.NewMetrics(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", proxy.Handler(upstream, cfg.Upstream.Timeout(), logger))

	skip := map[string]struct{}{
		"/health":  {},
		"/version": {},
	}
	skip[cfg.Observability.PrometheusPath] = struct{}{}

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		gateway.ClassifyTier(table, logger, skip),
		metrics.Middleware(skip),
		gateway.RateLimit(gateway.RateLimitOptions{
			Registry:  registry,
			KeyFn:     gateway.ClientKeyFunc(cfg.Client.KeyHeader, cfg.Client.TrustForwardedFor),
			SkipPaths: skip,
			Logger:    logger,
			OnLimited: func(tier string) {
				metrics.RateLimited.WithLabelValues(tier).Inc()
			},
			OnStoreError: func(tier string) {
				metrics.LimiterErrors.WithLabelValues(tier).Inc()
			},
		}),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("upstream", upstream.String()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

const version = "v0.1.0"

// buildStore picks the counter backend: Redis when configured so every
// replica shares one budget, in-process otherwise.
func buildStore(ctx context.Context, cfg *config.Root) (ratelimit.CounterStore, error) {
	if cfg.Redis.Addr == "" {
		mem := memory.New()
		mem.StartJanitor(ctx)
		return mem, nil
	}

	opts := []redisstore.Option{redisstore.WithTimeout(cfg.Redis.Timeout())}
	if cfg.Redis.KeyPrefix != "" {
		opts = append(opts, redisstore.WithPrefix(cfg.Redis.KeyPrefix))
	}
	return redisstore.New(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, opts...)
}

func buildRules(routes []config.Route) []routing.Rule {
	rules := make([]routing.Rule, 0, len(routes))
	for _, rt := range routes {
		var methods map[string]struct{}
		if len(rt.Methods) > 0 {
			methods = make(map[string]struct{}, len(rt.Methods))
			for _, m := range rt.Methods {
				methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		rules = append(rules, routing.Rule{
			Prefix:  rt.PathPrefix,
			Methods: methods,
			Tier:    ratelimit.Tier(rt.Tier),
		})
	}
	return rules
}
