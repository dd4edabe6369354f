package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/core"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/middleware"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

func main() {
	xlog.Infof("Starting protocol-sniffer-gateway...")
	middleware.InitLogger(1024)

	// 1. Load infrastructure configuration (env vars)
	cfg := config.LoadConfig()
	xlog.Infof("Config loaded: listen=%s, metrics=%s", cfg.Server.ListenAddr, cfg.Metrics.ListenAddr)

	// 2. Connect to Redis and hydrate business + security config from it.
	// Business config (listen addr, backends) has no env defaults by
	// design: it's meant to come from Redis so an external admin tool can
	// change it without a redeploy. When Redis is disabled, fall back to
	// env vars so the gateway is still runnable standalone/for local dev.
	var store *config.RedisStore
	if cfg.Security.Redis.Enabled {
		var err error
		store, err = config.NewRedisStore(&cfg.Security.Redis)
		if err != nil {
			xlog.Errorf("CRITICAL: cannot connect to Redis: %v", err)
			os.Exit(1)
		}

		business, err := store.LoadBusinessConfig()
		if err != nil {
			xlog.Errorf("CRITICAL: cannot load business config from Redis: %v", err)
			os.Exit(1)
		}
		cfg.Server = business.Server
		cfg.Backends = business.Backends
		cfg.Lifecycle = business.Lifecycle

		if sec, err := store.LoadSecurityConfig(); err != nil {
			xlog.Warnf("Failed to load security config from Redis, using defaults: %v", err)
		} else {
			cfg.Security = *sec
			cfg.Security.Redis.Enabled = true
		}
	} else {
		xlog.Warnf("Redis disabled, loading business config from env vars (dev mode)")
		hydrateBusinessConfigFromEnv(cfg)
	}

	// Resolve bare "service:port" backend addresses via cluster DNS when
	// running in K8s; no-op everywhere else.
	cfg.ResolveBackends()

	// ConfigMap-mounted deployments can opt into hot-reload detection by
	// setting CONFIG_WATCH_PATH; full live re-wiring of the listener isn't
	// supported, so a detected change just prompts an operator restart
	// instead of silently running on stale config.
	if watchPath := os.Getenv("CONFIG_WATCH_PATH"); watchPath != "" {
		watcher := config.NewK8sConfigWatcher(watchPath, func(*config.Config) {
			xlog.Warnf("ConfigMap at %s changed; restart the pod to apply it", watchPath)
		})
		watcher.Start()
	}

	// 3. Initialize Server with configuration
	server := core.NewServer(cfg, store)

	// 4. Start Server (Non-blocking)
	server.Start()

	// 5. Wait for Shutdown Signal (SIGINT/SIGTERM from K8s)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	xlog.Infof("Received signal: %v. Initiating graceful shutdown...", sig)

	// 6. Execute Graceful Shutdown (Drain Mode)
	server.GracefulShutdown(cfg.Lifecycle.ShutdownTimeout)

	xlog.Infof("Server exited successfully.")
}

func hydrateBusinessConfigFromEnv(cfg *config.Config) {
	cfg.Server.ListenAddr = envOr("GATEWAY_LISTEN_ADDR", ":8080")
	cfg.Backends.HTTP.TargetURL = envOr("HTTP_BACKEND_URL", "")
	cfg.Backends.TCP.TargetAddr = envOr("TCP_BACKEND_ADDR", "")
	cfg.Backends.HTTP.Timeout = 10 * time.Second
	cfg.Backends.TCP.Timeout = 10 * time.Second
	cfg.Lifecycle.ShutdownTimeout = 20 * time.Second
	cfg.Lifecycle.DrainWaitTime = 5 * time.Second
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
