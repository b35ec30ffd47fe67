// rtprobe connects to a realtime endpoint and streams state transitions and
// channel events to the console. Useful for poking at a staging provider or
// verifying reconnection behavior by killing the link.
//
// Usage: go run ./cmd/rtprobe --config configs/realtime.example.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sytallax/prettylog"

	"github.com/mealgrid/realtime/channel"
	"github.com/mealgrid/realtime/config"
	"github.com/mealgrid/realtime/connection"
	"github.com/mealgrid/realtime/internal/version"
	"github.com/mealgrid/realtime/metrics"
	"github.com/mealgrid/realtime/syncer"
	"github.com/mealgrid/realtime/transport/ws"
)

func main() {
	configPath := flag.String("config", "configs/realtime.example.yaml", "path to config file")
	url := flag.String("url", "", "override transport url")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Setup logger
	logger := slog.New(prettylog.NewHandler(&slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.Transport.URL = *url
	}
	cfg.EnableLogging = true
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	coreLogger := cfg.Logger(logger)

	tr := ws.New(cfg.TransportClientConfig(), coreLogger)
	mgr := connection.NewManager(cfg.ManagerConfig(), tr, nil, coreLogger)
	reg := channel.NewRegistry(mgr, tr, coreLogger)
	defer reg.Close()

	mgr.OnStateChange(func(s connection.State) {
		logger.Info("state changed", "state", s.String())
	})
	mgr.OnQualityChange(func(q connection.Quality) {
		logger.Info("quality changed", "quality", q.String())
	})
	mgr.OnError(func(err error) {
		logger.Warn("connection error", "error", err)
	})

	cart := syncer.NewCartSync(reg, syncer.CartConfig{
		Channel: cfg.Channels.Cart,
		Notify: func(ev syncer.CartEvent) {
			logger.Info("cart event", "kind", string(ev.Kind), "item", ev.Item)
		},
		Logger: logger,
	})
	defer cart.Close()

	chat := syncer.NewChatSync(reg, syncer.ChatConfig{
		Channel: cfg.Channels.Chat,
		Notify: func(ev syncer.ChatEvent) {
			logger.Info("chat event", "kind", string(ev.Kind), "sender", ev.SenderID)
		},
		Logger: logger,
	})
	defer chat.Close()

	presence := syncer.NewPresenceSync(reg, syncer.PresenceConfig{
		Channel: cfg.Channels.Presence,
		Notify: func(ev syncer.PresenceEvent) {
			logger.Info("presence event",
				"kind", string(ev.Kind),
				"participant", ev.Participant.ID,
				"status", string(ev.Participant.Status),
			)
		},
		Logger: logger,
	})
	defer presence.Close()

	if *metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		if err := metrics.NewCollector(mgr).Register(promReg); err != nil {
			logger.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
			logger.Info("serving metrics", "addr", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	mgr.Connect()
	logger.Info("probe started", "url", cfg.Transport.URL)

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("received shutdown signal")
	mgr.Disconnect()
}
