package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hvacdiag/hvacdiag/pkg/logging"
	"github.com/hvacdiag/hvacdiag/server/internal/alerts"
	"github.com/hvacdiag/hvacdiag/server/internal/api"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
	"github.com/hvacdiag/hvacdiag/server/internal/events"
	"github.com/hvacdiag/hvacdiag/server/internal/metrics"
	"github.com/hvacdiag/hvacdiag/server/internal/receiver"
	"github.com/hvacdiag/hvacdiag/server/internal/store"
	"github.com/hvacdiag/hvacdiag/server/internal/ws"
)

// broadcastInterval is how often the WebSocket hub pushes the snapshot.
const broadcastInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "hvacdiag-server: load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-server: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hvacdiag-server: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	slog.Info("hvacdiag-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"run_ttl", cfg.Server.Runs.TTL,
		"alert_rules", len(cfg.Server.Alerts.Rules),
		"events", cfg.Server.Events.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := newApp(cfg, *uiDir)
	go a.store.Run(ctx)
	go a.hub.Run(ctx)

	eventsDone := make(chan struct{})
	go func() {
		a.events.Run(ctx)
		close(eventsDone)
	}()

	// Alert rules and the log level follow the config file; everything else
	// needs a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			a.alerts.SetRules(updated.Server.Alerts.Rules)
			if err := logger.SetLevel(updated.Server.Log.Level); err != nil {
				slog.Warn("config hot-reload: bad log level", "err", err)
			}
			slog.Info("config hot-reloaded", "alert_rules", len(updated.Server.Alerts.Rules))
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("hvacdiag-server shutting down")

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	a.alerts.Wait()
	<-eventsDone
}

// app holds the wired server components.
type app struct {
	store   *store.Store
	alerts  *alerts.Engine
	hvac    *metrics.HVAC
	events  *events.Publisher
	hub     *ws.Hub
	handler http.Handler
}

// newApp wires the store, alerting, metrics, events, WebSocket hub and HTTP
// routes. Background loops are started by the caller.
func newApp(cfg *config.Config, uiDir string) *app {
	st := store.New(cfg.Server.Runs.TTL)
	al := alerts.New(cfg.Server.Alerts)
	pub := events.New(cfg.Server.Events)
	hub := ws.New(st, al, broadcastInterval)

	reg := prometheus.NewRegistry()
	hvac := metrics.NewHVAC(reg)
	reg.MustRegister(
		gaugeFunc("hvacdiag_runs_stored", "Runs currently held in the store.",
			func() float64 { return float64(st.Count()) }),
		gaugeFunc("hvacdiag_alerts_firing", "Alerts currently firing.",
			func() float64 { return float64(al.FiringCount()) }),
		gaugeFunc("hvacdiag_ws_clients", "Connected WebSocket clients.",
			func() float64 { return float64(hub.Count()) }),
		gaugeFunc("hvacdiag_events_dropped", "Run events dropped on a full publish queue.",
			func() float64 { _, dropped, _ := pub.Stats(); return float64(dropped) }),
	)

	rec := receiver.New(st, al, hvac, receiver.Publishers{pub, hub})

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(api.Deps{
		Store:          st,
		Receiver:       rec,
		Alerts:         al,
		MaxUploadBytes: cfg.Server.Runs.MaxUploadBytes,
	}))
	mux.Handle("/ws/stream", hub)
	mux.Handle("/metrics", hvac.Handler())

	// The "/" catch-all serves index.html for unknown paths.
	if uiDir != "" {
		files := http.FileServer(http.Dir(uiDir))
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, uiDir+"/index.html")
				return
			}
			files.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", uiDir)
	}

	return &app{store: st, alerts: al, hvac: hvac, events: pub, hub: hub, handler: mux}
}

func gaugeFunc(name, help string, fn func() float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}
