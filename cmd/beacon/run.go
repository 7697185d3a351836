package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kumabeaconhq/beacon/internal/config"
	"github.com/kumabeaconhq/beacon/internal/engine"
	"github.com/kumabeaconhq/beacon/internal/events"
	"github.com/kumabeaconhq/beacon/internal/health"
	"github.com/kumabeaconhq/beacon/internal/indicator"
	"github.com/kumabeaconhq/beacon/internal/logging"
	"github.com/kumabeaconhq/beacon/internal/metrics"
	"github.com/kumabeaconhq/beacon/internal/statuspage"
)

const staleCycles = 3

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the beacon daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.PathFromEnv(), "path to configuration file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New()
	logger.Printf("beacon starting (url=%s, slug=%s, services=%d)",
		cfg.StatusPage.URL, cfg.StatusPage.Slug, len(cfg.Services))
	if dups := config.DuplicatePins(cfg); len(dups) > 0 {
		logger.Printf("pins %v are shared by multiple bindings; the later binding wins each cycle", dups)
	}

	pinMode, err := indicator.ParsePinMode(strings.ToUpper(cfg.GPIO.PinMode))
	if err != nil {
		return err
	}

	var (
		port indicator.Port
		sim  *indicator.SimPort
	)
	switch cfg.GPIO.Driver {
	case "sim":
		sim = indicator.NewSimPort(logger)
		port = sim
	default:
		port = indicator.NewRPiPort()
	}

	client, err := statuspage.NewClient(
		statuspage.Config{
			BaseURL: cfg.StatusPage.URL,
			Slug:    cfg.StatusPage.Slug,
		},
		statuspage.Dependencies{
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.Poll.TimeoutSec) * time.Second},
			Logger:     logger,
		},
	)
	if err != nil {
		return fmt.Errorf("init status page client: %w", err)
	}

	interval := time.Duration(cfg.Poll.IntervalSec) * time.Second
	metricsStore := metrics.NewStore()
	checker := health.NewChecker(metricsStore, staleCycles*interval)
	eventRing := events.NewRing(128)

	eng, err := engine.New(
		engine.Config{
			Interval:      interval,
			FetchTimeout:  time.Duration(cfg.Poll.TimeoutSec) * time.Second,
			RefreshMinGap: time.Duration(cfg.Poll.RegistryRefreshMinSec) * time.Second,
			PinMode:       pinMode,
			Bindings:      indicator.FromConfig(cfg.Services),
		},
		engine.Dependencies{
			Source:    client,
			Port:      port,
			Logger:    logger,
			Metrics:   metricsStore.CycleRecorder(),
			Events:    eventRing,
			OnCycle:   checker.ObserveCycle,
			OnRunning: checker.SetRunning,
		},
	)
	if err != nil {
		return fmt.Errorf("init sync engine: %w", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(interval)

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		<-groupCtx.Done()
		eng.Stop()
		return nil
	})

	if addr := cfg.MonitoringAddr(); addr != "" {
		grp.Go(func() error {
			return serveMonitoring(groupCtx, addr, metricsStore, checker, eventRing, sim, logger)
		})
	}

	err = grp.Wait()

	// The loop has exited; pins go dark before the backend is released so
	// no indicator keeps showing a stale "up".
	if cerr := port.Cleanup(); cerr != nil {
		logger.Printf("gpio cleanup failed: %v", cerr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Printf("beacon stopped")
	return nil
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, ring *events.Ring, sim *indicator.SimPort, logger *log.Logger) error {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.NewHTTPHandler(store)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/events", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ring.Snapshot())
	}).Methods(http.MethodGet)
	r.HandleFunc("/debug/pins", func(w http.ResponseWriter, _ *http.Request) {
		if sim == nil {
			http.Error(w, "pin state inspection requires gpio.driver=sim", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sim.Pins())
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("monitoring listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
