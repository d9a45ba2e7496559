package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dray-io/droplife/internal/config"
	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/lifecycle"
	"github.com/dray-io/droplife/internal/logging"
	"github.com/dray-io/droplife/internal/metrics"
	"github.com/dray-io/droplife/internal/storage"
)

// DaemonOptions contains the configuration for creating a daemon.
type DaemonOptions struct {
	Config *config.Config
	Logger *logging.Logger

	// Registerer receives the daemon's metrics and Gatherer serves them.
	// Both default to the Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Version    string
}

// Daemon wires storage, the lifecycle manager and the metrics endpoint.
type Daemon struct {
	opts   DaemonOptions
	logger *logging.Logger

	// Metrics are registered once per daemon and shared by every Start.
	storeMetrics     *metrics.ObjectStoreMetrics
	lifecycleMetrics *metrics.LifecycleMetrics

	primary       storage.Backend
	replicas      storage.Backend
	closers       []io.Closer
	manager       *lifecycle.Manager
	metricsServer *metrics.Server

	mu      sync.Mutex
	started bool
}

// NewDaemon creates a Daemon but does not start it.
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Daemon{
		opts:             opts,
		logger:           opts.Logger,
		storeMetrics:     metrics.NewObjectStoreMetricsWithRegistry(opts.Registerer),
		lifecycleMetrics: metrics.NewLifecycleMetricsWithRegistry(opts.Registerer),
	}, nil
}

// Start opens the storage backends, starts the metrics server and the
// manager's sweep loop. It returns once everything is running. A daemon
// can be started again after Shutdown or a failed Start.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("daemon already started")
	}

	cfg := d.opts.Config
	d.logger.Infof("starting daemon", map[string]any{
		"version":     d.opts.Version,
		"backend":     cfg.Storage.Backend,
		"checkPeriod": cfg.Lifecycle.CheckPeriod.String(),
	})

	primary, closer, err := openBackend(ctx, cfg.Storage, d.storeMetrics)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	d.primary = primary
	d.track(closer)

	d.replicas = nil
	if cfg.ReplicaStorage != nil {
		replicas, closer, err := openBackend(ctx, *cfg.ReplicaStorage, d.storeMetrics)
		if err != nil {
			d.closeStores()
			return fmt.Errorf("replicaStorage: %w", err)
		}
		d.replicas = replicas
		d.track(closer)
	}

	d.manager, err = lifecycle.New(cfg.ManagerConfig(), lifecycle.Options{
		Logger:         d.logger,
		Metrics:        d.lifecycleMetrics,
		ReplicaBackend: d.replicas,
	})
	if err != nil {
		d.closeStores()
		return err
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		d.metricsServer = metrics.NewServerWithRegistry(addr, d.opts.Gatherer)
		mgr := d.manager
		d.metricsServer.SetHealthCheck(func() error {
			if !mgr.Running() {
				return errors.New("lifecycle manager not running")
			}
			return nil
		})
		if err := d.metricsServer.Start(); err != nil {
			d.metricsServer = nil
			d.closeStores()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		d.logger.Infof("metrics server started", map[string]any{"addr": d.metricsServer.Addr()})
	}

	if err := d.manager.Start(); err != nil {
		d.closeMetrics()
		d.closeStores()
		return err
	}

	d.started = true
	d.logger.Info("daemon started")
	return nil
}

// Manager returns the lifecycle manager, or nil before Start.
func (d *Daemon) Manager() *lifecycle.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manager
}

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (d *Daemon) MetricsAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.metricsServer == nil {
		return ""
	}
	return d.metricsServer.Addr()
}

// NewDrop creates a drop on the primary backend and registers it with the
// manager.
func (d *Daemon) NewDrop(opts drop.Options) (*drop.Drop, error) {
	d.mu.Lock()
	primary, mgr := d.primary, d.manager
	d.mu.Unlock()
	if mgr == nil {
		return nil, errors.New("daemon not started")
	}

	dr, err := drop.New(primary, opts)
	if err != nil {
		return nil, err
	}
	if err := mgr.AddDataObject(dr); err != nil {
		return nil, err
	}
	return dr, nil
}

// Shutdown stops the sweep loop, then closes the metrics server and the
// object stores. A sweep in progress finishes its current drop first.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil
	}
	d.started = false

	d.logger.Info("shutting down daemon")

	stopped := make(chan struct{})
	go func() {
		d.manager.Stop()
		close(stopped)
	}()

	var errs []error
	select {
	case <-stopped:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for lifecycle manager: %w", ctx.Err()))
	}

	if err := d.closeMetrics(); err != nil {
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}
	if err := d.closeStores(); err != nil {
		errs = append(errs, err)
	}
	_ = d.logger.Sync()
	return errors.Join(errs...)
}

func (d *Daemon) track(c io.Closer) {
	if c != nil {
		d.closers = append(d.closers, c)
	}
}

func (d *Daemon) closeMetrics() error {
	if d.metricsServer == nil {
		return nil
	}
	err := d.metricsServer.Close()
	d.metricsServer = nil
	return err
}

func (d *Daemon) closeStores() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
