// Package daemon implements the process lifecycle manager shared by
// every Reynard binary (cam-server, ubi-server, ubn-server,
// aggregator-server, pipeline-server), generalizing the teacher's
// internal/daemon.Daemon (PID file, metrics server, signal-driven
// start/stop/reload loop) from one hardcoded task-manager/command-
// handler pair onto an arbitrary Service.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/metrics"
)

// Service is the subsystem a Daemon supervises: one of the five
// Reynard services (Aggregator, UBI, UBN, Pipeline server, Observation
// Controller/CAM server).
type Service interface {
	Start(ctx context.Context) error
	Stop()
}

// Reloadable is implemented by Services that can apply a reloaded
// config without a restart. Not implementing it just skips the
// hot-reload step on SIGHUP.
type Reloadable interface {
	Reload(cfg *config.GlobalConfig) error
}

// Daemon drives one Service's lifecycle: config load, logging init,
// PID file, metrics server, then a signal loop identical in shape to
// the teacher's Daemon.Run (SIGTERM/SIGINT stop, SIGHUP reload).
type Daemon struct {
	cfg        *config.GlobalConfig
	configPath string
	svc        Service

	metricsServer *metrics.Server

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal

	log *logrus.Entry
}

// New loads configPath, initializes logging, and wires svc as the
// supervised Service.
func New(configPath string, svc Service) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: load config: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("daemon: init logging: %w", err)
	}

	d := &Daemon{
		cfg:          cfg,
		configPath:   configPath,
		svc:          svc,
		shutdownChan: make(chan struct{}),
		log:          log.Component("daemon"),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Config returns the currently loaded configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.cfg }

// Start writes the PID file, starts the metrics server (if enabled)
// and starts the supervised Service.
func (d *Daemon) Start() error {
	d.log.WithField("node", d.cfg.Node.Hostname).Info("starting reynard daemon")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}

	if d.cfg.Metrics.Enabled {
		d.metricsServer = metrics.NewServer(d.cfg.Metrics.Listen, d.cfg.Metrics.Path)
		if err := d.metricsServer.Start(d.ctx); err != nil {
			return fmt.Errorf("daemon: start metrics server: %w", err)
		}
	}

	if err := d.svc.Start(d.ctx); err != nil {
		return fmt.Errorf("daemon: start service: %w", err)
	}

	d.log.Info("daemon started")
	return nil
}

// Stop performs graceful shutdown of the service, metrics server and
// PID file, in that order — mirrors the teacher's Daemon.Stop ordering
// (stop new-work producers before tearing down the process itself).
func (d *Daemon) Stop() {
	d.log.Info("stopping reynard daemon")

	d.svc.Stop()

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			d.log.WithError(err).Error("error stopping metrics server")
		}
		cancel()
	}

	d.cancel()

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	if err := d.removePIDFile(); err != nil {
		d.log.WithError(err).Error("error removing pid file")
	}

	d.log.Info("daemon stopped")
}

// Run blocks handling OS signals until shutdown: SIGTERM/SIGINT stop
// the daemon, SIGHUP reloads configuration (if the Service is
// Reloadable), and TriggerShutdown (or the context being cancelled
// externally) also ends the loop.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	d.log.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.log.WithField("signal", sig).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				d.log.Info("received reload signal")
				if err := d.Reload(); err != nil {
					d.log.WithError(err).Error("reload failed")
				}
			}
		case <-d.shutdownChan:
			d.log.Info("shutdown triggered by service")
			d.Stop()
			return nil
		case <-d.ctx.Done():
			d.log.WithError(d.ctx.Err()).Info("context cancelled")
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads configPath and, if the Service implements
// Reloadable, hands it the new config. Logging level/pattern are
// always hot-reloaded; anything else is up to the Service.
func (d *Daemon) Reload() error {
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: reload config: %w", err)
	}
	d.cfg = newCfg

	if err := log.Init(newCfg.Log); err != nil {
		d.log.WithError(err).Error("failed to reinitialize logging")
	}

	if r, ok := d.svc.(Reloadable); ok {
		if err := r.Reload(newCfg); err != nil {
			return fmt.Errorf("daemon: service reload: %w", err)
		}
	}

	d.log.Info("configuration reloaded")
	return nil
}

// TriggerShutdown requests graceful shutdown from outside the signal
// loop (e.g. a "stop" admin command).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

func (d *Daemon) writePIDFile() error {
	if d.cfg.Control.PIDFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	return os.WriteFile(d.cfg.Control.PIDFile, data, 0o644)
}

func (d *Daemon) removePIDFile() error {
	if d.cfg.Control.PIDFile == "" {
		return nil
	}
	if err := os.Remove(d.cfg.Control.PIDFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
