package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/aggregator"
	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/controller"
	"github.com/mpifr-bdr/reynard/internal/daemon"
	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/nodepool"
	"github.com/mpifr-bdr/reynard/internal/ubi"
)

func newRunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the CAM server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCamServer(*configFile)
		},
	}
}

// camService wires an Aggregator, a UBI and a Controller behind a
// single katcp.Server, implementing daemon.Service.
type camService struct {
	agg  *aggregator.Aggregator
	ctrl *controller.Controller
	disp *katcp.Dispatcher
	srv  *katcp.Server

	cancel context.CancelFunc
}

// Dispatcher exposes the shared verb table so the admin commands
// (daemon-stop/daemon-reload) can be registered onto it.
func (s *camService) Dispatcher() *katcp.Dispatcher { return s.disp }

func newCamService(cfg *config.GlobalConfig) (*camService, error) {
	agg, err := aggregator.New(aggregator.Config{
		MulticastAddr: cfg.Multicast.Addr,
		Interface:     cfg.Multicast.Interface,
	})
	if err != nil {
		return nil, fmt.Errorf("cam-server: build aggregator: %w", err)
	}

	manifest, err := os.ReadFile(filepath.Join(cfg.ConfigRoot, cfg.NodePool.ManifestPath))
	if err != nil {
		return nil, fmt.Errorf("cam-server: read node pool manifest: %w", err)
	}
	pool, err := nodepool.FromManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("cam-server: parse node pool manifest: %w", err)
	}

	backends := ubi.New()
	ctrl := controller.New(controller.Config{
		Telescope:  cfg.Telescope,
		ConfigRoot: cfg.ConfigRoot,
	}, agg.Tree(), backends, pool)

	disp := katcp.NewDispatcher()
	agg.RegisterCommands(disp)
	ctrl.RegisterCommands(disp)
	backends.RegisterCommands(disp)

	return &camService{
		agg:  agg,
		ctrl: ctrl,
		disp: disp,
		srv:  katcp.NewServer(cfg.Control.Listen, disp, log.Component("cam-server")),
	}, nil
}

func (s *camService) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() { _ = s.agg.Run(ctx) }()
	s.ctrl.Run(ctx)

	return s.srv.Start(ctx)
}

func (s *camService) Stop() {
	s.ctrl.Stop()
	s.agg.Stop()
	s.srv.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}

func runCamServer(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("cam-server: %w", err)
	}
	svc, err := newCamService(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(configFile, svc)
	if err != nil {
		return fmt.Errorf("cam-server: %w", err)
	}
	d.RegisterAdminCommands(svc.Dispatcher())
	if err := d.Start(); err != nil {
		return fmt.Errorf("cam-server: %w", err)
	}
	return d.Run()
}
