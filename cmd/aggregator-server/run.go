package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/aggregator"
	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/daemon"
	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
)

func newRunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Aggregator server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregatorServer(*configFile)
		},
	}
}

type aggregatorService struct {
	agg  *aggregator.Aggregator
	disp *katcp.Dispatcher
	srv  *katcp.Server
}

func (s *aggregatorService) Dispatcher() *katcp.Dispatcher { return s.disp }

func newAggregatorService(cfg *config.GlobalConfig) (*aggregatorService, error) {
	tick, err := time.ParseDuration(cfg.Multicast.TickInterval)
	if err != nil {
		tick = time.Second
	}
	agg, err := aggregator.New(aggregator.Config{
		MulticastAddr: cfg.Multicast.Addr,
		Interface:     cfg.Multicast.Interface,
		TickInterval:  tick,
	})
	if err != nil {
		return nil, fmt.Errorf("aggregator-server: build aggregator: %w", err)
	}

	disp := katcp.NewDispatcher()
	agg.RegisterCommands(disp)

	return &aggregatorService{
		agg:  agg,
		disp: disp,
		srv:  katcp.NewServer(cfg.Control.Listen, disp, log.Component("aggregator-server")),
	}, nil
}

func (s *aggregatorService) Start(ctx context.Context) error {
	go func() { _ = s.agg.Run(ctx) }()
	return s.srv.Start(ctx)
}

func (s *aggregatorService) Stop() {
	s.agg.Stop()
	s.srv.Stop()
}

func runAggregatorServer(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("aggregator-server: %w", err)
	}
	svc, err := newAggregatorService(cfg)
	if err != nil {
		return err
	}

	d, err := daemon.New(configFile, svc)
	if err != nil {
		return fmt.Errorf("aggregator-server: %w", err)
	}
	d.RegisterAdminCommands(svc.Dispatcher())
	if err := d.Start(); err != nil {
		return fmt.Errorf("aggregator-server: %w", err)
	}
	return d.Run()
}
