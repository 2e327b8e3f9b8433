package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/daemon"
	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/ubn"
)

func newRunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the UBN server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUBNServer(*configFile)
		},
	}
}

type ubnService struct {
	node *ubn.Node
	disp *katcp.Dispatcher
	srv  *katcp.Server
}

func (s *ubnService) Dispatcher() *katcp.Dispatcher { return s.disp }

func newUBNService(cfg *config.GlobalConfig) *ubnService {
	tick, err := time.ParseDuration(cfg.UBN.MonitorTick)
	if err != nil {
		tick = time.Second
	}
	node := ubn.New(ubn.Config{
		Volumes:     cfg.UBN.Volumes,
		NumCPU:      cfg.UBN.NumCPU,
		NUMANodes:   cfg.UBN.NUMANodes,
		MonitorTick: tick,
	})

	disp := katcp.NewDispatcher()
	node.RegisterCommands(disp)

	return &ubnService{
		node: node,
		disp: disp,
		srv:  katcp.NewServer(cfg.Control.Listen, disp, log.Component("ubn-server")),
	}
}

func (s *ubnService) Start(ctx context.Context) error {
	go func() { _ = s.node.Run(ctx) }()
	return s.srv.Start(ctx)
}

func (s *ubnService) Stop() {
	s.node.Stop()
	s.srv.Stop()
}

func runUBNServer(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("ubn-server: %w", err)
	}
	svc := newUBNService(cfg)

	d, err := daemon.New(configFile, svc)
	if err != nil {
		return fmt.Errorf("ubn-server: %w", err)
	}
	d.RegisterAdminCommands(svc.Dispatcher())
	if err := d.Start(); err != nil {
		return fmt.Errorf("ubn-server: %w", err)
	}
	return d.Run()
}
