package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/daemon"
	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/ubi"
)

func newRunCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the UBI server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUBIServer(*configFile)
		},
	}
}

// ubiService is a thin daemon.Service wrapping *ubi.UBI: unlike the
// Aggregator/Controller/UBN services it has no background loop of its
// own, just the katcp server accepting node-add/configure/etc. calls.
type ubiService struct {
	backends *ubi.UBI
	disp     *katcp.Dispatcher
	srv      *katcp.Server
}

func (s *ubiService) Dispatcher() *katcp.Dispatcher { return s.disp }

func newUBIService(cfg *config.GlobalConfig) *ubiService {
	backends := ubi.New()
	disp := katcp.NewDispatcher()
	backends.RegisterCommands(disp)
	return &ubiService{
		backends: backends,
		disp:     disp,
		srv:      katcp.NewServer(cfg.Control.Listen, disp, log.Component("ubi-server")),
	}
}

func (s *ubiService) Start(ctx context.Context) error { return s.srv.Start(ctx) }
func (s *ubiService) Stop()                           { s.srv.Stop() }

func runUBIServer(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("ubi-server: %w", err)
	}
	svc := newUBIService(cfg)

	d, err := daemon.New(configFile, svc)
	if err != nil {
		return fmt.Errorf("ubi-server: %w", err)
	}
	d.RegisterAdminCommands(svc.Dispatcher())
	if err := d.Start(); err != nil {
		return fmt.Errorf("ubi-server: %w", err)
	}
	return d.Run()
}
