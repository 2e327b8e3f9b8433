package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpifr-bdr/reynard/internal/config"
	"github.com/mpifr-bdr/reynard/internal/daemon"
	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/log"
	"github.com/mpifr-bdr/reynard/internal/pipeline"
)

func newRunCmd(configFile, instanceID, typeName *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline instance in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipelineServer(*configFile, *instanceID, *typeName)
		},
	}
}

func newListTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List registered pipeline types",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := pipeline.TypeNames()
			sort.Strings(names)
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
}

type pipelineService struct {
	inst *pipeline.Instance
	disp *katcp.Dispatcher
	srv  *katcp.Server
}

func (s *pipelineService) Dispatcher() *katcp.Dispatcher { return s.disp }

func newPipelineService(cfg *config.GlobalConfig, instanceID, typeName string) (*pipelineService, error) {
	inst, err := pipeline.New(instanceID, typeName)
	if err != nil {
		return nil, fmt.Errorf("pipeline-server: %w", err)
	}

	disp := katcp.NewDispatcher()
	pipeline.RegisterCommands(disp, inst)

	return &pipelineService{
		inst: inst,
		disp: disp,
		srv:  katcp.NewServer(cfg.Control.Listen, disp, log.Component("pipeline-server")),
	}, nil
}

func (s *pipelineService) Start(ctx context.Context) error { return s.srv.Start(ctx) }

func (s *pipelineService) Stop() {
	s.inst.Close()
	s.srv.Stop()
}

func runPipelineServer(configFile, instanceID, typeName string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("pipeline-server: %w", err)
	}
	svc, err := newPipelineService(cfg, instanceID, typeName)
	if err != nil {
		return err
	}

	d, err := daemon.New(configFile, svc)
	if err != nil {
		return fmt.Errorf("pipeline-server: %w", err)
	}
	d.RegisterAdminCommands(svc.Dispatcher())
	if err := d.Start(); err != nil {
		return fmt.Errorf("pipeline-server: %w", err)
	}
	return d.Run()
}
