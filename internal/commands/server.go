package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ushadow/orchestrator/internal/api"
	"github.com/ushadow/orchestrator/internal/cluster"
	"github.com/ushadow/orchestrator/internal/dockerx"
	"github.com/ushadow/orchestrator/internal/environments"
	"github.com/ushadow/orchestrator/internal/lifecycle"
	"github.com/ushadow/orchestrator/internal/ports"
	"github.com/ushadow/orchestrator/internal/registry"
	"github.com/ushadow/orchestrator/internal/scheduler"
	"github.com/ushadow/orchestrator/internal/settings"
	"github.com/ushadow/orchestrator/internal/setup"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the orchestration daemon",
	Long:  `Start the HTTP API server with Echo framework`,
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	secrets, err := settings.OpenSecrets(cfg.Paths.SettingsDir)
	if err != nil {
		return fmt.Errorf("failed to open secrets store: %w", err)
	}
	prefs, err := settings.OpenPrefs(cfg.Paths.SettingsDir)
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}

	reg := registry.New(cfg.Paths.ComposeDir, secrets, prefs)
	services, _, err := reg.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load service catalog: %w", err)
	}
	log.Printf("Loaded %d service(s) from %s", len(services), cfg.Paths.ComposeDir)

	docker, err := dockerx.NewClient(cfg.Docker.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	prober := dockerx.NewProber(docker)

	hub := api.NewHub()
	notify := func(view lifecycle.ServiceView) {
		if err := hub.BroadcastEvent(api.Event{Type: api.EventServiceStatus, Data: view}); err != nil {
			log.Printf("broadcast service status failed: %v", err)
		}
	}

	resolver := ports.NewResolver(reg, nil)
	runner := lifecycle.NewComposeRunner("ushadow")
	lc := lifecycle.NewManager(reg, resolver, runner, prober, notify)

	envs := environments.NewManager(prober,
		cfg.Paths.StacksDir,
		cfg.Paths.PrimaryCheckout,
		cfg.Paths.StackRemote,
	)

	issuer := cluster.NewIssuer(cfg.Cluster.TokenSecret)
	roster := cluster.NewRoster(
		cluster.NewHTTPRosterClient(cfg.Cluster.RosterURL),
		cfg.Cluster.RosterInterval,
	)

	server := api.NewServer(cfg, api.Deps{
		Registry:     reg,
		Lifecycle:    lc,
		Environments: envs,
		Secrets:      secrets,
		Phases:       setup.NewPhaseTracker(),
		Levels: setup.LevelTable{
			Level1: cfg.Setup.Level1,
			Level2: cfg.Setup.Level2,
			Level3: cfg.Setup.Level3,
		},
		Issuer: issuer,
		Roster: roster,
		Hub:    hub,
	})

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	if cfg.Cluster.RosterURL != "" {
		roster.Start(ctx)
		defer roster.Stop()
	}

	poller := scheduler.New(lc, func() []string {
		svcs := reg.Services()
		ids := make([]string, 0, len(svcs))
		for _, svc := range svcs {
			ids = append(ids, svc.ServiceID)
		}
		return ids
	}, cfg.Docker.StatusInterval)
	poller.Start(ctx)
	defer poller.Stop()

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
