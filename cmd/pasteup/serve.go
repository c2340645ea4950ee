package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pasteup/internal/logging"
	"pasteup/internal/notification"
	"pasteup/internal/server"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	host  string
	port  int
	debug bool
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	serveOpts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor bridge (HTTP uploads and websocket events)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, serveOpts, cmd)
		},
	}
	cmd.Flags().StringVar(&serveOpts.host, "host", "", "Listen host (overrides server_host)")
	cmd.Flags().IntVarP(&serveOpts.port, "port", "p", 0, "Listen port (overrides server_port)")
	cmd.Flags().BoolVar(&serveOpts.debug, "debug", false, "Run gin in debug mode")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, serveOpts *serveOptions, cmd *cobra.Command) error {
	store := opts.store()
	rt, err := buildRuntime(opts, store, cmd.ErrOrStderr(), notification.NewTerminal(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	logger := logging.NewComponentLogger("Main")

	serverCfg := server.DefaultConfig()
	serverCfg.Host = rt.cfg.ServerHost
	serverCfg.Port = rt.cfg.ServerPort
	serverCfg.AllowedOrigins = rt.cfg.AllowedOrigins
	serverCfg.Debug = serveOpts.debug
	serverCfg.Version = version
	if serveOpts.host != "" {
		serverCfg.Host = serveOpts.host
	}
	if serveOpts.port != 0 {
		serverCfg.Port = serveOpts.port
	}

	srv := server.New(serverCfg, server.Dependencies{
		Orchestrator:  rt.orch,
		Store:         store,
		Observability: rt.obs,
		Logger:        logging.NewComponentLogger("Server"),
	})

	logger.Info("vault: %s, endpoint: %s, mode: %s", rt.vault.Root(), rt.cfg.EndpointURL, rt.cfg.CredentialMode)
	if missing := rt.cfg.MissingFields(); len(missing) > 0 {
		logger.Warn("configuration incomplete, uploads will be refused until set: %v", missing)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(srv.ListenAndServe)
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down bridge")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), rt.obs.Shutdown(shutdownCtx))
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
