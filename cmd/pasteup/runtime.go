package main

import (
	"context"
	"fmt"
	"io"

	"pasteup/internal/attachments"
	"pasteup/internal/config"
	"pasteup/internal/host"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
	"pasteup/internal/storage/blobstore"
	"pasteup/internal/upload"
	"pasteup/internal/utils/id"
)

// runtime is the wired upload core shared by the serve and upload commands.
type runtime struct {
	cfg   config.UploadConfig
	store config.Store
	obs   *observability.Observability
	vault *blobstore.FilesystemStore
	orch  *upload.Orchestrator
}

func buildRuntime(opts *globalOptions, store config.Store, logOutput io.Writer, notifier host.Notifier) (*runtime, error) {
	cfg, err := store.Load()
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	id.SetStrategy(id.ParseStrategy(cfg.IDStrategy))

	obsCfg := observability.DefaultConfig()
	obsCfg.Logging.Level = cfg.LogLevel
	obsCfg.Logging.Format = cfg.LogFormat
	obsCfg.Logging.Output = logOutput
	obsCfg.Metrics.Enabled = cfg.MetricsEnabled
	obsCfg.Tracing.Enabled = cfg.TracingEnabled
	obsCfg.Tracing.ServiceVersion = version
	if cfg.TracingExporter != "" {
		obsCfg.Tracing.Exporter = cfg.TracingExporter
	}
	if cfg.OTLPEndpoint != "" {
		obsCfg.Tracing.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ZipkinEndpoint != "" {
		obsCfg.Tracing.ZipkinEndpoint = cfg.ZipkinEndpoint
	}
	if cfg.TracingSampleRate > 0 {
		obsCfg.Tracing.SampleRate = cfg.TracingSampleRate
	}
	obs, err := observability.New(obsCfg)
	if err != nil {
		return nil, err
	}
	logging.SetBase(obs.Logger)

	vault, err := blobstore.NewFilesystemStore(cfg.VaultDir, cfg.PublicBaseURL)
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return nil, fmt.Errorf("open vault: %w", err)
	}

	remote := upload.NewRemoteClient(
		upload.WithRemoteLogger(logging.NewComponentLogger("RemoteUpload")),
		upload.WithRemoteTracer(obs.Tracer),
	)
	local := upload.NewLocalWriter(
		attachments.NewAllocator(vault.Root(), cfg.AttachmentFolder),
		vault,
		vault,
		cfg.AttachmentFolder,
	).WithTracer(obs.Tracer).WithLogger(logging.NewComponentLogger("LocalFallback"))

	orch := upload.NewOrchestrator(upload.Dependencies{
		Store:    store,
		Remote:   remote,
		Local:    local,
		Notifier: notifier,
		Logger:   logging.NewComponentLogger("Upload"),
		Metrics:  obs.Metrics,
		Tracer:   obs.Tracer,
	})

	return &runtime{cfg: cfg, store: store, obs: obs, vault: vault, orch: orch}, nil
}
