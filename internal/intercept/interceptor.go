package intercept

import (
	"context"

	"pasteup/internal/async"
	"pasteup/internal/attachments"
	"pasteup/internal/config"
	"pasteup/internal/host"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
	"pasteup/internal/upload"
)

// Uploader runs one upload orchestration.
type Uploader interface {
	UploadImageFile(ctx context.Context, payload upload.Payload, target host.Target) upload.Result
}

// Runner starts fn in the background.
type Runner func(name string, fn func())

// GoRunner runs uploads on tracked goroutines so Wait can drain them.
type GoRunner struct {
	tracker *async.Tracker
}

// NewGoRunner returns a runner logging panics to logger.
func NewGoRunner(logger logging.Logger) *GoRunner {
	return &GoRunner{tracker: async.NewTracker(logging.OrNop(logger))}
}

// Run starts fn.
func (r *GoRunner) Run(name string, fn func()) {
	r.tracker.Go(name, fn)
}

// Wait blocks until every started function returned.
func (r *GoRunner) Wait() {
	r.tracker.Wait()
}

// Dependencies wires the interceptors.
type Dependencies struct {
	Uploader  Uploader
	Store     config.Store
	Workspace host.Workspace
	Run       Runner
	Logger    logging.Logger
	Metrics   *observability.MetricsCollector
}

type base struct {
	uploader  Uploader
	store     config.Store
	workspace host.Workspace
	run       Runner
	logger    logging.Logger
	metrics   *observability.MetricsCollector
}

func newBase(deps Dependencies, component string) base {
	b := base{
		uploader:  deps.Uploader,
		store:     deps.Store,
		workspace: deps.Workspace,
		run:       deps.Run,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}
	if logging.IsNil(b.logger) {
		b.logger = logging.NewComponentLogger(component)
	}
	if b.run == nil {
		b.run = NewGoRunner(b.logger).Run
	}
	return b
}

func (b base) settings() (config.UploadConfig, bool) {
	if b.store == nil || b.uploader == nil {
		return config.UploadConfig{}, false
	}
	cfg, err := b.store.Load()
	if err != nil {
		b.logger.Warn("load configuration for event: %v", err)
		return config.UploadConfig{}, false
	}
	return cfg, true
}

// PasteInterceptor handles clipboard pastes.
type PasteInterceptor struct {
	base
}

// NewPasteInterceptor builds a paste interceptor.
func NewPasteInterceptor(deps Dependencies) *PasteInterceptor {
	return &PasteInterceptor{base: newBase(deps, "PasteInterceptor")}
}

// ClipboardName is the filename given to pasted images.
func ClipboardName(mediaType string) string {
	return "clipboard." + attachments.ImageExtension(mediaType)
}

// Handle uploads the first image item of a paste. Later items, images or
// text, are ignored.
func (p *PasteInterceptor) Handle(evt *PasteEvent, target host.Target) {
	if evt == nil || target == nil {
		return
	}
	cfg, ok := p.settings()
	if !ok || !cfg.InterceptOnPaste {
		return
	}

	for _, item := range evt.Items {
		if item.Kind != "" && item.Kind != "file" {
			continue
		}
		if !attachments.IsImageType(item.MediaType) {
			continue
		}
		payload, err := upload.NewPayload(item.Data, ClipboardName(item.MediaType), item.MediaType)
		if err != nil {
			p.logger.Warn("skip clipboard item: %v", err)
			continue
		}
		evt.PreventDefault()
		p.metrics.RecordInterception(context.Background(), "paste")
		p.run("paste-upload", func() {
			p.uploader.UploadImageFile(context.Background(), payload, target)
		})
		return
	}
}

// DropInterceptor handles file drops and dragover.
type DropInterceptor struct {
	base
}

// NewDropInterceptor builds a drop interceptor.
func NewDropInterceptor(deps Dependencies) *DropInterceptor {
	return &DropInterceptor{base: newBase(deps, "DropInterceptor")}
}

// Handle uploads the image files of a drop into the active document. With the
// "first" policy only the first image is uploaded; with "all" every image is
// uploaded in order.
func (d *DropInterceptor) Handle(evt *DropEvent) {
	if evt == nil || d.workspace == nil {
		return
	}
	cfg, ok := d.settings()
	if !ok || !cfg.InterceptOnDrop {
		return
	}
	target, ok := d.workspace.ActiveTarget()
	if !ok || target == nil {
		return
	}

	var payloads []upload.Payload
	for _, file := range evt.Files {
		if !attachments.IsImageType(file.MediaType) {
			continue
		}
		payload, err := upload.NewPayload(file.Data, file.Name, file.MediaType)
		if err != nil {
			d.logger.Warn("skip dropped file %q: %v", file.Name, err)
			continue
		}
		payloads = append(payloads, payload)
		if cfg.DropPolicy != config.DropAll {
			break
		}
	}
	if len(payloads) == 0 {
		return
	}

	evt.PreventDefault()
	d.metrics.RecordInterception(context.Background(), "drop")
	d.run("drop-upload", func() {
		for _, payload := range payloads {
			d.uploader.UploadImageFile(context.Background(), payload, target)
		}
	})
}

// HandleDragOver keeps the workspace a valid drop target while drop
// interception is enabled.
func (d *DropInterceptor) HandleDragOver(evt *DragOverEvent) {
	if evt == nil {
		return
	}
	cfg, ok := d.settings()
	if !ok || !cfg.InterceptOnDrop {
		return
	}
	evt.PreventDefault()
	evt.DropEffect = "copy"
}

// Register attaches both interceptors to src.
func Register(src Source, deps Dependencies) (*PasteInterceptor, *DropInterceptor) {
	paste := NewPasteInterceptor(deps)
	drop := NewDropInterceptor(deps)
	src.OnPaste(paste.Handle)
	src.OnDrop(drop.Handle)
	src.OnDragOver(drop.HandleDragOver)
	return paste, drop
}
