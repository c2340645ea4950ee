package upload

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"pasteup/internal/config"
	"pasteup/internal/host"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
	id "pasteup/internal/utils/id"
)

// Status summarises what an orchestration did.
type Status string

const (
	StatusBusy           Status = "busy"
	StatusMisconfigured  Status = "misconfigured"
	StatusUploaded       Status = "uploaded"
	StatusFailed         Status = "failed"
	StatusSavedLocally   Status = "saved_locally"
	StatusFallbackFailed Status = "fallback_failed"
)

// Notice texts shown to the user.
const (
	NoticeBusy     = "Image upload already in progress"
	NoticeUploaded = "Image uploaded"
)

// Notice display durations.
const (
	ShortNotice = 3 * time.Second
	LongNotice  = 8 * time.Second
)

// Result reports the outcome of UploadImageFile. Callers that only care about
// the editor effects may ignore it.
type Result struct {
	UploadID string
	Status   Status
	// Inserted is the markdown written into the target, if any.
	Inserted string
	URL      string
	Reason   string
	// ErrorType classifies the remote failure, if any.
	ErrorType string
}

// Orchestrator runs one upload at a time: remote first, then the local
// fallback, then the editor insertion.
type Orchestrator struct {
	gate     Gate
	store    config.Store
	remote   Uploader
	local    LocalSaver
	notifier host.Notifier
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
}

// Dependencies wires an Orchestrator. Store, Remote and Notifier are required.
type Dependencies struct {
	Store    config.Store
	Remote   Uploader
	Local    LocalSaver
	Notifier host.Notifier
	Logger   logging.Logger
	Metrics  *observability.MetricsCollector
	Tracer   *observability.TracerProvider
}

// NewOrchestrator builds an orchestrator with its own gate.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		store:    deps.Store,
		remote:   deps.Remote,
		local:    deps.Local,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
	}
	if logging.IsNil(o.logger) {
		o.logger = logging.NewComponentLogger("Orchestrator")
	}
	if o.tracer == nil {
		o.tracer = observability.NoopTracer()
	}
	if o.notifier == nil {
		o.notifier = discardNotifier{}
	}
	return o
}

// Busy reports whether an upload currently holds the gate.
func (o *Orchestrator) Busy() bool {
	return o.gate.Held()
}

// UploadImageFile uploads payload and inserts a markdown image reference into
// target. It never panics and never returns an error; failures are reported to
// the user through notices and summarised in the returned Result.
func (o *Orchestrator) UploadImageFile(ctx context.Context, payload Payload, target host.Target) (result Result) {
	notifier := o.notifierFor(target)

	if !o.gate.TryAcquire() {
		notifier.Show(NoticeBusy, ShortNotice)
		o.metrics.RecordUpload(ctx, string(StatusBusy), "", 0, 0)
		return Result{Status: StatusBusy, Reason: NoticeBusy}
	}
	defer o.gate.Release()

	ctx = context.WithoutCancel(ctx)
	uploadID := id.UploadIDFromContext(ctx)
	if uploadID == "" {
		uploadID = id.NewUploadID()
		ctx = id.WithUploadID(ctx, uploadID)
	}
	logger := logging.FromContext(ctx, o.logger)
	started := time.Now()

	ctx, span := o.tracer.StartSpan(ctx, observability.SpanUpload,
		observability.PayloadAttrs(payload.Filename, payload.MediaType, payload.Size())...)
	o.metrics.IncrementInFlight(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("upload panic: %v, stack: %s", r, debug.Stack())
			notifier.Show(fmt.Sprintf("Image upload failed: %v", r), LongNotice)
			result = Result{UploadID: uploadID, Status: StatusFailed, Reason: fmt.Sprint(r)}
		}
		o.metrics.DecrementInFlight(ctx)
		o.metrics.RecordUpload(ctx, string(result.Status), result.ErrorType, payload.Size(), time.Since(started))
		failure := result.Reason
		if result.Status == StatusSavedLocally {
			failure = ""
		}
		observability.EndSpan(span, string(result.Status), failure)
	}()

	result = o.run(ctx, logger, notifier, payload, target)
	result.UploadID = uploadID
	logger.Info("upload of %s finished: status=%s", payload.Filename, result.Status)
	return result
}

func (o *Orchestrator) run(ctx context.Context, logger logging.Logger, notifier host.Notifier, payload Payload, target host.Target) Result {
	cfg, err := o.loadConfig()
	if err != nil {
		logger.Error("load upload configuration: %v", err)
		message := fmt.Sprintf("Upload configuration unavailable: %v", err)
		notifier.Show(message, LongNotice)
		return Result{Status: StatusMisconfigured, Reason: message}
	}
	if missing := cfg.MissingFields(); len(missing) > 0 {
		message := "Upload configuration missing: " + strings.Join(missing, ", ")
		notifier.Show(message, LongNotice)
		return Result{Status: StatusMisconfigured, Reason: message}
	}

	var progress host.NoticeID
	dismissed := true
	dismissProgress := func() {
		if !dismissed {
			dismissed = true
			notifier.Dismiss(progress)
		}
	}
	if cfg.ShowProgress {
		progress = notifier.Show(fmt.Sprintf("Uploading %s...", payload.Filename), host.Persistent)
		dismissed = false
		defer dismissProgress()
	}

	stageStart := time.Now()
	remote := o.remote.Upload(ctx, payload, cfg)
	o.metrics.RecordStage(ctx, "remote", remote.OK(), time.Since(stageStart))

	if remote.OK() {
		markdown := ImageMarkdown(payload.Filename, remote.URL())
		target.InsertAtCursor(markdown)
		dismissProgress()
		notifier.Show(NoticeUploaded, ShortNotice)
		o.consumeCredit(logger, cfg)
		return Result{Status: StatusUploaded, Inserted: markdown, URL: remote.URL()}
	}

	dismissProgress()
	logger.Warn("remote upload of %s failed (%s): %s", payload.Filename, remote.ErrorType(), remote.Reason())

	if !cfg.FallbackOnFailure || o.local == nil {
		notifier.Show("Image upload failed: "+remote.Reason(), LongNotice)
		return Result{Status: StatusFailed, Reason: remote.Reason(), ErrorType: remote.ErrorType()}
	}

	stageStart = time.Now()
	local := o.local.SaveLocally(ctx, payload, target)
	o.metrics.RecordStage(ctx, "local", local.OK(), time.Since(stageStart))

	if !local.OK() {
		logger.Error("local fallback for %s failed: %s", payload.Filename, local.Reason())
		notifier.Show("Upload failed and local fallback also failed: "+local.Reason(), LongNotice)
		return Result{Status: StatusFallbackFailed, Reason: local.Reason(), ErrorType: remote.ErrorType()}
	}

	markdown := ImageMarkdown(payload.Filename, local.URL())
	target.InsertAtCursor(markdown)
	notifier.Show(fmt.Sprintf("Upload failed (%s); image saved locally as fallback", remote.Reason()), LongNotice)
	return Result{Status: StatusSavedLocally, Inserted: markdown, URL: local.URL(), Reason: remote.Reason(), ErrorType: remote.ErrorType()}
}

func (o *Orchestrator) loadConfig() (config.UploadConfig, error) {
	if o.store == nil {
		return config.UploadConfig{}, fmt.Errorf("no configuration store")
	}
	if o.remote == nil {
		return config.UploadConfig{}, fmt.Errorf("no upload client")
	}
	return o.store.Load()
}

// consumeCredit decrements the local credit counter. The endpoint enforces
// the real quota, so an exhausted counter is reported but never blocks.
func (o *Orchestrator) consumeCredit(logger logging.Logger, cfg config.UploadConfig) {
	if !cfg.TracksCredits() {
		return
	}
	if cfg.RemainingUploads <= 0 {
		logger.Warn("upload credits exhausted; the endpoint accepted the upload anyway")
		return
	}
	remaining := cfg.RemainingUploads - 1
	if err := o.store.SaveFields(map[string]any{config.KeyRemainingUploads: remaining}); err != nil {
		logger.Error("save remaining upload credits: %v", err)
		return
	}
	if remaining == 0 {
		logger.Warn("upload credits exhausted")
		return
	}
	logger.Debug("remaining upload credits: %d", remaining)
}

func (o *Orchestrator) notifierFor(target host.Target) host.Notifier {
	if router, ok := target.(host.NoticeRouter); ok {
		if n := router.Notifier(); n != nil {
			return n
		}
	}
	return o.notifier
}

type discardNotifier struct{}

func (discardNotifier) Show(string, time.Duration) host.NoticeID { return "" }
func (discardNotifier) Dismiss(host.NoticeID)                   {}
