package upload

import (
	"context"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"pasteup/internal/attachments"
	"pasteup/internal/host"
	"pasteup/internal/logging"
	"pasteup/internal/observability"
)

// LocalSaver stores a payload in local storage as a fallback.
type LocalSaver interface {
	SaveLocally(ctx context.Context, payload Payload, target host.Target) Outcome
}

// LocalWriter writes images into the vault. Allocator is optional; without it
// a timestamped name is placed in Folder.
type LocalWriter struct {
	Allocator host.PathAllocator
	Writer    host.BinaryWriter
	Resolver  host.ResourceResolver
	Folder    string

	logger logging.Logger
	tracer *observability.TracerProvider
	now    func() time.Time
}

// NewLocalWriter builds a fallback writer. allocator may be nil.
func NewLocalWriter(allocator host.PathAllocator, writer host.BinaryWriter, resolver host.ResourceResolver, folder string) *LocalWriter {
	return &LocalWriter{
		Allocator: allocator,
		Writer:    writer,
		Resolver:  resolver,
		Folder:    strings.Trim(strings.TrimSpace(folder), "/"),
		logger:    logging.NewComponentLogger("LocalFallback"),
		tracer:    observability.NoopTracer(),
		now:       time.Now,
	}
}

// WithTracer sets the tracer used for fallback spans.
func (w *LocalWriter) WithTracer(tracer *observability.TracerProvider) *LocalWriter {
	if tracer != nil {
		w.tracer = tracer
	}
	return w
}

// WithLogger sets the logger.
func (w *LocalWriter) WithLogger(logger logging.Logger) *LocalWriter {
	w.logger = logging.OrNop(logger)
	return w
}

// SaveLocally allocates a path, writes the bytes and resolves a reference.
// Any error, or a panic from a collaborator, is returned as a Failure.
func (w *LocalWriter) SaveLocally(ctx context.Context, payload Payload, target host.Target) (outcome Outcome) {
	logger := logging.FromContext(ctx, w.logger)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("local fallback panic: %v, stack: %s", r, debug.Stack())
			outcome = Failuref("unexpected local save fault: %v", r)
		}
	}()

	_, span := w.tracer.StartSpan(ctx, observability.SpanLocalSave,
		observability.PayloadAttrs(payload.Filename, payload.MediaType, payload.Size())...)
	defer func() { observability.EndSpan(span, outcome.status(), outcome.Reason()) }()

	if w.Writer == nil || w.Resolver == nil {
		return Failure("local storage is not available")
	}

	contextPath := ""
	if target != nil {
		contextPath = target.DocumentPath()
	}

	storagePath, err := w.storagePath(payload, contextPath)
	if err != nil {
		return Failuref("allocate attachment path: %v", err)
	}

	handle, err := w.Writer.WriteBinary(storagePath, payload.Data)
	if err != nil {
		return Failuref("write %s: %v", storagePath, err)
	}

	ref, err := w.Resolver.Resolve(handle)
	if err != nil {
		w.discard(logger, handle)
		return Failuref("resolve %s: %v", handle, err)
	}

	logger.Info("saved %s locally at %s", payload.Filename, storagePath)
	return Success(ref)
}

// discard removes a written file that could not be referenced.
func (w *LocalWriter) discard(logger logging.Logger, handle string) {
	remover, ok := w.Writer.(host.BinaryRemover)
	if !ok {
		return
	}
	if err := remover.DeleteObject(handle); err != nil {
		logger.Warn("remove unreferenced attachment %s: %v", handle, err)
	}
}

func (w *LocalWriter) storagePath(payload Payload, contextPath string) (string, error) {
	if w.Allocator != nil {
		return w.Allocator.AllocatePath(payload.Filename, contextPath)
	}
	name := attachments.TimestampedName(payload.MediaType, w.now())
	if w.Folder == "" || strings.HasPrefix(w.Folder, ".") {
		return name, nil
	}
	return path.Join(w.Folder, name), nil
}
