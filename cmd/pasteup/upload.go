package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pasteup/internal/attachments"
	"pasteup/internal/config"
	"pasteup/internal/host"
	"pasteup/internal/intercept"
	"pasteup/internal/logging"
	"pasteup/internal/notification"
	"pasteup/internal/upload"
)

type uploadOptions struct {
	note string
	all  bool
}

func newUploadCommand(opts *globalOptions) *cobra.Command {
	uploadOpts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload <image>...",
		Short: "Upload image files as if they were dropped into a note",
		Long: `Upload image files as if they were dropped into a note.

With --note the markdown reference is appended to that note (relative to
vault_dir). Without it the reference is printed to stdout. The drop_policy
setting decides whether only the first image or every image is uploaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), opts, uploadOpts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&uploadOpts.note, "note", "n", "", "Vault-relative note to append the reference to")
	cmd.Flags().BoolVar(&uploadOpts.all, "all", false, "Upload every image regardless of drop_policy")
	return cmd
}

func runUpload(ctx context.Context, opts *globalOptions, uploadOpts *uploadOptions, paths []string, stdout, stderr io.Writer) error {
	note := ""
	if uploadOpts.note != "" {
		cleaned, err := attachments.NotePath(uploadOpts.note)
		if err != nil {
			return fmt.Errorf("--note: %w", err)
		}
		note = cleaned
	}

	store := &policyStore{Store: opts.store(), forceAll: uploadOpts.all}
	rt, err := buildRuntime(opts, store, stderr, notification.NewTerminal(stderr))
	if err != nil {
		return err
	}
	defer func() { _ = rt.obs.Shutdown(context.Background()) }()

	files := make([]intercept.File, 0, len(paths))
	for _, path := range paths {
		file, err := readImageFile(path)
		if err != nil {
			return err
		}
		files = append(files, file)
	}

	target := &noteTarget{out: stdout}
	if note != "" {
		target.path = note
		target.file = filepath.Join(rt.vault.Root(), filepath.FromSlash(note))
	}

	results := &resultCollector{next: rt.orch}
	dispatcher := intercept.NewDispatcher()
	intercept.Register(dispatcher, intercept.Dependencies{
		Uploader:  results,
		Store:     store,
		Workspace: staticWorkspace{target: target},
		Run:       func(_ string, fn func()) { fn() },
		Logger:    logging.NewComponentLogger("Intercept"),
		Metrics:   rt.obs.Metrics,
	})

	if !dispatcher.Drop(&intercept.DropEvent{Files: files}) {
		return fmt.Errorf("nothing uploaded: no image files given or drop interception is disabled")
	}
	if target.err != nil {
		return fmt.Errorf("append to %s: %w", target.path, target.err)
	}
	return results.err()
}

func readImageFile(path string) (intercept.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intercept.File{}, fmt.Errorf("read %s: %w", path, err)
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return intercept.File{Name: filepath.Base(path), MediaType: mediaType, Data: data}, nil
}

// noteTarget appends references to a note file, or prints them when no note
// is given.
type noteTarget struct {
	mu   sync.Mutex
	out  io.Writer
	path string
	file string
	err  error
}

func (t *noteTarget) InsertAtCursor(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == "" {
		fmt.Fprintln(t.out, text)
		return
	}
	if err := appendLine(t.file, text); err != nil && t.err == nil {
		t.err = err
	}
}

func (t *noteTarget) DocumentPath() string { return t.path }

func appendLine(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	prefix := ""
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err == nil && last[0] != '\n' {
			prefix = "\n"
		}
	}
	if _, err := f.WriteString(prefix + text + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type staticWorkspace struct {
	target host.Target
}

func (w staticWorkspace) ActiveTarget() (host.Target, bool) {
	return w.target, w.target != nil
}

// policyStore forces the "all" drop policy for one run. Only changed keys are
// ever saved, so the forced policy never reaches the file.
type policyStore struct {
	config.Store
	forceAll bool
}

func (s *policyStore) Load() (config.UploadConfig, error) {
	cfg, err := s.Store.Load()
	if err != nil || !s.forceAll {
		return cfg, err
	}
	cfg.DropPolicy = config.DropAll
	return cfg, nil
}

type resultCollector struct {
	next    intercept.Uploader
	mu      sync.Mutex
	results []upload.Result
}

func (c *resultCollector) UploadImageFile(ctx context.Context, payload upload.Payload, target host.Target) upload.Result {
	result := c.next.UploadImageFile(ctx, payload, target)
	c.mu.Lock()
	c.results = append(c.results, result)
	c.mu.Unlock()
	return result
}

func (c *resultCollector) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var failed []string
	for _, result := range c.results {
		switch result.Status {
		case upload.StatusUploaded, upload.StatusSavedLocally:
		default:
			failed = append(failed, fmt.Sprintf("%s (%s)", result.Status, result.Reason))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d uploads failed: %s", len(failed), len(c.results), strings.Join(failed, "; "))
	}
	return nil
}
