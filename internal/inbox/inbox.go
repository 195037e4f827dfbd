// Package inbox imports export files dropped into a watched directory.
//
// Every top-level *.json file is passed to the entry service's import. A
// successful import moves the file to processed/, a failed one to failed/
// together with a .error note holding the reason.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/storage"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Importer applies an export payload. *entryservice.Service satisfies it.
type Importer interface {
	ImportData(ctx context.Context, data []byte) entryservice.Result
}

// Outcome reports what happened to one file.
type Outcome struct {
	Path  string
	Count int
	Err   error
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithDebounce sets how long the watcher waits for writes to settle.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Inbox) { in.log = l }
}

// WithCallback registers a function called after each file is handled.
func WithCallback(cb func(Outcome)) Option {
	return func(in *Inbox) { in.onResult = cb }
}

// WithClock overrides the time source used to stamp archived files.
func WithClock(now func() time.Time) Option {
	return func(in *Inbox) { in.now = now }
}

// Inbox owns one drop directory.
type Inbox struct {
	files    storage.Provider
	importer Importer
	debounce time.Duration
	log      *slog.Logger
	onResult func(Outcome)
	now      func() time.Time
}

// New creates an inbox over files, importing through importer.
func New(files storage.Provider, importer Importer, opts ...Option) *Inbox {
	in := &Inbox{
		files:    files,
		importer: importer,
		debounce: 300 * time.Millisecond,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Scan imports every file already waiting in the inbox, oldest name first.
func (in *Inbox) Scan(ctx context.Context) ([]Outcome, error) {
	files, err := in.files.List("")
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(files))
	for _, f := range files {
		out = append(out, in.ImportFile(ctx, f.Path))
	}
	return out, nil
}

// ImportFile imports one file and archives it.
func (in *Inbox) ImportFile(ctx context.Context, rel string) Outcome {
	o := Outcome{Path: rel}
	data, err := in.files.Read(rel)
	if err != nil {
		o.Err = err
		in.report(o)
		return o
	}

	res := in.importer.ImportData(ctx, data)
	if res.Success {
		o.Count = res.Count
	} else if o.Err = res.Err(); o.Err == nil {
		o.Err = errors.New(res.Error)
	}

	if err := in.archive(rel, o.Err); err != nil {
		in.log.Warn("inbox: archive failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	in.report(o)
	return o
}

func (in *Inbox) archive(rel string, importErr error) error {
	stamp := in.now().UTC().Format("20060102T150405")
	name := stamp + "-" + path.Base(filepath.ToSlash(rel))
	dir := ProcessedDir
	if importErr != nil {
		dir = FailedDir
		if err := in.files.Write(path.Join(dir, name+".error"), []byte(importErr.Error()+"\n")); err != nil {
			return err
		}
	}
	return in.files.Move(rel, path.Join(dir, name))
}

func (in *Inbox) report(o Outcome) {
	if o.Err != nil {
		in.log.Warn("inbox: import failed", slog.String("path", o.Path), slog.String("error", o.Err.Error()))
	} else {
		in.log.Info("inbox: imported", slog.String("path", o.Path), slog.Int("entries", o.Count))
	}
	if in.onResult != nil {
		in.onResult(o)
	}
}

// Watch imports files as they appear until ctx is cancelled. Only the inbox
// root is watched; the archive directories are ignored.
func (in *Inbox) Watch(ctx context.Context) error {
	root, err := in.files.Abs("")
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(root); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", root, err)
	}

	in.log.Info("inbox: watching", slog.String("root", root))

	pending := make(map[string]struct{})
	var (
		settle   *time.Timer
		settleCh <-chan time.Time
	)
	schedule := func() {
		if settle == nil {
			settle = time.NewTimer(in.debounce)
			settleCh = settle.C
		} else {
			settle.Reset(in.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			in.log.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for rel := range pending {
				delete(pending, rel)
				if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
					continue
				}
				in.ImportFile(ctx, rel)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if filepath.Dir(ev.Name) != root || strings.HasPrefix(name, ".") ||
				!strings.EqualFold(filepath.Ext(name), storage.Ext) {
				continue
			}
			pending[name] = struct{}{}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.log.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
