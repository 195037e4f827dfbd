// Package entryservice is the single entry point for reading and writing
// entries. It validates input, applies the save-by-date rule, runs imports
// and exports, and keeps a cache of the stored entries.
package entryservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/codec"
	"github.com/starford/wellbeing/internal/models"
	"github.com/starford/wellbeing/internal/store"
)

// Event kinds passed to a Notifier.
const (
	EventSaved    = "entry.saved"
	EventDeleted  = "entry.deleted"
	EventImported = "entries.imported"
	EventCleared  = "entries.cleared"
)

// Notifier is told about every successful mutation. date is empty for
// events that touch many entries.
type Notifier interface {
	PublishEntryEvent(kind, date string)
}

// Recorder receives operational counters.
type Recorder interface {
	ObserveWrite(op string, err error)
	ObserveImport(n int)
	SetEntryCount(n int)
}

// Result is the outcome of a mutating call. Failures never escape as panics
// or bare errors: Success is false, Error holds a message and Err returns
// the typed error.
type Result struct {
	Success bool          `json:"success"`
	Data    *models.Entry `json:"data,omitempty"`
	Count   int           `json:"count,omitempty"`
	Error   string        `json:"error,omitempty"`

	err error
}

// Err returns the underlying error of a failed result.
func (r Result) Err() error { return r.err }

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithNotifier registers a mutation observer.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service coordinates the repository, the codec and the cache.
type Service struct {
	repo     store.Repository
	cache    *Cache
	now      func() time.Time
	log      *slog.Logger
	notifier Notifier
	recorder Recorder

	// saveMu serializes writers so a read-then-write (save by date, delete
	// by id) never interleaves with another write.
	saveMu sync.Mutex
}

// NewService creates an entry service over repo.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cache: &Cache{},
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MergeEntry applies a candidate over the stored entry for the same date.
// The stored id and createdAt are kept; phase and each metric are taken from
// the candidate only when it defines them; updatedAt becomes now.
func MergeEntry(existing models.Entry, c models.Candidate, now time.Time) models.Entry {
	out := existing
	if c.Phase != "" {
		out.Phase = c.Phase
	}
	out.Metrics = existing.Metrics.Merge(c.Metrics)
	out.UpdatedAt = now
	return out
}

// SaveEntry creates or updates the entry for c.Date. There is at most one
// entry per date: saving the same date twice updates in place.
func (s *Service) SaveEntry(ctx context.Context, c models.Candidate) Result {
	ctx = context.WithoutCancel(ctx)
	if err := c.Validate(); err != nil {
		return s.fail("save", err)
	}

	s.saveMu.Lock()
	e, err := s.upsertByDate(ctx, c)
	s.saveMu.Unlock()
	if err != nil {
		return s.fail("save", err)
	}

	s.succeed(ctx, "save", EventSaved, e.Date)
	return Result{Success: true, Data: &e}
}

func (s *Service) upsertByDate(ctx context.Context, c models.Candidate) (models.Entry, error) {
	now := s.now().UTC()
	existing, err := s.repo.GetByDate(ctx, c.Date)
	switch {
	case err == nil:
		merged := MergeEntry(*existing, c, now)
		if err := s.repo.Update(ctx, merged.ID, merged); err != nil {
			return models.Entry{}, err
		}
		return merged, nil
	case errors.Is(err, apperr.ErrNotFound):
		e := models.Entry{
			Date:      c.Date,
			Phase:     c.Phase,
			Metrics:   c.Metrics.Clone(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		id, err := s.repo.Insert(ctx, e)
		if err != nil {
			return models.Entry{}, err
		}
		e.ID = id
		return e, nil
	default:
		return models.Entry{}, err
	}
}

// DeleteEntry removes the entry with the given id.
func (s *Service) DeleteEntry(ctx context.Context, id int64) Result {
	ctx = context.WithoutCancel(ctx)
	s.saveMu.Lock()
	e, err := s.repo.GetByID(ctx, id)
	if err == nil {
		err = s.repo.DeleteByID(ctx, id)
	}
	s.saveMu.Unlock()
	if err != nil {
		return s.fail("delete", err)
	}
	s.succeed(ctx, "delete", EventDeleted, e.Date)
	return Result{Success: true, Data: e}
}

// LoadEntries refreshes the cache from the repository and returns every
// entry, newest first. On failure it returns an empty slice and records the
// error, available from LastError.
func (s *Service) LoadEntries(ctx context.Context) []models.Entry {
	entries, err := s.repo.All(context.WithoutCancel(ctx))
	if err != nil {
		s.cache.SetError(err)
		s.log.Error("load entries", slog.String("error", err.Error()))
		return []models.Entry{}
	}
	s.cache.Replace(entries)
	if s.recorder != nil {
		s.recorder.SetEntryCount(len(entries))
	}
	return entries
}

// List reads every entry, newest first, and refreshes the cache. Unlike
// LoadEntries it reports the failure to the caller.
func (s *Service) List(ctx context.Context) ([]models.Entry, error) {
	entries, err := s.repo.All(context.WithoutCancel(ctx))
	if err != nil {
		s.cache.SetError(err)
		return nil, err
	}
	s.cache.Replace(entries)
	if s.recorder != nil {
		s.recorder.SetEntryCount(len(entries))
	}
	return entries, nil
}

// LastError returns the error recorded by the most recent failed call.
func (s *Service) LastError() error { return s.cache.LastError() }

// Entries returns the cached entries, newest first.
func (s *Service) Entries() []models.Entry { return s.cache.Snapshot() }

// EntryByDate returns the cached entry for date.
func (s *Service) EntryByDate(date string) (models.Entry, bool) {
	got := s.cache.Filter(func(e models.Entry) bool { return e.Date == date })
	if len(got) == 0 {
		return models.Entry{}, false
	}
	return got[0], true
}

// EntriesByPhase returns the cached entries recorded against phase.
func (s *Service) EntriesByPhase(phase models.Phase) []models.Entry {
	return s.cache.Filter(func(e models.Entry) bool { return e.Phase == phase })
}

// EntriesInRange returns the cached entries dated within [start, end].
func (s *Service) EntriesInRange(start, end string) []models.Entry {
	return s.cache.Filter(func(e models.Entry) bool { return e.Date >= start && e.Date <= end })
}

// Get reads one entry by id from the repository.
func (s *Service) Get(ctx context.Context, id int64) (*models.Entry, error) {
	return s.repo.GetByID(context.WithoutCancel(ctx), id)
}

// GetByDate reads the entry for date from the repository.
func (s *Service) GetByDate(ctx context.Context, date string) (*models.Entry, error) {
	if _, err := models.ParseDate(date); err != nil {
		return nil, apperr.NewValidationError("date", "must be a YYYY-MM-DD date")
	}
	return s.repo.GetByDate(context.WithoutCancel(ctx), date)
}

// ListByPhase reads the entries of one phase from the repository.
func (s *Service) ListByPhase(ctx context.Context, phase models.Phase) ([]models.Entry, error) {
	if !phase.Valid() {
		return nil, apperr.NewValidationError("phase", "must be one of awareness, clarity, strength, ownership")
	}
	return s.repo.ListByPhase(context.WithoutCancel(ctx), phase)
}

// ListByDateRange reads the entries dated within [start, end].
func (s *Service) ListByDateRange(ctx context.Context, start, end string) ([]models.Entry, error) {
	if _, err := models.ParseDate(start); err != nil {
		return nil, apperr.NewValidationError("from", "must be a YYYY-MM-DD date")
	}
	if _, err := models.ParseDate(end); err != nil {
		return nil, apperr.NewValidationError("to", "must be a YYYY-MM-DD date")
	}
	if start > end {
		return nil, apperr.NewValidationError("from", "must not be after to")
	}
	return s.repo.ListByDateRange(context.WithoutCancel(ctx), start, end)
}

// ExportData serializes every stored entry as the canonical JSON export.
func (s *Service) ExportData(ctx context.Context) ([]byte, error) {
	entries, err := s.repo.All(context.WithoutCancel(ctx))
	if err != nil {
		s.cache.SetError(err)
		return nil, err
	}
	return codec.EncodeJSON(entries)
}

// ExportXLSX renders every stored entry as a spreadsheet.
func (s *Service) ExportXLSX(ctx context.Context) ([]byte, error) {
	entries, err := s.repo.All(context.WithoutCancel(ctx))
	if err != nil {
		s.cache.SetError(err)
		return nil, err
	}
	return codec.EncodeXLSX(entries)
}

// ExportFilename names today's JSON export.
func (s *Service) ExportFilename() string {
	return codec.ExportFilename(s.now(), "json")
}

// ImportData applies an export payload. Records are matched by id: a known id
// is overwritten, anything else is inserted. The import is all-or-nothing;
// on failure stored data is unchanged.
func (s *Service) ImportData(ctx context.Context, data []byte) Result {
	ctx = context.WithoutCancel(ctx)
	recs, err := codec.DecodeJSON(data)
	if err != nil {
		return s.fail("import", err)
	}

	now := s.now().UTC()
	entries := make([]models.Entry, 0, len(recs))
	dates := make(map[string]int, len(recs))
	ids := make(map[int64]int, len(recs))
	for i, r := range recs {
		field := fmt.Sprintf("entries[%d]", i)
		e := r.Entry(now)
		if err := e.Validate(); err != nil {
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				err = ve.Prefix(field)
			}
			return s.fail("import", err)
		}
		if j, dup := dates[e.Date]; dup {
			return s.fail("import", apperr.NewValidationError(field+".date",
				fmt.Sprintf("repeats the date of entries[%d]", j)))
		}
		dates[e.Date] = i
		if e.ID != 0 {
			if j, dup := ids[e.ID]; dup {
				return s.fail("import", apperr.NewValidationError(field+".id",
					fmt.Sprintf("repeats the id of entries[%d]", j)))
			}
			ids[e.ID] = i
		}
		entries = append(entries, e)
	}

	s.saveMu.Lock()
	err = s.repo.BulkUpsert(ctx, entries)
	s.saveMu.Unlock()
	if err != nil {
		return s.fail("import", err)
	}

	if s.recorder != nil {
		s.recorder.ObserveImport(len(entries))
	}
	s.succeed(ctx, "import", EventImported, "")
	return Result{Success: true, Count: len(entries)}
}

// ClearAll deletes every entry. It cannot be undone.
func (s *Service) ClearAll(ctx context.Context) Result {
	ctx = context.WithoutCancel(ctx)
	s.saveMu.Lock()
	n, err := s.repo.DeleteAll(ctx)
	s.saveMu.Unlock()
	if err != nil {
		return s.fail("clear", err)
	}
	s.succeed(ctx, "clear", EventCleared, "")
	return Result{Success: true, Count: int(n)}
}

func (s *Service) succeed(ctx context.Context, op, event, date string) {
	if s.recorder != nil {
		s.recorder.ObserveWrite(op, nil)
	}
	s.LoadEntries(ctx)
	if s.notifier != nil {
		s.notifier.PublishEntryEvent(event, date)
	}
}

func (s *Service) fail(op string, err error) Result {
	s.cache.SetError(err)
	if s.recorder != nil {
		s.recorder.ObserveWrite(op, err)
	}
	if errors.Is(err, apperr.ErrStorage) {
		s.log.Error("entry write failed", slog.String("op", op), slog.String("error", err.Error()))
	} else {
		s.log.Debug("entry write rejected", slog.String("op", op), slog.String("error", err.Error()))
	}
	return Result{Error: err.Error(), err: err}
}
