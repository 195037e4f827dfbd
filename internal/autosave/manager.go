// Package autosave keeps in-progress drafts per date and writes them back
// through the entry service after a quiet period.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/models"
)

// DefaultDelay is the quiet period before a changed draft is saved.
const DefaultDelay = 2 * time.Second

// Backend loads stored entries and saves drafts. *entryservice.Service satisfies it.
type Backend interface {
	GetByDate(ctx context.Context, date string) (*models.Entry, error)
	SaveEntry(ctx context.Context, c models.Candidate) entryservice.Result
}

// Recorder counts flushes.
type Recorder interface {
	ObserveFlush(err error)
}

// Draft is the editable state of one day's entry.
type Draft struct {
	Date      string         `json:"date"`
	Phase     models.Phase   `json:"phase"`
	Metrics   models.Metrics `json:"metrics"`
	EntryID   int64          `json:"entryId,omitempty"`
	Dirty     bool           `json:"dirty"`
	Progress  float64        `json:"progress"`
	SavedAt   *time.Time     `json:"savedAt,omitempty"`
	LastError string         `json:"lastError,omitempty"`
}

type draftState struct {
	draft    Draft
	timer    *time.Timer
	rev      uint64
	savedRev uint64
	lastErr  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithDelay sets the quiet period. Non-positive values keep DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithRecorder registers a flush counter.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// Manager owns the open drafts. Every change cancels the pending save for
// that date and schedules a new one; when the timer fires exactly one save
// of the current draft is issued.
type Manager struct {
	backend  Backend
	delay    time.Duration
	log      *slog.Logger
	recorder Recorder

	mu     sync.Mutex
	drafts map[string]*draftState
	closed bool
	group  singleflight.Group
}

// NewManager creates a draft manager writing through backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		delay:   DefaultDelay,
		log:     slog.Default(),
		drafts:  make(map[string]*draftState),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open returns the draft for date, seeding it from the stored entry or,
// when there is none, from the default metrics.
func (m *Manager) Open(ctx context.Context, date string) (Draft, error) {
	if _, err := models.ParseDate(date); err != nil {
		return Draft{}, apperr.NewValidationError("date", "must be a YYYY-MM-DD date")
	}

	m.mu.Lock()
	if st, ok := m.drafts[date]; ok {
		d := st.snapshot()
		m.mu.Unlock()
		return d, nil
	}
	m.mu.Unlock()

	seed := Draft{Date: date, Phase: models.PhaseAwareness, Metrics: models.DefaultMetrics()}
	existing, err := m.backend.GetByDate(ctx, date)
	switch {
	case err == nil:
		seed.Phase = existing.Phase
		seed.Metrics = existing.Metrics.Clone()
		seed.EntryID = existing.ID
		saved := existing.UpdatedAt
		seed.SavedAt = &saved
	case !errors.Is(err, apperr.ErrNotFound):
		return Draft{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.drafts[date]
	if !ok {
		st = &draftState{draft: seed}
		m.drafts[date] = st
	}
	return st.snapshot(), nil
}

// SetMetric changes one score of the draft for date and reschedules the save.
func (m *Manager) SetMetric(ctx context.Context, date string, key models.MetricKey, value float64) (Draft, error) {
	if _, ok := models.MetricByKey(key); !ok {
		return Draft{}, apperr.NewValidationError("metric", fmt.Sprintf("unknown metric %q", key))
	}
	probe := models.Metrics{}
	probe.Set(key, value)
	if err := (models.Candidate{Date: date, Phase: models.PhaseAwareness, Metrics: probe}).Validate(); err != nil {
		return Draft{}, err
	}
	return m.change(ctx, date, func(d *Draft) { d.Metrics.Set(key, value) })
}

// SetPhase changes the phase of the draft for date and reschedules the save.
func (m *Manager) SetPhase(ctx context.Context, date string, phase models.Phase) (Draft, error) {
	if !phase.Valid() {
		return Draft{}, apperr.NewValidationError("phase", "must be one of awareness, clarity, strength, ownership")
	}
	return m.change(ctx, date, func(d *Draft) { d.Phase = phase })
}

func (m *Manager) change(ctx context.Context, date string, apply func(*Draft)) (Draft, error) {
	if _, err := m.Open(ctx, date); err != nil {
		return Draft{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.drafts[date]
	if !ok {
		return Draft{}, apperr.ErrNotFound
	}
	apply(&st.draft)
	st.draft.Dirty = true
	st.rev++
	m.scheduleLocked(date, st)
	return st.snapshot(), nil
}

func (m *Manager) scheduleLocked(date string, st *draftState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	if m.closed {
		st.timer = nil
		return
	}
	var t *time.Timer
	t = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		if st.timer == t {
			st.timer = nil
		}
		m.mu.Unlock()
		if _, err := m.flush(context.Background(), date); err != nil {
			m.log.Warn("autosave failed", slog.String("date", date), slog.String("error", err.Error()))
		}
	})
	st.timer = t
}

// Flush saves the draft for date now, cancelling any pending timer. A draft
// with no unsaved changes is not written again.
func (m *Manager) Flush(ctx context.Context, date string) (Draft, error) {
	if err := m.flushNow(ctx, date); err != nil {
		return m.current(date), err
	}
	return m.current(date), nil
}

// flushNow saves until the revision current at call time is stored. A call
// that joins a save already in flight for an older revision saves again.
func (m *Manager) flushNow(ctx context.Context, date string) error {
	m.mu.Lock()
	st, ok := m.drafts[date]
	if !ok {
		m.mu.Unlock()
		return apperr.ErrNotFound
	}
	target := st.rev
	m.mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		m.mu.Lock()
		if cur, ok := m.drafts[date]; !ok || cur != st || !st.draft.Dirty || st.savedRev >= target {
			m.mu.Unlock()
			return nil
		}
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		m.mu.Unlock()

		if _, err := m.flush(ctx, date); err != nil {
			return err
		}
	}
	return nil
}

// flush writes the current draft for date. Concurrent flushes of the same
// date share one save.
func (m *Manager) flush(ctx context.Context, date string) (entryservice.Result, error) {
	v, err, _ := m.group.Do(date, func() (any, error) {
		m.mu.Lock()
		st, ok := m.drafts[date]
		if !ok || !st.draft.Dirty {
			m.mu.Unlock()
			return entryservice.Result{Success: true}, nil
		}
		rev := st.rev
		c := models.Candidate{Date: date, Phase: st.draft.Phase, Metrics: st.draft.Metrics.Clone()}
		m.mu.Unlock()

		res := m.backend.SaveEntry(ctx, c)
		saveErr := resultErr(res)

		m.mu.Lock()
		if cur, ok := m.drafts[date]; ok && cur == st {
			if res.Success {
				st.lastErr = nil
				st.draft.LastError = ""
				st.savedRev = rev
				if res.Data != nil {
					st.draft.EntryID = res.Data.ID
					saved := res.Data.UpdatedAt
					st.draft.SavedAt = &saved
				}
				// Changes made while the save was in flight stay dirty.
				if st.rev == rev {
					st.draft.Dirty = false
				}
			} else {
				st.lastErr = saveErr
				st.draft.LastError = saveErr.Error()
			}
			// A timer that fired during this save joined it and saved the
			// older revision, so the newer one gets its own timer.
			if st.rev != rev && st.timer == nil {
				m.scheduleLocked(date, st)
			}
		}
		m.mu.Unlock()

		if m.recorder != nil {
			m.recorder.ObserveFlush(saveErr)
		}
		return res, saveErr
	})
	res, _ := v.(entryservice.Result)
	return res, err
}

// Discard drops the draft for date and cancels its pending save.
func (m *Manager) Discard(date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.drafts[date]
	if !ok {
		return false
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	delete(m.drafts, date)
	return true
}

// Get returns the draft for date if one is open.
func (m *Manager) Get(date string) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.drafts[date]
	if !ok {
		return Draft{}, false
	}
	return st.snapshot(), true
}

// Progress is the share of metrics answered on the draft for date, 0 to 1.
func (m *Manager) Progress(date string) float64 {
	d, ok := m.Get(date)
	if !ok {
		return 0
	}
	return d.Progress
}

// LastError returns the error of the most recent failed save for date.
func (m *Manager) LastError(date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.drafts[date]; ok {
		return st.lastErr
	}
	return nil
}

// Pending reports whether a save is scheduled for date.
func (m *Manager) Pending(date string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.drafts[date]
	return ok && st.timer != nil && st.draft.Dirty
}

// FlushAll saves every draft with unsaved changes and returns the failures
// joined. It is meant for shutdown, before Close.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.Lock()
	dates := make([]string, 0, len(m.drafts))
	for date, st := range m.drafts {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		if st.draft.Dirty {
			dates = append(dates, date)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, date := range dates {
		if err := m.flushNow(ctx, date); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			errs = append(errs, fmt.Errorf("flush %s: %w", date, err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every pending timer without saving. Later changes are kept in
// memory but never scheduled.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, st := range m.drafts {
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
	}
}

func resultErr(res entryservice.Result) error {
	if res.Success {
		return nil
	}
	if err := res.Err(); err != nil {
		return err
	}
	return errors.New(res.Error)
}

func (m *Manager) current(date string) Draft {
	d, _ := m.Get(date)
	return d
}

func (st *draftState) snapshot() Draft {
	d := st.draft
	d.Metrics = d.Metrics.Clone()
	d.Progress = float64(d.Metrics.Answered()) / float64(models.MetricCount)
	if d.SavedAt != nil {
		t := *d.SavedAt
		d.SavedAt = &t
	}
	return d
}
