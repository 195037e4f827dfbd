package entryservice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wellbeing/internal/apperr"
	"github.com/starford/wellbeing/internal/entryservice"
	"github.com/starford/wellbeing/internal/models"
	"github.com/starford/wellbeing/internal/store"
	"github.com/starford/wellbeing/internal/testutil"
)

var t0 = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

type recordedEvent struct{ kind, date string }

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) PublishEntryEvent(kind, date string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{kind, date})
}

type fakeRecorder struct {
	writes   map[string]int
	failures map[string]int
	imported int
	count    int
}

func newRecorder() *fakeRecorder {
	return &fakeRecorder{writes: map[string]int{}, failures: map[string]int{}}
}

func (r *fakeRecorder) ObserveWrite(op string, err error) {
	if err != nil {
		r.failures[op]++
		return
	}
	r.writes[op]++
}
func (r *fakeRecorder) ObserveImport(n int) { r.imported += n }
func (r *fakeRecorder) SetEntryCount(n int) { r.count = n }

func newService(t *testing.T, opts ...entryservice.Option) *entryservice.Service {
	t.Helper()
	opts = append([]entryservice.Option{entryservice.WithClock(testutil.FixedClock(t0, time.Minute))}, opts...)
	svc, _ := testutil.TestService(t, opts...)
	return svc
}

func cand(date string, phase models.Phase, m models.Metrics) models.Candidate {
	return models.Candidate{Date: date, Phase: phase, Metrics: m}
}

func TestSaveEntry_CreatesThenUpdatesSameDate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseAwareness, models.Uniform(5)))
	require.True(t, first.Success, first.Error)
	require.NotNil(t, first.Data)
	assert.NotZero(t, first.Data.ID)
	assert.True(t, first.Data.CreatedAt.Equal(first.Data.UpdatedAt))

	second := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseClarity, models.Metrics{Agency: models.Score(9)}))
	require.True(t, second.Success, second.Error)

	assert.Equal(t, first.Data.ID, second.Data.ID, "id is preserved")
	assert.True(t, second.Data.CreatedAt.Equal(first.Data.CreatedAt), "createdAt is preserved")
	assert.True(t, second.Data.UpdatedAt.After(first.Data.UpdatedAt), "updatedAt moves forward")
	assert.Equal(t, models.PhaseClarity, second.Data.Phase)

	agency, _ := second.Data.Metrics.Get(models.MetricAgency)
	clarity, _ := second.Data.Metrics.Get(models.MetricClarity)
	assert.Equal(t, 9.0, agency, "defined value wins")
	assert.Equal(t, 5.0, clarity, "undefined value is kept")

	all := svc.LoadEntries(ctx)
	require.Len(t, all, 1)
}

func TestSaveEntry_IdempotentByDate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c := cand("2024-01-08", models.PhaseStrength, models.Uniform(7))

	a := svc.SaveEntry(ctx, c)
	b := svc.SaveEntry(ctx, c)
	require.True(t, a.Success)
	require.True(t, b.Success)

	entries := svc.LoadEntries(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, a.Data.ID, entries[0].ID)
	assert.True(t, entries[0].Metrics.Equal(c.Metrics))
}

func TestSaveEntry_ConcurrentSameDateYieldsOneEntry(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			res := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseAwareness, models.Uniform(v)))
			assert.True(t, res.Success, res.Error)
		}(float64(i))
	}
	wg.Wait()

	assert.Len(t, svc.LoadEntries(ctx), 1)
}

func TestSaveEntry_ValidationFailure(t *testing.T) {
	rec := newRecorder()
	svc := newService(t, entryservice.WithRecorder(rec))

	res := svc.SaveEntry(context.Background(), cand("2024-01-08", models.PhaseAwareness, models.Metrics{Agency: models.Score(10.5)}))
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Error)
	assert.ErrorIs(t, res.Err(), apperr.ErrValidation)
	assert.ErrorIs(t, svc.LastError(), apperr.ErrValidation)
	assert.Equal(t, 1, rec.failures["save"])
	assert.Empty(t, svc.LoadEntries(context.Background()))
}

func TestSaveEntry_CancelledContextStillCompletes(t *testing.T) {
	svc := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseAwareness, models.Uniform(5)))
	assert.True(t, res.Success, res.Error)
}

func TestMergeEntry(t *testing.T) {
	existing := models.Entry{
		ID: 3, Date: "2024-01-08", Phase: models.PhaseAwareness,
		Metrics:   models.Metrics{Agency: models.Score(2), Clarity: models.Score(3)},
		CreatedAt: t0, UpdatedAt: t0,
	}
	later := t0.Add(time.Hour)
	got := entryservice.MergeEntry(existing, models.Candidate{Date: "2024-01-08", Metrics: models.Metrics{Clarity: models.Score(0)}}, later)

	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, models.PhaseAwareness, got.Phase, "empty phase does not overwrite")
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.UpdatedAt.Equal(later))
	v, _ := got.Metrics.Get(models.MetricClarity)
	assert.Equal(t, 0.0, v, "a defined zero overrides")
	v, _ = got.Metrics.Get(models.MetricAgency)
	assert.Equal(t, 2.0, v)
}

func TestDeleteEntry(t *testing.T) {
	n := &fakeNotifier{}
	svc := newService(t, entryservice.WithNotifier(n))
	ctx := context.Background()

	saved := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseAwareness, models.Uniform(5)))
	require.True(t, saved.Success)

	res := svc.DeleteEntry(ctx, saved.Data.ID)
	require.True(t, res.Success, res.Error)
	assert.Empty(t, svc.Entries())

	missing := svc.DeleteEntry(ctx, saved.Data.ID)
	assert.False(t, missing.Success)
	assert.ErrorIs(t, missing.Err(), apperr.ErrNotFound)

	assert.Equal(t, []recordedEvent{
		{entryservice.EventSaved, "2024-01-08"},
		{entryservice.EventDeleted, "2024-01-08"},
	}, n.events)
}

// pausingRepo holds GetByID open until release is closed.
type pausingRepo struct {
	store.Repository
	looked  chan struct{}
	release chan struct{}
}

func (r *pausingRepo) GetByID(ctx context.Context, id int64) (*models.Entry, error) {
	e, err := r.Repository.GetByID(ctx, id)
	close(r.looked)
	<-r.release
	return e, err
}

func TestDeleteEntry_NotInterleavedWithImport(t *testing.T) {
	_, db := testutil.TestService(t)
	repo := &pausingRepo{Repository: db, looked: make(chan struct{}), release: make(chan struct{})}
	n := &fakeNotifier{}
	svc := entryservice.NewService(repo, entryservice.WithNotifier(n), entryservice.WithLogger(testutil.DiscardLogger()))
	ctx := context.Background()

	saved := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseAwareness, models.Uniform(5)))
	require.True(t, saved.Success)

	deleted := make(chan entryservice.Result, 1)
	go func() { deleted <- svc.DeleteEntry(ctx, saved.Data.ID) }()
	<-repo.looked

	// The import rewrites the same id under another date.
	imported := make(chan entryservice.Result, 1)
	payload := []byte(`[{"id":1,"date":"2024-01-09","phase":"clarity","metrics":{"agency":7}}]`)
	go func() { imported <- svc.ImportData(ctx, payload) }()

	select {
	case <-imported:
		t.Fatal("import ran while the delete was between lookup and removal")
	case <-time.After(50 * time.Millisecond):
	}
	close(repo.release)

	del := <-deleted
	require.True(t, del.Success, del.Error)
	imp := <-imported
	require.True(t, imp.Success, imp.Error)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Contains(t, n.events, recordedEvent{entryservice.EventDeleted, "2024-01-08"})
	e, ok := svc.EntryByDate("2024-01-09")
	require.True(t, ok, "the import lands after the delete")
	assert.Equal(t, models.PhaseClarity, e.Phase)
}

func TestCacheReads(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, c := range []models.Candidate{
		cand("2024-01-01", models.PhaseAwareness, models.Uniform(5)),
		cand("2024-01-05", models.PhaseClarity, models.Uniform(6)),
		cand("2024-01-09", models.PhaseClarity, models.Uniform(7)),
	} {
		require.True(t, svc.SaveEntry(ctx, c).Success)
	}

	all := svc.Entries()
	require.Len(t, all, 3)
	assert.Equal(t, "2024-01-09", all[0].Date, "newest first")

	e, ok := svc.EntryByDate("2024-01-05")
	require.True(t, ok)
	assert.Equal(t, models.PhaseClarity, e.Phase)
	_, ok = svc.EntryByDate("2024-02-01")
	assert.False(t, ok)

	assert.Len(t, svc.EntriesByPhase(models.PhaseClarity), 2)
	assert.Len(t, svc.EntriesInRange("2024-01-01", "2024-01-05"), 2)

	// Mutating a returned entry must not leak into the cache.
	all[0].Metrics.Set(models.MetricAgency, 0)
	again, _ := svc.EntryByDate("2024-01-09")
	v, _ := again.Metrics.Get(models.MetricAgency)
	assert.Equal(t, 7.0, v)
}

func TestReadThrough(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	saved := svc.SaveEntry(ctx, cand("2024-01-08", models.PhaseOwnership, models.Uniform(4)))
	require.True(t, saved.Success)

	got, err := svc.Get(ctx, saved.Data.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-08", got.Date)

	_, err = svc.GetByDate(ctx, "2024-01-09")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.GetByDate(ctx, "not-a-date")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	list, err := svc.ListByPhase(ctx, models.PhaseOwnership)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = svc.ListByPhase(ctx, "bogus")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ListByDateRange(ctx, "2024-01-09", "2024-01-01")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExportImport_RoundTripOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	src := newService(t)
	for _, c := range []models.Candidate{
		cand("2024-01-01", models.PhaseAwareness, models.Uniform(5)),
		cand("2024-01-08", models.PhaseClarity, models.Metrics{Agency: models.Score(10), Clarity: models.Score(0)}),
	} {
		require.True(t, src.SaveEntry(ctx, c).Success)
	}
	data, err := src.ExportData(ctx)
	require.NoError(t, err)

	dst := newService(t)
	res := dst.ImportData(ctx, data)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, res.Count)

	want := src.LoadEntries(ctx)
	got := dst.LoadEntries(ctx)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Date, got[i].Date)
		assert.Equal(t, want[i].Phase, got[i].Phase)
		assert.True(t, want[i].Metrics.Equal(got[i].Metrics), "metrics of %s", want[i].Date)
	}
}

func TestImport_SameIDFullyReplaces(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	saved := svc.SaveEntry(ctx, cand("2024-01-01", models.PhaseAwareness, models.Uniform(5)))
	require.True(t, saved.Success)
	require.Equal(t, int64(1), saved.Data.ID)

	payload := `[{"id":1,"date":"2024-01-02","phase":"strength","metrics":{"agency":9},
		"createdAt":"2023-12-31T00:00:00Z","updatedAt":"2023-12-31T00:00:00Z"}]`
	res := svc.ImportData(ctx, []byte(payload))
	require.True(t, res.Success, res.Error)

	entries := svc.LoadEntries(ctx)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, int64(1), e.ID)
	assert.Equal(t, "2024-01-02", e.Date)
	assert.Equal(t, models.PhaseStrength, e.Phase)
	assert.Equal(t, 1, e.Metrics.Answered(), "fields are replaced, not merged")
}

func TestImport_AllOrNothing(t *testing.T) {
	rec := newRecorder()
	svc := newService(t, entryservice.WithRecorder(rec))
	ctx := context.Background()
	require.True(t, svc.SaveEntry(ctx, cand("2024-01-01", models.PhaseAwareness, models.Uniform(5))).Success)

	tests := map[string]struct {
		payload string
		target  error
	}{
		"not an array": {`{"date":"2024-01-02"}`, apperr.ErrImportFormat},
		"bad score":    {`[{"date":"2024-01-02","phase":"clarity","metrics":{}},{"date":"2024-01-03","phase":"clarity","metrics":{"agency":11}}]`, apperr.ErrValidation},
		"repeat date":  {`[{"date":"2024-01-02","phase":"clarity","metrics":{}},{"date":"2024-01-02","phase":"clarity","metrics":{}}]`, apperr.ErrValidation},
		"repeat id":    {`[{"id":7,"date":"2024-01-02","phase":"clarity","metrics":{}},{"id":7,"date":"2024-01-03","phase":"clarity","metrics":{}}]`, apperr.ErrValidation},
		"stored date":  {`[{"date":"2024-01-02","phase":"clarity","metrics":{}},{"date":"2024-01-01","phase":"clarity","metrics":{}}]`, apperr.ErrConflict},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := svc.ImportData(ctx, []byte(tt.payload))
			assert.False(t, res.Success)
			assert.True(t, errors.Is(res.Err(), tt.target), "err = %v", res.Err())

			entries := svc.LoadEntries(ctx)
			require.Len(t, entries, 1, "stored data must be unchanged")
			assert.Equal(t, "2024-01-01", entries[0].Date)
		})
	}
	assert.Zero(t, rec.imported)
}

func TestImport_ValidationNamesTheRecord(t *testing.T) {
	svc := newService(t)
	res := svc.ImportData(context.Background(), []byte(`[{"date":"2024-01-02","phase":"clarity","metrics":{}},{"date":"2024-01-03","phase":"clarity","metrics":{"agency":-1}}]`))
	var ve *apperr.ValidationError
	require.ErrorAs(t, res.Err(), &ve)
	assert.Contains(t, ve.Fields, "entries[1].metrics.agency")
}

func TestClearAll(t *testing.T) {
	n := &fakeNotifier{}
	rec := newRecorder()
	svc := newService(t, entryservice.WithNotifier(n), entryservice.WithRecorder(rec))
	ctx := context.Background()
	require.True(t, svc.SaveEntry(ctx, cand("2024-01-01", models.PhaseAwareness, models.Uniform(5))).Success)
	require.True(t, svc.SaveEntry(ctx, cand("2024-01-02", models.PhaseAwareness, models.Uniform(5))).Success)

	res := svc.ClearAll(ctx)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.Count)
	assert.Empty(t, svc.Entries())
	assert.Equal(t, 0, rec.count)
	assert.Equal(t, entryservice.EventCleared, n.events[len(n.events)-1].kind)
}

func TestExportFilename(t *testing.T) {
	svc := newService(t)
	assert.Equal(t, "wellbeing-data-2024-01-08.json", svc.ExportFilename())
}

func TestExportXLSX(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	require.True(t, svc.SaveEntry(ctx, cand("2024-01-01", models.PhaseAwareness, models.Uniform(5))).Success)

	data, err := svc.ExportXLSX(ctx)
	require.NoError(t, err)
	// XLSX files are zip archives.
	assert.Equal(t, []byte("PK"), data[:2])
}

func TestLoadEntries_RecordsStorageFailure(t *testing.T) {
	svc, db := testutil.TestService(t)
	require.NoError(t, db.Close())

	entries := svc.LoadEntries(context.Background())
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assert.ErrorIs(t, svc.LastError(), apperr.ErrStorage)

	res := svc.SaveEntry(context.Background(), cand("2024-01-01", models.PhaseAwareness, models.Uniform(5)))
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err(), apperr.ErrStorage)
}
