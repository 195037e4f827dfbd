package inbox_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wellbeing/internal/inbox"
	"github.com/starford/wellbeing/internal/testutil"
)

const payload = `[
  {"date": "2024-01-08", "phase": "clarity", "metrics": {"agency": 7, "hope": 8}},
  {"date": "2024-01-09", "phase": "clarity", "metrics": {"agency": 6}}
]`

var fixedNow = func() time.Time { return time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC) }

func TestScan_ImportsAndArchives(t *testing.T) {
	svc, _ := testutil.TestService(t)
	dir, files := testutil.TestDir(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "week1.json"), []byte(payload), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"nope":`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0o644))

	in := inbox.New(files, svc, inbox.WithLogger(testutil.DiscardLogger()), inbox.WithClock(fixedNow))
	outcomes, err := in.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "broken.json", outcomes[0].Path)
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, "week1.json", outcomes[1].Path)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, 2, outcomes[1].Count)

	assert.Len(t, svc.LoadEntries(context.Background()), 2)

	assert.FileExists(t, filepath.Join(dir, "processed", "20240110T093000-week1.json"))
	assert.FileExists(t, filepath.Join(dir, "failed", "20240110T093000-broken.json"))
	note, err := os.ReadFile(filepath.Join(dir, "failed", "20240110T093000-broken.json.error"))
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(string(note)))

	assert.NoFileExists(t, filepath.Join(dir, "week1.json"))
	assert.NoFileExists(t, filepath.Join(dir, "broken.json"))
	assert.FileExists(t, filepath.Join(dir, "readme.txt"))
}

func TestScan_EmptyInbox(t *testing.T) {
	svc, _ := testutil.TestService(t)
	_, files := testutil.TestDir(t)

	outcomes, err := inbox.New(files, svc, inbox.WithLogger(testutil.DiscardLogger())).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestImportFile_InvalidEntryRollsBack(t *testing.T) {
	svc, _ := testutil.TestService(t)
	dir, files := testutil.TestDir(t)

	bad := `[{"date":"2024-01-08","phase":"clarity","metrics":{}},{"date":"2024-01-09","phase":"clarity","metrics":{"agency":11}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0o644))

	o := inbox.New(files, svc, inbox.WithLogger(testutil.DiscardLogger())).ImportFile(context.Background(), "bad.json")
	require.Error(t, o.Err)
	assert.Contains(t, o.Err.Error(), "entries[1].metrics.agency")
	assert.Empty(t, svc.LoadEntries(context.Background()))
}

func TestWatch_ImportsNewFiles(t *testing.T) {
	svc, _ := testutil.TestService(t)
	dir, files := testutil.TestDir(t)

	var (
		mu   sync.Mutex
		seen []inbox.Outcome
	)
	in := inbox.New(files, svc,
		inbox.WithLogger(testutil.DiscardLogger()),
		inbox.WithDebounce(50*time.Millisecond),
		inbox.WithCallback(func(o inbox.Outcome) {
			mu.Lock()
			seen = append(seen, o)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- in.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, files.Write("drop.json", []byte(payload)))

	testutil.Eventually(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	mu.Lock()
	assert.NoError(t, seen[0].Err)
	assert.Equal(t, "drop.json", seen[0].Path)
	mu.Unlock()

	_, ok := svc.EntryByDate("2024-01-08")
	assert.True(t, ok)
	assert.NoFileExists(t, filepath.Join(dir, "drop.json"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
