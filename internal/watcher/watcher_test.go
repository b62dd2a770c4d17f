package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdd/internal/slogutil"
	"cdd/internal/testutil"
)

func TestChangeTypeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "modified", Modified.String())
	assert.Equal(t, "deleted", Deleted.String())
	assert.Equal(t, "unknown", ChangeType(99).String())
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{Root: "/repo"}, slogutil.NewDiscardLogger())
	assert.Equal(t, DefaultPollInterval, w.config.PollInterval)
	assert.Equal(t, DefaultDebounce, w.config.Debounce)
}

func TestDiff(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := time.Unix(2000, 0)
	prev := snapshot{
		"/r/a.ts": {size: 1, modTime: t0},
		"/r/b.ts": {size: 2, modTime: t0},
		"/r/c.ts": {size: 3, modTime: t0},
		"/r/d.ts": {size: 4, modTime: t0},
	}
	next := snapshot{
		"/r/a.ts": {size: 1, modTime: t0},
		"/r/b.ts": {size: 5, modTime: t0},
		"/r/c.ts": {size: 3, modTime: t1},
		"/r/e.ts": {size: 1, modTime: t1},
	}

	assert.Equal(t, []Change{
		{Type: Modified, Path: "/r/b.ts"},
		{Type: Modified, Path: "/r/c.ts"},
		{Type: Deleted, Path: "/r/d.ts"},
		{Type: Created, Path: "/r/e.ts"},
	}, diff(prev, next))
	assert.Empty(t, diff(prev, prev))
}

func TestScan_RespectsExcludeAndExtra(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{
		"src/a.ts":          "a",
		"node_modules/x.js": "x",
		"tsconfig.json":     "{}",
		"README.md":         "",
	})

	w := New(Config{
		Root:    p.Root,
		Exclude: []string{"node_modules"},
		Extra:   p.Paths("tsconfig.json", "package.json"),
	}, slogutil.NewDiscardLogger())

	snap, err := w.scan()
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, p.Path("src/a.ts"))
	assert.Contains(t, snap, p.Path("tsconfig.json"))
}

func TestDebouncer_Batches(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]Change
	)
	d := NewDebouncer(30*time.Millisecond, func(c []Change) {
		mu.Lock()
		batches = append(batches, c)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		d.Add(Change{Path: "a.ts"})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
}

func TestDebouncer_CancelAndFlush(t *testing.T) {
	var got []Change
	d := NewDebouncer(time.Hour, func(c []Change) { got = c })

	d.Add(Change{Path: "a.ts"})
	assert.Equal(t, 1, d.Pending())
	d.Cancel()
	assert.Zero(t, d.Pending())
	d.Flush()
	assert.Nil(t, got)

	d.Add(Change{Path: "b.ts"}, Change{Path: "c.ts"})
	d.Flush()
	assert.Len(t, got, 2)
	assert.Zero(t, d.Pending())
}

func TestRun_RerunsOnChangeAndCancelsPrevious(t *testing.T) {
	p := testutil.NewProject(t, map[string]string{"src/a.ts": "a"})
	w := New(Config{
		Root:         p.Root,
		PollInterval: 10 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
	}, slogutil.NewDiscardLogger())

	type call struct {
		changes   []Change
		cancelled bool
	}
	calls := make(chan call, 4)
	started := make(chan struct{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- w.Run(ctx, func(runCtx context.Context, changes []Change) {
			started <- struct{}{}
			if changes == nil {
				// the initial run stays busy until superseded
				<-runCtx.Done()
				calls <- call{changes: changes, cancelled: true}
				return
			}
			calls <- call{changes: changes, cancelled: runCtx.Err() != nil}
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run did not start")
	}

	p.Write(t, "src/b.ts", "new file")

	var first, second call
	select {
	case first = <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("initial run was not cancelled")
	}
	select {
	case second = <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no re-run after change")
	}

	assert.True(t, first.cancelled)
	assert.Nil(t, first.changes)
	assert.False(t, second.cancelled)
	assert.Contains(t, second.changes, Change{Type: Created, Path: p.Path("src/b.ts")})

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_InvalidRoot(t *testing.T) {
	p := testutil.NewProject(t, nil)
	w := New(Config{Root: p.Path("missing")}, slogutil.NewDiscardLogger())

	err := w.Run(context.Background(), func(context.Context, []Change) {})
	assert.Error(t, err)
}
