package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/testutil"
)

func TestScroll_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	opened, err := f.engine.LoadScroll(ctx, LoadScrollRequest{
		ObjectSet: employees,
		OrderBy:   []OrderBy{{Property: "age", Direction: objectset.Descending}},
		PageSize:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, "scroll-000001", opened.ScrollID)

	f.hire(t)

	var got []string
	id := opened.ScrollID
	for id != "" {
		resp, err := f.engine.ContinueScroll(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, resp.TotalObjects, "scroll stays at its snapshot")
		got = append(got, keys(resp.Objects)...)
		id = resp.ScrollID
	}
	assert.Equal(t, []string{"e4", "e3", "e5", "e2", "e1"}, got)

	_, err = f.engine.ContinueScroll(ctx, opened.ScrollID, 0)
	require.Error(t, err)
	assert.Equal(t, qerr.CodeScrollExpired, qerr.CodeOf(err))
}

func TestScroll_PageSizeOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opened, err := f.engine.LoadScroll(ctx, LoadScrollRequest{ObjectSet: employees, PageSize: 1})
	require.NoError(t, err)

	resp, err := f.engine.ContinueScroll(ctx, opened.ScrollID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2", "e3"}, keys(resp.Objects))

	_, err = f.engine.ContinueScroll(ctx, opened.ScrollID, -2)
	require.Error(t, err)
	assert.Equal(t, qerr.CodeInvalidArgument, qerr.CodeOf(err))

	// A failed call leaves the cursor where it was.
	resp, err = f.engine.ContinueScroll(ctx, opened.ScrollID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"e4"}, keys(resp.Objects))
}

func TestScroll_IdleExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opened, err := f.engine.LoadScroll(ctx, LoadScrollRequest{ObjectSet: employees, PageSize: 2})
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	_, err = f.engine.ContinueScroll(ctx, opened.ScrollID, 0)
	require.NoError(t, err, "access resets the idle timer")

	f.clock.Advance(6 * time.Minute)
	_, err = f.engine.ContinueScroll(ctx, opened.ScrollID, 0)
	require.Error(t, err)
	assert.Equal(t, qerr.CodeScrollExpired, qerr.CodeOf(err))
}

func TestScroll_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for range 3 {
		_, err := f.engine.LoadScroll(ctx, LoadScrollRequest{ObjectSet: employees})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, f.engine.SweepScrolls())

	f.clock.Advance(time.Hour)
	assert.Equal(t, 3, f.engine.SweepScrolls())
}

func TestScroll_ValidatesUpFront(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.LoadScroll(context.Background(), LoadScrollRequest{
		ObjectSet: employees,
		OrderBy:   []OrderBy{{Property: "nope"}},
	})
	require.Error(t, err)
	assert.Equal(t, qerr.CodePropertyNotFound, qerr.CodeOf(err))
}

// gatedBackend blocks every Match until release is closed.
type gatedBackend struct {
	backend.Backend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedBackend) Match(ctx context.Context, req backend.MatchRequest) (*backend.MatchResult, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Backend.Match(ctx, req)
}

func TestScroll_ConcurrentUse(t *testing.T) {
	c := testutil.Catalog(t)
	s, _ := testutil.OpenStore(t)
	gate := &gatedBackend{
		Backend: backend.NewLocal(s, c),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := New(c, WithBackend(gate))
	ctx := context.Background()

	opened, err := e.LoadScroll(ctx, LoadScrollRequest{ObjectSet: employees, PageSize: 2})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.ContinueScroll(ctx, opened.ScrollID, 0)
		done <- err
	}()
	<-gate.entered

	_, err = e.ContinueScroll(ctx, opened.ScrollID, 0)
	require.Error(t, err)
	assert.Equal(t, qerr.CodeConcurrentScroll, qerr.CodeOf(err))
	assert.True(t, qerr.IsUsage(err))

	close(gate.release)
	require.NoError(t, <-done)

	resp, err := e.ContinueScroll(ctx, opened.ScrollID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"e3", "e4"}, keys(resp.Objects))
}
