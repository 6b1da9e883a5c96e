package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/querysql"
)

func scanAt(t *testing.T, s *Store, branch string, snapshot int64, types ...string) []ObjectRecord {
	t.Helper()
	objs, err := s.ScanObjects(context.Background(), querysql.ObjectScan{
		Branch:      branch,
		Snapshot:    snapshot,
		ObjectTypes: types,
	})
	require.NoError(t, err)
	return objs
}

func keysOf(objs []ObjectRecord) []plan.Key {
	out := make([]plan.Key, len(objs))
	for i, o := range objs {
		out[i] = o.Key
	}
	return out
}

func TestApply_AdvancesSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.CurrentSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	seq, err = s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{
		createTestObject("car", "c1", ir.Object{"make": ir.String("Tesla")}),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	seq, err = s.Apply(ctx, "master", Batch{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "empty batch must not advance seq")

	current, err := s.CurrentSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
}

func TestApply_VersionsObjects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v1, err := s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{
		createTestObject("car", "c1", ir.Object{"make": ir.String("Tesla"), "mileage": ir.Int(100)}),
		createTestObject("car", "c2", ir.Object{"make": ir.String("Volvo")}),
	}})
	require.NoError(t, err)

	v2, err := s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{
		createTestObject("car", "c1", ir.Object{"make": ir.String("Tesla"), "mileage": ir.Int(200)}),
	}})
	require.NoError(t, err)

	v3, err := s.Apply(ctx, "master", Batch{DeleteObjects: []plan.Key{key("car", "c2")}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		snapshot int64
		keys     []plan.Key
		mileage  ir.Value
	}{
		{name: "before any write", snapshot: 0, keys: []plan.Key{}},
		{name: "first version", snapshot: v1, keys: []plan.Key{key("car", "c1"), key("car", "c2")}, mileage: ir.Int(100)},
		{name: "updated", snapshot: v2, keys: []plan.Key{key("car", "c1"), key("car", "c2")}, mileage: ir.Int(200)},
		{name: "deleted", snapshot: v3, keys: []plan.Key{key("car", "c1")}, mileage: ir.Int(200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs := scanAt(t, s, "master", tt.snapshot, "car")
			assert.Equal(t, tt.keys, keysOf(objs))
			if tt.mileage != nil {
				assert.Equal(t, tt.mileage, objs[0].Properties["mileage"])
			}
		})
	}
}

func TestApply_PutTwiceInOneBatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{
		createTestObject("car", "c1", ir.Object{"make": ir.String("Tesla")}),
		createTestObject("car", "c1", ir.Object{"make": ir.String("Volvo")}),
	}})
	require.NoError(t, err)

	objs := scanAt(t, s, "master", seq, "car")
	require.Len(t, objs, 1)
	assert.Equal(t, ir.String("Volvo"), objs[0].Properties["make"])
}

func TestApply_BranchesAreIsolated(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{createTestObject("car", "c1", nil)}})
	require.NoError(t, err)
	seq, err := s.Apply(ctx, "dev", Batch{PutObjects: []ObjectRecord{createTestObject("car", "c9", nil)}})
	require.NoError(t, err)

	assert.Equal(t, []plan.Key{key("car", "c1")}, keysOf(scanAt(t, s, "master", seq, "car")))
	assert.Equal(t, []plan.Key{key("car", "c9")}, keysOf(scanAt(t, s, "dev", seq, "car")))

	branches, err := s.Branches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "master"}, branches)
}

func TestApply_RejectsEmptyKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Apply(ctx, "master", Batch{PutObjects: []ObjectRecord{createTestObject("car", "", nil)}})
	require.Error(t, err)

	seq, err := s.CurrentSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq, "failed batch must roll back the seq")
}

func TestApply_Links(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	owns := createTestLink("carOwner", key("employee", "e1"), key("car", "c1"))

	v1, err := s.Apply(ctx, "master", Batch{PutLinks: []LinkRecord{
		owns,
		createTestLink("carOwner", key("employee", "e1"), key("car", "c3")),
		createTestLink("mentors", key("employee", "e2"), key("employee", "e1")),
	}})
	require.NoError(t, err)

	// Re-putting a live link is a no-op.
	v2, err := s.Apply(ctx, "master", Batch{PutLinks: []LinkRecord{owns}})
	require.NoError(t, err)

	v3, err := s.Apply(ctx, "master", Batch{DeleteLinks: []LinkRecord{owns}})
	require.NoError(t, err)

	links, err := s.ScanLinks(ctx, querysql.LinkScan{Branch: "master", Snapshot: v2, Link: "carOwner"})
	require.NoError(t, err)
	assert.Equal(t, []LinkRecord{
		owns,
		createTestLink("carOwner", key("employee", "e1"), key("car", "c3")),
	}, links)

	var rows int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM links WHERE link_type = 'carOwner'").Scan(&rows))
	assert.Equal(t, 2, rows)

	links, err = s.ScanLinks(ctx, querysql.LinkScan{Branch: "master", Snapshot: v3, Link: "carOwner"})
	require.NoError(t, err)
	assert.Equal(t, []LinkRecord{createTestLink("carOwner", key("employee", "e1"), key("car", "c3"))}, links)

	links, err = s.ScanLinks(ctx, querysql.LinkScan{Branch: "master", Snapshot: v1 - 1, Link: "carOwner"})
	require.NoError(t, err)
	assert.Empty(t, links)
}
