package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/osq/internal/store"
)

// Batch returns the fixture objects and edges as one store batch.
func Batch() store.Batch {
	var b store.Batch
	for _, o := range Objects() {
		b.PutObjects = append(b.PutObjects, store.ObjectRecord{Key: o.Key, Properties: o.Properties})
	}
	for _, e := range Edges() {
		b.PutLinks = append(b.PutLinks, store.LinkRecord{Link: e.Link, Source: e.Source, Target: e.Target})
	}
	return b
}

// OpenStore opens a store in a temporary directory holding the fixture on
// the default branch. It returns the store and the snapshot the fixture
// was written at.
func OpenStore(t testing.TB) (*store.Store, int64) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "osq.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	seq, err := s.Apply(context.Background(), "master", Batch())
	require.NoError(t, err)
	return s, seq
}
