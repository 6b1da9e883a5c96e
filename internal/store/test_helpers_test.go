package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/plan"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func key(objectType, primaryKey string) plan.Key {
	return plan.Key{ObjectType: objectType, PrimaryKey: primaryKey}
}

// createTestObject creates an object record with the given properties.
func createTestObject(objectType, primaryKey string, props ir.Object) ObjectRecord {
	return ObjectRecord{Key: key(objectType, primaryKey), Properties: props}
}

func createTestLink(link string, source, target plan.Key) LinkRecord {
	return LinkRecord{Link: link, Source: source, Target: target}
}
