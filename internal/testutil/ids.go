package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable scroll ids.
//
// This enables golden comparison of responses that carry scroll ids. The
// first id is "<prefix>-000001". If prefix is empty, "scroll" is used.
//
// Thread-safety: SequenceIDs is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator with the given prefix.
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "scroll"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
//
// Implements paging.IDGenerator interface.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}
