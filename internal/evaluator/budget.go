package evaluator

import (
	"strconv"
	"sync/atomic"

	"github.com/roach88/osq/internal/qerr"
)

// DefaultMaxNodes is the default number of object set nodes one request
// may evaluate, counting the expanded definitions of referenced sets.
const DefaultMaxNodes = 10000

// nodeBudget counts evaluated nodes across the concurrent branches of one
// request.
//
// Referenced sets expand at evaluation time, so the size of a request is
// only known while it is being evaluated. The budget bounds that expansion
// alongside cycle detection: cycles catch A → B → A, the budget catches
// wide or deep but acyclic expansions.
type nodeBudget struct {
	max  int64
	used atomic.Int64
}

func newNodeBudget(max int) *nodeBudget {
	if max <= 0 {
		max = DefaultMaxNodes
	}
	return &nodeBudget{max: int64(max)}
}

// spend records one node and fails once the budget is exhausted.
func (b *nodeBudget) spend(path string) error {
	if n := b.used.Add(1); n > b.max {
		return qerr.Validation(qerr.CodeExpressionTooLarge,
			"object set expression exceeds %d nodes", b.max).
			At(path).With("maxNodes", strconv.FormatInt(b.max, 10))
	}
	return nil
}

// Used returns the number of nodes spent so far.
func (b *nodeBudget) Used() int {
	return int(b.used.Load())
}
