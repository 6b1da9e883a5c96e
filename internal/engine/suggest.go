package engine

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/token"
)

// Suggestion limits.
const (
	DefaultSuggestions = 10
	MaxSuggestions     = 100
)

// SuggestInput is the text typed so far.
type SuggestInput struct {
	Prefix string `json:"prefix" yaml:"prefix"`
	Fuzzy  bool   `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
}

// SuggestRequest asks for values of a string property starting with a
// prefix.
type SuggestRequest struct {
	ObjectSet objectset.ObjectSet
	Property  string
	Input     SuggestInput

	// NumRequestedValues of zero means DefaultSuggestions.
	NumRequestedValues int

	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
}

// Suggest returns distinct values of req.Property over req.ObjectSet that
// match req.Input, most frequent first.
func (e *Engine) Suggest(ctx context.Context, req SuggestRequest) (values []string, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, OpSuggest, start, err) }()

	limit := req.NumRequestedValues
	switch {
	case limit == 0:
		limit = DefaultSuggestions
	case limit < 0 || limit > MaxSuggestions:
		return nil, qerr.Validation(qerr.CodeInvalidArgument,
			"numRequestedValues must be between 1 and %d, got %d", MaxSuggestions, limit).At("numRequestedValues")
	}
	p, err := e.prepare(ctx, query{
		ObjectSet:         req.ObjectSet,
		DerivedProperties: req.DerivedProperties,
		Context:           req.Context,
		Backend:           req.Backend,
	})
	if err != nil {
		return nil, err
	}
	f, err := ontology.ResolveProperty(e.catalog, req.Property, p.set.Scope, ontology.UsageAggregate)
	if err != nil {
		return nil, qerr.WithPath(err, "property")
	}
	if f.Type.Base != ontology.TypeString {
		return nil, qerr.Validation(qerr.CodePropertyTypeMismatch,
			"property %q is not a string property", req.Property).At("property")
	}
	snap, err := e.snapshot(ctx, p.backend, req.Context)
	if err != nil {
		return nil, err
	}
	res, err := e.match(ctx, p, req.Context, snap)
	if err != nil {
		return nil, err
	}

	m := newSuggestMatcher(req.Input)
	freq := make(map[string]int)
	for i := range res.Objects {
		seen := make(map[string]bool)
		for _, v := range ir.Elements(res.Objects[i].Value(f)) {
			s, ok := v.(ir.String)
			if !ok || seen[string(s)] {
				continue
			}
			seen[string(s)] = true
			if m.match(string(s)) {
				freq[string(s)]++
			}
		}
	}

	values = make([]string, 0, len(freq))
	for v := range freq {
		values = append(values, v)
	}
	slices.SortFunc(values, func(a, b string) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

type suggestMatcher struct {
	prefix string
	tokens []string
	fuzzy  bool
}

func newSuggestMatcher(in SuggestInput) suggestMatcher {
	return suggestMatcher{
		prefix: token.Normalize(in.Prefix),
		tokens: token.Tokenize(in.Prefix),
		fuzzy:  in.Fuzzy,
	}
}

// match reports whether value starts with the prefix, either as a whole or
// from any of its tokens. Every prefix token but the last must match a
// whole value token; the last must match the start of one.
func (m suggestMatcher) match(value string) bool {
	if strings.HasPrefix(token.Normalize(value), m.prefix) {
		return true
	}
	if len(m.tokens) == 0 {
		return false
	}
	vt := token.Tokenize(value)
	k := len(m.tokens)
	for i := 0; i+k <= len(vt); i++ {
		if m.matchAt(vt[i:i+k]) {
			return true
		}
	}
	return false
}

func (m suggestMatcher) matchAt(vt []string) bool {
	last := len(m.tokens) - 1
	for j := range last {
		if !token.Matches(m.tokens[j], vt[j], m.fuzzy) {
			return false
		}
	}
	want := m.tokens[last]
	got := vt[last]
	if strings.HasPrefix(got, want) {
		return true
	}
	if !m.fuzzy {
		return false
	}
	// Compare against the candidate cut to the query token's length.
	if r := []rune(got); len(r) > len([]rune(want)) {
		got = string(r[:len([]rune(want))])
	}
	return token.Matches(want, got, true)
}
