package bucket

import (
	"github.com/dlclark/regexp2"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/plan"
)

// ValueFilter is a compiled objectset.ValueFilter. A nil filter accepts
// every key.
type ValueFilter struct {
	include   map[string]bool
	exclude   map[string]bool
	includeRe *regexp2.Regexp
	excludeRe *regexp2.Regexp
}

// CompileValueFilter validates the regular expressions of vf. A nil vf
// compiles to a nil filter.
func CompileValueFilter(vf *objectset.ValueFilter) (*ValueFilter, error) {
	if vf == nil {
		return nil, nil
	}
	out := &ValueFilter{include: keySet(vf.Include), exclude: keySet(vf.Exclude)}
	var err error
	if vf.IncludeRegex != "" {
		if out.includeRe, err = plan.CompileRegex(vf.IncludeRegex); err != nil {
			return nil, err
		}
	}
	if vf.ExcludeRegex != "" {
		if out.excludeRe, err = plan.CompileRegex(vf.ExcludeRegex); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func keySet(values []ir.Value) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[ir.KeyString(v)] = true
	}
	return set
}

// Accept reports whether key passes the filter. Exclusions win over
// inclusions.
func (f *ValueFilter) Accept(key ir.Value) bool {
	if f == nil {
		return true
	}
	k := ir.KeyString(key)
	if f.exclude[k] || plan.FullMatch(f.excludeRe, k) {
		return false
	}
	if f.include != nil && !f.include[k] {
		return false
	}
	if f.includeRe != nil && !plan.FullMatch(f.includeRe, k) {
		return false
	}
	return true
}
