package backend

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/plan"
	"github.com/roach88/osq/internal/querysql"
	"github.com/roach88/osq/internal/qerr"
	"github.com/roach88/osq/internal/store"
)

// edges is every live edge of one link type, indexed by both ends.
type edges struct {
	out map[plan.Key][]plan.Key // source -> targets
	in  map[plan.Key][]plan.Key // target -> sources
}

// view is one request's read of the store at a fixed branch and snapshot.
// Objects and link edges are cached for the lifetime of the request.
type view struct {
	*Local
	branch   string
	snapshot int64

	mu      sync.RWMutex
	objects map[plan.Key]*plan.Object // nil entry: known missing
	links   map[string]*edges
	stats   Stats
}

func newView(l *Local, branch string, snapshot int64) *view {
	if branch == "" {
		branch = objectset.DefaultBranch
	}
	return &view{
		Local:    l,
		branch:   branch,
		snapshot: snapshot,
		objects:  make(map[plan.Key]*plan.Object),
		links:    make(map[string]*edges),
	}
}

// preload reads every link type the request tests for presence. Presence
// checks run inside predicate matching, which cannot fail, so the edges
// must be in memory before execution starts.
func (v *view) preload(ctx context.Context, req MatchRequest) error {
	names := slices.Clone(req.Links)
	var visit func(plan.Set)
	visit = func(s plan.Set) {
		if f, ok := s.(plan.Filter); ok {
			names = append(names, plan.Links(f.Predicate)...)
		}
		for _, in := range plan.Inputs(s) {
			visit(in)
		}
	}
	visit(req.Set)

	slices.Sort(names)
	for _, name := range slices.Compact(names) {
		if _, err := v.edges(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// edges returns the edges of link, loading them on first use.
func (v *view) edges(ctx context.Context, link string) (*edges, error) {
	v.mu.RLock()
	e, ok := v.links[link]
	v.mu.RUnlock()
	if ok {
		return e, nil
	}

	recs, err := v.store.ScanLinks(ctx, querysql.LinkScan{Branch: v.branch, Snapshot: v.snapshot, Link: link})
	if err != nil {
		return nil, classify(err, "scan link %s", link)
	}
	e = &edges{out: make(map[plan.Key][]plan.Key), in: make(map[plan.Key][]plan.Key)}
	for _, r := range recs {
		e.out[r.Source] = append(e.out[r.Source], r.Target)
		e.in[r.Target] = append(e.in[r.Target], r.Source)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if prev, ok := v.links[link]; ok {
		return prev, nil
	}
	v.links[link] = e
	v.stats.LinksScanned += len(recs)
	return e, nil
}

// HasLink implements filter.LinkIndex over the preloaded link types. Link
// types that were not preloaded have no edges.
func (v *view) HasLink(link string, end objectset.RelationSide, key plan.Key) bool {
	v.mu.RLock()
	e, ok := v.links[link]
	v.mu.RUnlock()
	if !ok {
		return false
	}
	switch end {
	case objectset.SideSource:
		return len(e.out[key]) > 0
	case objectset.SideTarget:
		return len(e.in[key]) > 0
	default:
		return len(e.out[key]) > 0 || len(e.in[key]) > 0
	}
}

// neighbours returns the keys reached from key over link toward the given
// end, deduplicated and in default order.
func (v *view) neighbours(ctx context.Context, link string, toward objectset.RelationSide, key plan.Key) ([]plan.Key, error) {
	e, err := v.edges(ctx, link)
	if err != nil {
		return nil, err
	}
	var out []plan.Key
	if toward != objectset.SideSource {
		out = append(out, e.out[key]...)
	}
	if toward != objectset.SideTarget {
		out = append(out, e.in[key]...)
	}
	slices.SortFunc(out, plan.CompareKeys)
	return slices.Compact(out), nil
}

// Follow implements derived.Graph.
func (v *view) Follow(ctx context.Context, hop plan.Hop, from plan.Key) ([]plan.Object, error) {
	keys, err := v.neighbours(ctx, hop.Link, hop.Toward, from)
	if err != nil {
		return nil, err
	}
	return v.lookup(ctx, keys)
}

// scan reads every object of types satisfying constraints.
func (v *view) scan(ctx context.Context, types []string, constraints []plan.Constraint) ([]plan.Object, error) {
	if len(types) == 0 {
		return []plan.Object{}, nil
	}
	recs, err := v.store.ScanObjects(ctx, querysql.ObjectScan{
		Branch:      v.branch,
		Snapshot:    v.snapshot,
		ObjectTypes: types,
		Constraints: constraints,
	})
	if err != nil {
		return nil, classify(err, "scan %v", types)
	}
	return v.admit(recs, nil)
}

// lookup returns the objects named by keys that exist at the snapshot, in
// default order. keys must be sorted and distinct.
func (v *view) lookup(ctx context.Context, keys []plan.Key) ([]plan.Object, error) {
	var missing []plan.Key
	v.mu.RLock()
	for _, k := range keys {
		if _, ok := v.objects[k]; !ok {
			missing = append(missing, k)
		}
	}
	v.mu.RUnlock()

	if len(missing) > 0 {
		recs, err := v.store.ScanObjects(ctx, querysql.ObjectScan{Branch: v.branch, Snapshot: v.snapshot, Keys: missing})
		if err != nil {
			return nil, classify(err, "look up %d objects", len(missing))
		}
		if _, err := v.admit(recs, missing); err != nil {
			return nil, err
		}
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]plan.Object, 0, len(keys))
	for _, k := range keys {
		if o := v.objects[k]; o != nil {
			out = append(out, *o)
		}
	}
	return out, nil
}

// admit coerces scanned records to their declared types and caches them.
// Keys in requested without a record are cached as missing.
func (v *view) admit(recs []store.ObjectRecord, requested []plan.Key) ([]plan.Object, error) {
	out := make([]plan.Object, len(recs))
	for i, r := range recs {
		props := r.Properties
		if t, ok := v.catalog.ObjectType(r.Key.ObjectType); ok {
			var err error
			if props, err = t.Coerce(props); err != nil {
				return nil, qerr.Backend(false, err, "object %s does not match its type", r.Key)
			}
		}
		out[i] = plan.Object{Key: r.Key, Properties: props}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, k := range requested {
		if _, ok := v.objects[k]; !ok {
			v.objects[k] = nil
		}
	}
	for i := range out {
		o := out[i]
		v.objects[o.Key] = &o
	}
	v.stats.ObjectsScanned += len(recs)
	return out, nil
}

func (v *view) statsSnapshot() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}
