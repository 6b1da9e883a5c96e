package engine

import (
	"context"
	"time"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/paging"
	"github.com/roach88/osq/internal/usage"
)

// LoadPageRequest reads one page of an object set.
type LoadPageRequest struct {
	ObjectSet objectset.ObjectSet

	// Select lists the properties to return. Empty returns all of them.
	Select  []string
	OrderBy []OrderBy

	// PageSize of zero means the configured default.
	PageSize  int
	PageToken string

	// RequireConsistentPaging pins the first page's snapshot for every
	// later page of the sequence.
	RequireConsistentPaging bool

	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
	Options           objectset.ResponseOptions
}

func (r LoadPageRequest) query() query {
	return query{ObjectSet: r.ObjectSet, DerivedProperties: r.DerivedProperties, Context: r.Context, Backend: r.Backend}
}

// LoadPageResponse is one page of objects.
type LoadPageResponse struct {
	Objects       []Object    `json:"data"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	TotalObjects  int         `json:"totalCount"`
	Usage         *usage.Cost `json:"usageCost,omitempty"`
}

// pageIdentity is every request field a page token is bound to. Page size
// may change between pages.
type pageIdentity struct {
	ObjectSet         objectset.ObjectSet
	Select            []string
	OrderBy           []OrderBy
	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
	Consistent        bool
}

// LoadPage returns the page of req's object set that req.PageToken points
// at, or the first page when there is no token.
func (e *Engine) LoadPage(ctx context.Context, req LoadPageRequest) (resp *LoadPageResponse, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, OpLoadPage, start, err) }()

	size, err := e.pageSize(req.PageSize)
	if err != nil {
		return nil, err
	}
	p, err := e.prepare(ctx, req.query())
	if err != nil {
		return nil, err
	}
	proj, err := newProjection(e.catalog, p.set.Scope, req.Select, req.OrderBy)
	if err != nil {
		return nil, err
	}
	fp, err := ir.Fingerprint(ir.DomainRequest, pageIdentity{
		ObjectSet:         req.ObjectSet,
		Select:            req.Select,
		OrderBy:           req.OrderBy,
		DerivedProperties: req.DerivedProperties,
		Context:           req.Context,
		Backend:           p.kind,
		Consistent:        req.RequireConsistentPaging,
	})
	if err != nil {
		return nil, err
	}

	var cur paging.Cursor
	if req.PageToken != "" {
		if cur, err = e.tokens.Decode(req.PageToken, fp); err != nil {
			return nil, err
		}
	}
	if !cur.Pinned {
		snap, err := e.snapshot(ctx, p.backend, req.Context)
		if err != nil {
			return nil, err
		}
		cur.Snapshot = snap
		cur.Pinned = req.RequireConsistentPaging
	}

	res, err := e.match(ctx, p, req.Context, cur.Snapshot)
	if err != nil {
		return nil, err
	}
	proj.sort(res.Objects)

	resp = &LoadPageResponse{
		Objects:      proj.page(res.Objects, cur.Offset, size),
		TotalObjects: len(res.Objects),
		Usage:        e.usage.Attach(ctx, req.Context, res.Stats, req.Options),
	}
	if next := cur.Offset + size; next < len(res.Objects) {
		cur.Offset = next
		if resp.NextPageToken, err = e.tokens.Encode(fp, cur); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
