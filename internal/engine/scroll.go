package engine

import (
	"context"
	"time"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/paging"
	"github.com/roach88/osq/internal/usage"
)

// LoadScrollRequest opens a scroll over an object set.
type LoadScrollRequest struct {
	ObjectSet objectset.ObjectSet
	Select    []string
	OrderBy   []OrderBy

	// PageSize is used by ContinueScroll calls that give none.
	PageSize int

	DerivedProperties objectset.TypedDerivedProperties
	Context           objectset.Context
	Backend           backend.Kind
	Options           objectset.ResponseOptions
}

// LoadScrollResponse names the opened scroll.
type LoadScrollResponse struct {
	ScrollID string `json:"scrollId"`
}

// ContinueScrollResponse is the next batch of a scroll. ScrollID is empty
// once the scroll is exhausted.
type ContinueScrollResponse struct {
	Objects      []Object    `json:"data"`
	ScrollID     string      `json:"scrollId,omitempty"`
	TotalObjects int         `json:"totalCount"`
	Usage        *usage.Cost `json:"usageCost,omitempty"`
}

// scrollState is what a cursor needs to produce its next batch.
type scrollState struct {
	prepared *prepared
	view     *projection
	context  objectset.Context
	options  objectset.ResponseOptions
	pageSize int
}

// LoadScroll validates req and opens a cursor pinned at the snapshot the
// request reads.
func (e *Engine) LoadScroll(ctx context.Context, req LoadScrollRequest) (resp *LoadScrollResponse, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, OpLoadScroll, start, err) }()

	size, err := e.pageSize(req.PageSize)
	if err != nil {
		return nil, err
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
	view, err := newProjection(e.catalog, p.set.Scope, req.Select, req.OrderBy)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshot(ctx, p.backend, req.Context)
	if err != nil {
		return nil, err
	}

	id := e.scrolls.Open(scrollState{
		prepared: p,
		view:     view,
		context:  req.Context,
		options:  req.Options,
		pageSize: size,
	}, snap)
	e.logger.DebugContext(ctx, "opened scroll", "scroll_id", id, "snapshot", snap)
	return &LoadScrollResponse{ScrollID: id}, nil
}

// ContinueScroll returns the next pageSize objects of a scroll. A pageSize
// of zero uses the size the scroll was opened with.
func (e *Engine) ContinueScroll(ctx context.Context, scrollID string, pageSize int) (resp *ContinueScrollResponse, err error) {
	start := time.Now()
	defer func() { e.observe(ctx, OpContinueScroll, start, err) }()

	lease, err := e.scrolls.Acquire(scrollID)
	if err != nil {
		return nil, err
	}
	resp, err = e.advance(ctx, lease, pageSize)
	if err != nil {
		e.scrolls.Release(lease, 0, false)
		return nil, err
	}
	return resp, nil
}

func (e *Engine) advance(ctx context.Context, lease *paging.Lease[scrollState], pageSize int) (*ContinueScrollResponse, error) {
	st := lease.State
	size := st.pageSize
	if pageSize != 0 {
		var err error
		if size, err = e.pageSize(pageSize); err != nil {
			return nil, err
		}
	}

	res, err := e.match(ctx, st.prepared, st.context, lease.Snapshot)
	if err != nil {
		return nil, err
	}
	st.view.sort(res.Objects)

	objs := st.view.page(res.Objects, lease.Offset, size)
	exhausted := lease.Offset+size >= len(res.Objects)
	resp := &ContinueScrollResponse{
		Objects:      objs,
		TotalObjects: len(res.Objects),
		Usage:        e.usage.Attach(ctx, st.context, res.Stats, st.options),
	}
	if !exhausted {
		resp.ScrollID = lease.ID
	}
	e.scrolls.Release(lease, len(objs), exhausted)
	return resp, nil
}
