package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/engine"
	"github.com/roach88/osq/internal/evaluator"
	"github.com/roach88/osq/internal/objectset"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/paging"
	"github.com/roach88/osq/internal/store"
	"github.com/roach88/osq/internal/testutil"
)

// Harness executes the steps of one scenario against a real engine. It runs
// with a fake clock and sequential scroll ids so that results are
// reproducible.
type Harness struct {
	catalog *ontology.Catalog
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.FakeClock
	logger  *slog.Logger

	// Continuation state carried between steps.
	pageToken string
	scrollID  string
}

type runConfig struct {
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

// WithLogger sends the engine's and the harness's logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh SQLite database in a temporary directory.
// Execution flow:
// 1. Compile the ontology
// 2. Import the dataset and save the scenario's object sets
// 3. Execute steps, checking each against its expectation
// 4. Return result with pass/fail, step outcomes, and errors
//
// Errors preparing the scenario are returned. Step failures are recorded
// on the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))} // Suppress logs by default
	for _, opt := range opts {
		opt(&cfg)
	}

	catalog, err := ontology.Load(scenario.Ontology)
	if err != nil {
		return nil, fmt.Errorf("failed to load ontology: %w", err)
	}

	dir, err := os.MkdirTemp("", "osq-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "osq.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	h := newHarness(catalog, st, cfg.logger)
	if scenario.Dataset != "" {
		if _, err := h.importDataset(ctx, scenario.Dataset, ""); err != nil {
			return nil, fmt.Errorf("failed to import dataset: %w", err)
		}
	}
	if err := h.saveSets(ctx, scenario); err != nil {
		return nil, err
	}

	result := NewResult()
	for _, step := range scenario.Steps {
		out := h.runStep(ctx, step)
		result.AddStep(out)
		for _, msg := range CheckStep(step, out) {
			result.AddError(msg)
		}
		h.logger.Info("scenario step completed",
			"scenario", scenario.Name,
			"step", step.Name,
			"op", step.Op,
			"errors", len(out.Errors),
		)
	}
	return result, nil
}

func newHarness(catalog *ontology.Catalog, st *store.Store, logger *slog.Logger) *Harness {
	clock := testutil.NewFakeClock(testutil.Epoch)
	eng := engine.New(catalog,
		engine.WithLogger(logger),
		engine.WithEvaluator(evaluator.New(catalog, evaluator.WithSavedSets(st), evaluator.WithLogger(logger))),
		engine.WithBackend(backend.NewLocal(st, catalog)),
		engine.WithBackend(backend.NewLocal(st, catalog,
			backend.WithKind(backend.KindHighbury),
			backend.WithEmbedder(backend.TokenEmbedder{}),
		)),
		engine.WithTokenCodec(paging.NewCodec(paging.DefaultTokenTTL, clock)),
		engine.WithScrollOptions(paging.WithClock(clock), paging.WithIDGenerator(testutil.NewSequenceIDs(""))),
	)
	return &Harness{catalog: catalog, store: st, engine: eng, clock: clock, logger: logger}
}

func (h *Harness) importDataset(ctx context.Context, path, branch string) (int64, error) {
	d, err := store.LoadDataset(path)
	if err != nil {
		return 0, err
	}
	b, err := d.Batch(h.catalog)
	if err != nil {
		return 0, err
	}
	if branch == "" {
		branch = objectset.DefaultBranch
	}
	return h.store.Apply(ctx, branch, b)
}

// saveSets stores the scenario's object set definitions in RID order.
func (h *Harness) saveSets(ctx context.Context, scenario *Scenario) error {
	rids := make([]string, 0, len(scenario.SavedSets))
	for rid := range scenario.SavedSets {
		rids = append(rids, rid)
	}
	slices.Sort(rids)
	for _, rid := range rids {
		node := scenario.SavedSets[rid]
		var tree any
		if err := node.Decode(&tree); err != nil {
			return fmt.Errorf("savedSets[%s]: %w", rid, err)
		}
		def, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("savedSets[%s]: %w", rid, err)
		}
		if _, err := h.store.SaveObjectSet(ctx, rid, def); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, step Step) StepResult {
	out := StepResult{Name: step.Name, Op: step.Op}
	var err error
	switch step.Op {
	case engine.OpLoadPage:
		err = h.loadPage(ctx, step, &out)
	case engine.OpLoadScroll:
		err = h.loadScroll(ctx, step, &out)
	case engine.OpContinueScroll:
		err = h.continueScroll(ctx, step, &out)
	case engine.OpAggregate:
		err = h.aggregate(ctx, step, &out)
	case engine.OpSuggest:
		err = h.suggest(ctx, step, &out)
	case OpImport:
		out.Snapshot, err = h.importDataset(ctx, step.Dataset, step.Branch)
	case OpAdvance:
		h.clock.Advance(step.Advance)
		h.engine.SweepScrolls()
	}
	if err != nil {
		out.Errors = stepErrors(err)
		h.logger.Debug("scenario step failed", "step", step.Name, "error", err)
	}
	return out
}

func (h *Harness) loadPage(ctx context.Context, step Step, out *StepResult) error {
	var req engine.LoadPageRequest
	if err := step.Request.Decode(&req); err != nil {
		return err
	}
	if step.Resume {
		req.PageToken = h.pageToken
	}
	resp, err := h.engine.LoadPage(ctx, req)
	if err != nil {
		return err
	}
	h.pageToken = resp.NextPageToken
	more := resp.NextPageToken != ""
	out.Objects, out.TotalCount, out.More = resp.Objects, &resp.TotalObjects, &more
	return nil
}

func (h *Harness) loadScroll(ctx context.Context, step Step, out *StepResult) error {
	var req engine.LoadScrollRequest
	if err := step.Request.Decode(&req); err != nil {
		return err
	}
	resp, err := h.engine.LoadScroll(ctx, req)
	if err != nil {
		return err
	}
	h.scrollID = resp.ScrollID
	out.ScrollID = resp.ScrollID
	return nil
}

func (h *Harness) continueScroll(ctx context.Context, step Step, out *StepResult) error {
	id := step.ScrollID
	if id == "" {
		id = h.scrollID
	}
	resp, err := h.engine.ContinueScroll(ctx, id, step.PageSize)
	if err != nil {
		return err
	}
	// An exhausted scroll keeps its id so that a later step can observe
	// that it is gone.
	if resp.ScrollID != "" {
		h.scrollID = resp.ScrollID
	}
	more := resp.ScrollID != ""
	out.Objects, out.TotalCount, out.More, out.ScrollID = resp.Objects, &resp.TotalObjects, &more, resp.ScrollID
	return nil
}

func (h *Harness) aggregate(ctx context.Context, step Step, out *StepResult) error {
	var req engine.AggregateRequest
	if err := step.Request.Decode(&req); err != nil {
		return err
	}
	resp, err := h.engine.Aggregate(ctx, req)
	if err != nil {
		return err
	}
	out.Aggregation = resp.Result
	return nil
}

func (h *Harness) suggest(ctx context.Context, step Step, out *StepResult) error {
	var req engine.SuggestRequest
	if err := step.Request.Decode(&req); err != nil {
		return err
	}
	values, err := h.engine.Suggest(ctx, req)
	if err != nil {
		return err
	}
	out.Values = values
	return nil
}
