package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/osq/internal/aggregate"
	"github.com/roach88/osq/internal/backend"
	"github.com/roach88/osq/internal/config"
	"github.com/roach88/osq/internal/engine"
	"github.com/roach88/osq/internal/evaluator"
	"github.com/roach88/osq/internal/ontology"
	"github.com/roach88/osq/internal/paging"
	"github.com/roach88/osq/internal/store"
	"github.com/roach88/osq/internal/telemetry"
)

// session holds what a query command needs: the resolved config, the
// ontology, the store and an engine over both.
type session struct {
	opts      *RootOptions
	formatter *OutputFormatter
	cfg       config.Config
	logger    *slog.Logger
	catalog   *ontology.Catalog
	store     *store.Store
	engine    *engine.Engine
	registry  *prometheus.Registry
}

// resolveConfig reads the config file, if any, and applies flag overrides
// before validating.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Ontology != "" {
		cfg.Ontology = opts.Ontology
	}
	if opts.Backend != "" {
		cfg.DefaultBackend = opts.Backend
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
}

// openSession resolves the config, loads the ontology, opens the store and
// builds the engine. Callers must Close the session. Failures are already
// reported through the returned formatter's writer.
// pageTokenSecret names the store secret keying page tokens when the
// config sets none.
const pageTokenSecret = "page_token"

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	formatter := newFormatter(opts, cmd)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, formatter.CommandError(ErrCodeConfig, "invalid configuration", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	logger.Debug("loading ontology", "path", cfg.Ontology)
	catalog, err := ontology.Load(cfg.Ontology)
	if err != nil {
		return nil, formatter.CommandError(ErrCodeLoadFailed, "failed to load ontology", err)
	}

	logger.Debug("opening store", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, formatter.CommandError(ErrCodeStoreFailed, "failed to open database", err)
	}

	secret := []byte(cfg.Paging.TokenSecret)
	if len(secret) == 0 {
		if secret, err = st.Secret(cmd.Context(), pageTokenSecret); err != nil {
			_ = st.Close()
			return nil, formatter.CommandError(ErrCodeStoreFailed, "failed to read page token secret", err)
		}
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.New(registry)
	if err != nil {
		_ = st.Close()
		return nil, formatter.CommandError(ErrCodeGeneric, "failed to register metrics", err)
	}

	ev := evaluator.New(catalog,
		evaluator.WithSavedSets(st),
		evaluator.WithMaxNodes(cfg.Evaluation.MaxNodes),
		evaluator.WithMaxParallelism(cfg.Aggregation.MaxParallelism),
		evaluator.WithLogger(logger),
	)
	agg := aggregate.New(catalog,
		aggregate.WithPrecisionThreshold(cfg.Aggregation.PrecisionThreshold),
		aggregate.WithMaxParallelism(cfg.Aggregation.MaxParallelism),
		aggregate.WithFilters(ev.Filters()),
		aggregate.WithLogger(logger),
	)
	eng := engine.New(catalog,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithEvaluator(ev),
		engine.WithAggregator(agg),
		engine.WithBackend(backend.NewLocal(st, catalog)),
		engine.WithBackend(backend.NewLocal(st, catalog,
			backend.WithKind(backend.KindHighbury),
			backend.WithEmbedder(backend.TokenEmbedder{}),
		)),
		engine.WithDefaultBackend(backend.Kind(cfg.DefaultBackend)),
		engine.WithPageSizes(cfg.Paging.DefaultPageSize, cfg.Paging.MaxPageSize),
		engine.WithTokenCodec(paging.NewCodec(cfg.Paging.PageTokenTTL, paging.SystemClock{}, paging.WithSecret(secret))),
		engine.WithScrollOptions(paging.WithTTL(cfg.Paging.ScrollTTL)),
	)

	return &session{
		opts:      opts,
		formatter: formatter,
		cfg:       cfg,
		logger:    logger,
		catalog:   catalog,
		store:     st,
		engine:    eng,
		registry:  registry,
	}, nil
}

// Close dumps metrics when asked to and closes the store.
func (s *session) Close() error {
	var errs []error
	if s.opts.Metrics {
		errs = append(errs, telemetry.WriteText(s.formatter.GetErrWriter(), s.registry))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// readInput reads path, or standard input when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeRequest reads and decodes a request document into req.
func (s *session) decodeRequest(cmd *cobra.Command, path string, req any) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return s.formatter.CommandError(ErrCodeBadInput, "failed to read request", err)
	}
	if err := engine.DecodeRequest(data, req); err != nil {
		return s.formatter.QueryError("decode", err)
	}
	return nil
}
