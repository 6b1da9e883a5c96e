package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Ontology = "ontology.cue"
	return cfg
}

func TestParse_OverDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/osq/objects.db
ontology: ontology.cue
paging:
  max_page_size: 500
  scroll_ttl: 90s
log:
  level: debug
`))
	require.NoError(t, err)

	want := Default()
	want.Database = "/var/lib/osq/objects.db"
	want.Ontology = "ontology.cue"
	want.Paging.MaxPageSize = 500
	want.Paging.ScrollTTL = 90 * time.Second
	want.Log.Level = "debug"
	assert.Equal(t, want, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("paging:\n  page_size: 10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page_size")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osq.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ontology: o.cue\ndefault_backend: HIGHBURY\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "HIGHBURY", cfg.DefaultBackend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "missing ontology",
			mutate: func(c *Config) { c.Ontology = "" },
			want:   []string{"ontology is required"},
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.DefaultBackend = "ELASTIC" },
			want:   []string{`default_backend must be one of [PHONOGRAPH HIGHBURY], got "ELASTIC"`},
		},
		{
			name:   "default page above max",
			mutate: func(c *Config) { c.Paging.DefaultPageSize = 20000 },
			want:   []string{"paging.default_page_size must not exceed MaxPageSize"},
		},
		{
			name:   "short token secret",
			mutate: func(c *Config) { c.Paging.TokenSecret = "hunter2" },
			want:   []string{"paging.token_secret must be at least 16 characters"},
		},
		{
			name: "all violations together",
			mutate: func(c *Config) {
				c.Paging.ScrollTTL = 0
				c.Aggregation.MaxParallelism = 0
				c.Log.Level = "trace"
			},
			want: []string{
				"paging.scroll_ttl must be at least 1s",
				"aggregation.max_parallelism must be at least 1",
				`log.level must be one of [debug info warn error], got "trace"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLog_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Log{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, Log{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelError, Log{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, Log{}.SlogLevel())
}
