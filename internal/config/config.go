// Package config loads and validates the osq configuration file.
//
// The file is YAML. Missing keys keep their defaults, unknown keys are
// rejected. Validation runs after command line overrides are applied, so
// a required key may come from either source.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the complete osq configuration.
type Config struct {
	// Database is the path of the SQLite object store.
	Database string `yaml:"database" validate:"required"`

	// Ontology is the path of the CUE ontology file.
	Ontology string `yaml:"ontology" validate:"required"`

	// DefaultBackend names the backend used when a request names none.
	DefaultBackend string `yaml:"default_backend" validate:"oneof=PHONOGRAPH HIGHBURY"`

	Paging      Paging      `yaml:"paging"`
	Aggregation Aggregation `yaml:"aggregation"`
	Evaluation  Evaluation  `yaml:"evaluation"`
	Log         Log         `yaml:"log"`
}

// Paging configures page tokens and scrolls.
type Paging struct {
	DefaultPageSize int           `yaml:"default_page_size" validate:"min=1,ltefield=MaxPageSize"`
	MaxPageSize     int           `yaml:"max_page_size" validate:"min=1,max=100000"`
	PageTokenTTL    time.Duration `yaml:"page_token_ttl" validate:"min=0s"`
	ScrollTTL       time.Duration `yaml:"scroll_ttl" validate:"min=1s"`

	// TokenSecret keys page token checksums. Empty uses a secret
	// generated once and kept in the store.
	TokenSecret string `yaml:"token_secret" validate:"omitempty,min=16"`
}

// Aggregation configures the aggregation engine.
type Aggregation struct {
	PrecisionThreshold int `yaml:"precision_threshold" validate:"min=1,max=40000"`
	MaxParallelism     int `yaml:"max_parallelism" validate:"min=1,max=256"`
}

// Evaluation configures object set evaluation.
type Evaluation struct {
	MaxNodes int `yaml:"max_nodes" validate:"min=1"`
}

// Log configures diagnostics.
type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps Level to a slog level. Unknown levels are info.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Database:       "osq.db",
		DefaultBackend: "PHONOGRAPH",
		Paging: Paging{
			DefaultPageSize: 100,
			MaxPageSize:     10000,
			PageTokenTTL:    24 * time.Hour,
			ScrollTTL:       5 * time.Minute,
		},
		Aggregation: Aggregation{
			PrecisionThreshold: 3000,
			MaxParallelism:     8,
		},
		Evaluation: Evaluation{MaxNodes: 10000},
		Log:        Log{Level: "info"},
	}
}

// Load reads the file at path over Default. It does not validate.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default. It does not validate.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports all violations together.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describe(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// describe renders one violation against the YAML key path.
func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", key, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s, got %v", key, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be at most %s, got %v", key, fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Sprintf("%s must not exceed %s, got %v", key, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s", key, fe.Tag())
	}
}
