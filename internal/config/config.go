// Package config loads the pawls HCL configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/pawls/pkg/remote/gcs"
	"github.com/hashicorp-forge/pawls/pkg/remote/s3"
)

const (
	// DefaultAddr is the default HTTP listen address.
	DefaultAddr = "127.0.0.1:8000"

	// DefaultDataDir is the default data directory.
	DefaultDataDir = "skiff_files/apps/pawls/papers"
)

// Config is the pawls configuration.
type Config struct {
	// DataDir holds documents, status files and annotations.
	DataDir string `hcl:"data_dir,optional"`

	// LogLevel is one of trace, debug, info, warn or error.
	LogLevel string `hcl:"log_level,optional"`

	// LogJSON switches log output to JSON.
	LogJSON bool `hcl:"log_json,optional"`

	Server *Server     `hcl:"server,block"`
	Ingest *Ingest     `hcl:"ingest,block"`
	S3     *s3.Config  `hcl:"s3,block"`
	GCS    *gcs.Config `hcl:"gcs,block"`
	Redis  *Redis      `hcl:"redis,block"`

	// Labels are the annotation labels offered to every annotator without
	// a user_labels override.
	Labels []*Label `hcl:"label,block"`

	// Relations are the relation types offered to every annotator.
	Relations []*Label `hcl:"relation,block"`

	// UserLabels replace Labels for specific annotators.
	UserLabels []*UserLabels `hcl:"user_labels,block"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `hcl:"addr,optional"`

	// PasswordFile is an htpasswd file of bcrypt hashes. Only users listed
	// in it can use the API.
	PasswordFile string `hcl:"password_file,optional"`

	// ShutdownTimeout is how long in-flight requests get on shutdown.
	ShutdownTimeout string `hcl:"shutdown_timeout,optional"`
}

// Ingest configures document ingestion.
type Ingest struct {
	// ValidatePDF rejects files that do not parse as PDF.
	ValidatePDF bool `hcl:"validate_pdf,optional"`

	// Concurrency bounds parallel remote downloads.
	Concurrency int `hcl:"concurrency,optional"`

	// ObjectTimeout bounds one remote download, e.g. "5m".
	ObjectTimeout string `hcl:"object_timeout,optional"`

	// MaxRetries is the number of download retries.
	MaxRetries int `hcl:"max_retries,optional"`

	// WatchDebounce is the quiet period before a dropped file is ingested.
	WatchDebounce string `hcl:"watch_debounce,optional"`
}

// Redis configures cross-process locking.
type Redis struct {
	URL     string `hcl:"url"`
	Prefix  string `hcl:"prefix,optional"`
	LockTTL string `hcl:"lock_ttl,optional"`
	MaxWait string `hcl:"max_wait,optional"`
}

// Label is an annotation label or relation type.
type Label struct {
	Text  string `hcl:"text,label" json:"text"`
	Color string `hcl:"color" json:"color"`
}

// UserLabels overrides the labels for one annotator.
type UserLabels struct {
	User   string   `hcl:"user,label"`
	Labels []*Label `hcl:"label,block"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// LoadFile decodes, defaults and validates the configuration file at path.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// SetDefaults sets default values for optional configuration fields.
func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Ingest == nil {
		c.Ingest = &Ingest{}
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = 10
	}
	if c.Ingest.ObjectTimeout == "" {
		c.Ingest.ObjectTimeout = "5m"
	}
	if c.Ingest.MaxRetries == 0 {
		c.Ingest.MaxRetries = 3
	}
	if c.Ingest.WatchDebounce == "" {
		c.Ingest.WatchDebounce = "2s"
	}
	if c.Redis != nil {
		if c.Redis.LockTTL == "" {
			c.Redis.LockTTL = "30s"
		}
		if c.Redis.MaxWait == "" {
			c.Redis.MaxWait = "10s"
		}
	}
}

// Validate checks the configuration. Call SetDefaults first.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.LogLevel, validation.By(validLogLevel)),
		validation.Field(&c.Server),
		validation.Field(&c.Ingest),
		validation.Field(&c.Redis),
		validation.Field(&c.Labels),
		validation.Field(&c.Relations),
		validation.Field(&c.UserLabels),
	)
	if err != nil {
		return err
	}
	if c.S3 != nil {
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	}
	if c.GCS != nil {
		if err := c.GCS.Validate(); err != nil {
			return fmt.Errorf("gcs: %w", err)
		}
	}
	return nil
}

// Validate implements validation.Validatable.
func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.ShutdownTimeout, validation.By(validDuration)),
	)
}

// Validate implements validation.Validatable.
func (i Ingest) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Concurrency, validation.Min(1)),
		validation.Field(&i.ObjectTimeout, validation.By(validDuration)),
		validation.Field(&i.MaxRetries, validation.Min(0)),
		validation.Field(&i.WatchDebounce, validation.By(validDuration)),
	)
}

// Validate implements validation.Validatable.
func (r Redis) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
		validation.Field(&r.LockTTL, validation.By(validDuration)),
		validation.Field(&r.MaxWait, validation.By(validDuration)),
	)
}

// Validate implements validation.Validatable.
func (l Label) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Text, validation.Required),
		validation.Field(&l.Color, validation.Required),
	)
}

// Validate implements validation.Validatable.
func (u UserLabels) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.User, validation.Required),
		validation.Field(&u.Labels, validation.Required),
	)
}

// LabelsFor returns the labels offered to user.
func (c *Config) LabelsFor(user string) []*Label {
	for _, ul := range c.UserLabels {
		if ul.User == user {
			return ul.Labels
		}
	}
	return c.Labels
}

// Logger builds the root logger from LogLevel and LogJSON.
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.LogLevel),
		JSONFormat: c.LogJSON,
	})
}

// Duration parses a duration field that has passed validation.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func validDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration such as \"30s\"")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validLogLevel(value any) error {
	s, _ := value.(string)
	if hclog.LevelFromString(s) == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}
