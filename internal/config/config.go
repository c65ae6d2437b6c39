// Package config provides the bootstrapper configuration, matching the schema
// of pythia.yaml. Values come from the built-in defaults, then the YAML file,
// then a .env file and the process environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/selector"
)

// DefaultPath is the configuration file read when no other is given.
const DefaultPath = "pythia.yaml"

// Config represents the full pythia configuration file.
type Config struct {
	// Runtime is the artifact name prefix, e.g. "python".
	Runtime string `yaml:"runtime"`
	// PythonConfiguration is the platform version table,
	// "default@3.11.3.abc:rhel8@3.11.9.xyz".
	PythonConfiguration string `yaml:"python_configuration"`
	// BinaryDistURI is where artifacts are fetched from: http(s):// or
	// s3://bucket/prefix.
	BinaryDistURI    string   `yaml:"binary_dist_uri"`
	PipIndexURL      string   `yaml:"pip_index_url"`
	BaseRequirements []string `yaml:"base_requirements"`

	BuildDir string `yaml:"build_dir"`
	CacheDir string `yaml:"cache_dir"`
	Ledger   string `yaml:"ledger"`

	// Runner is the task runner argv, run with the installed interpreter.
	Runner []string `yaml:"runner"`

	Fetch FetchConfig `yaml:"fetch"`
	S3    S3Config    `yaml:"s3,omitempty"`
}

// FetchConfig tunes the artifact download.
type FetchConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// S3Config holds the object store settings used for s3:// URIs.
type S3Config struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

// NewDefaultConfig returns a Config populated with the production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Runtime:             "python",
		PythonConfiguration: "default@3.11.9.9f6bcc8",
		BinaryDistURI:       "https://bin.chevah.com:20443/production",
		PipIndexURL:         "https://pypi.org/simple",
		BaseRequirements:    []string{"pip==24.0", "setuptools==69.5.1", "wheel==0.43.0"},
		BuildDir:            "build",
		CacheDir:            "cache",
		Ledger:              ".pythia/ledger.db",
		Runner:              []string{"-m", "paver"},
		Fetch: FetchConfig{
			ConnectTimeout: 30 * time.Second,
			AttemptTimeout: 10 * time.Minute,
			Retries:        3,
			RetryDelay:     2 * time.Second,
		},
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			Region:   "us-east-1",
			UseSSL:   true,
		},
	}
}

// Load builds the configuration from path (a missing file is not an error),
// a .env file in the working directory and the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := NewDefaultConfig()
	if err := cfg.ReadFile(path); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile merges the YAML file at path over c. Unknown keys are rejected.
func (c *Config) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return failure.Wrap(failure.Config, err, "read %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return failure.Wrap(failure.Config, err, "parse %s", path)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	env := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}
	set := func(dst *string, keys ...string) {
		if v := env(keys...); v != "" {
			*dst = v
		}
	}

	set(&c.PythonConfiguration, "PYTHON_CONFIGURATION")
	set(&c.BinaryDistURI, "BINARY_DIST_URI")
	set(&c.PipIndexURL, "PIP_INDEX_URL")
	set(&c.BuildDir, "CHEVAH_BUILD")
	set(&c.CacheDir, "CHEVAH_CACHE")
	set(&c.Ledger, "PYTHIA_LEDGER")
	set(&c.S3.Endpoint, "PYTHIA_S3_ENDPOINT")
	set(&c.S3.Region, "PYTHIA_S3_REGION", "AWS_REGION")
	set(&c.S3.AccessKey, "PYTHIA_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID")
	set(&c.S3.SecretKey, "PYTHIA_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY")
	if v := env("PYTHIA_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.S3.UseSSL = b
		}
	}
}

// Table parses the version table.
func (c *Config) Table() (selector.Table, error) {
	return selector.ParseTable(c.PythonConfiguration)
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	var problems []string
	check := func(field string, err error) {
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field, err))
		}
	}

	check("runtime", ValidateNonEmpty(c.Runtime))
	if _, err := c.Table(); err != nil {
		check("python_configuration", err)
	}
	check("binary_dist_uri", ValidateDistURI(c.BinaryDistURI))
	check("pip_index_url", ValidateOptionalURL(c.PipIndexURL))
	check("build_dir", ValidateNonEmpty(c.BuildDir))
	check("cache_dir", ValidateNonEmpty(c.CacheDir))
	if c.Fetch.Retries < 1 {
		check("fetch.retries", fmt.Errorf("must be at least 1"))
	}
	if c.Fetch.ConnectTimeout <= 0 {
		check("fetch.connect_timeout", fmt.Errorf("must be positive"))
	}
	if strings.HasPrefix(c.BinaryDistURI, "s3://") {
		check("s3.endpoint", ValidateEndpoint(c.S3.Endpoint))
	}

	if len(problems) > 0 {
		return &failure.Error{Code: failure.Config, Msg: "invalid configuration: " + strings.Join(problems, "; ")}
	}
	return nil
}
