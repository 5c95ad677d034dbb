package cdrloader

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default connection settings.
const (
	DefaultAuthEndpoint   = "iam-client-test.us-east.philips-healthsuite.com"
	DefaultDataEndpoint   = "cdr-stu3-sandbox.us-east.philips-healthsuite.com"
	DefaultFailuresPath   = "failures.json"
	DefaultFailuresFormat = "ndjson"
)

// Option configures a Config.
type Option func(*Config)

// Config holds everything a run needs. It is built once at startup and passed
// by value, so the core packages never read global state.
type Config struct {
	// Endpoints are host names (optionally host:port) without scheme.
	AuthEndpoint string `validate:"required"`
	DataEndpoint string `validate:"required"`
	Scheme       string `validate:"oneof=https http"`

	// Organization is the CDR tenant the resources are stored under.
	Organization string `validate:"required_unless=DryRun true"`
	FHIRVersion  string `validate:"required"`

	Username     string `validate:"required_unless=DryRun true"`
	Password     string `validate:"required_unless=DryRun true"`
	ClientID     string `validate:"required_unless=DryRun true"`
	ClientSecret string `validate:"required_unless=DryRun true"`

	// Module is the package reference handed to the loader.
	Module string `validate:"required"`

	FailuresPath   string `validate:"required"`
	FailuresFormat string `validate:"oneof=json ndjson"`

	// Where is an optional FHIRPath predicate selecting resources to upload.
	Where string

	// Rate caps uploads per second. Zero disables pacing.
	Rate    float64       `validate:"gte=0"`
	Timeout time.Duration `validate:"gte=0"`
	DryRun  bool

	Artifact ArtifactConfig
}

// ArtifactConfig describes where the failure artifact is copied after a run.
// Publication is disabled when Bucket is empty.
type ArtifactConfig struct {
	Endpoint  string `validate:"required_with=Bucket"`
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether the artifact should be published.
func (a ArtifactConfig) Enabled() bool {
	return a.Bucket != ""
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		AuthEndpoint:   DefaultAuthEndpoint,
		DataEndpoint:   DefaultDataEndpoint,
		Scheme:         "https",
		FHIRVersion:    string(STU3),
		FailuresPath:   DefaultFailuresPath,
		FailuresFormat: DefaultFailuresFormat,
	}
}

// NewConfig applies opts to the defaults and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// TokenURL returns the OAuth2 token endpoint.
func (c Config) TokenURL() string {
	return fmt.Sprintf("%s://%s/authorize/oauth2/token", c.Scheme, c.AuthEndpoint)
}

// StoreURL returns the tenant scoped base URL of the FHIR store.
func (c Config) StoreURL() string {
	return fmt.Sprintf("%s://%s/store/fhir/%s", c.Scheme, c.DataEndpoint, c.Organization)
}

// --- Connection Options ---

// WithEndpoints sets the authorization and data endpoint hosts.
func WithEndpoints(auth, data string) Option {
	return func(c *Config) {
		c.AuthEndpoint = auth
		c.DataEndpoint = data
	}
}

// WithInsecureHTTP switches both endpoints to plain http.
// Only useful against local test servers.
func WithInsecureHTTP(insecure bool) Option {
	return func(c *Config) {
		if insecure {
			c.Scheme = "http"
		} else {
			c.Scheme = "https"
		}
	}
}

// WithOrganization sets the CDR tenant organization.
func WithOrganization(org string) Option {
	return func(c *Config) {
		c.Organization = org
	}
}

// WithFHIRVersion sets the fhirVersion media type parameter.
func WithFHIRVersion(version string) Option {
	return func(c *Config) {
		c.FHIRVersion = version
	}
}

// WithCredentials sets the resource owner and OAuth2 client credentials.
func WithCredentials(username, password, clientID, clientSecret string) Option {
	return func(c *Config) {
		c.Username = username
		c.Password = password
		c.ClientID = clientID
		c.ClientSecret = clientSecret
	}
}

// WithTimeout sets the per-request HTTP timeout. Zero keeps the transport default.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// --- Input Options ---

// WithModule sets the package reference to load.
func WithModule(module string) Option {
	return func(c *Config) {
		c.Module = module
	}
}

// WithWhere sets a FHIRPath expression that resources must satisfy.
func WithWhere(expr string) Option {
	return func(c *Config) {
		c.Where = expr
	}
}

// --- Run Options ---

// WithFailures sets the failure artifact path and format ("json" or "ndjson").
func WithFailures(path, format string) Option {
	return func(c *Config) {
		c.FailuresPath = path
		c.FailuresFormat = format
	}
}

// WithRate limits uploads to n per second.
func WithRate(n float64) Option {
	return func(c *Config) {
		c.Rate = n
	}
}

// WithDryRun disables authentication and uploads.
func WithDryRun(dry bool) Option {
	return func(c *Config) {
		c.DryRun = dry
	}
}

// WithArtifact configures publication of the failure artifact.
func WithArtifact(a ArtifactConfig) Option {
	return func(c *Config) {
		c.Artifact = a
	}
}
