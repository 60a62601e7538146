// Package config provides configuration loading and management for the sync service.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/biblio-sync/internal/telemetry"
	"github.com/stacklok/biblio-sync/internal/validators"
)

// EnvPrefix is the prefix of every environment variable read by the service
const EnvPrefix = "BIBLIO_SYNC"

const (
	// TargetTypeCrossref is a DOI registration agency target
	TargetTypeCrossref = "crossref"

	// TargetTypeDOAJ is an open-access article index target
	TargetTypeDOAJ = "doaj"
)

// StorageType selects where sync state is persisted
type StorageType string

const (
	// StorageTypeFile keeps sync state in JSON files under the data directory
	StorageTypeFile StorageType = "file"

	// StorageTypePostgres keeps sync state in PostgreSQL next to the CMS tables
	StorageTypePostgres StorageType = "postgres"

	// StorageTypeSQLite keeps sync state in a local SQLite database
	StorageTypeSQLite StorageType = "sqlite"
)

const (
	defaultBatch             = 10
	defaultIntervalMinutes   = 15
	defaultRequestsPerSecond = 1.0
	defaultRetryMinutes      = 60
	defaultTimeoutMinutes    = 30
	defaultHTTPTimeout       = 30 * time.Second
	defaultDataDir           = "./data"
	defaultSQLitePath        = "./data/biblio-sync.db"
	defaultAPIAddress        = "127.0.0.1:8080"
)

var targetNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Targets are the registries articles are synchronized with
	Targets []TargetConfig `yaml:"targets"`

	// Storage selects the sync state backend
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Database holds PostgreSQL settings, required for the postgres storage type
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Articles configures where articles are read from in file mode
	Articles ArticlesConfig `yaml:"articles,omitempty"`

	// API configures the admin HTTP API
	API APIConfig `yaml:"api,omitempty"`

	// Telemetry configures tracing and metrics
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// TargetConfig defines one registry integration and its scheduling policy
type TargetConfig struct {
	// Name identifies the target in logs, storage and the API
	Name string `yaml:"name"`

	// Type is the registry kind (crossref or doaj)
	Type string `yaml:"type"`

	// Enabled turns the periodic loop on; nil means enabled
	Enabled *bool `yaml:"enabled,omitempty"`

	// Batch is the maximum number of articles handled per tick
	Batch int `yaml:"batch,omitempty"`

	// Interval is the number of minutes between ticks
	Interval int `yaml:"interval,omitempty"`

	// RequestsPerSecond bounds outbound registry calls, never below 1
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// RetryMinutes is the delay before an error or pending article is retried
	RetryMinutes int `yaml:"retryMinutes,omitempty"`

	// TimeoutMinutes is the age after which a pending article counts as abandoned
	TimeoutMinutes int `yaml:"timeoutMinutes,omitempty"`

	// RequireExternalPrerequisite only selects articles that already carry a DOI
	RequireExternalPrerequisite bool `yaml:"requireExternalPrerequisite,omitempty"`

	// StopOnFirstFailure ends the submission pass at the first per-article failure; nil means true
	StopOnFirstFailure *bool `yaml:"stopOnFirstFailure,omitempty"`

	// HTTPTimeout bounds every registry call (e.g. "30s")
	HTTPTimeout string `yaml:"httpTimeout,omitempty"`

	// Categories restricts the target to articles in any of these categories
	Categories []string `yaml:"categories,omitempty"`

	// Journal describes the publication the articles belong to
	Journal JournalConfig `yaml:"journal,omitempty"`

	// Crossref holds settings for crossref targets
	Crossref *CrossrefConfig `yaml:"crossref,omitempty"`

	// DOAJ holds settings for doaj targets
	DOAJ *DOAJConfig `yaml:"doaj,omitempty"`
}

// JournalConfig describes journal-level metadata shared by all articles
type JournalConfig struct {
	Title     string `yaml:"title,omitempty"`
	EISSN     string `yaml:"eissn,omitempty"`
	PISSN     string `yaml:"pissn,omitempty"`
	Publisher string `yaml:"publisher,omitempty"`
	Language  string `yaml:"language,omitempty"`
}

// CrossrefConfig defines the DOI deposit settings
type CrossrefConfig struct {
	// DepositURL is the deposit endpoint
	DepositURL string `yaml:"depositUrl,omitempty"`

	// CheckURL is the submission result endpoint
	CheckURL string `yaml:"checkUrl,omitempty"`

	// Username is the deposit account
	Username string `yaml:"username,omitempty"`

	// PasswordFile is a file containing the deposit password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	DepositorName  string `yaml:"depositorName,omitempty"`
	DepositorEmail string `yaml:"depositorEmail,omitempty"`
	Registrant     string `yaml:"registrant,omitempty"`

	// DOIPrefix is the prefix owned by the depositor, e.g. "10.12345"
	DOIPrefix string `yaml:"doiPrefix,omitempty"`
}

// DOAJConfig defines the article index settings
type DOAJConfig struct {
	// BaseURL is the API root, e.g. "https://doaj.org"
	BaseURL string `yaml:"baseUrl,omitempty"`

	// APIKeyFile is a file containing the API key
	APIKeyFile string `yaml:"apiKeyFile,omitempty"`

	// IdentifyBy selects how existing entries are searched: doi, title or permalink
	IdentifyBy string `yaml:"identifyBy,omitempty"`
}

// StorageConfig defines where sync state lives
type StorageConfig struct {
	Type       StorageType `yaml:"type,omitempty"`
	DataDir    string      `yaml:"dataDir,omitempty"`
	SQLitePath string      `yaml:"sqlitePath,omitempty"`
}

// ArticlesConfig defines the article source used with file storage
type ArticlesConfig struct {
	// File is a JSON or YAML export of the CMS articles
	File string `yaml:"file,omitempty"`
}

// APIConfig defines the admin API settings
type APIConfig struct {
	Address        string `yaml:"address,omitempty"`
	AdminTokenFile string `yaml:"adminTokenFile,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses and validates a YAML document
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetTarget returns the named target configuration
func (c *Config) GetTarget(name string) (*TargetConfig, bool) {
	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], true
		}
	}
	return nil, false
}

// GetStorageType returns the storage type, defaulting to file storage
func (c *Config) GetStorageType() StorageType {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetDataDir returns the data directory used by file storage
func (c *Config) GetDataDir() string {
	if c.Storage.DataDir == "" {
		return defaultDataDir
	}
	return c.Storage.DataDir
}

// GetSQLitePath returns the SQLite database path
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLitePath == "" {
		return defaultSQLitePath
	}
	return c.Storage.SQLitePath
}

// GetAPIAddress returns the admin API listen address
func (c *Config) GetAPIAddress() string {
	if c.API.Address == "" {
		return defaultAPIAddress
	}
	return c.API.Address
}

// GetAdminToken returns the bearer token guarding mutating API routes.
// An empty token disables the check.
func (c *Config) GetAdminToken() (string, error) {
	if c.API.AdminTokenFile != "" {
		return readSecretFile(c.API.AdminTokenFile)
	}
	return os.Getenv(EnvPrefix + "_ADMIN_TOKEN"), nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}

	names := make(map[string]bool)
	for i := range c.Targets {
		target := &c.Targets[i]
		if target.Name == "" {
			return fmt.Errorf("target[%d]: name is required", i)
		}
		if !targetNamePattern.MatchString(target.Name) {
			return fmt.Errorf("target[%d]: name '%s' must be lowercase letters, digits and dashes", i, target.Name)
		}
		if names[target.Name] {
			return fmt.Errorf("target[%d]: duplicate target name '%s'", i, target.Name)
		}
		names[target.Name] = true

		if err := target.validate(fmt.Sprintf("target[%d] (%s)", i, target.Name)); err != nil {
			return err
		}
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.Telemetry.Validate()
}

func (c *Config) validateStorage() error {
	switch c.GetStorageType() {
	case StorageTypeFile:
		if c.Articles.File == "" {
			return fmt.Errorf("storage: articles.file is required with file storage")
		}
	case StorageTypePostgres:
		if c.Database == nil {
			return fmt.Errorf("storage: database configuration is required with postgres storage")
		}
		return c.Database.validate()
	case StorageTypeSQLite:
	default:
		return fmt.Errorf("storage: unknown type '%s'", c.Storage.Type)
	}
	return nil
}

func (t *TargetConfig) validate(prefix string) error {
	switch t.Type {
	case TargetTypeCrossref:
		if t.Crossref == nil {
			return fmt.Errorf("%s: crossref configuration is required", prefix)
		}
		if t.DOAJ != nil {
			return fmt.Errorf("%s: doaj configuration is not allowed on a crossref target", prefix)
		}
	case TargetTypeDOAJ:
		if t.DOAJ == nil {
			return fmt.Errorf("%s: doaj configuration is required", prefix)
		}
		if t.Crossref != nil {
			return fmt.Errorf("%s: crossref configuration is not allowed on a doaj target", prefix)
		}
		switch t.DOAJ.IdentifyBy {
		case "", "doi", "title", "permalink":
		default:
			return fmt.Errorf("%s: doaj.identifyBy must be one of doi, title, permalink", prefix)
		}
	default:
		return fmt.Errorf("%s: type must be %s or %s, got '%s'", prefix, TargetTypeCrossref, TargetTypeDOAJ, t.Type)
	}

	if err := t.Journal.validate(prefix); err != nil {
		return err
	}
	if t.Crossref != nil && t.Crossref.DOIPrefix != "" {
		if _, err := validators.ValidateDOIPrefix(t.Crossref.DOIPrefix); err != nil {
			return fmt.Errorf("%s: crossref.doiPrefix: %w", prefix, err)
		}
	}

	if t.Batch < 0 || t.Interval < 0 || t.RetryMinutes < 0 || t.TimeoutMinutes < 0 || t.RequestsPerSecond < 0 {
		return fmt.Errorf("%s: batch, interval, retryMinutes, timeoutMinutes and requestsPerSecond must not be negative", prefix)
	}

	if t.HTTPTimeout != "" {
		if _, err := time.ParseDuration(t.HTTPTimeout); err != nil {
			return fmt.Errorf("%s: httpTimeout must be a valid duration (e.g., '30s'): %w", prefix, err)
		}
	}

	return nil
}

func (j *JournalConfig) validate(prefix string) error {
	if j.EISSN != "" {
		if _, err := validators.ValidateISSN(j.EISSN); err != nil {
			return fmt.Errorf("%s: journal.eissn: %w", prefix, err)
		}
	}
	if j.PISSN != "" {
		if _, err := validators.ValidateISSN(j.PISSN); err != nil {
			return fmt.Errorf("%s: journal.pissn: %w", prefix, err)
		}
	}
	return nil
}

// IsEnabled reports whether the periodic loop runs for this target
func (t *TargetConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// GetBatch returns the number of articles per tick, at least 1
func (t *TargetConfig) GetBatch() int {
	if t.Batch < 1 {
		return defaultBatch
	}
	return t.Batch
}

// GetInterval returns the time between ticks, at least one minute
func (t *TargetConfig) GetInterval() time.Duration {
	if t.Interval < 1 {
		return defaultIntervalMinutes * time.Minute
	}
	return time.Duration(t.Interval) * time.Minute
}

// GetRequestsPerSecond returns the outbound request rate, never below 1.0
func (t *TargetConfig) GetRequestsPerSecond() float64 {
	if t.RequestsPerSecond == 0 {
		return defaultRequestsPerSecond
	}
	if t.RequestsPerSecond < 1.0 {
		return 1.0
	}
	return t.RequestsPerSecond
}

// GetRetryDelay returns the delay before error and pending articles are retried
func (t *TargetConfig) GetRetryDelay() time.Duration {
	if t.RetryMinutes == 0 {
		return defaultRetryMinutes * time.Minute
	}
	return time.Duration(t.RetryMinutes) * time.Minute
}

// GetPendingTimeout returns the age after which a pending article is abandoned
func (t *TargetConfig) GetPendingTimeout() time.Duration {
	if t.TimeoutMinutes == 0 {
		return defaultTimeoutMinutes * time.Minute
	}
	return time.Duration(t.TimeoutMinutes) * time.Minute
}

// GetStopOnFirstFailure reports whether a per-article failure ends the submission pass
func (t *TargetConfig) GetStopOnFirstFailure() bool {
	return t.StopOnFirstFailure == nil || *t.StopOnFirstFailure
}

// GetHTTPTimeout returns the timeout applied to each registry call
func (t *TargetConfig) GetHTTPTimeout() time.Duration {
	if t.HTTPTimeout == "" {
		return defaultHTTPTimeout
	}
	d, err := time.ParseDuration(t.HTTPTimeout)
	if err != nil || d <= 0 {
		return defaultHTTPTimeout
	}
	return d
}

// EnvName returns the target name as used in environment variable names
func (t *TargetConfig) EnvName() string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(t.Name, "-", "_"))
}

// GetPassword returns the crossref deposit password from the password file or
// the <PREFIX>_<TARGET>_PASSWORD environment variable
func (t *TargetConfig) GetPassword() (string, error) {
	if t.Crossref != nil && t.Crossref.PasswordFile != "" {
		return readSecretFile(t.Crossref.PasswordFile)
	}
	envName := t.EnvName() + "_PASSWORD"
	if v := os.Getenv(envName); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no password configured: set crossref.passwordFile or %s", envName)
}

// GetAPIKey returns the doaj API key from the key file or the
// <PREFIX>_<TARGET>_API_KEY environment variable
func (t *TargetConfig) GetAPIKey() (string, error) {
	if t.DOAJ != nil && t.DOAJ.APIKeyFile != "" {
		return readSecretFile(t.DOAJ.APIKeyFile)
	}
	envName := t.EnvName() + "_API_KEY"
	if v := os.Getenv(envName); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no API key configured: set doaj.apiKeyFile or %s", envName)
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (d *DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("database: host is required")
	}
	if d.Port == 0 {
		return fmt.Errorf("database: port is required")
	}
	if d.User == "" {
		return fmt.Errorf("database: user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database: database name is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database: invalid connMaxLifetime: %w", err)
		}
	}
	return nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from BIBLIO_SYNC_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		return readSecretFile(d.PasswordFile)
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	), nil
}
