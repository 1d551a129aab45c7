package store

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvMode     = "DOCKET_ENV"
	EnvEndpoint = "DOCKET_ENDPOINT"
	EnvRegion   = "DOCKET_REGION"
)

// Config holds configuration for the Client.
type Config struct {
	// Database is the database id documents are scoped to.
	Database string `yaml:"database"`

	// Collection is the collection id documents are scoped to.
	Collection string `yaml:"collection"`

	// Backend selects the connector: "memory", "badger" or "dynamo".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Endpoint overrides the remote endpoint (e.g. DynamoDB Local).
	Endpoint string `yaml:"endpoint"`

	// Region is the remote region.
	Region string `yaml:"region"`

	// AccessKeyID and SecretAccessKey are optional static credentials.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// DisableSSLVerification skips TLS certificate checks. Development only.
	DisableSSLVerification bool `yaml:"disable_ssl_verification"`

	// TablePrefix is prepended to collection ids to form DynamoDB table names.
	TablePrefix string `yaml:"table_prefix"`

	// PartitionKeyAttr is the document field partition-scoped options filter on.
	// Default: "partitionKey"
	PartitionKeyAttr string `yaml:"partition_key_attr"`

	// BadgerDir is the data directory of the badger backend.
	BadgerDir string `yaml:"badger_dir"`

	// DisableNormalization returns records with store metadata attached.
	DisableNormalization bool `yaml:"disable_normalization"`

	// UpdateAttempts is the number of read-merge-write attempts Update makes.
	// Default: 4
	UpdateAttempts int `yaml:"update_attempts"`

	// UpdateBackoff is the wait after the first lost etag race.
	// Default: 100ms
	UpdateBackoff time.Duration `yaml:"update_backoff"`

	// UpdateBackoffStep is added to the wait after every further lost race.
	// Default: 200ms
	UpdateBackoffStep time.Duration `yaml:"update_backoff_step"`

	// MinThroughput and MaxThroughput bound every throughput write.
	// Default: 400 and 10000
	MinThroughput int `yaml:"min_throughput"`
	MaxThroughput int `yaml:"max_throughput"`

	// GateTimeout bounds how long a throughput change waits for the gate.
	// Default: 15s
	GateTimeout time.Duration `yaml:"gate_timeout"`

	// GatePollInterval is how often a waiting throughput change polls the gate.
	// Default: 50ms
	GatePollInterval time.Duration `yaml:"gate_poll_interval"`
}

// DefaultConfig returns sensible defaults for a local development setup.
func DefaultConfig() Config {
	return Config{
		Database:          "docket",
		Collection:        "documents",
		Backend:           "memory",
		PartitionKeyAttr:  "partitionKey",
		UpdateAttempts:    4,
		UpdateBackoff:     100 * time.Millisecond,
		UpdateBackoffStep: 200 * time.Millisecond,
		MinThroughput:     400,
		MaxThroughput:     10000,
		GateTimeout:       15 * time.Second,
		GatePollInterval:  50 * time.Millisecond,
	}
}

// validate fills in defaults and clamps values to acceptable bounds.
func (c *Config) validate() {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.PartitionKeyAttr == "" {
		c.PartitionKeyAttr = d.PartitionKeyAttr
	}
	if c.UpdateAttempts < 1 {
		c.UpdateAttempts = d.UpdateAttempts
	}
	if c.UpdateBackoff < 0 {
		c.UpdateBackoff = 0
	}
	if c.UpdateBackoffStep < 0 {
		c.UpdateBackoffStep = 0
	}
	if c.MinThroughput <= 0 {
		c.MinThroughput = d.MinThroughput
	}
	if c.MaxThroughput <= 0 {
		c.MaxThroughput = d.MaxThroughput
	}
	if c.MaxThroughput < c.MinThroughput {
		c.MaxThroughput = c.MinThroughput
	}
	if c.GateTimeout <= 0 {
		c.GateTimeout = d.GateTimeout
	}
	if c.GatePollInterval <= 0 {
		c.GatePollInterval = d.GatePollInterval
	}
}

// Validate reports configuration that can't be repaired by defaults.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	for _, id := range []string{c.Database, c.Collection} {
		if strings.ContainsAny(id, "/\\?#") {
			return fmt.Errorf("id %q contains an invalid character", id)
		}
	}
	switch c.Backend {
	case "", "memory", "badger", "dynamo":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == "badger" && c.BadgerDir == "" {
		return fmt.Errorf("badger backend requires badger_dir")
	}
	return nil
}

// ApplyEnv overrides fields from the environment. Development mode
// disables TLS verification.
func (c *Config) ApplyEnv() {
	if strings.EqualFold(os.Getenv(EnvMode), "development") {
		c.DisableSSLVerification = true
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv(EnvRegion); v != "" {
		c.Region = v
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv()
	cfg.validate()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
