package config

import (
	"fmt"
	"time"
)

// RuleConfig is one classifier rule as written in the configuration file
type RuleConfig struct {
	Label   string `mapstructure:"label"`
	Field   string `mapstructure:"field"`
	Match   string `mapstructure:"match"`
	Pattern string `mapstructure:"pattern"`
}

// ResolverConfig represents the identity resolver settings
type ResolverConfig struct {
	NameMatch string
}

// DirectoryConfig represents the person directory settings
type DirectoryConfig struct {
	Type       string
	StaticPath string
}

// StoreConfig represents the snapshot store settings
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
	Timeout    time.Duration
}

// IngestConfig represents the archive ingestion settings
type IngestConfig struct {
	Format      string
	MailingList string
	BatchSize   int
	MaxBodySize int
}

// GetClassifierRules returns the configured rules in evaluation order
func (c *Config) GetClassifierRules() ([]RuleConfig, error) {
	var rules []RuleConfig
	if err := c.v.UnmarshalKey("classifier.rules", &rules); err != nil {
		return nil, fmt.Errorf("invalid classifier rules: %w", err)
	}
	return rules, nil
}

// GetResolver returns the resolver configuration
func (c *Config) GetResolver() ResolverConfig {
	return ResolverConfig{
		NameMatch: c.GetString("resolver.name_match"),
	}
}

// GetDirectory returns the directory configuration
func (c *Config) GetDirectory() DirectoryConfig {
	return DirectoryConfig{
		Type:       c.GetString("directory.type"),
		StaticPath: c.GetString("directory.static_path"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	timeout, err := c.GetDuration("store.timeout")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid store timeout: %w", err)
	}
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
		Timeout:    timeout,
	}, nil
}

// GetIngest returns the ingestion configuration
func (c *Config) GetIngest() IngestConfig {
	return IngestConfig{
		Format:      c.GetString("ingest.format"),
		MailingList: c.GetString("ingest.mailing_list"),
		BatchSize:   c.GetInt("ingest.batch_size"),
		MaxBodySize: c.GetInt("ingest.max_body_size"),
	}
}
