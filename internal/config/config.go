package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig       `json:"server"`
	Providers    []ProviderConfig   `json:"providers"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Safety       SafetyConfig       `json:"safety"`
	Warehouse    WarehouseConfig    `json:"warehouse"`
	Redis        RedisConfig        `json:"redis"`
	Retrieval    RetrievalConfig    `json:"retrieval"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Model    string            `json:"model"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type OrchestratorConfig struct {
	// CapabilityTimeoutMillis bounds each capability invocation.
	CapabilityTimeoutMillis int `json:"capability_timeout_millis"`
}

type SafetyConfig struct {
	// Threshold is the minimum score for a verdict to count as safe.
	Threshold float64 `json:"threshold"`
}

type WarehouseConfig struct {
	DSN string `json:"dsn"`
	// MaxBytesBilled is the hard cost ceiling per executed statement.
	MaxBytesBilled int64 `json:"max_bytes_billed"`
	// QueryTimeoutMillis is the per-statement time budget.
	QueryTimeoutMillis int `json:"query_timeout_millis"`
	// LargeTables lists tables that get a recency predicate injected
	// when a generated statement scans them unbounded.
	LargeTables []string `json:"large_tables"`
	RecencyDays int      `json:"recency_days"`
	RowLimit    int      `json:"row_limit"`
	// CacheTTLSeconds controls the Redis result cache. Zero disables it.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type RetrievalConfig struct {
	Enabled   bool            `json:"enabled"`
	Qdrant    QdrantConfig    `json:"qdrant"`
	Embedding EmbeddingConfig `json:"embedding"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Orchestrator.CapabilityTimeoutMillis == 0 {
		c.Orchestrator.CapabilityTimeoutMillis = 30000
	}
	if c.Safety.Threshold == 0 {
		c.Safety.Threshold = 0.5
	}
	if c.Warehouse.MaxBytesBilled == 0 {
		c.Warehouse.MaxBytesBilled = 1 << 30 // 1 GiB
	}
	if c.Warehouse.QueryTimeoutMillis == 0 {
		c.Warehouse.QueryTimeoutMillis = 10000
	}
	if c.Warehouse.RecencyDays == 0 {
		c.Warehouse.RecencyDays = 90
	}
	if c.Warehouse.RowLimit == 0 {
		c.Warehouse.RowLimit = 1000
	}
	if len(c.Warehouse.LargeTables) == 0 {
		c.Warehouse.LargeTables = []string{"orders", "order_items", "events", "transactions"}
	}
}
