// Package config loads notescout configuration: built-in defaults,
// overlaid by a user config file, a per-vault `.notescout.yaml`, and
// finally NOTESCOUT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-vault config file, at the vault root.
const ProjectConfigName = ".notescout.yaml"

// Config is the complete notescout configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Expansion  ExpansionConfig  `yaml:"expansion" json:"expansion"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Filter     FilterConfig     `yaml:"filter" json:"filter"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig controls which vault files are visible to retrieval.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig tunes the retrieval pipeline.
type SearchConfig struct {
	MaxResults     int     `yaml:"max_results" json:"max_results"`
	CandidateLimit int     `yaml:"candidate_limit" json:"candidate_limit"`
	GraphHops      int     `yaml:"graph_hops" json:"graph_hops"`
	EnableSemantic bool    `yaml:"enable_semantic" json:"enable_semantic"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// RRFConstant is the reciprocal rank fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// CoCitationThreshold skips co-citation expansion above this many
	// grep hits.
	CoCitationThreshold int `yaml:"co_citation_threshold" json:"co_citation_threshold"`
}

// ExpansionConfig tunes model-backed query expansion.
type ExpansionConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	Model       string        `yaml:"model" json:"model"`
	OllamaHost  string        `yaml:"ollama_host" json:"ollama_host"`
	MaxVariants int           `yaml:"max_variants" json:"max_variants"`
	CacheSize   int           `yaml:"cache_size" json:"cache_size"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig configures the persistent chunk index.
type IndexConfig struct {
	// Dir holds index files, relative to the vault root.
	Dir string `yaml:"dir" json:"dir"`

	// PartitionMaxBytes caps one partition file.
	PartitionMaxBytes int64 `yaml:"partition_max_bytes" json:"partition_max_bytes"`

	// MaxChunkChars bounds one embedded chunk.
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`

	// WatchDebounce is the event coalescing window for the vault
	// watcher, e.g. "200ms".
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// FilterConfig configures guaranteed-inclusion retrieval.
type FilterConfig struct {
	DailyNoteFormat string `yaml:"daily_note_format" json:"daily_note_format"`
	MaxDailyNotes   int    `yaml:"max_daily_notes" json:"max_daily_notes"`
	MaxK            int    `yaml:"max_k" json:"max_k"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{"**/*.md"},
		},
		Search: SearchConfig{
			MaxResults:          10,
			CandidateLimit:      50,
			GraphHops:           1,
			EnableSemantic:      true,
			SemanticWeight:      1.0,
			RRFConstant:         60,
			CoCitationThreshold: 20,
		},
		Expansion: ExpansionConfig{
			Enabled:     true,
			Model:       "llama3.2",
			OllamaHost:  "http://localhost:11434",
			MaxVariants: 3,
			CacheSize:   128,
			Timeout:     8 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 768,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Index: IndexConfig{
			Dir:               ".notescout",
			PartitionMaxBytes: 150 << 20,
			MaxChunkChars:     2000,
			WatchDebounce:     "200ms",
		},
		Filter: FilterConfig{
			DailyNoteFormat: "2006-01-02",
			MaxDailyNotes:   365,
			MaxK:            30,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// UserConfigPath returns the XDG-style user config file location.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notescout", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "notescout", "config.yaml")
}

// Load builds the effective config for a vault directory, in increasing
// precedence: defaults, user config, vault config, environment.
func Load(vaultDir string) (*Config, error) {
	cfg := NewConfig()

	if p := UserConfigPath(); p != "" {
		if err := cfg.loadYAML(p); err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
	}
	if vaultDir != "" {
		if err := cfg.loadYAML(filepath.Join(vaultDir, ProjectConfigName)); err != nil {
			return nil, fmt.Errorf("vault config: %w", err)
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays one config file onto cfg. A missing file is not an
// error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies NOTESCOUT_* environment variables, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTESCOUT_OLLAMA_HOST"); v != "" {
		c.Expansion.OllamaHost = v
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("NOTESCOUT_EXPANSION_MODEL"); v != "" {
		c.Expansion.Model = v
	}
	if v := os.Getenv("NOTESCOUT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NOTESCOUT_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv("NOTESCOUT_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("NOTESCOUT_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("NOTESCOUT_ENABLE_SEMANTIC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.EnableSemantic = b
		}
	}
	if v := os.Getenv("NOTESCOUT_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.CandidateLimit <= 0 {
		return fmt.Errorf("search.candidate_limit must be positive, got %d", c.Search.CandidateLimit)
	}
	if c.Search.SemanticWeight < 0 {
		return fmt.Errorf("search.semantic_weight must not be negative, got %g", c.Search.SemanticWeight)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Index.PartitionMaxBytes <= 0 {
		return fmt.Errorf("index.partition_max_bytes must be positive, got %d", c.Index.PartitionMaxBytes)
	}
	if _, err := c.WatchDebounce(); err != nil {
		return err
	}
	if c.Server.Transport != "stdio" {
		return fmt.Errorf("server.transport must be stdio, got %q", c.Server.Transport)
	}
	return nil
}

// WatchDebounce parses the configured watcher debounce window.
func (c *Config) WatchDebounce() (time.Duration, error) {
	if c.Index.WatchDebounce == "" {
		return 200 * time.Millisecond, nil
	}
	d, err := time.ParseDuration(c.Index.WatchDebounce)
	if err != nil {
		return 0, fmt.Errorf("index.watch_debounce: %w", err)
	}
	return d, nil
}

// IndexBase returns the chunk index base path for a vault.
func (c *Config) IndexBase(vaultDir string) string {
	return filepath.Join(vaultDir, c.Index.Dir, "chunks")
}

// WriteYAML writes the config to a file, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
