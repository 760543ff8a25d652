// Package config loads and validates the retrieval core's deployment
// configuration: which index backend to talk to, which embedder and
// rewriter providers to use, and the engine's own tunables (spec.md §6's
// configuration surface). It follows the same layered precedence the
// rest of the corpus uses for CLI tools — defaults, then a user file,
// then a project file, then environment variables — so a single binary can
// be pointed at different deployments without a rebuild.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nithin8919/policyretrieval/internal/logging"
)

// IndexBackend selects which indexclient.Client implementation the
// composition root builds.
type IndexBackend string

const (
	IndexBackendLocal IndexBackend = "local"
	IndexBackendQdrant IndexBackend = "qdrant"
)

// Config is the complete retrieveqa configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Index     IndexConfig     `yaml:"index" json:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Rewriter  RewriterConfig  `yaml:"rewriter" json:"rewriter"`
	CrossEncoder CrossEncoderConfig `yaml:"cross_encoder" json:"cross_encoder"`
	Internet  InternetConfig  `yaml:"internet" json:"internet"`
	ClauseIndex ClauseIndexConfig `yaml:"clause_index" json:"clause_index"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// IndexConfig configures the storage-layer client (spec.md §6's
// knn/bm25/fetch_by_filter/get_by_ids contract).
type IndexConfig struct {
	Backend IndexBackend `yaml:"backend" json:"backend"`

	// QdrantHost and QdrantAPIKey are used when Backend is "qdrant".
	QdrantHost   string `yaml:"qdrant_host" json:"qdrant_host"`
	QdrantAPIKey string `yaml:"qdrant_api_key" json:"qdrant_api_key"`

	// LocalSeedPath points at a fixture file used to populate the local
	// in-memory backend at startup, for development and demos.
	LocalSeedPath string `yaml:"local_seed_path" json:"local_seed_path"`
}

// EmbeddingConfig configures the dense-vector embedder.
type EmbeddingConfig struct {
	// Provider is "static" (StaticEmbedder768, no network), "service"
	// (ServiceEmbedder, HTTP embedding endpoint), or "cached", which
	// embed.NewEmbedder builds the same way as "service". NewEmbedder puts
	// an LRU in front of every provider. NewConfig sets "static".
	Provider string `yaml:"provider" json:"provider"`

	ServiceHost string `yaml:"service_host" json:"service_host"`
	Model       string `yaml:"model" json:"model"`
	CacheSize   int    `yaml:"cache_size" json:"cache_size"`
}

// RewriterConfig configures the LLM-backed query rewriter
// (understanding.Rewriter). An empty APIKey permanently downgrades the
// rewriter to rule-based generation — never an error.
type RewriterConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Model  string `yaml:"model" json:"model"`
}

// CrossEncoderConfig configures the rerank stage's cross-encoder.
type CrossEncoderConfig struct {
	// Endpoint is the HTTP cross-encoder service URL. Empty uses
	// NoOpCrossEncoder (original-order passthrough).
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// InternetConfig configures the internet fetcher leg.
type InternetConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Host       string `yaml:"host" json:"host"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	TopN       int    `yaml:"top_n" json:"top_n"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// ClauseIndexConfig configures the citation fast-path's backing store.
type ClauseIndexConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// EngineConfig mirrors engine.Config, expressed in YAML-friendly types.
type EngineConfig struct {
	IncludeSuperseded bool `yaml:"include_superseded" json:"include_superseded"`
	CacheSize         int  `yaml:"cache_size" json:"cache_size"`
	HardMarginMS      int  `yaml:"hard_margin_ms" json:"hard_margin_ms"`

	// EnableMetrics turns on in-memory query telemetry (mode mix, latency
	// histogram, zero-result and cache-hit tracking). See internal/telemetry.
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
}

// LogConfig configures structured logging (see internal/logging).
type LogConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig returns a Config with sensible defaults: a local in-memory
// index, a static embedder, a rule-based rewriter (no API key), the
// internet leg enabled against no configured host (so it degrades to
// empty until one is set), and no clause index.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Backend: IndexBackendLocal,
		},
		Embedding: EmbeddingConfig{
			Provider:  "static",
			CacheSize: 4096,
		},
		Rewriter: RewriterConfig{
			Model: "gpt-4o-mini",
		},
		CrossEncoder: CrossEncoderConfig{
			PoolSize: 8,
		},
		Internet: InternetConfig{
			Enabled:    true,
			TopN:       5,
			MaxRetries: 2,
		},
		ClauseIndex: ClauseIndexConfig{
			Enabled: false,
		},
		Engine: EngineConfig{
			IncludeSuperseded: true,
			CacheSize:         1024,
			HardMarginMS:      2000,
			EnableMetrics:     true,
		},
		Log: LogConfig{
			Level:         "info",
			FilePath:      logging.DefaultLogPath(),
			WriteToStderr: true,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory spec.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "retrieveqa", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "retrieveqa", "config.yaml")
	}
	return filepath.Join(home, ".config", "retrieveqa", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse user config %s: %w", path, err)
	}
	return &cfg, nil
}

// Load builds the final Config: defaults, then the user config (if any),
// then an explicit project file at dir/retrieveqa.yaml (if any), then
// RETRIEVEQA_* environment overrides, then validation.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"retrieveqa.yaml", "retrieveqa.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays every non-zero field of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.QdrantHost != "" {
		c.Index.QdrantHost = other.Index.QdrantHost
	}
	if other.Index.QdrantAPIKey != "" {
		c.Index.QdrantAPIKey = other.Index.QdrantAPIKey
	}
	if other.Index.LocalSeedPath != "" {
		c.Index.LocalSeedPath = other.Index.LocalSeedPath
	}

	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.ServiceHost != "" {
		c.Embedding.ServiceHost = other.Embedding.ServiceHost
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	if other.Rewriter.APIKey != "" {
		c.Rewriter.APIKey = other.Rewriter.APIKey
	}
	if other.Rewriter.Model != "" {
		c.Rewriter.Model = other.Rewriter.Model
	}

	if other.CrossEncoder.Endpoint != "" {
		c.CrossEncoder.Endpoint = other.CrossEncoder.Endpoint
	}
	if other.CrossEncoder.APIKey != "" {
		c.CrossEncoder.APIKey = other.CrossEncoder.APIKey
	}
	if other.CrossEncoder.PoolSize != 0 {
		c.CrossEncoder.PoolSize = other.CrossEncoder.PoolSize
	}

	if other.Internet.Host != "" {
		c.Internet.Enabled = other.Internet.Enabled
		c.Internet.Host = other.Internet.Host
	}
	if other.Internet.APIKey != "" {
		c.Internet.APIKey = other.Internet.APIKey
	}
	if other.Internet.TopN != 0 {
		c.Internet.TopN = other.Internet.TopN
	}
	if other.Internet.MaxRetries != 0 {
		c.Internet.MaxRetries = other.Internet.MaxRetries
	}

	if other.ClauseIndex.Path != "" {
		c.ClauseIndex.Enabled = other.ClauseIndex.Enabled
		c.ClauseIndex.Path = other.ClauseIndex.Path
	}

	if other.Engine.CacheSize != 0 {
		c.Engine.CacheSize = other.Engine.CacheSize
	}
	if other.Engine.HardMarginMS != 0 {
		c.Engine.HardMarginMS = other.Engine.HardMarginMS
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.FilePath != "" {
		c.Log.FilePath = other.Log.FilePath
	}
}

// applyEnvOverrides applies RETRIEVEQA_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RETRIEVEQA_INDEX_BACKEND"); v != "" {
		c.Index.Backend = IndexBackend(v)
	}
	if v := os.Getenv("RETRIEVEQA_QDRANT_HOST"); v != "" {
		c.Index.QdrantHost = v
	}
	if v := os.Getenv("RETRIEVEQA_QDRANT_API_KEY"); v != "" {
		c.Index.QdrantAPIKey = v
	}
	if v := os.Getenv("RETRIEVEQA_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("RETRIEVEQA_EMBEDDING_SERVICE_HOST"); v != "" {
		c.Embedding.ServiceHost = v
	}
	if v := os.Getenv("RETRIEVEQA_REWRITER_API_KEY"); v != "" {
		c.Rewriter.APIKey = v
	}
	if v := os.Getenv("RETRIEVEQA_CROSS_ENCODER_ENDPOINT"); v != "" {
		c.CrossEncoder.Endpoint = v
	}
	if v := os.Getenv("RETRIEVEQA_INTERNET_HOST"); v != "" {
		c.Internet.Host = v
	}
	if v := os.Getenv("RETRIEVEQA_INTERNET_API_KEY"); v != "" {
		c.Internet.APIKey = v
	}
	if v := os.Getenv("RETRIEVEQA_INTERNET_ENABLED"); v != "" {
		c.Internet.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RETRIEVEQA_CLAUSE_INDEX_PATH"); v != "" {
		c.ClauseIndex.Enabled = true
		c.ClauseIndex.Path = v
	}
	if v := os.Getenv("RETRIEVEQA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RETRIEVEQA_ENGINE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Engine.CacheSize = n
		}
	}
}

// Validate checks invariants Load's defaults and merges can't themselves
// guarantee.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case IndexBackendLocal, IndexBackendQdrant:
	default:
		return fmt.Errorf("index.backend must be %q or %q, got %q", IndexBackendLocal, IndexBackendQdrant, c.Index.Backend)
	}
	if c.Index.Backend == IndexBackendQdrant && c.Index.QdrantHost == "" {
		return fmt.Errorf("index.qdrant_host is required when index.backend is %q", IndexBackendQdrant)
	}

	validProviders := map[string]bool{"static": true, "service": true, "cached": true}
	if c.Embedding.Provider != "" && !validProviders[strings.ToLower(c.Embedding.Provider)] {
		return fmt.Errorf("embedding.provider must be 'static', 'service', or 'cached', got %q", c.Embedding.Provider)
	}
	if strings.ToLower(c.Embedding.Provider) == "service" && c.Embedding.ServiceHost == "" {
		return fmt.Errorf("embedding.service_host is required when embedding.provider is 'service'")
	}

	if c.ClauseIndex.Enabled && c.ClauseIndex.Path == "" {
		return fmt.Errorf("clause_index.path is required when clause_index.enabled is true")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("log.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Log.Level)
	}

	if c.Engine.CacheSize < 0 {
		return fmt.Errorf("engine.cache_size must be non-negative, got %d", c.Engine.CacheSize)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file. Returns nil, nil if
// it doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
