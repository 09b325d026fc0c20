package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server" yaml:"server" toml:"server"`
	Providers []ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`
	Routing   RoutingConfig    `json:"routing" yaml:"routing" toml:"routing"`
	Embedding EmbeddingConfig  `json:"embedding" yaml:"embedding" toml:"embedding"`
	RAG       rag.Config       `json:"rag" yaml:"rag" toml:"rag"`
	Storage   StorageConfig    `json:"storage" yaml:"storage" toml:"storage"`
	Watch     WatchConfig      `json:"watch" yaml:"watch" toml:"watch"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port" toml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

type ProviderConfig struct {
	ID          string            `json:"id" yaml:"id" toml:"id"`
	Type        string            `json:"type" yaml:"type" toml:"type"`
	Name        string            `json:"name" yaml:"name" toml:"name"`
	Endpoint    string            `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	APIKey      string            `json:"api_key" yaml:"api_key" toml:"api_key"`
	Models      []string          `json:"models,omitempty" yaml:"models,omitempty" toml:"models,omitempty"`
	Strengths   []string          `json:"strengths,omitempty" yaml:"strengths,omitempty" toml:"strengths,omitempty"`
	Extra       map[string]string `json:"extra,omitempty" yaml:"extra,omitempty" toml:"extra,omitempty"`
	TimeoutSecs int               `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" toml:"timeout_secs,omitempty"`
	RateLimit   float64           `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
	Burst       int               `json:"burst,omitempty" yaml:"burst,omitempty" toml:"burst,omitempty"`
}

// Provider converts the entry into an adapter configuration.
func (p ProviderConfig) Provider() provider.ProviderConfig {
	return provider.ProviderConfig{
		ID:        p.ID,
		Type:      p.Type,
		Name:      p.Name,
		Endpoint:  p.Endpoint,
		APIKey:    p.APIKey,
		Models:    p.Models,
		Strengths: p.Strengths,
		Extra:     p.Extra,
		Timeout:   time.Duration(p.TimeoutSecs) * time.Second,
		RateLimit: p.RateLimit,
		Burst:     p.Burst,
	}
}

type RoutingConfig struct {
	Categories []router.CategoryRule `json:"categories" yaml:"categories" toml:"categories"`
	Priorities map[string][]string   `json:"priorities" yaml:"priorities" toml:"priorities"`
}

// PriorityMap returns the priorities keyed by category.
func (r RoutingConfig) PriorityMap() map[router.Category][]string {
	out := make(map[router.Category][]string, len(r.Priorities))
	for k, v := range r.Priorities {
		out[router.Category(k)] = v
	}
	return out
}

type EmbeddingConfig struct {
	Provider    string `json:"provider" yaml:"provider" toml:"provider"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Model       string `json:"model" yaml:"model" toml:"model"`
	APIKey      string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Dimension   int    `json:"dimension" yaml:"dimension" toml:"dimension"`
	TimeoutSecs int    `json:"timeout_secs,omitempty" yaml:"timeout_secs,omitempty" toml:"timeout_secs,omitempty"`
}

// Embedder converts the section into an embedding configuration.
func (e EmbeddingConfig) Embedder() embedding.Config {
	return embedding.Config{
		Provider:  e.Provider,
		Endpoint:  e.Endpoint,
		Model:     e.Model,
		APIKey:    e.APIKey,
		Dimension: e.Dimension,
		Timeout:   time.Duration(e.TimeoutSecs) * time.Second,
	}
}

// Storage backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
)

type StorageConfig struct {
	Backend  string                   `json:"backend" yaml:"backend" toml:"backend"`
	Path     string                   `json:"path" yaml:"path" toml:"path"`
	Redis    RedisConfig              `json:"redis" yaml:"redis" toml:"redis"`
	Postgres PostgresConfig           `json:"postgres" yaml:"postgres" toml:"postgres"`
	Qdrant   vectorstore.QdrantConfig `json:"qdrant" yaml:"qdrant" toml:"qdrant"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url" toml:"url"`
	Key string `json:"key" yaml:"key" toml:"key"`
}

type PostgresConfig struct {
	DSN  string `json:"dsn" yaml:"dsn" toml:"dsn"`
	Name string `json:"name" yaml:"name" toml:"name"`
}

// WatchConfig enables directory ingestion when Dir is set.
type WatchConfig struct {
	Dir        string   `json:"dir" yaml:"dir" toml:"dir"`
	Extensions []string `json:"extensions" yaml:"extensions" toml:"extensions"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Expand substitutes ${VAR} and ${VAR:default} with environment values.
func Expand(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

// Load reads a config file on top of Default. The format follows the file
// extension: .json, .yaml/.yml or .toml. A missing file yields the defaults.
// Lists given in the file replace the default lists.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Lists are decoded into nil slices so a file entry replaces the default
	// list instead of merging element by element.
	defaults := *cfg
	cfg.Providers = nil
	cfg.Routing.Categories = nil
	cfg.Watch.Extensions = nil

	resolved := []byte(Expand(string(data)))
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", "":
		err = json.Unmarshal(resolved, cfg)
	case ".yaml", ".yml":
		err = yaml.NewDecoder(bytes.NewReader(resolved)).Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	case ".toml":
		_, err = toml.Decode(string(resolved), cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Providers == nil {
		cfg.Providers = defaults.Providers
	}
	if cfg.Routing.Categories == nil {
		cfg.Routing.Categories = defaults.Routing.Categories
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = defaults.Watch.Extensions
	}
	return cfg, nil
}
