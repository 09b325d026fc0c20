package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/router"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-from-env")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Providers) != 10 {
		t.Fatalf("got %d providers, want 10", len(cfg.Providers))
	}
	if cfg.Providers[0].ID != "groq" || cfg.Providers[0].APIKey != "gsk-from-env" {
		t.Errorf("first provider = %+v", cfg.Providers[0])
	}
	if len(cfg.Routing.Categories) != 8 {
		t.Errorf("got %d categories", len(cfg.Routing.Categories))
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.Overlap != 50 || cfg.RAG.TopK != 3 || cfg.RAG.MinSimilarity != 0.1 {
		t.Errorf("rag = %+v", cfg.RAG)
	}
	if cfg.Embedding.Dimension != 0 || cfg.Storage.Backend != BackendFile || cfg.Storage.Path != "data/rag" {
		t.Errorf("embedding = %+v, storage = %+v", cfg.Embedding, cfg.Storage)
	}
	emb, err := embedding.New(cfg.Embedding.Embedder(), zap.NewNop())
	if err != nil {
		t.Fatalf("embedder: %v", err)
	}
	if emb.Name() != "hash" || emb.Dimension() != embedding.DefaultDimension {
		t.Errorf("embedder = %s/%d", emb.Name(), emb.Dimension())
	}
}

func TestLoad_APIEmbedderLearnsDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": make([]float32, 1536)}},
		})
	}))
	defer srv.Close()

	path := writeConfig(t, "hub.json", `{"embedding": {"provider": "api", "endpoint": "`+srv.URL+`", "model": "text-embedding-3-small"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Embedding.Dimension != 0 {
		t.Errorf("dimension = %d, want 0", cfg.Embedding.Dimension)
	}
	emb, err := embedding.New(cfg.Embedding.Embedder(), zap.NewNop())
	if err != nil {
		t.Fatalf("embedder: %v", err)
	}
	vecs, err := emb.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs[0]) != 1536 || emb.Dimension() != 1536 {
		t.Errorf("got length %d, dimension %d", len(vecs[0]), emb.Dimension())
	}
}

func TestLoad_JSONWithEnv(t *testing.T) {
	t.Setenv("HUB_TEST_KEY", "secret")
	path := writeConfig(t, "hub.json", `{
		"server": {"port": 9090},
		"providers": [
			{"id": "local", "type": "openai", "endpoint": "${HUB_TEST_ENDPOINT:http://localhost:1234/v1}",
			 "api_key": "${HUB_TEST_KEY}", "models": ["m1"], "timeout_secs": 30}
		],
		"rag": {"top_k": 5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.LogLevel != "info" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Providers) != 1 {
		t.Fatalf("got %d providers, want the file list only", len(cfg.Providers))
	}
	p := cfg.Providers[0].Provider()
	if p.Endpoint != "http://localhost:1234/v1" || p.APIKey != "secret" || p.Timeout != 30*time.Second {
		t.Errorf("provider = %+v", p)
	}
	// untouched fields keep their defaults
	if cfg.RAG.TopK != 5 || cfg.RAG.ChunkSize != 500 {
		t.Errorf("rag = %+v", cfg.RAG)
	}
	if len(cfg.Routing.Categories) != 8 {
		t.Errorf("categories = %d", len(cfg.Routing.Categories))
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "hub.yaml", `
routing:
  categories:
    - name: coding
      keywords: [golang]
  priorities:
    coding: [local]
storage:
  backend: redis
  redis:
    url: redis://localhost:6379/0
watch:
  dir: ./docs
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Routing.Categories) != 1 || cfg.Routing.Categories[0].Category != router.Coding {
		t.Errorf("categories = %+v", cfg.Routing.Categories)
	}
	prio := cfg.Routing.PriorityMap()
	if got := prio[router.Coding]; len(got) != 1 || got[0] != "local" {
		t.Errorf("coding priorities = %v", got)
	}
	if len(prio[router.Research]) == 0 {
		t.Error("other categories should keep default priorities")
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Storage.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.Redis.Key == "" {
		t.Error("redis key default lost")
	}
	if cfg.Watch.Dir != "./docs" || len(cfg.Watch.Extensions) != 2 {
		t.Errorf("watch = %+v", cfg.Watch)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "hub.toml", `
[server]
port = 7000

[embedding]
provider = "ollama"
model = "nomic-embed-text"
timeout_secs = 5

[[providers]]
id = "claude"
type = "anthropic"
api_key = "k"
models = ["claude-3-haiku-20240307"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7000 || len(cfg.Providers) != 1 || cfg.Providers[0].Type != "anthropic" {
		t.Errorf("cfg = %+v", cfg)
	}
	e := cfg.Embedding.Embedder()
	if e.Provider != "ollama" || e.Model != "nomic-embed-text" || e.Timeout != 5*time.Second || e.Dimension != 0 {
		t.Errorf("embedding = %+v", e)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(writeConfig(t, "bad.json", `{"server":`)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(writeConfig(t, "hub.ini", `port=1`)); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestLoad_EmptyYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "empty.yml", ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Providers) != 10 {
		t.Errorf("got %d providers", len(cfg.Providers))
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("HUB_SET", "value")
	tests := []struct {
		in, want string
	}{
		{"${HUB_SET}", "value"},
		{"${HUB_UNSET_VAR}", ""},
		{"${HUB_UNSET_VAR:fallback}", "fallback"},
		{"${HUB_SET:fallback}", "value"},
		{"plain $HUB_SET", "plain $HUB_SET"},
	}
	for _, tt := range tests {
		if got := Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
