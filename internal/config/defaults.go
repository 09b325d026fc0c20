package config

import (
	"os"

	"github.com/nidhogg/modelhub/internal/embedding"
	"github.com/nidhogg/modelhub/internal/provider"
	"github.com/nidhogg/modelhub/internal/rag"
	"github.com/nidhogg/modelhub/internal/router"
	"github.com/nidhogg/modelhub/internal/vectorstore"
	"github.com/nidhogg/modelhub/internal/watcher"
)

// Default returns the built-in configuration: ten providers whose keys come
// from <NAME>_API_KEY, the default taxonomy and file storage under data/rag.
func Default() *Config {
	priorities := make(map[string][]string)
	for c, ids := range router.DefaultPriorities() {
		priorities[string(c)] = ids
	}
	return &Config{
		Server:    ServerConfig{Port: 8000, LogLevel: "info"},
		Providers: defaultProviders(),
		Routing: RoutingConfig{
			Categories: router.DefaultTaxonomy(),
			Priorities: priorities,
		},
		// Dimension stays 0: the hash embedder falls back to DefaultDimension
		// and remote embedders learn it from their first response.
		Embedding: EmbeddingConfig{Provider: embedding.KindHash},
		RAG: rag.DefaultConfig(),
		Storage: StorageConfig{
			Backend:  BackendFile,
			Path:     "data/rag",
			Redis:    RedisConfig{Key: vectorstore.DefaultRedisKey},
			Postgres: PostgresConfig{Name: vectorstore.DefaultSnapshotName},
			Qdrant:   vectorstore.QdrantConfig{Host: "localhost", Port: 6334, Collection: "documents"},
		},
		Watch: WatchConfig{Extensions: watcher.DefaultExtensions},
	}
}

func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID: "groq", Type: provider.TypeOpenAI, Name: "Groq",
			Endpoint:  "https://api.groq.com/openai/v1",
			APIKey:    os.Getenv("GROQ_API_KEY"),
			Models:    []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
			Strengths: []string{"ultra-fast", "llama", "mixtral", "free-tier"},
		},
		{
			ID: "cerebras", Type: provider.TypeOpenAI, Name: "Cerebras",
			Endpoint:  "https://api.cerebras.ai/v1",
			APIKey:    os.Getenv("CEREBRAS_API_KEY"),
			Models:    []string{"llama3.1-8b", "llama3.1-70b"},
			Strengths: []string{"fast", "llama", "free-tier"},
		},
		{
			ID: "deepseek", Type: provider.TypeOpenAI, Name: "DeepSeek",
			Endpoint:  "https://api.deepseek.com/v1",
			APIKey:    os.Getenv("DEEPSEEK_API_KEY"),
			Models:    []string{"deepseek-chat", "deepseek-reasoner"},
			Strengths: []string{"reasoning", "coding", "math", "cheap"},
		},
		{
			ID: "openrouter", Type: provider.TypeOpenAI, Name: "OpenRouter",
			Endpoint:  "https://openrouter.ai/api/v1",
			APIKey:    os.Getenv("OPENROUTER_API_KEY"),
			Models:    []string{"liquid/lfm-2.5-1.2b-instruct:free", "arcee-ai/trinity-large-preview:free"},
			Strengths: []string{"multi-model", "100+ models", "free-tier"},
			Extra: map[string]string{
				"header:HTTP-Referer": "http://localhost:3000",
				"header:X-Title":      "ModelHub",
			},
		},
		{
			ID: "bytez", Type: provider.TypeBytez, Name: "Bytez",
			APIKey:    os.Getenv("BYTEZ_API_KEY"),
			Models:    []string{"Qwen/Qwen3-4B", "mistralai/Mistral-7B-Instruct-v0.3"},
			Strengths: []string{"multi-model", "fast", "affordable"},
		},
		{
			ID: "claude", Type: provider.TypeAnthropic, Name: "Anthropic Claude",
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Models:    []string{"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307"},
			Strengths: []string{"reasoning", "analysis", "coding", "writing", "math"},
		},
		{
			ID: "openai", Type: provider.TypeOpenAI, Name: "OpenAI",
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Models:    []string{"gpt-3.5-turbo", "gpt-4", "gpt-4o"},
			Strengths: []string{"general", "coding", "creative", "conversation"},
		},
		{
			ID: "gemini", Type: provider.TypeGemini, Name: "Google Gemini",
			APIKey:    os.Getenv("GOOGLE_API_KEY"),
			Models:    []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
			Strengths: []string{"multimodal", "research", "factual"},
		},
		{
			ID: "huggingface", Type: provider.TypeHuggingFace, Name: "HuggingFace",
			APIKey:    os.Getenv("HUGGINGFACE_API_KEY"),
			Models:    []string{"meta-llama/Llama-2-70b-chat-hf", "mistralai/Mixtral-8x7B-Instruct-v0.1"},
			Strengths: []string{"specialized", "open-source", "customizable"},
		},
		{
			ID: "perplexity", Type: provider.TypeOpenAI, Name: "Perplexity",
			Endpoint:  "https://api.perplexity.ai",
			APIKey:    os.Getenv("PERPLEXITY_API_KEY"),
			Models:    []string{"pplx-70b-online", "pplx-7b-online"},
			Strengths: []string{"search", "real-time", "citations", "research"},
		},
	}
}
