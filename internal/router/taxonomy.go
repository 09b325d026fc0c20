package router

// Category is a coarse query-intent label.
type Category string

const (
	Coding   Category = "coding"
	Research Category = "research"
	Creative Category = "creative"
	Analysis Category = "analysis"
	Math     Category = "math"
	Health   Category = "health"
	Business Category = "business"
	General  Category = "general"
)

// CategoryRule binds a category to the keywords that score it.
type CategoryRule struct {
	Category Category `json:"name" yaml:"name" toml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords" toml:"keywords"`
}

// DefaultTaxonomy returns the built-in categories in priority order. General
// carries no keywords and is only ever chosen by default.
func DefaultTaxonomy() []CategoryRule {
	return []CategoryRule{
		{Coding, []string{"code", "programming", "debug", "function", "api", "javascript", "python", "error", "bug"}},
		{Research, []string{"search", "find", "latest", "news", "current", "today", "recent"}},
		{Creative, []string{"write", "story", "poem", "creative", "imagine", "fiction"}},
		{Analysis, []string{"analyze", "explain", "why", "how", "compare", "evaluate"}},
		{Math, []string{"calculate", "math", "equation", "solve", "formula", "statistics"}},
		{Health, []string{"health", "medical", "symptom", "disease", "medicine", "doctor"}},
		{Business, []string{"business", "marketing", "sales", "strategy", "revenue", "startup"}},
		{General, nil},
	}
}

// DefaultPriorities returns the built-in provider preference per category.
func DefaultPriorities() map[Category][]string {
	return map[Category][]string{
		Coding:   {"groq", "deepseek", "openrouter", "cerebras", "bytez"},
		Research: {"deepseek", "groq", "openrouter", "cerebras", "perplexity"},
		Creative: {"groq", "cerebras", "openrouter", "bytez", "gemini"},
		Analysis: {"deepseek", "groq", "openrouter", "cerebras", "bytez"},
		Math:     {"deepseek", "groq", "openrouter", "cerebras", "bytez"},
		Health:   {"groq", "deepseek", "openrouter", "cerebras", "perplexity"},
		Business: {"groq", "deepseek", "openrouter", "cerebras", "bytez"},
		General:  {"groq", "cerebras", "openrouter", "deepseek", "bytez"},
	}
}
