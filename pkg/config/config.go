package config

import (
	"fmt"
)

// Config is the root configuration for the consultation runtime.
//
// Zero value is usable after ProcessConfigPipeline: every section fills
// sensible defaults, env vars override defaults, and explicit struct
// fields override env.
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Embedder EmbedderConfig `yaml:"embedder"`
	VectorDB VectorDBConfig `yaml:"vector_db"`
	Memory   MemoryConfig   `yaml:"memory"`
	Agents   AgentConfig    `yaml:"agents"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// LLMConfig configures the chat model endpoint (OpenAI-compatible).
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// RouterModel is used for routing/classification calls. A cheaper,
	// faster model is enough there; defaults to Model when empty.
	RouterModel string `yaml:"router_model,omitempty"`

	APIKey      string  `yaml:"api_key,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Timeout in seconds for a single chat completion request.
	Timeout    int `yaml:"timeout"`
	MaxRetries int `yaml:"max_retries"`
	RetryDelay int `yaml:"retry_delay"`
}

// EmbedderConfig configures the embeddings endpoint.
type EmbedderConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`

	// Dimension 0 means auto-detect by embedding a probe text.
	Dimension  int `yaml:"dimension"`
	Timeout    int `yaml:"timeout"`
	MaxRetries int `yaml:"max_retries"`
	BatchSize  int `yaml:"batch_size"`
}

// VectorDBConfig configures the long-term memory store.
type VectorDBConfig struct {
	// Type selects the provider: "chromem" (embedded, default) or "qdrant".
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k"`

	// Qdrant connection settings (ignored for chromem).
	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// MemoryConfig bounds the session FIFO and context assembly.
type MemoryConfig struct {
	SessionMemorySize      int `yaml:"session_memory_size"`
	ContextWindowSize      int `yaml:"context_window_size"`
	ContextRefineThreshold int `yaml:"context_refine_threshold"`
}

// AgentConfig bounds the think/act loop and the critic.
type AgentConfig struct {
	MaxSteps           int `yaml:"max_steps"`
	MaxCriticRounds    int `yaml:"max_critic_rounds"`
	DuplicateThreshold int `yaml:"duplicate_threshold"`
	MaxObserve         int `yaml:"max_observe"`
}

// ToolsConfig configures the tool catalog.
type ToolsConfig struct {
	WebSearchMaxResults int    `yaml:"web_search_max_results"`
	BochaAPIKey         string `yaml:"bocha_api_key,omitempty"`
	WeatherAPIKey       string `yaml:"weather_api_key,omitempty"`
	PythonTimeout       int    `yaml:"python_timeout"`
	HTTPTimeout         int    `yaml:"http_timeout"`
	OutputDir           string `yaml:"output_dir"`
}

const (
	DefaultLLMBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	DefaultModel       = "qwen-max"
	DefaultRouterModel = "qwen-flash"

	DefaultEmbeddingModel = "text-embedding-v4"
)

// SetDefaults fills zero fields with defaults. Env-sourced values are
// applied first (see applyEnv), so defaults only land where neither an
// explicit field nor an env var provided a value.
func (c *Config) SetDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai-compatible"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModel
	}
	if c.LLM.RouterModel == "" {
		// Routing is a short classification call; the flash-tier model
		// is enough and keeps latency down.
		if c.LLM.Model == DefaultModel {
			c.LLM.RouterModel = DefaultRouterModel
		} else {
			c.LLM.RouterModel = c.LLM.Model
		}
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultLLMBaseURL
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay == 0 {
		c.LLM.RetryDelay = 2
	}

	if c.Embedder.Model == "" {
		c.Embedder.Model = DefaultEmbeddingModel
	}
	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = c.LLM.APIKey
	}
	if c.Embedder.BaseURL == "" {
		c.Embedder.BaseURL = c.LLM.BaseURL
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 1024
	}
	if c.Embedder.Timeout == 0 {
		c.Embedder.Timeout = 300
	}
	if c.Embedder.MaxRetries == 0 {
		c.Embedder.MaxRetries = 3
	}
	if c.Embedder.BatchSize == 0 {
		c.Embedder.BatchSize = 16
	}

	if c.VectorDB.Type == "" {
		c.VectorDB.Type = "chromem"
	}
	if c.VectorDB.Path == "" {
		c.VectorDB.Path = "./data/vector_db"
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "long_term_memory"
	}
	if c.VectorDB.TopK == 0 {
		c.VectorDB.TopK = 5
	}

	if c.Memory.SessionMemorySize == 0 {
		c.Memory.SessionMemorySize = 50
	}
	if c.Memory.ContextWindowSize == 0 {
		c.Memory.ContextWindowSize = 10
	}
	if c.Memory.ContextRefineThreshold == 0 {
		c.Memory.ContextRefineThreshold = 5
	}

	if c.Agents.MaxSteps == 0 {
		c.Agents.MaxSteps = 10
	}
	if c.Agents.MaxCriticRounds == 0 {
		c.Agents.MaxCriticRounds = 2
	}
	if c.Agents.DuplicateThreshold == 0 {
		c.Agents.DuplicateThreshold = 2
	}
	if c.Agents.MaxObserve == 0 {
		c.Agents.MaxObserve = 2000
	}

	if c.Tools.WebSearchMaxResults == 0 {
		c.Tools.WebSearchMaxResults = 8
	}
	if c.Tools.PythonTimeout == 0 {
		c.Tools.PythonTimeout = 30
	}
	if c.Tools.HTTPTimeout == 0 {
		c.Tools.HTTPTimeout = 15
	}
	if c.Tools.OutputDir == "" {
		c.Tools.OutputDir = "./output"
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return &ConfigError{
			Field:   "llm.api_key",
			Message: "no API key configured (set LLM_API_KEY, DASHSCOPE_API_KEY, or OPENAI_API_KEY)",
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return &ConfigError{
			Field:   "llm.temperature",
			Message: fmt.Sprintf("temperature %v out of range [0, 2]", c.LLM.Temperature),
		}
	}
	switch c.VectorDB.Type {
	case "chromem", "qdrant":
	default:
		return &ConfigError{
			Field:   "vector_db.type",
			Message: fmt.Sprintf("unknown vector store type %q (want chromem or qdrant)", c.VectorDB.Type),
		}
	}
	if c.Memory.SessionMemorySize < 1 {
		return &ConfigError{
			Field:   "memory.session_memory_size",
			Message: "session memory size must be at least 1",
		}
	}
	if c.Agents.MaxSteps < 1 {
		return &ConfigError{
			Field:   "agents.max_steps",
			Message: "max steps must be at least 1",
		}
	}
	return nil
}

// ProcessConfigPipeline runs the load order: .env files, env overrides,
// defaults, validation. Explicit struct fields set before the call win
// over env values.
func ProcessConfigPipeline(c *Config) error {
	if err := LoadEnvFiles(); err != nil {
		return err
	}
	c.applyEnv()
	c.SetDefaults()
	return c.Validate()
}
