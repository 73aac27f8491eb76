package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are fine; malformed ones are not.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// firstEnv returns the first non-empty value among the given env vars.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// applyEnv copies env values into empty fields. Explicit struct fields
// always win; env only fills gaps.
func (c *Config) applyEnv() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("LLM_API_KEY", "DASHSCOPE_API_KEY", "OPENAI_API_KEY")
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = firstEnv("LLM_BASE_URL", "OPENAI_BASE_URL")
	}
	if c.LLM.Model == "" {
		c.LLM.Model = os.Getenv("LLM_MODEL")
	}
	if c.LLM.RouterModel == "" {
		c.LLM.RouterModel = os.Getenv("LLM_ROUTER_MODEL")
	}

	if c.Embedder.APIKey == "" {
		c.Embedder.APIKey = firstEnv("EMBEDDING_API_KEY", "DASHSCOPE_API_KEY")
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = os.Getenv("EMBEDDING_MODEL")
	}

	if c.VectorDB.Type == "" {
		c.VectorDB.Type = os.Getenv("VECTOR_DB_TYPE")
	}
	if c.VectorDB.Path == "" {
		c.VectorDB.Path = os.Getenv("VECTOR_DB_PATH")
	}

	if c.Tools.BochaAPIKey == "" {
		c.Tools.BochaAPIKey = os.Getenv("BOCHA_API_KEY")
	}
	if c.Tools.WeatherAPIKey == "" {
		c.Tools.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	}
	if c.Tools.OutputDir == "" {
		c.Tools.OutputDir = os.Getenv("OUTPUT_DIR")
	}
}
