package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type OllamaConfig struct {
	BaseURL                 string  `yaml:"base_url"`
	LLMModel                string  `yaml:"llm_model"`
	EmbeddingModel          string  `yaml:"embedding_model"`
	LLMTemperature          float64 `yaml:"llm_temperature"`
	LLMMaxTokens            int     `yaml:"llm_max_tokens"`
	QueryRewriteTemperature float64 `yaml:"query_rewrite_temperature"`
	RequestTimeoutSecs      int     `yaml:"request_timeout_secs"`
}

type QueryRewriteConfig struct {
	Enabled *bool `yaml:"enabled"`
	// Strategy selects the analyzer implementation: "llm" or "heuristic".
	Strategy string `yaml:"strategy"`
}

type RAGConfig struct {
	ContextWindowSize    int                `yaml:"context_window_size"`
	TopKResults          int                `yaml:"top_k_results"`
	QueryContextMessages int                `yaml:"query_context_messages"`
	QueryRewrite         QueryRewriteConfig `yaml:"query_rewrite"`
}

type VectorConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn"`
	Debug bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	CORSOrigins string `yaml:"cors_origins"`
}

type CorpusConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Ollama   OllamaConfig   `yaml:"ollama"`
	RAG      RAGConfig      `yaml:"rag"`
	Vector   VectorConfig   `yaml:"vector"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Log      LogConfig      `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyDefaults(&cfg)
	// The DSN usually carries credentials; let it come from the environment.
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.LLMModel == "" {
		cfg.Ollama.LLMModel = "llama3.2"
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = "nomic-embed-text"
	}
	if cfg.Ollama.LLMTemperature == 0 {
		cfg.Ollama.LLMTemperature = 0.7
	}
	if cfg.Ollama.LLMMaxTokens == 0 {
		cfg.Ollama.LLMMaxTokens = 500
	}
	if cfg.Ollama.QueryRewriteTemperature == 0 {
		cfg.Ollama.QueryRewriteTemperature = 0.3
	}
	if cfg.Ollama.RequestTimeoutSecs == 0 {
		cfg.Ollama.RequestTimeoutSecs = 60
	}
	if cfg.RAG.ContextWindowSize == 0 {
		cfg.RAG.ContextWindowSize = 2
	}
	if cfg.RAG.TopKResults == 0 {
		cfg.RAG.TopKResults = 5
	}
	if cfg.RAG.QueryContextMessages == 0 {
		cfg.RAG.QueryContextMessages = 5
	}
	if cfg.RAG.QueryRewrite.Enabled == nil {
		enabled := true
		cfg.RAG.QueryRewrite.Enabled = &enabled
	}
	if cfg.RAG.QueryRewrite.Strategy == "" {
		cfg.RAG.QueryRewrite.Strategy = "llm"
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "./data/chromem"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "kjv_bible"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.CORSOrigins == "" {
		cfg.Server.CORSOrigins = "*"
	}
	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = "./assets/kjv.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
