// Package config loads process configuration from the environment. Every
// setting is read from a CATALOG_-prefixed variable; a .env file, when
// present, seeds variables that are not already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "CATALOG"

// Embedding providers.
const (
	ProviderOllama    = "ollama"
	ProviderWorkersAI = "workersai"
)

// Vector store backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Config is the full process configuration.
type Config struct {
	Port       int    `envconfig:"PORT" default:"8080"`
	StaticDir  string `envconfig:"STATIC_DIR" default:"public"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"*"`

	EmbedProvider string  `envconfig:"EMBED_PROVIDER" default:"ollama"`
	OllamaURL     string  `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaModel   string  `envconfig:"OLLAMA_MODEL" default:"nomic-embed-text"`
	CFBaseURL     string  `envconfig:"CF_BASE_URL" default:"https://api.cloudflare.com/client/v4"`
	CFAccountID   string  `envconfig:"CF_ACCOUNT_ID"`
	CFAPIToken    string  `envconfig:"CF_API_TOKEN"`
	CFModel       string  `envconfig:"CF_MODEL" default:"@cf/baai/bge-base-en-v1.5"`
	EmbedRPS      float64 `envconfig:"EMBED_RPS" default:"0"`
	EmbedBurst    int     `envconfig:"EMBED_BURST" default:"1"`

	VectorBackend    string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	QdrantAddr       string `envconfig:"QDRANT_ADDR" default:"localhost:6334"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"products"`
	Dimensions       int    `envconfig:"DIMENSIONS" default:"768"`

	BatchSize     int           `envconfig:"BATCH_SIZE" default:"100"`
	Concurrency   int           `envconfig:"CONCURRENCY" default:"1"`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	EmbedTimeout  time.Duration `envconfig:"EMBED_TIMEOUT" default:"60s"`
	UpsertTimeout time.Duration `envconfig:"UPSERT_TIMEOUT" default:"30s"`

	TopK               int           `envconfig:"TOP_K" default:"5"`
	MinScore           float32       `envconfig:"MIN_SCORE" default:"0"`
	QueryTimeout       time.Duration `envconfig:"QUERY_TIMEOUT" default:"10s"`
	BreakerThreshold   int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`

	NATSURL      string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the optional dotenv files (".env" when none are given) and then
// the environment.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and numeric ranges.
func (c Config) Validate() error {
	switch c.EmbedProvider {
	case ProviderOllama:
	case ProviderWorkersAI:
		if c.CFAccountID == "" || c.CFAPIToken == "" {
			return errors.New("config: workersai requires CF_ACCOUNT_ID and CF_API_TOKEN")
		}
	default:
		return fmt.Errorf("config: unknown embed provider %q", c.EmbedProvider)
	}
	switch c.VectorBackend {
	case BackendQdrant, BackendMemory:
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.VectorBackend)
	}
	if c.BatchSize <= 0 || c.Concurrency <= 0 || c.TopK <= 0 || c.Dimensions <= 0 {
		return errors.New("config: batch size, concurrency, top-k and dimensions must be positive")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("config: min score %v outside [0,1]", c.MinScore)
	}
	return nil
}
