package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"paperlib"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"paperlib"`

	// Chunk index backend: "weaviate" or "bolt" (single-file local index).
	ChunkIndexBackend string `envconfig:"CHUNK_INDEX_BACKEND" default:"weaviate"`
	ChunkIndexPath    string `envconfig:"CHUNK_INDEX_PATH" default:"data/chunks.db"`
	WeaviateHost      string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme    string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd     string  `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	EnableWorkers  bool    `envconfig:"ENABLE_WORKERS" default:"false"`
	EmbedRateLimit float64 `envconfig:"EMBED_RATE_LIMIT" default:"5"`
	EmbedRateBurst int     `envconfig:"EMBED_RATE_BURST" default:"10"`

	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"gemini-1.5-flash"`

	// Filesystem root holding <document id>.pdf files.
	ContentDir     string `envconfig:"CONTENT_DIR" default:"data/papers"`
	VocabularyPath string `envconfig:"VOCABULARY_PATH" default:"vocabulary.yaml"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Lifecycle
	SyncBatchSize   int           `envconfig:"SYNC_BATCH_SIZE" default:"1000"`
	SyncConcurrency int           `envconfig:"SYNC_CONCURRENCY" default:"8"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"0"`
	// Refresh after PDFs appear in or vanish from ContentDir.
	WatchContent bool          `envconfig:"WATCH_CONTENT" default:"false"`
	WatchQuiet   time.Duration `envconfig:"WATCH_QUIET" default:"2s"`

	// Retrieval
	EmbedTimeout    time.Duration `envconfig:"EMBED_TIMEOUT" default:"15s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"60s"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars set in the shell take precedence over .env
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	switch c.ChunkIndexBackend {
	case "weaviate":
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	case "bolt":
		if c.ChunkIndexPath == "" {
			return fmt.Errorf("%w: CHUNK_INDEX_PATH", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("unsupported CHUNK_INDEX_BACKEND %q", c.ChunkIndexBackend)
	}
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.SyncBatchSize)
	}
	return nil
}
