package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName    string `env:"APP_NAME" env-default:"clover"`
	Port       int    `env:"PORT" env-default:"3010"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs bool   `env:"PRETTY_LOGS" env-default:"false"`
	Version    string `env:"APP_VERSION" env-default:"dev"`

	// Sites
	SitesConfigPath string `env:"SITES_CONFIG_PATH" env-default:"sites.yaml"`

	// Products store (PostgREST)
	StoreURL           string        `env:"STORE_URL" env-default:""`
	StoreKey           string        `env:"STORE_KEY" env-default:""`
	StoreChunkSize     int           `env:"STORE_CHUNK_SIZE" env-default:"500"`
	StoreMaxRetries    int           `env:"STORE_MAX_RETRIES" env-default:"3"`
	StoreInitialDelay  time.Duration `env:"STORE_INITIAL_DELAY" env-default:"1s"`
	StoreMaxDelay      time.Duration `env:"STORE_MAX_DELAY" env-default:"30s"`
	StoreTimeout       time.Duration `env:"STORE_TIMEOUT" env-default:"60s"`

	// HTTP session politeness
	UserAgent        string        `env:"USER_AGENT" env-default:"CloverBot/0.1 (+contact@example.com)"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`
	HTTPMinDelay     time.Duration `env:"HTTP_MIN_DELAY" env-default:"1s"`
	HTTPMaxDelay     time.Duration `env:"HTTP_MAX_DELAY" env-default:"2500ms"`
	RespectRobots    bool          `env:"RESPECT_ROBOTS" env-default:"true"`
	HTTPMaxIdleConns int           `env:"HTTP_MAX_IDLE_CONNS" env-default:"100"`

	// Embeddings
	EmbeddingBackendURL string        `env:"EMBEDDING_BACKEND_URL" env-default:""`
	EmbeddingAPIKey     string        `env:"EMBEDDING_API_KEY" env-default:""`
	EmbeddingModelID    string        `env:"EMBEDDING_MODEL_ID" env-default:"clip-vit-l-14"`
	EmbeddingDims       int           `env:"EMBEDDING_DIMENSIONS" env-default:"1024"`
	EmbeddingImageWidth string        `env:"EMBEDDING_IMAGE_WIDTH" env-default:"800"`
	EmbeddingTimeout    time.Duration `env:"EMBEDDING_TIMEOUT" env-default:"30s"`

	// PostgreSQL (migrations)
	DatabaseDSN                 string `env:"DATABASE_DSN" env-default:""`
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int    `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int    `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"catalog-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
}

// Load reads a .env file when present and binds environment variables onto
// the config struct.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
