package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + Chat）
	OpenAI OpenAIConfig

	// チャンク分割設定
	Chunk ChunkConfig

	// 質問応答設定
	Retrieval RetrievalConfig

	// ジョブキュー設定
	Queue QueueConfig

	// アップロードファイルの保存先
	StorageRoot string

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
	ChatTemperature    float64
	ChatMaxTokens      int
	RequestsPerMinute  int // Embedding と Chat で共有するレート上限（0 以下で無制限）
}

// ChunkConfig はチャンク分割設定（単語数）
type ChunkConfig struct {
	SizeWords    int
	OverlapWords int
}

// RetrievalConfig は検索設定
type RetrievalConfig struct {
	TopK int
}

// QueueConfig はジョブキューとリトライポリシーの設定
type QueueConfig struct {
	Workers       int
	PollInterval  time.Duration
	IngestRetries int
	IngestBackoff time.Duration
	EmbedRetries  int
	EmbedBackoff  time.Duration
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "interview_rag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "interview_rag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4.1-mini"),
			ChatTemperature:    getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.7),
			ChatMaxTokens:      getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 1000),
			RequestsPerMinute:  getEnvAsInt("OPENAI_REQUESTS_PER_MINUTE", 3000),
		},
		Chunk: ChunkConfig{
			SizeWords:    getEnvAsInt("CHUNK_SIZE_WORDS", 300),
			OverlapWords: getEnvAsInt("CHUNK_OVERLAP_WORDS", 50),
		},
		Retrieval: RetrievalConfig{
			TopK: getEnvAsInt("RETRIEVAL_TOP_K", 5),
		},
		Queue: QueueConfig{
			Workers:       getEnvAsInt("QUEUE_WORKERS", 4),
			PollInterval:  getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
			IngestRetries: getEnvAsInt("INGEST_MAX_RETRIES", 3),
			IngestBackoff: getEnvAsDuration("INGEST_BACKOFF", 60*time.Second),
			EmbedRetries:  getEnvAsInt("EMBED_MAX_RETRIES", 3),
			EmbedBackoff:  getEnvAsDuration("EMBED_BACKOFF", 30*time.Second),
		},
		StorageRoot: getEnv("STORAGE_ROOT", "./media"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
// APIキーはコマンドごとに必要性が異なるためここでは検証しない
func (c *Config) Validate() error {
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be positive: %d", c.OpenAI.EmbeddingDimension)
	}
	if c.Chunk.SizeWords <= 0 {
		return fmt.Errorf("CHUNK_SIZE_WORDS must be positive: %d", c.Chunk.SizeWords)
	}
	if c.Chunk.OverlapWords < 0 || c.Chunk.OverlapWords >= c.Chunk.SizeWords {
		return fmt.Errorf("CHUNK_OVERLAP_WORDS must be in [0, %d): %d", c.Chunk.SizeWords, c.Chunk.OverlapWords)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive: %d", c.Retrieval.TopK)
	}
	if c.Queue.IngestRetries < 0 || c.Queue.EmbedRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: "30s", "2m"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
