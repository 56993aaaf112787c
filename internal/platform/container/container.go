package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/mo"

	"github.com/jinford/interview-rag/internal/core/ask"
	"github.com/jinford/interview-rag/internal/core/chunk"
	"github.com/jinford/interview-rag/internal/core/extract"
	"github.com/jinford/interview-rag/internal/core/ingestion"
	"github.com/jinford/interview-rag/internal/core/llm"
	"github.com/jinford/interview-rag/internal/core/search"
	"github.com/jinford/interview-rag/internal/infra/openai"
	"github.com/jinford/interview-rag/internal/infra/postgres"
	"github.com/jinford/interview-rag/internal/infra/storage"
	"github.com/jinford/interview-rag/internal/platform/config"
	"github.com/jinford/interview-rag/internal/platform/database"
	"github.com/jinford/interview-rag/internal/platform/queue"
)

// Container はアプリケーション全体の依存関係を保持する
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Database *database.DB

	Documents *postgres.Repository
	Jobs      *postgres.JobStore
	Queue     *queue.Queue
	Storage   *storage.LocalStore

	Pipeline *ingestion.Pipeline
	Uploader *ingestion.Uploader
	Search   *search.Service
	Ask      *ask.Service

	llmErr error
}

type containerOptions struct {
	logger   *slog.Logger
	embedder llm.Embedder
	chat     llm.ChatCompleter
	tokens   chunk.TokenCounter
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithEmbedder はカスタム Embedder を注入する
func WithEmbedder(embedder llm.Embedder) Option {
	return func(o *containerOptions) {
		o.embedder = embedder
	}
}

// WithChatCompleter はカスタム ChatCompleter を注入する
func WithChatCompleter(chat llm.ChatCompleter) Option {
	return func(o *containerOptions) {
		o.chat = chat
	}
}

// WithTokenCounter は TokenCounter を差し替える（tiktoken の初期化を省略する）
func WithTokenCounter(tc chunk.TokenCounter) Option {
	return func(o *containerOptions) {
		o.tokens = tc
	}
}

// New は設定からデータベースに接続してコンテナを生成する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Queue.Workers + 4),
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewWithDB は既存の DB を受け取りコンテナを生成する
// OpenAI API キーが未設定の場合も生成は成功し、LLM を使う操作の前に RequireLLM で検出する
func NewWithDB(cfg *config.Config, db *database.DB, opts ...Option) (*Container, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Database: db,
	}

	// Embedder / ChatCompleter (OpenAI) はレート制限を共有する
	limiter := openai.NewLimiter(cfg.OpenAI.RequestsPerMinute)

	embedder := options.embedder
	if embedder == nil {
		e, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingLimiter(limiter),
		)
		if err != nil {
			c.llmErr = err
			embedder = unavailableLLM{err: err}
		} else {
			embedder = e
		}
	}

	chat := options.chat
	if chat == nil {
		cl, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithModel(cfg.OpenAI.ChatModel),
			openai.WithLimiter(limiter),
		)
		if err != nil {
			c.llmErr = err
			chat = unavailableLLM{err: err}
		} else {
			chat = cl
		}
	}

	// Repository / JobStore (PostgreSQL)
	c.Documents = postgres.NewRepository(db.Pool)
	c.Jobs = postgres.NewJobStore(db.Pool)

	c.Queue = queue.New(
		c.Jobs,
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithQueueLogger(logger),
	)

	store, err := storage.NewLocalStore(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("ストレージ初期化に失敗しました: %w", err)
	}
	c.Storage = store

	// Chunker / TokenCounter
	chunker := chunk.NewChunker(
		chunk.WithChunkSize(cfg.Chunk.SizeWords),
		chunk.WithOverlap(cfg.Chunk.OverlapWords),
	)

	pipelineOpts := []ingestion.PipelineOption{
		ingestion.WithPipelineLogger(logger),
		ingestion.WithChunker(chunker),
	}
	tokens := options.tokens
	if tokens == nil {
		// tiktoken は初回にエンコーディングを取得するため、失敗時はトークン数なしで続行する
		if tc, err := chunk.NewTiktokenCounter(); err != nil {
			logger.Warn("TokenCounter を初期化できませんでした。トークン数は記録されません", "error", err)
		} else {
			tokens = tc
		}
	}
	if tokens != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithTokenCounter(tokens))
	}

	c.Pipeline = ingestion.NewPipeline(
		c.Documents,
		store,
		extract.New(),
		embedder,
		c.Queue,
		pipelineOpts...,
	)
	c.Pipeline.Register(c.Queue,
		queue.Policy{MaxRetries: cfg.Queue.IngestRetries, Backoff: cfg.Queue.IngestBackoff},
		queue.Policy{MaxRetries: cfg.Queue.EmbedRetries, Backoff: cfg.Queue.EmbedBackoff},
	)

	c.Uploader = ingestion.NewUploader(c.Documents, store, c.Pipeline, ingestion.WithUploaderLogger(logger))

	c.Search = search.NewService(c.Documents,
		search.WithEmbedder(embedder),
		search.WithSearchLogger(logger),
	)

	c.Ask = ask.NewService(embedder, c.Search, chat,
		ask.WithAskLogger(logger),
		ask.WithTopK(cfg.Retrieval.TopK),
		ask.WithTemperature(cfg.OpenAI.ChatTemperature),
		ask.WithMaxTokens(cfg.OpenAI.ChatMaxTokens),
	)

	return c, nil
}

// RequireLLM は LLM プロバイダが利用可能かを返す（API キー未設定時はエラー）
func (c *Container) RequireLLM() error {
	return c.llmErr
}

// Migrate はスキーマを適用する
func (c *Container) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, c.Database.Pool, c.Config.OpenAI.EmbeddingDimension)
}

// Close は内部リソースを解放する
func (c *Container) Close() {
	if c != nil && c.Database != nil && c.Database.Pool != nil {
		c.Database.Close()
	}
}

// unavailableLLM は API キー未設定時に注入され、呼び出されると初期化エラーを返す
type unavailableLLM struct {
	err error
}

func (u unavailableLLM) Embed(ctx context.Context, text string) (mo.Option[[]float32], error) {
	return mo.None[[]float32](), u.err
}

func (u unavailableLLM) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{}, u.err
}
