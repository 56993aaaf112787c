package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jinford/interview-rag/internal/core/llm"
)

var (
	// ErrScopeRequired は検索スコープ（オーナー）が指定されていない場合のエラー
	ErrScopeRequired = errors.New("search scope (owner) is required")

	// ErrEmptyVector はクエリベクトルが空の場合のエラー
	ErrEmptyVector = errors.New("query vector is empty")

	// ErrEmptyQuery はクエリ文字列が空の場合のエラー
	ErrEmptyQuery = errors.New("query is required")
)

// Service は検索のビジネスロジックを提供する
type Service struct {
	repo     Repository
	embedder llm.Embedder
	logger   *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithSearchLogger は Service にロガーを設定する
func WithSearchLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEmbedder はテキスト検索用の Embedder を設定する
func WithEmbedder(embedder llm.Embedder) ServiceOption {
	return func(s *Service) {
		s.embedder = embedder
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Nearest はスコープ内で Vector に近いチャンクを返す
func (s *Service) Nearest(ctx context.Context, params NearestParams) ([]*ChunkHit, error) {
	if params.OwnerID == uuid.Nil {
		return nil, ErrScopeRequired
	}
	if len(params.Vector) == 0 {
		return nil, ErrEmptyVector
	}

	k := params.K
	if k <= 0 {
		k = DefaultK
	}

	hits, err := s.repo.NearestChunks(ctx, params.OwnerID, params.Vector, k)
	if err != nil {
		return nil, fmt.Errorf("nearest chunk search failed: %w", err)
	}

	s.logger.Debug("近傍チャンクを取得しました", "ownerID", params.OwnerID, "k", k, "hits", len(hits))

	return hits, nil
}

// Search はクエリ文字列を Embedding に変換して近傍検索を行う
func (s *Service) Search(ctx context.Context, params SearchParams) ([]*ChunkHit, error) {
	if params.Query == "" {
		return nil, ErrEmptyQuery
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("search service has no embedder")
	}

	vec, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	vector, ok := vec.Get()
	if !ok {
		return nil, fmt.Errorf("failed to embed query: %w", ErrEmptyVector)
	}

	return s.Nearest(ctx, NearestParams{
		OwnerID: params.OwnerID,
		Vector:  vector,
		K:       params.K,
	})
}
