package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/llm"
	"github.com/jinford/interview-rag/internal/core/search"
)

const (
	// DefaultTopK はコンテキストに使うチャンク数の既定値
	DefaultTopK = search.DefaultK
	// DefaultTemperature は回答生成の温度
	DefaultTemperature = 0.7
	// DefaultMaxTokens は回答の最大トークン数
	DefaultMaxTokens = 1000
)

// ErrInvalidInput は質問または検索スコープが指定されていない場合のエラー
var ErrInvalidInput = errors.New("invalid input")

// Searcher は近傍チャンク検索のインターフェース
type Searcher interface {
	Nearest(ctx context.Context, params search.NearestParams) ([]*search.ChunkHit, error)
}

// Service はドキュメントに基づいて人物として質問に回答する
type Service struct {
	embedder    llm.Embedder
	searcher    Searcher
	chat        llm.ChatCompleter
	topK        int
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithAskLogger は Service にロガーを設定する
func WithAskLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTopK はコンテキストに使うチャンク数を設定する
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithTemperature は回答生成の温度を設定する
func WithTemperature(t float64) ServiceOption {
	return func(s *Service) {
		s.temperature = t
	}
}

// WithMaxTokens は回答の最大トークン数を設定する
func WithMaxTokens(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// NewService は新しい Service を作成する
func NewService(embedder llm.Embedder, searcher Searcher, chat llm.ChatCompleter, opts ...ServiceOption) *Service {
	s := &Service{
		embedder:    embedder,
		searcher:    searcher,
		chat:        chat,
		topK:        DefaultTopK,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Answer は persona のドキュメントだけを根拠に質問へ回答する
// 埋め込み・検索・生成の失敗はエラーではなく Failure 付きの Result で返す
// 呼び出し元のキャンセル・タイムアウトはエラーとして返す
func (s *Service) Answer(ctx context.Context, question string, persona document.Persona) (*Result, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if !persona.HasScope() {
		return nil, fmt.Errorf("%w: persona owner is required", ErrInvalidInput)
	}

	logger := s.logger.With("ownerID", persona.OwnerID)

	// 1. 質問の Embedding
	vecOpt, err := s.embedder.Embed(ctx, question)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Warn("質問の Embedding に失敗しました", "error", err)
		return failed(FailureQuestionNotProcessed, MessageQuestionNotProcessed, err), nil
	}
	vector, ok := vecOpt.Get()
	if !ok {
		logger.Warn("質問の Embedding が返されませんでした")
		return failed(FailureQuestionNotProcessed, MessageQuestionNotProcessed, nil), nil
	}

	// 2. 近傍チャンク検索
	hits, err := s.searcher.Nearest(ctx, search.NearestParams{
		OwnerID: persona.OwnerID,
		Vector:  vector,
		K:       s.topK,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Warn("関連チャンクの検索に失敗しました", "error", err)
		return failed(FailureRetrieval, MessageRetrieval, err), nil
	}

	contexts := make([]string, 0, len(hits))
	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		contexts = append(contexts, h.Content)
		sources = append(sources, Source{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Distance:   h.Distance,
		})
	}

	logger.Info("関連チャンクを取得しました", "chunks", len(hits))

	// 3. 回答生成（チャンクが0件でもモデルに委ねる）
	resp, err := s.chat.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: BuildSystemPrompt(persona.Name, contexts, question),
		UserPrompt:   question,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		logger.Warn("回答の生成に失敗しました", "error", err)
		return failed(FailureCompletion, MessageCompletion, err), nil
	}

	logger.Info("回答を生成しました", "tokens", resp.TokensUsed)

	return &Result{
		Answer:  resp.Content,
		Sources: sources,
	}, nil
}
