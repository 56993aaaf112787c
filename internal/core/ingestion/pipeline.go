package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/interview-rag/internal/core/chunk"
	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/extract"
	"github.com/jinford/interview-rag/internal/core/llm"
	"github.com/jinford/interview-rag/internal/platform/queue"
)

const (
	// KindIngestDocument はドキュメント取り込みジョブの種別
	KindIngestDocument = "ingest_document"
	// KindEmbedChunk はチャンク Embedding ジョブの種別
	KindEmbedChunk = "embed_chunk"
)

// IngestArgs は取り込みジョブの引数
type IngestArgs struct {
	DocumentID uuid.UUID `json:"documentId"`
}

// EmbedArgs は Embedding ジョブの引数
type EmbedArgs struct {
	ChunkID    uuid.UUID `json:"chunkId"`
	DocumentID uuid.UUID `json:"documentId,omitempty"` // 再チャンク分割で置き換わったジョブの判定用
}

// FileStore はアップロード済みファイルの読み出しインターフェース
type FileStore interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// TextExtractor はファイル内容からプレーンテキストを取り出すインターフェース
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename string) (string, error)
}

// Enqueuer はジョブ投入のインターフェース
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, args any) (queue.Handle, error)
}

// Registrar はジョブハンドラ登録のインターフェース
type Registrar interface {
	Register(kind string, policy queue.Policy, handler queue.Handler)
}

// Pipeline はドキュメントの抽出・チャンク分割・Embedding を非同期ジョブとして実行する
type Pipeline struct {
	repo      document.Repository
	files     FileStore
	extractor TextExtractor
	embedder  llm.Embedder
	queue     Enqueuer
	chunker   *chunk.Chunker
	tokens    chunk.TokenCounter // オプショナル
	logger    *slog.Logger
	now       func() time.Time
}

// PipelineOption は Pipeline のオプション設定
type PipelineOption func(*Pipeline)

// WithPipelineLogger は Pipeline にロガーを設定する
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithChunker はチャンカーを差し替える
func WithChunker(c *chunk.Chunker) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// WithTokenCounter はチャンクのトークン数を metadata に記録する
func WithTokenCounter(tc chunk.TokenCounter) PipelineOption {
	return func(p *Pipeline) {
		p.tokens = tc
	}
}

// WithPipelineClock は現在時刻の取得関数を差し替える
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(
	repo document.Repository,
	files FileStore,
	extractor TextExtractor,
	embedder llm.Embedder,
	q Enqueuer,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		repo:      repo,
		files:     files,
		extractor: extractor,
		embedder:  embedder,
		queue:     q,
		chunker:   chunk.NewChunker(),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Register は取り込み・Embedding の両ハンドラを登録する
func (p *Pipeline) Register(r Registrar, ingest, embed queue.Policy) {
	r.Register(KindIngestDocument, ingest, p.HandleIngest)
	r.Register(KindEmbedChunk, embed, p.HandleEmbed)
}

// Submit はドキュメントの取り込みジョブを投入する
func (p *Pipeline) Submit(ctx context.Context, documentID uuid.UUID) (queue.Handle, error) {
	docOpt, err := p.repo.GetDocument(ctx, documentID)
	if err != nil {
		return queue.Handle{}, fmt.Errorf("failed to get document: %w", err)
	}
	doc, ok := docOpt.Get()
	if !ok {
		return queue.Handle{}, fmt.Errorf("%w: %s", document.ErrDocumentNotFound, documentID)
	}
	if doc.Status == document.StatusCompleted {
		return queue.Handle{}, fmt.Errorf("%w: %s", document.ErrAlreadyProcessed, documentID)
	}

	h, err := p.queue.Enqueue(ctx, KindIngestDocument, IngestArgs{DocumentID: documentID})
	if err != nil {
		return queue.Handle{}, fmt.Errorf("failed to submit document: %w", err)
	}

	p.logger.Info("ドキュメントの取り込みを受け付けました", "documentID", documentID, "jobID", h.ID)
	return h, nil
}

// HandleIngest は取り込みジョブを処理する
func (p *Pipeline) HandleIngest(ctx context.Context, job *queue.Job) queue.Result {
	var args IngestArgs
	if err := job.DecodeArgs(&args); err != nil {
		return queue.Fatal(err)
	}
	logger := p.logger.With("documentID", args.DocumentID, "attempt", job.Attempt)

	docOpt, err := p.repo.GetDocument(ctx, args.DocumentID)
	if err != nil {
		return queue.Retryable(fmt.Errorf("failed to get document: %w", err))
	}
	doc, ok := docOpt.Get()
	if !ok {
		// 状態を書き込まずに終了する
		logger.Error("取り込み対象のドキュメントが存在しません")
		return queue.Fatal(fmt.Errorf("%w: %s", document.ErrDocumentNotFound, args.DocumentID))
	}

	if doc.Status == document.StatusCompleted {
		logger.Info("処理済みのドキュメントのためスキップします")
		return queue.Ok()
	}

	// 抽出より前に processing を記録する
	processing, err := document.Transition(doc.State(), document.Start())
	if err != nil {
		return queue.Fatal(err)
	}
	if err := p.repo.UpdateDocumentState(ctx, doc.ID, processing); err != nil {
		return queue.Retryable(fmt.Errorf("failed to mark document processing: %w", err))
	}

	chunkCount, err := p.process(ctx, doc)
	if err != nil {
		p.recordFailure(ctx, logger, doc.ID, processing, err)
		if errors.Is(err, extract.ErrUnsupportedFormat) {
			return queue.Fatal(err)
		}
		return queue.Retryable(err)
	}

	completed, err := document.Transition(processing, document.Succeed(p.now()))
	if err != nil {
		return queue.Fatal(err)
	}
	if err := p.repo.UpdateDocumentState(ctx, doc.ID, completed); err != nil {
		err = fmt.Errorf("failed to mark document completed: %w", err)
		// processing のまま残さず、リトライ上限後も failed で終わるようにする
		p.recordFailure(ctx, logger, doc.ID, processing, err)
		return queue.Retryable(err)
	}

	logger.Info("ドキュメントの取り込みが完了しました", "chunks", chunkCount)
	return queue.Ok()
}

// process は読み出し・抽出・チャンク分割・保存・Embedding ジョブ投入を行う
func (p *Pipeline) process(ctx context.Context, doc *document.Document) (int, error) {
	data, err := p.files.ReadFile(ctx, doc.FilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	text, err := p.extractor.Extract(ctx, data, doc.FilePath)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, &extract.ExtractionError{
			Format: strings.ToLower(filepath.Ext(doc.FilePath)),
			Err:    ErrNoTextContent,
		}
	}

	chunks := p.buildChunks(doc.ID, text)

	// 既存チャンクの削除と保存は1トランザクションで行う
	if err := p.repo.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := p.queue.Enqueue(ctx, KindEmbedChunk, EmbedArgs{ChunkID: c.ID, DocumentID: doc.ID}); err != nil {
			return 0, fmt.Errorf("failed to enqueue embedding for chunk %d: %w", c.ChunkIndex, err)
		}
	}

	return len(chunks), nil
}

func (p *Pipeline) buildChunks(documentID uuid.UUID, text string) []*document.Chunk {
	results := p.chunker.Chunk(text)

	chunks := make([]*document.Chunk, 0, len(results))
	for i, r := range results {
		start, end := r.StartChar, r.EndChar
		metadata := map[string]any{
			"wordCount":  r.Metadata.WordCount,
			"chunkIndex": r.Metadata.ChunkIndex,
		}
		if p.tokens != nil {
			metadata["tokenCount"] = p.tokens.CountTokens(r.Content)
		}

		chunks = append(chunks, &document.Chunk{
			ID:         uuid.New(),
			DocumentID: documentID,
			Content:    r.Content,
			ChunkIndex: i,
			StartChar:  &start,
			EndChar:    &end,
			Metadata:   metadata,
		})
	}
	return chunks
}

// recordFailure は failed 状態を記録する。呼び出し元がキャンセルされていても書き込む
func (p *Pipeline) recordFailure(ctx context.Context, logger *slog.Logger, id uuid.UUID, cur document.State, cause error) {
	failed, err := document.Transition(cur, document.Fail(cause))
	if err != nil {
		logger.Error("失敗状態への遷移に失敗しました", "error", err)
		return
	}
	if err := p.repo.UpdateDocumentState(context.WithoutCancel(ctx), id, failed); err != nil {
		logger.Error("失敗状態の記録に失敗しました", "error", err, "cause", cause)
		return
	}
	logger.Warn("ドキュメントの取り込みに失敗しました", "error", cause)
}

// HandleEmbed は Embedding ジョブを処理する
func (p *Pipeline) HandleEmbed(ctx context.Context, job *queue.Job) queue.Result {
	var args EmbedArgs
	if err := job.DecodeArgs(&args); err != nil {
		return queue.Fatal(err)
	}
	logger := p.logger.With("chunkID", args.ChunkID, "attempt", job.Attempt)

	chunkOpt, err := p.repo.GetChunk(ctx, args.ChunkID)
	if err != nil {
		return queue.Retryable(fmt.Errorf("failed to get chunk: %w", err))
	}
	c, ok := chunkOpt.Get()
	if !ok {
		return p.chunkGone(logger, args)
	}

	vecOpt, err := p.embedder.Embed(ctx, c.Content)
	if err != nil {
		logger.Warn("Embedding の生成に失敗しました", "error", err)
		return queue.Retryable(err)
	}
	vector, ok := vecOpt.Get()
	if !ok {
		logger.Warn("Embedding が返されませんでした")
		return queue.Retryable(ErrEmbeddingUnavailable)
	}

	if err := p.repo.AttachEmbedding(ctx, c.ID, vector); err != nil {
		if errors.Is(err, document.ErrChunkNotFound) {
			return p.chunkGone(logger, args)
		}
		return queue.Retryable(fmt.Errorf("failed to attach embedding: %w", err))
	}

	logger.Debug("Embedding を保存しました", "documentID", c.DocumentID, "dimension", len(vector))
	return queue.Ok()
}

// chunkGone は対象チャンクが消えた Embedding ジョブの結果を返す
// ドキュメントの再チャンク分割・削除で置き換わったジョブは正常終了とし、
// ドキュメントが分からない場合のみ dead にする
func (p *Pipeline) chunkGone(logger *slog.Logger, args EmbedArgs) queue.Result {
	if args.DocumentID != uuid.Nil {
		logger.Warn("チャンクが置き換えられたため Embedding をスキップします", "documentID", args.DocumentID)
		return queue.Ok()
	}
	logger.Error("Embedding 対象のチャンクが存在しません")
	return queue.Fatal(fmt.Errorf("%w: %s", document.ErrChunkNotFound, args.ChunkID))
}
