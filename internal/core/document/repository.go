package document

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

var (
	// ErrDocumentNotFound はドキュメントが存在しない場合のエラー
	ErrDocumentNotFound = errors.New("document not found")

	// ErrChunkNotFound はチャンクが存在しない場合のエラー
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrOwnerRequired はオーナー未指定でドキュメントを作成しようとした場合のエラー
	ErrOwnerRequired = errors.New("document owner is required")
)

// Repository はドキュメントとチャンクの永続化インターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// Document
	CreateDocument(ctx context.Context, params CreateDocumentParams) (*Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error)
	ListDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Document, error)
	// UpdateDocumentState は status / processing_error / processed_at を1回の更新で書き換える
	UpdateDocumentState(ctx context.Context, id uuid.UUID, state State) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Chunk
	// ReplaceChunks は既存チャンクを削除し、新しいチャンク群を単一トランザクションで保存する
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*Chunk) error
	GetChunk(ctx context.Context, id uuid.UUID) (mo.Option[*Chunk], error)
	ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error)
	// AttachEmbedding はチャンクに Embedding を設定する（上書きのため冪等）
	AttachEmbedding(ctx context.Context, chunkID uuid.UUID, vector []float32) error
}
