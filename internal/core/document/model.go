package document

import (
	"time"

	"github.com/google/uuid"
)

// Status はドキュメントの処理状態を表す
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsValid は既知のステータスかどうかを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document はアップロードされたドキュメントを表す
// ファイル本体はアップロード側のストレージが所有し、ここでは参照のみを保持する
type Document struct {
	ID       uuid.UUID
	OwnerID  uuid.UUID
	Title    string
	FilePath string // ストレージ内のファイル参照
	MimeType string
	FileSize int64

	Status          Status
	ProcessingError *string // Status == failed のときのみ設定される

	UploadedAt  time.Time
	ProcessedAt *time.Time // Status == completed のときのみ設定される
	UpdatedAt   time.Time
}

// State はドキュメントの状態遷移に関わるフィールドを切り出した値型
func (d *Document) State() State {
	return State{
		Status:          d.Status,
		ProcessingError: d.ProcessingError,
		ProcessedAt:     d.ProcessedAt,
	}
}

// Apply は状態をドキュメントに反映する
func (d *Document) Apply(s State) {
	d.Status = s.Status
	d.ProcessingError = s.ProcessingError
	d.ProcessedAt = s.ProcessedAt
}

// Chunk はドキュメントから抽出されたテキスト断片を表す
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Content    string
	ChunkIndex int       // ドキュメント内で 0 始まりの連番
	Embedding  []float32 // Embedding ステージ完了まで nil

	// 位置情報（文字オフセットは近似値）
	PageNumber *int
	StartChar  *int
	EndChar    *int

	Metadata  map[string]any
	CreatedAt time.Time
}

// HasEmbedding は Embedding が付与済みかどうかを返す
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Persona は質問応答で演じる人物と検索スコープを表す
// OwnerID のドキュメントのみが検索対象になる
type Persona struct {
	OwnerID uuid.UUID
	Name    string
}

// HasScope は検索スコープが指定されているかを返す
func (p Persona) HasScope() bool {
	return p.OwnerID != uuid.Nil
}

// CreateDocumentParams はドキュメント作成時のパラメータ
type CreateDocumentParams struct {
	OwnerID  uuid.UUID
	Title    string
	FilePath string
	MimeType string
	FileSize int64
}
