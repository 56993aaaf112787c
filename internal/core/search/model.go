package search

import (
	"github.com/google/uuid"
)

// DefaultK は取得件数の既定値
const DefaultK = 5

// ChunkHit は近傍検索でヒットしたチャンクを表す
type ChunkHit struct {
	ChunkID    uuid.UUID `json:"chunkID"`
	DocumentID uuid.UUID `json:"documentID"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	Distance   float64   `json:"distance"` // L2 距離（小さいほど近い）
}

// NearestParams は近傍検索のパラメータ
type NearestParams struct {
	OwnerID uuid.UUID // 検索スコープ（必須）
	Vector  []float32
	K       int // 0 以下なら DefaultK
}

// SearchParams はテキストクエリによる検索パラメータ
type SearchParams struct {
	OwnerID uuid.UUID
	Query   string
	K       int
}
