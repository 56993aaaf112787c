package search

import (
	"context"

	"github.com/google/uuid"
)

// Repository は近傍検索のデータアクセスインターフェース
type Repository interface {
	// NearestChunks は ownerID のドキュメントに属し Embedding 済みのチャンクを
	// L2 距離の昇順で最大 k 件返す。同距離は登録順
	NearestChunks(ctx context.Context, ownerID uuid.UUID, vector []float32, k int) ([]*ChunkHit, error)
}
