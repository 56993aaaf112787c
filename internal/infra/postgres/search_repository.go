package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/interview-rag/internal/core/search"
)

var _ search.Repository = (*Repository)(nil)

// NearestChunks はオーナーのドキュメントに属する Embedding 済みチャンクを L2 距離順に返します
// 同距離の場合は登録順（seq）で並べます
// 近似インデックスはオーナー絞り込み前に候補を打ち切るため使わず、厳密な L2 順序を返します
func (r *Repository) NearestChunks(ctx context.Context, ownerID uuid.UUID, vector []float32, k int) ([]*search.ChunkHit, error) {
	if k <= 0 {
		return []*search.ChunkHit{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding <-> $2::vector AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.owner_id = $1
		  AND c.embedding IS NOT NULL
		ORDER BY distance, c.seq
		LIMIT $3`,
		UUIDToPgtype(ownerID),
		vectorParam(vector),
		k,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearest chunks: %w", err)
	}
	defer rows.Close()

	hits := make([]*search.ChunkHit, 0, k)
	for rows.Next() {
		var (
			chunkID, documentID pgtype.UUID
			hit                 search.ChunkHit
		)
		if err := rows.Scan(&chunkID, &documentID, &hit.ChunkIndex, &hit.Content, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan nearest chunk: %w", err)
		}
		hit.ChunkID = PgtypeToUUID(chunkID)
		hit.DocumentID = PgtypeToUUID(documentID)
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to search nearest chunks: %w", err)
	}

	return hits, nil
}
