package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/interview-rag/internal/core/document"
)

func createDoc(t *testing.T, repo *Repository, owner uuid.UUID) *document.Document {
	t.Helper()
	doc, err := repo.CreateDocument(context.Background(), document.CreateDocumentParams{
		OwnerID:  owner,
		Title:    "resume",
		FilePath: "resume.txt",
	})
	require.NoError(t, err)
	return doc
}

func embedded(t *testing.T, repo *Repository, docID uuid.UUID, vectors ...[]float32) []*document.Chunk {
	t.Helper()
	ctx := context.Background()

	chunks := make([]*document.Chunk, 0, len(vectors))
	for i := range vectors {
		chunks = append(chunks, &document.Chunk{Content: "chunk", ChunkIndex: i})
	}
	require.NoError(t, repo.ReplaceChunks(ctx, docID, chunks))

	for i, v := range vectors {
		if v == nil {
			continue
		}
		require.NoError(t, repo.AttachEmbedding(ctx, chunks[i].ID, v))
	}
	return chunks
}

func TestRepository_CreateDocumentRequiresOwner(t *testing.T) {
	repo := NewRepository()
	_, err := repo.CreateDocument(context.Background(), document.CreateDocumentParams{Title: "x"})
	assert.ErrorIs(t, err, document.ErrOwnerRequired)
}

func TestRepository_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	owner := uuid.New()

	doc := createDoc(t, repo, owner)
	assert.Equal(t, document.StatusPending, doc.Status)

	next, err := document.Transition(doc.State(), document.Start())
	require.NoError(t, err)
	require.NoError(t, repo.UpdateDocumentState(ctx, doc.ID, next))

	got, err := repo.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessing, got.MustGet().Status)

	// 不変条件を満たさない状態は拒否される
	err = repo.UpdateDocumentState(ctx, doc.ID, document.State{Status: document.StatusCompleted})
	assert.Error(t, err)

	docs, err := repo.ListDocumentsByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = repo.ListDocumentsByOwner(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, docs)

	missing, err := repo.GetDocument(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, missing.IsAbsent())
}

func TestRepository_ReplaceChunks(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	doc := createDoc(t, repo, uuid.New())

	first := embedded(t, repo, doc.ID, []float32{1}, []float32{2}, nil)
	chunks, err := repo.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.True(t, chunks[0].HasEmbedding())
	assert.False(t, chunks[2].HasEmbedding())

	// 置き換えると以前のチャンクは消える
	embedded(t, repo, doc.ID, nil)
	chunks, err = repo.ListChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	old, err := repo.GetChunk(ctx, first[0].ID)
	require.NoError(t, err)
	assert.True(t, old.IsAbsent())

	err = repo.ReplaceChunks(ctx, doc.ID, []*document.Chunk{
		{Content: "a", ChunkIndex: 0},
		{Content: "b", ChunkIndex: 0},
	})
	assert.Error(t, err)

	err = repo.AttachEmbedding(ctx, uuid.New(), []float32{1})
	assert.ErrorIs(t, err, document.ErrChunkNotFound)
}

func TestRepository_DeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	doc := createDoc(t, repo, uuid.New())
	chunks := embedded(t, repo, doc.ID, []float32{1})

	require.NoError(t, repo.DeleteDocument(ctx, doc.ID))

	got, err := repo.GetChunk(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	assert.ErrorIs(t, repo.DeleteDocument(ctx, doc.ID), document.ErrDocumentNotFound)
}

func TestRepository_NearestChunks(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	owner := uuid.New()
	other := uuid.New()

	doc := createDoc(t, repo, owner)
	chunks := embedded(t, repo, doc.ID,
		[]float32{0, 0},
		[]float32{3, 4},
		[]float32{1, 0},
		nil,
		[]float32{0, 1},
	)

	otherDoc := createDoc(t, repo, other)
	embedded(t, repo, otherDoc.ID, []float32{0, 0})

	t.Run("L2距離順・同距離は登録順", func(t *testing.T) {
		hits, err := repo.NearestChunks(ctx, owner, []float32{0, 0}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 4)

		assert.Equal(t, chunks[0].ID, hits[0].ChunkID)
		assert.InDelta(t, 0, hits[0].Distance, 1e-9)
		assert.Equal(t, chunks[2].ID, hits[1].ChunkID)
		assert.Equal(t, chunks[4].ID, hits[2].ChunkID)
		assert.InDelta(t, 1, hits[2].Distance, 1e-9)
		assert.Equal(t, chunks[1].ID, hits[3].ChunkID)
		assert.InDelta(t, 5, hits[3].Distance, 1e-9)

		for _, h := range hits {
			assert.Equal(t, doc.ID, h.DocumentID)
		}
	})

	t.Run("k件に制限", func(t *testing.T) {
		hits, err := repo.NearestChunks(ctx, owner, []float32{0, 0}, 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("他オーナーのチャンクは返らない", func(t *testing.T) {
		hits, err := repo.NearestChunks(ctx, other, []float32{3, 4}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, otherDoc.ID, hits[0].DocumentID)
	})

	t.Run("ドキュメントのないオーナー", func(t *testing.T) {
		hits, err := repo.NearestChunks(ctx, uuid.New(), []float32{0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("次元数の不一致", func(t *testing.T) {
		_, err := repo.NearestChunks(ctx, owner, []float32{0, 0, 0}, 5)
		assert.Error(t, err)
	})
}
