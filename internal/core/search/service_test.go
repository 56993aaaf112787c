package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	vector mo.Option[[]float32]
	err    error
	called bool
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) (mo.Option[[]float32], error) {
	e.called = true
	return e.vector, e.err
}

type stubSearchRepo struct {
	results   []*ChunkHit
	err       error
	lastOwner uuid.UUID
	lastLimit int
	called    bool
}

func (r *stubSearchRepo) NearestChunks(ctx context.Context, ownerID uuid.UUID, vector []float32, k int) ([]*ChunkHit, error) {
	r.called = true
	r.lastOwner = ownerID
	r.lastLimit = k
	return r.results, r.err
}

func TestService_Nearest(t *testing.T) {
	owner := uuid.New()
	hit := &ChunkHit{ChunkID: uuid.New(), Distance: 0.1}

	tests := []struct {
		name      string
		params    NearestParams
		wantErr   error
		wantLimit int
	}{
		{
			name:      "Kの既定値は5",
			params:    NearestParams{OwnerID: owner, Vector: []float32{1}},
			wantLimit: DefaultK,
		},
		{
			name:      "Kを指定",
			params:    NearestParams{OwnerID: owner, Vector: []float32{1}, K: 2},
			wantLimit: 2,
		},
		{
			name:    "スコープなし",
			params:  NearestParams{Vector: []float32{1}},
			wantErr: ErrScopeRequired,
		},
		{
			name:    "空ベクトル",
			params:  NearestParams{OwnerID: owner},
			wantErr: ErrEmptyVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubSearchRepo{results: []*ChunkHit{hit}}
			svc := NewService(repo)

			hits, err := svc.Nearest(context.Background(), tt.params)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, repo.called)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, []*ChunkHit{hit}, hits)
			assert.Equal(t, tt.wantLimit, repo.lastLimit)
			assert.Equal(t, owner, repo.lastOwner)
		})
	}
}

func TestService_NearestRepositoryError(t *testing.T) {
	repoErr := errors.New("connection refused")
	svc := NewService(&stubSearchRepo{err: repoErr})

	_, err := svc.Nearest(context.Background(), NearestParams{OwnerID: uuid.New(), Vector: []float32{1}})
	assert.ErrorIs(t, err, repoErr)
}

func TestService_Search(t *testing.T) {
	owner := uuid.New()

	t.Run("Embeddingして検索する", func(t *testing.T) {
		embedder := &stubEmbedder{vector: mo.Some([]float32{1, 2, 3})}
		repo := &stubSearchRepo{}
		svc := NewService(repo, WithEmbedder(embedder))

		_, err := svc.Search(context.Background(), SearchParams{OwnerID: owner, Query: "golang", K: 3})
		require.NoError(t, err)
		assert.True(t, embedder.called)
		assert.Equal(t, 3, repo.lastLimit)
	})

	t.Run("Embeddingが得られない", func(t *testing.T) {
		svc := NewService(&stubSearchRepo{}, WithEmbedder(&stubEmbedder{vector: mo.None[[]float32]()}))

		_, err := svc.Search(context.Background(), SearchParams{OwnerID: owner, Query: "golang"})
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("空クエリ", func(t *testing.T) {
		embedder := &stubEmbedder{}
		svc := NewService(&stubSearchRepo{}, WithEmbedder(embedder))

		_, err := svc.Search(context.Background(), SearchParams{OwnerID: owner})
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.False(t, embedder.called)
	})
}
