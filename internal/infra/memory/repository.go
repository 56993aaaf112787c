package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/search"
)

// Repository はプロセス内メモリでドキュメントとチャンクを保持する
// 近傍検索は全件走査の L2 距離で行う
type Repository struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*document.Document
	chunks    map[uuid.UUID]*storedChunk
	seq       int64
	now       func() time.Time
}

type storedChunk struct {
	chunk *document.Chunk
	seq   int64 // 登録順（同距離の並び順に使う）
}

// NewRepository は空の Repository を作成する
func NewRepository() *Repository {
	return &Repository{
		documents: make(map[uuid.UUID]*document.Document),
		chunks:    make(map[uuid.UUID]*storedChunk),
		now:       time.Now,
	}
}

func (r *Repository) CreateDocument(_ context.Context, params document.CreateDocumentParams) (*document.Document, error) {
	if params.OwnerID == uuid.Nil {
		return nil, document.ErrOwnerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	doc := &document.Document{
		ID:         uuid.New(),
		OwnerID:    params.OwnerID,
		Title:      params.Title,
		FilePath:   params.FilePath,
		MimeType:   params.MimeType,
		FileSize:   params.FileSize,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	doc.Apply(document.PendingState())
	r.documents[doc.ID] = doc

	return cloneDocument(doc), nil
}

func (r *Repository) GetDocument(_ context.Context, id uuid.UUID) (mo.Option[*document.Document], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return mo.None[*document.Document](), nil
	}
	return mo.Some(cloneDocument(doc)), nil
}

func (r *Repository) ListDocumentsByOwner(_ context.Context, ownerID uuid.UUID) ([]*document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]*document.Document, 0)
	for _, doc := range r.documents {
		if doc.OwnerID == ownerID {
			docs = append(docs, cloneDocument(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	return docs, nil
}

func (r *Repository) UpdateDocumentState(_ context.Context, id uuid.UUID, state document.State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[id]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}
	doc.Apply(state)
	doc.UpdatedAt = r.now()
	return nil
}

func (r *Repository) DeleteDocument(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}
	delete(r.documents, id)
	r.deleteChunksLocked(id)
	return nil
}

func (r *Repository) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []*document.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[documentID]; !ok {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, documentID)
	}

	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if c.Content == "" {
			return fmt.Errorf("chunk %d has empty content", c.ChunkIndex)
		}
		if _, dup := seen[c.ChunkIndex]; dup {
			return fmt.Errorf("duplicate chunk index %d", c.ChunkIndex)
		}
		seen[c.ChunkIndex] = struct{}{}
	}

	r.deleteChunksLocked(documentID)

	now := r.now()
	for _, c := range chunks {
		stored := cloneChunk(c)
		if stored.ID == uuid.Nil {
			stored.ID = uuid.New()
			c.ID = stored.ID
		}
		stored.DocumentID = documentID
		stored.CreatedAt = now
		c.CreatedAt = now
		r.seq++
		r.chunks[stored.ID] = &storedChunk{chunk: stored, seq: r.seq}
	}
	return nil
}

func (r *Repository) GetChunk(_ context.Context, id uuid.UUID) (mo.Option[*document.Chunk], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sc, ok := r.chunks[id]
	if !ok {
		return mo.None[*document.Chunk](), nil
	}
	return mo.Some(cloneChunk(sc.chunk)), nil
}

func (r *Repository) ListChunksByDocument(_ context.Context, documentID uuid.UUID) ([]*document.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunks := make([]*document.Chunk, 0)
	for _, sc := range r.chunks {
		if sc.chunk.DocumentID == documentID {
			chunks = append(chunks, cloneChunk(sc.chunk))
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

func (r *Repository) AttachEmbedding(_ context.Context, chunkID uuid.UUID, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.chunks[chunkID]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrChunkNotFound, chunkID)
	}
	sc.chunk.Embedding = slices.Clone(vector)
	return nil
}

// NearestChunks は ownerID のドキュメントに属する Embedding 済みチャンクを L2 距離順に返す
func (r *Repository) NearestChunks(_ context.Context, ownerID uuid.UUID, vector []float32, k int) ([]*search.ChunkHit, error) {
	if k <= 0 {
		return []*search.ChunkHit{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type candidate struct {
		hit *search.ChunkHit
		seq int64
	}

	candidates := make([]candidate, 0)
	for _, sc := range r.chunks {
		c := sc.chunk
		if !c.HasEmbedding() {
			continue
		}
		doc, ok := r.documents[c.DocumentID]
		if !ok || doc.OwnerID != ownerID {
			continue
		}
		if len(c.Embedding) != len(vector) {
			return nil, fmt.Errorf("embedding dimension mismatch: chunk %s has %d, query has %d", c.ID, len(c.Embedding), len(vector))
		}
		candidates = append(candidates, candidate{
			hit: &search.ChunkHit{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				ChunkIndex: c.ChunkIndex,
				Content:    c.Content,
				Distance:   l2Distance(c.Embedding, vector),
			},
			seq: sc.seq,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].hit.Distance != candidates[j].hit.Distance {
			return candidates[i].hit.Distance < candidates[j].hit.Distance
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]*search.ChunkHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, c.hit)
	}
	return hits, nil
}

func (r *Repository) deleteChunksLocked(documentID uuid.UUID) {
	for id, sc := range r.chunks {
		if sc.chunk.DocumentID == documentID {
			delete(r.chunks, id)
		}
	}
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cloneDocument(d *document.Document) *document.Document {
	c := *d
	if d.ProcessingError != nil {
		msg := *d.ProcessingError
		c.ProcessingError = &msg
	}
	if d.ProcessedAt != nil {
		at := *d.ProcessedAt
		c.ProcessedAt = &at
	}
	return &c
}

func cloneChunk(c *document.Chunk) *document.Chunk {
	cp := *c
	cp.Embedding = slices.Clone(c.Embedding)
	if c.Metadata != nil {
		cp.Metadata = maps.Clone(c.Metadata)
	}
	return &cp
}

var (
	_ document.Repository = (*Repository)(nil)
	_ search.Repository   = (*Repository)(nil)
)
