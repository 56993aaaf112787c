package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/platform/database"
)

// DBTX は pgxpool.Pool と pgx.Tx の共通インターフェース
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository は document.Repository と search.Repository を実装する PostgreSQL リポジトリです
type Repository struct {
	db DBTX
	tx *database.TransactionProvider
}

// NewRepository は新しい Repository を作成します
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		db: pool,
		tx: database.NewTransactionProvider(pool),
	}
}

// コンパイル時の型チェック
var _ document.Repository = (*Repository)(nil)

// === Document ===

const documentColumns = `id, owner_id, title, file_path, mime_type, file_size, status, processing_error, uploaded_at, processed_at, updated_at`

func (r *Repository) CreateDocument(ctx context.Context, params document.CreateDocumentParams) (*document.Document, error) {
	if params.OwnerID == uuid.Nil {
		return nil, document.ErrOwnerRequired
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO documents (id, owner_id, title, file_path, mime_type, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING `+documentColumns,
		UUIDToPgtype(uuid.New()),
		UUIDToPgtype(params.OwnerID),
		params.Title,
		params.FilePath,
		params.MimeType,
		params.FileSize,
	)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

func (r *Repository) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*document.Document], error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, UUIDToPgtype(id))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*document.Document](), nil
		}
		return mo.None[*document.Document](), fmt.Errorf("failed to get document: %w", err)
	}
	return mo.Some(doc), nil
}

func (r *Repository) ListDocumentsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*document.Document, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_id = $1
		ORDER BY uploaded_at DESC, id`,
		UUIDToPgtype(ownerID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*document.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (r *Repository) UpdateDocumentState(ctx context.Context, id uuid.UUID, state document.State) error {
	if err := state.Validate(); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, processing_error = $3, processed_at = $4, updated_at = now()
		WHERE id = $1`,
		UUIDToPgtype(id),
		string(state.Status),
		StringPtrToPgtext(state.ProcessingError),
		TimePtrToPgtz(state.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update document state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}
	return nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}
	return nil
}

// === Chunk ===

const chunkColumns = `id, document_id, content, chunk_index, embedding::real[], page_number, start_char, end_char, metadata, created_at`

// ReplaceChunks は既存チャンクの削除と新規チャンクの保存を1トランザクションで行います
// 同一ドキュメントへの並行実行はアドバイザリロックで直列化します
func (r *Repository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*document.Chunk) error {
	_, err := database.Transact(ctx, r.tx, func(a *database.Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, database.GenerateLockID("document_chunks", documentID.String())); err != nil {
			return struct{}{}, err
		}

		if _, err := a.Tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, UUIDToPgtype(documentID)); err != nil {
			return struct{}{}, fmt.Errorf("failed to delete chunks: %w", err)
		}

		if len(chunks) == 0 {
			return struct{}{}, nil
		}

		batch := &pgx.Batch{}
		for _, c := range chunks {
			if c.ID == uuid.Nil {
				c.ID = uuid.New()
			}
			c.DocumentID = documentID

			metadata, err := JSONBFromMap(c.Metadata)
			if err != nil {
				return struct{}{}, fmt.Errorf("failed to encode chunk metadata: %w", err)
			}

			batch.Queue(`
				INSERT INTO document_chunks (id, document_id, content, chunk_index, embedding, page_number, start_char, end_char, metadata)
				VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8, $9)
				RETURNING created_at`,
				UUIDToPgtype(c.ID),
				UUIDToPgtype(documentID),
				c.Content,
				c.ChunkIndex,
				vectorParam(c.Embedding),
				IntPtrToPgInt4(c.PageNumber),
				IntPtrToPgInt4(c.StartChar),
				IntPtrToPgInt4(c.EndChar),
				metadata,
			)
		}

		br := a.Tx.SendBatch(ctx, batch)
		for _, c := range chunks {
			var createdAt pgtype.Timestamptz
			if err := br.QueryRow().Scan(&createdAt); err != nil {
				br.Close()
				if IsForeignKeyViolation(err) {
					return struct{}{}, fmt.Errorf("%w: %s", document.ErrDocumentNotFound, documentID)
				}
				return struct{}{}, fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
			}
			c.CreatedAt = createdAt.Time
		}
		if err := br.Close(); err != nil {
			return struct{}{}, fmt.Errorf("failed to insert chunks: %w", err)
		}

		return struct{}{}, nil
	})
	return err
}

func (r *Repository) GetChunk(ctx context.Context, id uuid.UUID) (mo.Option[*document.Chunk], error) {
	row := r.db.QueryRow(ctx, `SELECT `+chunkColumns+` FROM document_chunks WHERE id = $1`, UUIDToPgtype(id))

	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*document.Chunk](), nil
		}
		return mo.None[*document.Chunk](), fmt.Errorf("failed to get chunk: %w", err)
	}
	return mo.Some(c), nil
}

func (r *Repository) ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*document.Chunk, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chunkColumns+`
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		UUIDToPgtype(documentID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*document.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

func (r *Repository) AttachEmbedding(ctx context.Context, chunkID uuid.UUID, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}

	tag, err := r.db.Exec(ctx, `UPDATE document_chunks SET embedding = $2::vector WHERE id = $1`,
		UUIDToPgtype(chunkID),
		vectorParam(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to attach embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", document.ErrChunkNotFound, chunkID)
	}
	return nil
}

// vectorParam は pgvector のテキスト表現を返す（nil は NULL）
func vectorParam(v []float32) pgtype.Text {
	if len(v) == 0 {
		return pgtype.Text{}
	}
	return pgtype.Text{String: pgvector.NewVector(v).String(), Valid: true}
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		id, ownerID     pgtype.UUID
		status          string
		processingError pgtype.Text
		uploadedAt      pgtype.Timestamptz
		processedAt     pgtype.Timestamptz
		updatedAt       pgtype.Timestamptz
		doc             document.Document
	)

	if err := row.Scan(
		&id,
		&ownerID,
		&doc.Title,
		&doc.FilePath,
		&doc.MimeType,
		&doc.FileSize,
		&status,
		&processingError,
		&uploadedAt,
		&processedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	doc.ID = PgtypeToUUID(id)
	doc.OwnerID = PgtypeToUUID(ownerID)
	doc.Status = document.Status(status)
	doc.ProcessingError = PgtextToStringPtr(processingError)
	doc.UploadedAt = uploadedAt.Time
	doc.ProcessedAt = PgtzToTimePtr(processedAt)
	doc.UpdatedAt = updatedAt.Time

	return &doc, nil
}

func scanChunk(row pgx.Row) (*document.Chunk, error) {
	var (
		id, documentID pgtype.UUID
		embedding      []float32
		pageNumber     pgtype.Int4
		startChar      pgtype.Int4
		endChar        pgtype.Int4
		metadata       []byte
		createdAt      pgtype.Timestamptz
		c              document.Chunk
	)

	if err := row.Scan(
		&id,
		&documentID,
		&c.Content,
		&c.ChunkIndex,
		&embedding,
		&pageNumber,
		&startChar,
		&endChar,
		&metadata,
		&createdAt,
	); err != nil {
		return nil, err
	}

	meta, err := MapFromJSONB(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
	}

	c.ID = PgtypeToUUID(id)
	c.DocumentID = PgtypeToUUID(documentID)
	c.Embedding = embedding
	c.PageNumber = PgtypeToIntPtr(pageNumber)
	c.StartChar = PgtypeToIntPtr(startChar)
	c.EndChar = PgtypeToIntPtr(endChar)
	c.Metadata = meta
	c.CreatedAt = createdAt.Time

	return &c, nil
}
