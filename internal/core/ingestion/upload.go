package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/extract"
	"github.com/jinford/interview-rag/internal/platform/queue"
)

// MaxUploadSize はアップロード可能なファイルサイズの上限（10MB）
const MaxUploadSize = 10 * 1024 * 1024

var (
	// ErrFileTooLarge はファイルサイズが上限を超えている場合のエラー
	ErrFileTooLarge = errors.New("file size cannot exceed 10MB")

	// ErrEmptyFile は空ファイルがアップロードされた場合のエラー
	ErrEmptyFile = errors.New("file is empty")

	// ErrUnsupportedFileType は対応していない拡張子の場合のエラー
	ErrUnsupportedFileType = errors.New("unsupported file type: allowed extensions are pdf, txt, doc, docx")
)

// BlobWriter はアップロードされたファイルの保存インターフェース
type BlobWriter interface {
	Save(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// Submitter は取り込みジョブ投入のインターフェース
type Submitter interface {
	Submit(ctx context.Context, documentID uuid.UUID) (queue.Handle, error)
}

// UploadParams はアップロードのパラメータ
type UploadParams struct {
	OwnerID  uuid.UUID
	Title    string // 空ならファイル名から補完
	Filename string
	MimeType string // 空なら拡張子から推定
	Data     []byte
}

// Uploader はファイル保存・ドキュメント登録・取り込み投入をまとめて行う
type Uploader struct {
	repo      document.Repository
	blobs     BlobWriter
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time
}

// UploaderOption は Uploader のオプション設定
type UploaderOption func(*Uploader)

// WithUploaderLogger は Uploader にロガーを設定する
func WithUploaderLogger(logger *slog.Logger) UploaderOption {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// NewUploader は新しい Uploader を作成する
func NewUploader(repo document.Repository, blobs BlobWriter, submitter Submitter, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		repo:      repo,
		blobs:     blobs,
		submitter: submitter,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(u)
	}

	if u.logger == nil {
		u.logger = slog.Default()
	}

	return u
}

// ValidateUpload はアップロード時の検証を行う
func ValidateUpload(params UploadParams) error {
	if params.OwnerID == uuid.Nil {
		return document.ErrOwnerRequired
	}
	if !extract.SupportedExtension(params.Filename) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, params.Filename)
	}
	if len(params.Data) == 0 {
		return ErrEmptyFile
	}
	if len(params.Data) > MaxUploadSize {
		return ErrFileTooLarge
	}
	return nil
}

// Upload はファイルを保存して pending のドキュメントを作成し、取り込みを投入する
func (u *Uploader) Upload(ctx context.Context, params UploadParams) (*document.Document, queue.Handle, error) {
	if err := ValidateUpload(params); err != nil {
		return nil, queue.Handle{}, err
	}

	base := filepath.Base(params.Filename)
	ext := filepath.Ext(base)

	title := strings.TrimSpace(params.Title)
	if title == "" {
		title = strings.TrimSuffix(base, ext)
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(ext))
	}

	path := u.now().Format("documents/2006/01/02/") + uuid.NewString() + "-" + base

	if err := u.blobs.Save(ctx, path, params.Data); err != nil {
		return nil, queue.Handle{}, fmt.Errorf("failed to save uploaded file: %w", err)
	}

	doc, err := u.repo.CreateDocument(ctx, document.CreateDocumentParams{
		OwnerID:  params.OwnerID,
		Title:    title,
		FilePath: path,
		MimeType: mimeType,
		FileSize: int64(len(params.Data)),
	})
	if err != nil {
		if delErr := u.blobs.Delete(context.WithoutCancel(ctx), path); delErr != nil {
			u.logger.Warn("アップロードファイルの削除に失敗しました", "path", path, "error", delErr)
		}
		return nil, queue.Handle{}, fmt.Errorf("failed to create document: %w", err)
	}

	h, err := u.submitter.Submit(ctx, doc.ID)
	if err != nil {
		// ドキュメントは pending のまま残り、後から再投入できる
		return doc, queue.Handle{}, err
	}

	u.logger.Info("ドキュメントをアップロードしました", "documentID", doc.ID, "ownerID", doc.OwnerID, "path", path)
	return doc, h, nil
}
