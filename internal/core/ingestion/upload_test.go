package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/platform/queue"
)

type memBlobs struct {
	files   map[string][]byte
	saveErr error
}

func (b *memBlobs) Save(ctx context.Context, path string, data []byte) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.files[path] = data
	return nil
}

func (b *memBlobs) Delete(ctx context.Context, path string) error {
	delete(b.files, path)
	return nil
}

func (b *memBlobs) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, ok := b.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestValidateUpload(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name    string
		params  UploadParams
		wantErr error
	}{
		{"正常", UploadParams{OwnerID: owner, Filename: "cv.pdf", Data: []byte("x")}, nil},
		{"オーナーなし", UploadParams{Filename: "cv.pdf", Data: []byte("x")}, document.ErrOwnerRequired},
		{"未対応の拡張子", UploadParams{OwnerID: owner, Filename: "cv.png", Data: []byte("x")}, ErrUnsupportedFileType},
		{"空ファイル", UploadParams{OwnerID: owner, Filename: "cv.txt"}, ErrEmptyFile},
		{"10MB超過", UploadParams{OwnerID: owner, Filename: "cv.txt", Data: bytes.Repeat([]byte("a"), MaxUploadSize+1)}, ErrFileTooLarge},
		{"10MBちょうど", UploadParams{OwnerID: owner, Filename: "cv.txt", Data: bytes.Repeat([]byte("a"), MaxUploadSize)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.params)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUploader_Upload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	blobs := &memBlobs{files: map[string][]byte{}}
	f.pipeline.files = blobs
	uploader := NewUploader(f.repo, blobs, f.pipeline)

	doc, h, err := uploader.Upload(ctx, UploadParams{
		OwnerID:  f.owner,
		Filename: "/home/alex/Resume.txt",
		Data:     []byte("Go engineer with payments background"),
	})
	require.NoError(t, err)
	assert.Equal(t, KindIngestDocument, h.Kind)

	assert.Equal(t, "Resume", doc.Title)
	assert.Equal(t, document.StatusPending, doc.Status)
	assert.True(t, strings.HasPrefix(doc.FilePath, "documents/"))
	assert.True(t, strings.HasSuffix(doc.FilePath, "-Resume.txt"))
	assert.Contains(t, doc.MimeType, "text/plain")
	assert.EqualValues(t, 36, doc.FileSize)
	assert.Contains(t, blobs.files, doc.FilePath)

	f.drain(t)
	assert.Equal(t, document.StatusCompleted, f.document(t, doc.ID).Status)

	jobs, err := f.store.List(ctx, mo.None[queue.Status](), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, jobs)
}

func TestUploader_SaveFailure(t *testing.T) {
	f := newFixture(t)
	blobs := &memBlobs{files: map[string][]byte{}, saveErr: errors.New("disk full")}
	uploader := NewUploader(f.repo, blobs, f.pipeline)

	_, _, err := uploader.Upload(context.Background(), UploadParams{OwnerID: f.owner, Filename: "a.txt", Data: []byte("x")})
	assert.Error(t, err)

	docs, err := f.repo.ListDocumentsByOwner(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
