package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDOCX は最小構成の DOCX をメモリ上で組み立てる
func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`,
	}

	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestTextExtractor_Extract_TXT(t *testing.T) {
	ex := New()
	ctx := context.Background()

	t.Run("UTF-8はそのまま返す", func(t *testing.T) {
		text, err := ex.Extract(ctx, []byte("こんにちは\nworld"), "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "こんにちは\nworld", text)
	})

	t.Run("不正なUTF-8はLatin-1として解釈する", func(t *testing.T) {
		text, err := ex.Extract(ctx, []byte{'c', 'a', 'f', 0xe9}, "menu.TXT")
		require.NoError(t, err)
		assert.Equal(t, "café", text)
	})

	t.Run("バイナリはExtractionError", func(t *testing.T) {
		_, err := ex.Extract(ctx, []byte{0x00, 0x01, 0x02, 0x00, 0xff}, "blob.txt")
		require.Error(t, err)

		var extractErr *ExtractionError
		require.ErrorAs(t, err, &extractErr)
		assert.Equal(t, ".txt", extractErr.Format)
		assert.ErrorIs(t, err, ErrBinaryContent)
	})

	t.Run("空ファイルは空文字列", func(t *testing.T) {
		text, err := ex.Extract(ctx, []byte{}, "empty.txt")
		require.NoError(t, err)
		assert.Empty(t, text)
	})
}

func TestTextExtractor_Extract_DOCX(t *testing.T) {
	ex := New()
	ctx := context.Background()

	body := `<w:p><w:r><w:t>Senior Go engineer</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Built </w:t></w:r><w:r><w:t>pipelines</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Name</w:t><w:tab/><w:t>Alex</w:t></w:r></w:p>`
	data := buildDOCX(t, body)

	text, err := ex.Extract(ctx, data, "resume.docx")
	require.NoError(t, err)
	assert.Equal(t, "Senior Go engineer\nBuilt pipelines\nName\tAlex", text)
}

func TestTextExtractor_Extract_Errors(t *testing.T) {
	ex := New()
	ctx := context.Background()

	t.Run("未対応の拡張子", func(t *testing.T) {
		_, err := ex.Extract(ctx, []byte("a,b"), "table.csv")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		var extractErr *ExtractionError
		assert.False(t, errors.As(err, &extractErr))
	})

	t.Run("拡張子なし", func(t *testing.T) {
		_, err := ex.Extract(ctx, []byte("hello"), "README")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("壊れたPDF", func(t *testing.T) {
		_, err := ex.Extract(ctx, []byte("this is not a pdf"), "resume.pdf")
		require.Error(t, err)

		var extractErr *ExtractionError
		require.ErrorAs(t, err, &extractErr)
		assert.Equal(t, ".pdf", extractErr.Format)
	})

	t.Run("空のPDF", func(t *testing.T) {
		_, err := ex.Extract(ctx, nil, "resume.pdf")
		var extractErr *ExtractionError
		assert.ErrorAs(t, err, &extractErr)
	})

	t.Run("ZIPでないDOCX", func(t *testing.T) {
		_, err := ex.Extract(ctx, []byte("plain text"), "resume.docx")
		var extractErr *ExtractionError
		require.ErrorAs(t, err, &extractErr)
		assert.Equal(t, ".docx", extractErr.Format)
	})

	t.Run("キャンセル済みコンテキスト", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := ex.Extract(cancelled, []byte("hello"), "notes.txt")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type upperExtractor struct{}

func (upperExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return string(bytes.ToUpper(data)), nil
}

func TestTextExtractor_Supports(t *testing.T) {
	ex := New(WithFormat("md", upperExtractor{}))

	tests := []struct {
		name     string
		filename string
		want     bool
	}{
		{"pdf", "cv.pdf", true},
		{"大文字拡張子", "CV.DOCX", true},
		{"doc", "old.doc", true},
		{"txt", "notes.txt", true},
		{"追加したフォーマット", "notes.md", true},
		{"未対応", "sheet.xlsx", false},
		{"拡張子なし", "Makefile", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Supports(tt.filename))
		})
	}

	text, err := ex.Extract(context.Background(), []byte("hi"), "x.md")
	require.NoError(t, err)
	assert.Equal(t, "HI", text)
	assert.Equal(t, []string{".doc", ".docx", ".md", ".pdf", ".txt"}, ex.Extensions())
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension("resume.PDF"))
	assert.True(t, SupportedExtension("/uploads/a/b/notes.txt"))
	assert.False(t, SupportedExtension("photo.png"))
	assert.False(t, SupportedExtension("pdf"))
}
