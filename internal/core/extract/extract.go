package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat は未対応の拡張子が指定された場合のエラー（リトライ不可）
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ExtractionError はフォーマット固有のバックエンドが失敗した場合のエラー
type ExtractionError struct {
	Format string // 拡張子（例: ".pdf"）
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FormatExtractor は1フォーマット分のテキスト抽出を行うインターフェース
type FormatExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// TextExtractor は拡張子に応じて FormatExtractor へ処理を振り分ける
type TextExtractor struct {
	extractors map[string]FormatExtractor
}

// Option は TextExtractor のオプション設定
type Option func(*TextExtractor)

// WithFormat は拡張子に対する FormatExtractor を追加・上書きする
func WithFormat(ext string, e FormatExtractor) Option {
	return func(t *TextExtractor) {
		t.extractors[normalizeExt(ext)] = e
	}
}

// New は PDF / TXT / DOC / DOCX に対応した TextExtractor を作成する
func New(opts ...Option) *TextExtractor {
	docx := &DOCXExtractor{}
	t := &TextExtractor{
		extractors: map[string]FormatExtractor{
			".pdf":  &PDFExtractor{},
			".txt":  &TXTExtractor{},
			".doc":  docx,
			".docx": docx,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Extract はファイル名の拡張子で形式を判定し、プレーンテキストを返す
// リトライは行わない（呼び出し側の責務）
func (t *TextExtractor) Extract(ctx context.Context, data []byte, filename string) (string, error) {
	ext := normalizeExt(filepath.Ext(filename))

	e, ok := t.extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := e.Extract(ctx, data)
	if err != nil {
		// キャンセルはそのまま返す
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		var extractErr *ExtractionError
		if errors.As(err, &extractErr) {
			return "", err
		}
		return "", &ExtractionError{Format: ext, Err: err}
	}

	return text, nil
}

// Supports はファイル名の拡張子が対応形式かどうかを返す（アップロード時の検証用）
func (t *TextExtractor) Supports(filename string) bool {
	_, ok := t.extractors[normalizeExt(filepath.Ext(filename))]
	return ok
}

// Extensions は対応している拡張子の一覧を返す
func (t *TextExtractor) Extensions() []string {
	exts := make([]string, 0, len(t.extractors))
	for ext := range t.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// SupportedExtension は既定の TextExtractor が扱える拡張子かどうかを返す
func SupportedExtension(name string) bool {
	switch normalizeExt(filepath.Ext(name)) {
	case ".pdf", ".txt", ".doc", ".docx":
		return true
	default:
		return false
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
