package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor は PDF からページ単位でプレーンテキストを抽出する
type PDFExtractor struct{}

// Extract はページごとのテキストを改行で連結して返す
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", &ExtractionError{Format: ".pdf", Err: errors.New("empty pdf content")}
	}

	// 壊れたPDFでライブラリが panic することがあるためエラーに変換する
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Format: ".pdf", Err: fmt.Errorf("pdf reader panic: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Format: ".pdf", Err: fmt.Errorf("open pdf: %w", err)}
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", &ExtractionError{Format: ".pdf", Err: fmt.Errorf("page %d: %w", i, err)}
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}

var _ FormatExtractor = (*PDFExtractor)(nil)
