package extract

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"golang.org/x/text/encoding/charmap"
)

// ErrBinaryContent はテキストファイルにバイナリが含まれていた場合のエラー
var ErrBinaryContent = errors.New("file looks like binary data")

// TXTExtractor はテキストファイルを読み込む
// UTF-8 として不正な場合は Latin-1 (ISO 8859-1) として解釈する
type TXTExtractor struct{}

// Extract はファイル内容を文字列として返す
func (e *TXTExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if enry.IsBinary(data) {
		return "", &ExtractionError{Format: ".txt", Err: ErrBinaryContent}
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", &ExtractionError{Format: ".txt", Err: fmt.Errorf("latin-1 decode: %w", err)}
	}
	return string(decoded), nil
}

var _ FormatExtractor = (*TXTExtractor)(nil)
