package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor は Word 文書から段落テキストを抽出する
// 段落は改行1つで連結する
type DOCXExtractor struct{}

// Extract は word/document.xml の段落テキストを返す
func (e *DOCXExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ExtractionError{Format: ".docx", Err: errors.New("empty docx content")}
	}

	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &ExtractionError{Format: ".docx", Err: fmt.Errorf("open docx: %w", err)}
	}
	defer r.Close()

	paragraphs, err := docxParagraphs(ctx, r.Editable().GetContent())
	if err != nil {
		return "", err
	}

	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs は document.xml をストリームで読み、w:p ごとのテキストを返す
func docxParagraphs(ctx context.Context, documentXML string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(documentXML))

	var (
		paragraphs []string
		current    strings.Builder
		inPara     int
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ExtractionError{Format: ".docx", Err: fmt.Errorf("parse document.xml: %w", err)}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inPara == 0 {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
					current.Reset()
				}
				inPara++
			case "t":
				inText = true
			case "tab":
				if inPara > 0 {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if inPara > 0 {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				inPara--
				if inPara == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText && inPara > 0 {
				current.Write(t)
			}
		}
	}

	return paragraphs, nil
}

var _ FormatExtractor = (*DOCXExtractor)(nil)
