package chunk

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize は1チャンクあたりの目標単語数
	DefaultChunkSize = 300
	// DefaultOverlap は隣接チャンク間で重複させる単語数
	DefaultOverlap = 50
)

// Metadata はチャンクに付随するメタデータ
type Metadata struct {
	WordCount  int `json:"word_count"`
	ChunkIndex int `json:"chunk_index"`
}

// Result はチャンク化の結果1件を表す
//
// StartChar / EndChar は単語を半角スペース1つで再結合した文字列上のオフセット（rune 単位）。
// 元テキストの空白が不規則な場合は実際の位置とずれる近似値である。
type Result struct {
	Content   string
	StartChar int
	EndChar   int
	Metadata  Metadata
}

// Chunker は単語数ベースのスライディングウィンドウでテキストを分割する
type Chunker struct {
	size    int
	overlap int
}

// Option は Chunker のオプション設定
type Option func(*Chunker)

// WithChunkSize はチャンクあたりの単語数を設定する（0以下はデフォルト値）
func WithChunkSize(words int) Option {
	return func(c *Chunker) {
		if words > 0 {
			c.size = words
		}
	}
}

// WithOverlap はオーバーラップ単語数を設定する（負数は0として扱う）
func WithOverlap(words int) Option {
	return func(c *Chunker) {
		c.overlap = max(words, 0)
	}
}

// NewChunker は新しい Chunker を作成する
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Size はチャンクあたりの単語数を返す
func (c *Chunker) Size() int { return c.size }

// Overlap はオーバーラップ単語数を返す
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk はテキストをオーバーラップ付きのチャンク列に分割する
// 空文字列・空白のみの入力は空スライスを返す
func (c *Chunker) Chunk(text string) []Result {
	if strings.TrimSpace(text) == "" {
		return []Result{}
	}

	words := strings.Fields(text)

	if len(words) <= c.size {
		return []Result{{
			Content:   strings.TrimSpace(text),
			StartChar: 0,
			EndChar:   utf8.RuneCountInString(text),
			Metadata: Metadata{
				WordCount:  len(words),
				ChunkIndex: 0,
			},
		}}
	}

	// prefix[i] は words[:i] の文字数合計（区切りスペースを除く）
	prefix := make([]int, len(words)+1)
	for i, w := range words {
		prefix[i+1] = prefix[i] + utf8.RuneCountInString(w)
	}

	// overlap >= size でも最低1単語は前進させる
	step := max(c.size-c.overlap, 1)

	results := make([]Result, 0, estimateCount(len(words), c.size, step))
	for start := 0; start < len(words); start += step {
		end := min(start+c.size, len(words))
		content := strings.Join(words[start:end], " ")

		// words[:start] を半角スペースで結合した長さ + 区切りスペース1つ
		startChar := 0
		if start > 0 {
			startChar = prefix[start] + (start - 1) + 1
		}

		results = append(results, Result{
			Content:   content,
			StartChar: startChar,
			EndChar:   startChar + utf8.RuneCountInString(content),
			Metadata: Metadata{
				WordCount:  end - start,
				ChunkIndex: len(results),
			},
		})

		if end >= len(words) {
			break
		}
	}

	return results
}

// estimateCount は生成されるチャンク数を見積もる（容量確保用）
func estimateCount(n, size, step int) int {
	if n <= size {
		return 1
	}
	return (n-size+step-1)/step + 1
}
