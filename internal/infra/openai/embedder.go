package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/samber/mo"
	"golang.org/x/time/rate"

	"github.com/jinford/interview-rag/internal/core/llm"
)

// Embedder は OpenAI API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	retry     retrier
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
)

type embedderOptions struct {
	model          string
	dimension      int
	limiter        *rate.Limiter
	requestOptions []option.RequestOption
	retry          retrier
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingLimiter はリクエストのレート制限を設定する
func WithEmbeddingLimiter(limiter *rate.Limiter) EmbedderOption {
	return func(o *embedderOptions) {
		o.limiter = limiter
	}
}

// WithEmbeddingRequestOptions は openai-go のリクエストオプションを追加する
func WithEmbeddingRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(o *embedderOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		retry:     newRetrier(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.retry.limiter = options.limiter

	// 429 のリトライは retrier 側で行う
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.requestOptions...)

	return &Embedder{
		client:    openai.NewClient(reqOpts...),
		model:     options.model,
		dimension: options.dimension,
		retry:     options.retry,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
// 空白のみの入力は mo.None を返す
func (e *Embedder) Embed(ctx context.Context, text string) (mo.Option[[]float32], error) {
	if strings.TrimSpace(text) == "" {
		return mo.None[[]float32](), nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := do(ctx, e.retry, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return e.client.Embeddings.New(ctx, params)
	})
	if err != nil {
		return mo.None[[]float32](), &llm.ProviderError{Op: "embed", Err: err}
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return mo.None[[]float32](), nil
	}

	data := resp.Data[0].Embedding
	vector := make([]float32, len(data))
	for i, v := range data {
		vector[i] = float32(v)
	}

	if e.dimension > 0 && len(vector) != e.dimension {
		return mo.None[[]float32](), &llm.ProviderError{
			Op:  "embed",
			Err: fmt.Errorf("unexpected embedding dimension: got %d, want %d", len(vector), e.dimension),
		}
	}

	return mo.Some(vector), nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var _ llm.Embedder = (*Embedder)(nil)
