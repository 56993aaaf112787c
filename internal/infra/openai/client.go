package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/jinford/interview-rag/internal/core/llm"
)

// DefaultModel はデフォルトで使用するチャットモデル
const DefaultModel = "gpt-4.1-mini"

// Client は OpenAI API を使用したチャット補完クライアント
type Client struct {
	client openai.Client
	model  string
	retry  retrier
}

type clientOptions struct {
	model          string
	limiter        *rate.Limiter
	requestOptions []option.RequestOption
	retry          retrier
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はチャットモデルを上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithLimiter はリクエストのレート制限を設定する
func WithLimiter(limiter *rate.Limiter) ClientOption {
	return func(o *clientOptions) {
		o.limiter = limiter
	}
}

// WithRequestOptions は openai-go のリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(o *clientOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// NewClient はAPIキーを指定して Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model: DefaultModel,
		retry: newRetrier(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.retry.limiter = options.limiter

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.requestOptions...)

	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  options.model,
		retry:  options.retry,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// Complete はシステムプロンプトとユーザー発話からチャット補完を生成する
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := do(ctx, c.retry, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return llm.CompletionResponse{}, &llm.ProviderError{Op: "complete", Err: err}
	}

	if len(completion.Choices) == 0 {
		return llm.CompletionResponse{}, &llm.ProviderError{Op: "complete", Err: fmt.Errorf("no completion choices returned")}
	}

	return llm.CompletionResponse{
		Content:    completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
		Model:      string(completion.Model),
	}, nil
}

// インターフェース実装の確認
var _ llm.ChatCompleter = (*Client)(nil)
