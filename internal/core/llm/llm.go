package llm

import (
	"context"
	"fmt"

	"github.com/samber/mo"
)

// Embedder はテキストをベクトルに変換するインターフェース
// 空文字列や空白のみの入力に対しては mo.None を返し、外部呼び出しは行わない
// 通信エラーは握りつぶさず *ProviderError として返す
type Embedder interface {
	Embed(ctx context.Context, text string) (mo.Option[[]float32], error)
}

// ChatCompleter はチャット形式の補完を行うインターフェース
type ChatCompleter interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// CompletionRequest はチャット補完のリクエスト
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int // 0 以下の場合はモデルの既定値
}

// CompletionResponse はチャット補完のレスポンス
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// ProviderError は外部モデルプロバイダとの通信失敗を表す
type ProviderError struct {
	Op  string // "embed" / "complete"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
