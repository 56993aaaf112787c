package ingestion

import "errors"

var (
	// ErrEmbeddingUnavailable はプロバイダがベクトルを返さなかった場合のエラー（リトライ対象）
	ErrEmbeddingUnavailable = errors.New("embedding provider returned no vector")

	// ErrNoTextContent は抽出結果が空だった場合のエラー
	ErrNoTextContent = errors.New("no text content could be extracted")
)
