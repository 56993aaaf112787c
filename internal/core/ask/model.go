package ask

import (
	"github.com/google/uuid"
)

// FailureReason は回答生成の途中で失敗した段階を表す
type FailureReason string

const (
	FailureQuestionNotProcessed FailureReason = "question_not_processed"
	FailureRetrieval            FailureReason = "retrieval_failed"
	FailureCompletion           FailureReason = "completion_failed"
)

// ユーザーに返す失敗メッセージ
const (
	MessageQuestionNotProcessed = "Error: Could not process the question."
	MessageRetrieval            = "Error: Could not retrieve relevant information."
	MessageCompletion           = "Error: Failed to get a response from the AI."
)

// Failure は呼び出し元に例外を投げずに返す失敗情報
type Failure struct {
	Reason  FailureReason
	Message string
	Cause   error
}

// Result は質問応答の結果を表す
// Failure が設定されている場合、Answer には Failure.Message が入る
type Result struct {
	Answer  string   // LLMによる回答
	Sources []Source // 回答のコンテキストに使ったチャンク（検索順）
	Failure *Failure
}

// Failed は失敗結果かどうかを返す
func (r *Result) Failed() bool {
	return r.Failure != nil
}

// Source は回答の根拠となったチャンク参照を表す
type Source struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Distance   float64
}

func failed(reason FailureReason, message string, cause error) *Result {
	return &Result{
		Answer:  message,
		Sources: []Source{},
		Failure: &Failure{Reason: reason, Message: message, Cause: cause},
	}
}
