package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status はジョブの状態を表す
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusDead    Status = "dead" // リトライ上限到達またはリトライ不可の失敗
)

// IsValid は既知のステータスかどうかを返す
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusDone, StatusDead:
		return true
	default:
		return false
	}
}

// ParseStatus は文字列からステータスを解釈する
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown job status: %q", s)
	}
	return st, nil
}

// Job はキューに積まれた1件の処理単位
type Job struct {
	ID        uuid.UUID
	Kind      string
	Args      json.RawMessage
	Attempt   int // 実行回数（claim 時に加算される）
	Status    Status
	LastError string
	RunAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handle は Enqueue の戻り値
type Handle struct {
	ID   uuid.UUID
	Kind string
}

// DecodeArgs はジョブ引数を v にデコードする
func (j *Job) DecodeArgs(v any) error {
	if err := json.Unmarshal(j.Args, v); err != nil {
		return fmt.Errorf("failed to decode %s job args: %w", j.Kind, err)
	}
	return nil
}

// Outcome はハンドラの結果種別
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result はハンドラが返すタグ付きの結果
// リトライするかどうかはランタイムがタグで判断する
type Result struct {
	Outcome Outcome
	Err     error
}

// Ok は成功を表す
func Ok() Result {
	return Result{Outcome: OutcomeOK}
}

// Retryable は再試行すべき失敗を表す
func Retryable(err error) Result {
	if err == nil {
		err = errors.New("retryable failure")
	}
	return Result{Outcome: OutcomeRetryable, Err: err}
}

// Fatal は再試行しても解決しない失敗を表す
func Fatal(err error) Result {
	if err == nil {
		err = errors.New("fatal failure")
	}
	return Result{Outcome: OutcomeFatal, Err: err}
}

// Handler はジョブを処理する関数
type Handler func(ctx context.Context, job *Job) Result

// Policy はジョブ種別ごとのリトライ方針
type Policy struct {
	MaxRetries int           // 初回実行を除いた再試行回数
	Backoff    time.Duration // 再試行までの固定待機時間
}
