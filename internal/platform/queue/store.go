package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ErrJobNotFound はジョブが存在しない場合のエラー
var ErrJobNotFound = errors.New("job not found")

// ClaimParams は Claim の条件
type ClaimParams struct {
	Kinds []string
	Now   time.Time
	// StaleBefore より前に更新された running ジョブはワーカー停止とみなして再取得する
	StaleBefore time.Time
}

// Store はジョブの永続化を担うインターフェース
type Store interface {
	// Insert はジョブを queued で登録する
	Insert(ctx context.Context, job *Job) error
	// Claim は実行可能なジョブを1件取得し running にする（Attempt を加算）
	Claim(ctx context.Context, params ClaimParams) (mo.Option[*Job], error)
	// Complete はジョブを done にする
	Complete(ctx context.Context, id uuid.UUID) error
	// Retry はジョブを queued に戻し runAt まで待機させる
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error
	// Bury はジョブを dead にする
	Bury(ctx context.Context, id uuid.UUID, lastErr string) error
	// Get はジョブを取得する
	Get(ctx context.Context, id uuid.UUID) (mo.Option[*Job], error)
	// List はジョブ一覧を新しい順に返す（status 未指定なら全件）
	List(ctx context.Context, status mo.Option[Status], limit int) ([]*Job, error)
}
