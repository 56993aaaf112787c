package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionProvider はコールバック内でだけトランザクションを見せる
// コミット・ロールバックは Transact が行い、呼び出し側は Adapter を通して操作する
type TransactionProvider struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// TxOption は TransactionProvider のオプション
type TxOption func(*TransactionProvider)

// WithIsolation は分離レベルを指定する（既定は ReadCommitted）
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(p *TransactionProvider) {
		p.opts.IsoLevel = level
	}
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool, opts ...TxOption) *TransactionProvider {
	p := &TransactionProvider{
		pool: pool,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Adapter はトランザクション内で使うハンドルをまとめる
type Adapter struct {
	Tx    pgx.Tx
	Locks *Manager // pg_advisory_xact_lock はコミット・ロールバックで解放される
}

// Transact はトランザクションを開始して fn を実行する
// fn がエラーを返すか panic した場合はロールバックする
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (result T, err error) {
	var zero T

	tx, err := p.pool.BeginTx(ctx, p.opts)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// 呼び出し元がキャンセル済みでもロールバックは送る
		rbErr := tx.Rollback(context.WithoutCancel(ctx))
		if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) && err != nil {
			err = fmt.Errorf("tx rollback failed: %v (cause: %w)", rbErr, err)
		}
	}()

	result, err = fn(&Adapter{Tx: tx, Locks: NewManager(tx)})
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return result, nil
}
