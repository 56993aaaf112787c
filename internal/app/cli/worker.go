package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/interview-rag/internal/platform/queue"
)

// WorkerStartAction はジョブワーカーを起動するコマンドのアクション
// SIGINT / SIGTERM でキャンセルされるまで実行を続ける
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.RequireLLM(); err != nil {
		return fmt.Errorf("ワーカーには OpenAI API キーが必要です: %w", err)
	}

	cfg := appCtx.Container.Config.Queue
	slog.Info("ワーカーを起動します",
		"workers", cfg.Workers,
		"pollInterval", cfg.PollInterval,
	)

	if err := appCtx.Container.Queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ワーカーが異常終了しました", "error", err)
		return err
	}

	slog.Info("ワーカーを停止しました")
	return nil
}

// JobsListAction はジョブ一覧を表示するコマンドのアクション
func JobsListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	limit := cmd.Int("limit")

	status := mo.None[queue.Status]()
	if raw := cmd.String("status"); raw != "" {
		st, err := queue.ParseStatus(raw)
		if err != nil {
			return err
		}
		status = mo.Some(st)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	jobs, err := appCtx.Container.Jobs.List(ctx, status, limit)
	if err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Println("ジョブがありません")
		return nil
	}
	for _, j := range jobs {
		fmt.Printf("%s  %-15s  %-7s  attempt=%d  run_at=%s  %s\n",
			j.ID,
			j.Kind,
			j.Status,
			j.Attempt,
			j.RunAt.Format(time.DateTime),
			string(j.Args),
		)
		if j.LastError != "" {
			fmt.Printf("    last_error: %s\n", j.LastError)
		}
	}
	return nil
}
