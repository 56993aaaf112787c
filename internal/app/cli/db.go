package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"
)

// DBMigrateAction はスキーマを適用するコマンドのアクション
func DBMigrateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dimension := appCtx.Container.Config.OpenAI.EmbeddingDimension
	slog.Info("スキーマを適用します", "dimension", dimension)

	if err := appCtx.Container.Migrate(ctx); err != nil {
		slog.Error("スキーマの適用に失敗しました", "error", err)
		return err
	}

	fmt.Println("migrated")
	return nil
}
