package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/interview-rag/internal/core/ask"
	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/search"
)

// AskAction は質問応答コマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	personaName := cmd.String("persona")
	showSources := cmd.Bool("show-sources")

	ownerID, err := uuidFlag(cmd, "owner")
	if err != nil {
		return err
	}

	// 質問文の取得
	question := strings.Join(cmd.Args().Slice(), " ")
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	slog.Info("質問応答を開始",
		"owner", ownerID,
		"persona", personaName,
		"showSources", showSources,
	)

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.Ask.Answer(ctx, question, document.Persona{
		OwnerID: ownerID,
		Name:    personaName,
	})
	if err != nil {
		slog.Error("質問応答に失敗しました", "error", err)
		return err
	}

	printAnswer(result, showSources)
	return nil
}

func printAnswer(result *ask.Result, showSources bool) {
	fmt.Println(result.Answer)

	if result.Failed() {
		slog.Warn("回答を生成できませんでした", "reason", result.Failure.Reason, "error", result.Failure.Cause)
		return
	}

	if showSources && len(result.Sources) > 0 {
		fmt.Println("\n--- 参照チャンク ---")
		for i, s := range result.Sources {
			fmt.Printf("[%d] document=%s chunk=%d 距離: %.4f\n",
				i+1,
				s.DocumentID,
				s.ChunkIndex,
				s.Distance,
			)
		}
	}
}

// SearchAction は質問に近いチャンクを表示するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	k := cmd.Int("k")

	ownerID, err := uuidFlag(cmd, "owner")
	if err != nil {
		return err
	}

	query := strings.Join(cmd.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("検索文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.RequireLLM(); err != nil {
		return fmt.Errorf("検索には OpenAI API キーが必要です: %w", err)
	}

	hits, err := appCtx.Container.Search.Search(ctx, search.SearchParams{
		OwnerID: ownerID,
		Query:   query,
		K:       k,
	})
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		fmt.Println("該当するチャンクがありません")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("[%d] %.4f document=%s chunk=%d\n    %s\n", i+1, h.Distance, h.DocumentID, h.ChunkIndex, preview(h.Content, 120))
	}
	return nil
}
