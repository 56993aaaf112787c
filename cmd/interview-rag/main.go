package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/interview-rag/internal/app/cli"
	"github.com/jinford/interview-rag/internal/core/search"
)

// envFlag は全コマンド共通の環境変数ファイル指定フラグ
func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "owner",
		Usage:    "ドキュメント所有者（UUID）",
		Required: true,
	}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "ドキュメントID（UUID）",
		Required: true,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "interview-rag",
		Usage: "履歴書などのドキュメントに基づいて本人として質問に答える RAG システム",
		Commands: []*cli.Command{
			{
				Name:  "db",
				Usage: "データベース管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "migrate",
						Usage:  "pgvector 拡張とテーブルを作成",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.DBMigrateAction,
					},
				},
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "ファイルをアップロードして取り込みを開始",
						ArgsUsage: "[file]",
						Flags: []cli.Flag{
							envFlag(),
							ownerFlag(),
							&cli.StringFlag{
								Name:  "file",
								Usage: "アップロードするファイル（PDF / TXT / DOC / DOCX）",
							},
							&cli.StringFlag{
								Name:  "title",
								Usage: "タイトル（省略時はファイル名）",
							},
						},
						Action: appcli.DocumentAddAction,
					},
					{
						Name:   "show",
						Usage:  "ドキュメント詳細を表示",
						Flags:  []cli.Flag{envFlag(), idFlag()},
						Action: appcli.DocumentShowAction,
					},
					{
						Name:   "list",
						Usage:  "所有者のドキュメント一覧を表示",
						Flags:  []cli.Flag{envFlag(), ownerFlag()},
						Action: appcli.DocumentListAction,
					},
					{
						Name:  "chunks",
						Usage: "ドキュメントのチャンクを表示",
						Flags: []cli.Flag{
							envFlag(),
							idFlag(),
							&cli.BoolFlag{
								Name:  "full",
								Usage: "チャンク本文を省略せずに表示",
							},
						},
						Action: appcli.DocumentChunksAction,
					},
					{
						Name:   "reprocess",
						Usage:  "未完了のドキュメントの取り込みを再投入",
						Flags:  []cli.Flag{envFlag(), idFlag()},
						Action: appcli.DocumentReprocessAction,
					},
					{
						Name:   "delete",
						Usage:  "ドキュメントとチャンクを削除",
						Flags:  []cli.Flag{envFlag(), idFlag()},
						Action: appcli.DocumentDeleteAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "ジョブワーカー",
				Commands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "取り込み・Embedding ジョブを処理する",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.WorkerStartAction,
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "ジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "ジョブ一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "status",
								Usage: "状態で絞り込み（queued / running / done / dead）",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数",
								Value: 50,
							},
						},
						Action: appcli.JobsListAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "ドキュメントに基づいて本人として質問に回答",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					ownerFlag(),
					&cli.StringFlag{
						Name:  "persona",
						Usage: "回答者の名前",
					},
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "参照したチャンクを表示",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:      "search",
				Usage:     "質問に近いチャンクを検索",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					envFlag(),
					ownerFlag(),
					&cli.IntFlag{
						Name:  "k",
						Usage: "取得件数",
						Value: search.DefaultK,
					},
				},
				Action: appcli.SearchAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
