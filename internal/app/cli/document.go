package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/interview-rag/internal/core/document"
	"github.com/jinford/interview-rag/internal/core/ingestion"
)

// DocumentAddAction はファイルをアップロードして取り込みジョブを登録するコマンドのアクション
func DocumentAddAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	title := cmd.String("title")

	ownerID, err := uuidFlag(cmd, "owner")
	if err != nil {
		return err
	}

	path := cmd.String("file")
	if path == "" {
		path = cmd.Args().First()
	}
	if path == "" {
		return fmt.Errorf("アップロードするファイルを指定してください")
	}

	// 巨大なファイルを読み込む前にサイズだけ検証する
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ファイルを開けません: %w", err)
	}
	if info.Size() > ingestion.MaxUploadSize {
		return ingestion.ErrFileTooLarge
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	doc, handle, err := appCtx.Container.Uploader.Upload(ctx, ingestion.UploadParams{
		OwnerID:  ownerID,
		Title:    title,
		Filename: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		slog.Error("アップロードに失敗しました", "error", err)
		return err
	}

	fmt.Printf("document: %s\n", doc.ID)
	fmt.Printf("job:      %s\n", handle.ID)
	return nil
}

// DocumentShowAction はドキュメント詳細を表示するコマンドのアクション
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	id, err := uuidFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	found, err := appCtx.Container.Documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc, ok := found.Get()
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}

	chunks, err := appCtx.Container.Documents.ListChunksByDocument(ctx, id)
	if err != nil {
		return err
	}
	embedded := 0
	for _, c := range chunks {
		if c.HasEmbedding() {
			embedded++
		}
	}

	fmt.Printf("ID:         %s\n", doc.ID)
	fmt.Printf("Owner:      %s\n", doc.OwnerID)
	fmt.Printf("Title:      %s\n", doc.Title)
	fmt.Printf("File:       %s (%s, %d bytes)\n", doc.FilePath, doc.MimeType, doc.FileSize)
	fmt.Printf("Status:     %s\n", doc.Status)
	if doc.ProcessingError != nil {
		fmt.Printf("Error:      %s\n", *doc.ProcessingError)
	}
	fmt.Printf("Uploaded:   %s\n", doc.UploadedAt.Format(time.RFC3339))
	if doc.ProcessedAt != nil {
		fmt.Printf("Processed:  %s\n", doc.ProcessedAt.Format(time.RFC3339))
	}
	fmt.Printf("Chunks:     %d (embedded %d)\n", len(chunks), embedded)
	return nil
}

// DocumentListAction はオーナーのドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	ownerID, err := uuidFlag(cmd, "owner")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.Documents.ListDocumentsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントがありません")
		return nil
	}
	for _, d := range docs {
		fmt.Printf("%s  %-10s  %s  %s\n", d.ID, d.Status, d.UploadedAt.Format(time.DateTime), d.Title)
	}
	return nil
}

// DocumentChunksAction はドキュメントのチャンクを表示するコマンドのアクション
func DocumentChunksAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	full := cmd.Bool("full")

	id, err := uuidFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	chunks, err := appCtx.Container.Documents.ListChunksByDocument(ctx, id)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		content := c.Content
		if !full {
			content = preview(content, 80)
		}
		fmt.Printf("[%d] embedded=%t %s\n", c.ChunkIndex, c.HasEmbedding(), content)
	}
	return nil
}

// DocumentReprocessAction は失敗したドキュメントの取り込みを再投入するコマンドのアクション
func DocumentReprocessAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	id, err := uuidFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handle, err := appCtx.Container.Pipeline.Submit(ctx, id)
	if err != nil {
		if errors.Is(err, document.ErrAlreadyProcessed) {
			return fmt.Errorf("処理済みのドキュメントは再投入できません: %w", err)
		}
		return err
	}

	fmt.Printf("job: %s\n", handle.ID)
	return nil
}

// DocumentDeleteAction はドキュメントとチャンク、保存ファイルを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	id, err := uuidFlag(cmd, "id")
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	found, err := appCtx.Container.Documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc, ok := found.Get()
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrDocumentNotFound, id)
	}

	if err := appCtx.Container.Documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	// ファイル削除の失敗はレコード削除を取り消さない
	if err := appCtx.Container.Storage.Delete(ctx, doc.FilePath); err != nil {
		slog.Warn("保存ファイルの削除に失敗しました", "path", doc.FilePath, "error", err)
	}

	fmt.Printf("deleted: %s\n", id)
	return nil
}

// preview は先頭 n 文字に切り詰めた文字列を返す
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
