package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// maxPhotoBytes caps an owner photo download (Bot API serves up to 20MB).
	maxPhotoBytes int64 = 20 * 1024 * 1024

	// downloadMaxRetries is the number of GetFile attempts; Telegram
	// occasionally 404s a file right after upload.
	downloadMaxRetries = 3
)

// handlePhoto downloads the largest size of an owner photo and runs it
// through the vision reply path, caption as the prompt.
func (b *Bot) handlePhoto(ctx context.Context, msg *telego.Message) {
	b.sendTyping(ctx)

	// Sizes come smallest first; take the highest resolution.
	photo := msg.Photo[len(msg.Photo)-1]
	data, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		slog.Error("photo download failed", "file_id", photo.FileID, "error", err)
		b.send(ctx, "Не удалось скачать фото: "+err.Error())
		return
	}

	n, err := b.convo.ReplyPhoto(ctx, msg.Caption, data)
	if err != nil {
		slog.Error("vision reply failed", "error", err)
		b.send(ctx, "Не удалось проанализировать изображение: "+err.Error())
		return
	}
	b.notify(ctx, *n)
}

// downloadFile fetches one file through the Bot API file endpoint.
func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = b.api.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			slog.Debug("retrying get file", "file_id", fileID, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get file info after %d attempts: %w", downloadMaxRetries, err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxPhotoBytes {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxPhotoBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.token, file.FilePath)
	resp, err := http.Get(downloadURL)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	if int64(len(data)) > maxPhotoBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxPhotoBytes)
	}
	return data, nil
}
