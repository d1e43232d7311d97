package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dbkeeper/internal/config"
	"github.com/semmidev/dbkeeper/internal/domain"
)

// Bot API upload limit for documents.
const telegramMaxFileSize = 50 * 1024 * 1024

// TelegramStorage posts artifacts (or a summary of them) to one chat. It is
// also the failure Notifier when enabled.
type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	if !t.attach(info.Size()) {
		return t.Notify(ctx, backupSummary(remoteName, info.Size(), info.ModTime()))
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("📦 %s (%s)", remoteName, humanize.IBytes(uint64(info.Size())))
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send artifact to telegram: %w", err)
	}
	return nil
}

// attach reports whether an artifact of size bytes goes out as a document.
func (t *TelegramStorage) attach(size int64) bool {
	return t.sendFile && !t.notifyOnly && size <= telegramMaxFileSize
}

// backupSummary prefers the timestamp embedded in the artifact name over the
// file's modification time.
func backupSummary(name string, size int64, modTime time.Time) string {
	at := modTime
	if ts, ok := domain.ParseArtifactTime(name); ok {
		at = ts
	}
	return fmt.Sprintf("✅ Backup created\n\n📁 %s\n📊 %s\n🕐 %s",
		name, humanize.IBytes(uint64(size)), at.Format("2006-01-02 15:04:05"))
}

// A chat has no listable history, so retention skips this target.
func (t *TelegramStorage) List(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

func (t *TelegramStorage) Delete(ctx context.Context, remoteName string) error {
	return nil
}

func (t *TelegramStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	return []string{}, nil
}

func (t *TelegramStorage) Notify(ctx context.Context, message string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
