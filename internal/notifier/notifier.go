package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Sender is the part of the Telegram client used to deliver messages.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Limiter spaces out outbound messages.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
}

// Notifier posts batch reports to one Telegram chat.
type Notifier struct {
	sender  Sender
	chatID  int64
	limiter Limiter
	log     *slog.Logger
}

// NewTelegram creates a Telegram client for token without calling getMe.
func NewTelegram(token string) (*bot.Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token is empty")
	}

	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	return b, nil
}

func New(sender Sender, chatID int64, limiter Limiter, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		sender:  sender,
		chatID:  chatID,
		limiter: limiter,
		log:     log,
	}
}

// NotifyBatch sends the report, split into messages that fit Telegram's
// length limit.
func (n *Notifier) NotifyBatch(ctx context.Context, batch Batch) error {
	messages := formatBatchMessages(batch)

	var errs []error
	for _, message := range messages {
		if err := n.send(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("send message: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "Batch report is sent",
		"chatID", n.chatID,
		"messages", len(messages))

	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.limiter != nil {
		release, err := n.limiter.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire slot: %w", err)
		}
		defer release()
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: bot.True(),
		},
	})

	return err
}
