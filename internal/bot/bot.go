package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"personal-assistant/internal/service"
)

const voiceDownloadTimeout = 30 * time.Second

// Handler receives every update the bot accepts.
type Handler interface {
	HandleText(ctx context.Context, userID, text string) error
	HandleCommand(ctx context.Context, userID, command, args string) error
	HandleCallback(ctx context.Context, userID, data string) error
	HandleVoice(ctx context.Context, userID string, fetch service.AudioSource) error
}

// Bot is the Telegram conversation channel.
type Bot struct {
	api     *tgbotapi.BotAPI
	files   *fasthttp.Client
	logger  *zap.Logger
	running atomic.Bool
}

func New(token string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger = logger.Named("bot")
	logger.Info("bot authorized", zap.String("account", api.Self.UserName))

	return &Bot{
		api:    api,
		files:  &fasthttp.Client{Name: "personal-assistant"},
		logger: logger,
	}, nil
}

// Running reports whether the polling loop is active.
func (b *Bot) Running() bool { return b.running.Load() }

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context, h Handler) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.running.Store(true)
	defer b.running.Store(false)
	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(ctx, h, update.CallbackQuery)
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, h, update.Message); err != nil {
				b.logger.Error("handle message", zap.Error(err))
			}
		}
	}

	b.logger.Info("polling stopped")
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, h Handler, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	userID := strconv.FormatInt(msg.From.ID, 10)

	switch {
	case msg.IsCommand():
		b.logger.Info("command", zap.String("user_id", userID), zap.String("command", msg.Command()))
		return h.HandleCommand(ctx, userID, msg.Command(), msg.CommandArguments())
	case msg.Voice != nil:
		b.logger.Info("voice message", zap.String("user_id", userID), zap.Int("seconds", msg.Voice.Duration))
		return h.HandleVoice(ctx, userID, b.voiceSource(msg.Voice.FileID))
	case msg.Text != "":
		return h.HandleText(ctx, userID, msg.Text)
	default:
		return nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, h Handler, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	userID := strconv.FormatInt(cb.From.ID, 10)
	b.logger.Info("callback", zap.String("user_id", userID), zap.String("data", cb.Data))

	ack := ""
	if err := h.HandleCallback(ctx, userID, cb.Data); err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			ack = "Not authorized"
		} else {
			b.logger.Error("handle callback", zap.String("data", cb.Data), zap.Error(err))
		}
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		b.logger.Warn("callback ack", zap.Error(err))
	}
}

// Send delivers an HTML message with optional inline buttons.
func (b *Bot) Send(_ context.Context, userID, text string, buttons [][]service.Button) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("chat id %q: %w", userID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(buttons) > 0 {
		msg.ReplyMarkup = keyboard(buttons)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func keyboard(buttons [][]service.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, line := range buttons {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(line))
		for _, btn := range line {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) voiceSource(fileID string) service.AudioSource {
	return func(ctx context.Context) (string, func(), error) {
		link, err := b.api.GetFileDirectURL(fileID)
		if err != nil {
			return "", nil, fmt.Errorf("voice file url: %w", err)
		}
		return download(ctx, b.files, link)
	}
}

// download saves the file at link to a temporary .ogg file. cleanup removes it.
func download(ctx context.Context, client *fasthttp.Client, link string) (string, func(), error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(link)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline := time.Now().Add(voiceDownloadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return "", nil, fmt.Errorf("download voice: %w", err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return "", nil, fmt.Errorf("download voice: status %d", code)
	}

	f, err := os.CreateTemp("", "voice-*.ogg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(resp.Body()); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write voice: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close voice: %w", err)
	}
	return f.Name(), cleanup, nil
}
