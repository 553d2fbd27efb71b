// Package telegram implements the bot.Transport interface over the
// Telegram Bot API using long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/curvelaunch/botworker/internal/bot"
)

const pollTimeoutSeconds = 30

// Transport is one bot's long-polling connection to Telegram.
type Transport struct {
	api     *tgbotapi.BotAPI
	handler bot.TextHandler

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New creates a transport for the given bot token. The constructor
// performs a getMe round trip, so an invalid or revoked token fails here
// rather than after the session is registered.
func New(token string) (bot.Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorize telegram bot: %w", err)
	}
	return &Transport{api: api}, nil
}

// OnText registers the inbound message handler.
func (t *Transport) OnText(handler bot.TextHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Start begins long polling for updates. Non-text updates are ignored.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}
	if t.handler == nil {
		return errors.New("telegram: no text handler registered")
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := t.api.GetUpdatesChan(cfg)

	go t.poll(pollCtx, updates)
	t.started = true

	slog.Info("Telegram transport started", "bot", t.api.Self.UserName)
	return nil
}

func (t *Transport) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			userID := strconv.FormatInt(update.Message.Chat.ID, 10)
			text := update.Message.Text

			// Handled off the poll loop so a slow generation for one
			// user does not stall the bot's other conversations.
			// WithoutCancel lets in-flight replies finish (or hit
			// their own timeout) when the transport stops.
			go t.handler(context.WithoutCancel(ctx), userID, text)
		}
	}
}

// Stop shuts down long polling. Safe on a transport that never started.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}
	t.started = false

	t.api.StopReceivingUpdates()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return nil
}

// Reply sends a text message to the given chat.
func (t *Transport) Reply(_ context.Context, userID, text string) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendTyping shows the "typing..." indicator in the given chat.
func (t *Transport) SendTyping(_ context.Context, userID string) error {
	chatID, err := parseChatID(userID)
	if err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

func parseChatID(userID string) (int64, error) {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chat id %q: %w", userID, err)
	}
	return chatID, nil
}
