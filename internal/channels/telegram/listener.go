// Package telegram implements the upstream listener over the Telegram
// Bot API using long polling. One Listener wraps one bot account; it
// normalizes incoming messages into bus events and knows nothing about
// persistence or classification.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

// Config wires one listener account.
type Config struct {
	Token   string
	Account string // label stamped on every event, e.g. "work"
	Proxy   string // optional outbound proxy URL
}

// Listener receives messages for a single Telegram bot account.
type Listener struct {
	bot     *telego.Bot
	account string

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// New creates a listener from config. The bot token is validated on the
// first API call, not here.
func New(cfg Config) (*Listener, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Listener{bot: bot, account: cfg.Account}, nil
}

// Start begins long polling and blocks until the context is cancelled or
// the update stream dies. A dead stream returns an error so the caller
// can reconnect with backoff.
func (l *Listener) Start(ctx context.Context, handler bus.EventHandler) error {
	slog.Info("starting telegram listener", "account", l.account)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.stop = cancel
	l.done = done
	l.mu.Unlock()
	defer close(done)
	defer cancel()

	updates, err := l.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram listener connected", "account", l.account, "username", l.bot.Username())

	for {
		select {
		case <-pollCtx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if pollCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("telegram updates stream closed")
			}
			if update.Message == nil {
				continue
			}
			ev, ok := normalize(update.Message, l.account)
			if !ok {
				continue
			}
			handler(pollCtx, ev)
		}
	}
}

// ChatTitle resolves a chat id to its current title.
func (l *Listener) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	chat, err := l.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return "", fmt.Errorf("get chat %d: %w", chatID, err)
	}
	if chat.Title != "" {
		return chat.Title, nil
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName), nil
}

// Close cancels polling and waits for the update loop to exit so that
// Telegram releases the getUpdates lock before a new instance starts.
func (l *Listener) Close() error {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling did not exit within timeout", "account", l.account)
		}
	}
	return nil
}
