// Package discord implements the optional secondary upstream listener
// over the Discord gateway. Snowflake ids are normalized to int64 so
// downstream code treats both transports the same way.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

// Config wires the Discord listener account.
type Config struct {
	Token   string
	Account string
}

// Listener receives messages for a single Discord bot account.
type Listener struct {
	session *discordgo.Session
	account string

	botUserID string // populated on start
}

// New creates a listener from config.
func New(cfg Config) (*Listener, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Listener{session: session, account: cfg.Account}, nil
}

// Start opens the gateway connection and blocks until the context is
// cancelled. Gateway reconnects are handled by the session itself.
func (l *Listener) Start(ctx context.Context, handler bus.EventHandler) error {
	slog.Info("starting discord listener", "account", l.account)

	remove := l.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		ev, ok := normalize(m, l.account, l.botUserID)
		if !ok {
			return
		}
		handler(ctx, ev)
	})
	defer remove()

	if err := l.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := l.session.User("@me")
	if err != nil {
		l.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	l.botUserID = user.ID

	slog.Info("discord listener connected", "account", l.account, "username", user.Username)

	<-ctx.Done()
	return l.session.Close()
}

// ChatTitle resolves a channel id to its name. DM channels have no name,
// so the recipient's username is used instead.
func (l *Listener) ChatTitle(_ context.Context, chatID int64) (string, error) {
	ch, err := l.session.Channel(strconv.FormatInt(chatID, 10))
	if err != nil {
		return "", fmt.Errorf("get channel %d: %w", chatID, err)
	}
	if ch.Name != "" {
		return ch.Name, nil
	}
	if len(ch.Recipients) > 0 {
		return ch.Recipients[0].Username, nil
	}
	return "", nil
}

// Close shuts the gateway connection down.
func (l *Listener) Close() error {
	return l.session.Close()
}

// normalize converts a Discord message into a bus event. Messages from
// the listener itself, unparseable snowflakes and empty system messages
// are reported as not ok.
func normalize(m *discordgo.MessageCreate, account, botUserID string) (bus.Event, bool) {
	if m.Author == nil || (botUserID != "" && m.Author.ID == botUserID) {
		return bus.Event{}, false
	}

	chatID := parseSnowflake(m.ChannelID)
	msgID := parseSnowflake(m.ID)
	senderID := parseSnowflake(m.Author.ID)
	if chatID == 0 || msgID == 0 || senderID == 0 {
		return bus.Event{}, false
	}

	kind := bus.ChatGroup
	if m.GuildID == "" {
		kind = bus.ChatPrivate
	}

	if m.Content == "" && len(m.Attachments) == 0 {
		return bus.Event{}, false
	}

	return bus.Event{
		MsgID:    msgID,
		ChatID:   chatID,
		ChatKind: kind,
		Sender: bus.Sender{
			ID:    senderID,
			Name:  displayName(m),
			IsBot: m.Author.Bot,
		},
		Text:      m.Content,
		Media:     mediaKindOf(m.Attachments),
		Timestamp: m.Timestamp,
		Account:   account,
	}, true
}

// displayName prefers server nickname, then global display name, then
// username.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func mediaKindOf(attachments []*discordgo.MessageAttachment) bus.MediaKind {
	if len(attachments) == 0 {
		return bus.MediaNone
	}
	ct := attachments[0].ContentType
	switch {
	case strings.HasPrefix(ct, "image/"):
		return bus.MediaPhoto
	case strings.HasPrefix(ct, "video/"):
		return bus.MediaVideo
	case strings.HasPrefix(ct, "audio/"):
		return bus.MediaAudio
	default:
		return bus.MediaDocument
	}
}

func parseSnowflake(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
