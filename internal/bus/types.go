// Package bus defines the message types exchanged between components:
// upstream chat events flowing in, owner notifications flowing out, and
// the typed callback intents carried by inline buttons.
package bus

import (
	"context"
	"time"
)

// ChatKind classifies the chat an event came from.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
	ChatChannel ChatKind = "channel"
)

// MediaKind names the media attached to a message. Empty means text-only.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVoice     MediaKind = "voice"
	MediaVideo     MediaKind = "video"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
	MediaAudio     MediaKind = "audio"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
)

// Sender identifies the author of an upstream event.
type Sender struct {
	ID        int64
	Name      string
	IsBot     bool
	IsChannel bool
}

// Event is one upstream chat message as delivered by a listener adapter.
type Event struct {
	MsgID     int64
	ChatID    int64
	ChatKind  ChatKind
	ChatTitle string
	Sender    Sender
	Text      string
	Media     MediaKind
	// ForwardedFrom is the kind of the origin chat when the message is a
	// forward, empty otherwise.
	ForwardedFrom ChatKind
	Timestamp     time.Time
	Account       string
}

// EventHandler consumes upstream events. Implementations must not block
// the listener for long; heavy work is dispatched asynchronously.
type EventHandler func(ctx context.Context, ev Event)

// Button is one inline keyboard button: a label plus a typed intent.
type Button struct {
	Label  string
	Intent Intent
}

// Notification is an owner-facing message published by any component.
// The bot adapter renders the keyboard and routes presses back as intents.
type Notification struct {
	Text     string
	Keyboard [][]Button
	// Plain disables the HTML parse attempt for texts that are not valid HTML.
	Plain bool
}

// Notifier is the single sink through which all components reach the owner.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
