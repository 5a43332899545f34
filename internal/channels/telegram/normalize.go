package telegram

import (
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

// normalize converts a Telegram message into a bus event. Service
// messages (member joined, title changed, pinned) are reported as not ok.
func normalize(msg *telego.Message, account string) (bus.Event, bool) {
	if isServiceMessage(msg) {
		return bus.Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	return bus.Event{
		MsgID:         int64(msg.MessageID),
		ChatID:        msg.Chat.ID,
		ChatKind:      chatKindOf(msg.Chat.Type),
		ChatTitle:     chatTitle(&msg.Chat),
		Sender:        senderOf(msg),
		Text:          text,
		Media:         mediaKindOf(msg),
		ForwardedFrom: forwardKindOf(msg),
		Timestamp:     time.Unix(int64(msg.Date), 0),
		Account:       account,
	}, true
}

func chatKindOf(chatType string) bus.ChatKind {
	switch chatType {
	case "private":
		return bus.ChatPrivate
	case "channel":
		return bus.ChatChannel
	default: // group, supergroup
		return bus.ChatGroup
	}
}

// chatTitle returns the chat title for groups and channels and the peer
// name for private chats.
func chatTitle(chat *telego.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
}

// senderOf identifies the message author. Channel posts and anonymous
// group admins arrive with a chat sender instead of a user.
func senderOf(msg *telego.Message) bus.Sender {
	if msg.SenderChat != nil {
		return bus.Sender{
			ID:        msg.SenderChat.ID,
			Name:      msg.SenderChat.Title,
			IsChannel: msg.SenderChat.Type == "channel",
		}
	}
	if msg.From == nil {
		return bus.Sender{}
	}
	return bus.Sender{
		ID:    msg.From.ID,
		Name:  userName(msg.From),
		IsBot: msg.From.IsBot,
	}
}

func userName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// mediaKindOf maps message attachments to a media kind. Animations also
// carry a document pointer, so they are checked first.
func mediaKindOf(msg *telego.Message) bus.MediaKind {
	switch {
	case len(msg.Photo) > 0:
		return bus.MediaPhoto
	case msg.Voice != nil:
		return bus.MediaVoice
	case msg.VideoNote != nil:
		return bus.MediaVideoNote
	case msg.Video != nil:
		return bus.MediaVideo
	case msg.Animation != nil:
		return bus.MediaAnimation
	case msg.Document != nil:
		return bus.MediaDocument
	case msg.Audio != nil:
		return bus.MediaAudio
	case msg.Sticker != nil:
		return bus.MediaSticker
	default:
		return bus.MediaNone
	}
}

func forwardKindOf(msg *telego.Message) bus.ChatKind {
	switch msg.ForwardOrigin.(type) {
	case nil:
		return ""
	case *telego.MessageOriginChannel, telego.MessageOriginChannel:
		return bus.ChatChannel
	case *telego.MessageOriginChat, telego.MessageOriginChat:
		return bus.ChatGroup
	default: // user or hidden user
		return bus.ChatPrivate
	}
}

// isServiceMessage returns true for system messages (member added or
// removed, title changed, pinned) that carry no user content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}
