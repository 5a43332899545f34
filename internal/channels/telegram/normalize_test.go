package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

func TestNormalizeText(t *testing.T) {
	msg := &telego.Message{
		MessageID: 42,
		Date:      1700000000,
		Chat:      telego.Chat{ID: 555, Type: "private", FirstName: "Анна", LastName: "Петрова"},
		From:      &telego.User{ID: 555, FirstName: "Анна", LastName: "Петрова"},
		Text:      "привет, посмотри договор",
	}

	ev, ok := normalize(msg, "work")
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if ev.MsgID != 42 || ev.ChatID != 555 {
		t.Errorf("ids = %d/%d", ev.MsgID, ev.ChatID)
	}
	if ev.ChatKind != bus.ChatPrivate {
		t.Errorf("chat kind = %q", ev.ChatKind)
	}
	if ev.ChatTitle != "Анна Петрова" {
		t.Errorf("chat title = %q", ev.ChatTitle)
	}
	if ev.Sender.Name != "Анна Петрова" || ev.Sender.ID != 555 {
		t.Errorf("sender = %+v", ev.Sender)
	}
	if ev.Text != "привет, посмотри договор" {
		t.Errorf("text = %q", ev.Text)
	}
	if ev.Media != bus.MediaNone {
		t.Errorf("media = %q", ev.Media)
	}
	if ev.Account != "work" {
		t.Errorf("account = %q", ev.Account)
	}
	if ev.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestNormalizeMediaKinds(t *testing.T) {
	tests := []struct {
		name string
		msg  *telego.Message
		want bus.MediaKind
	}{
		{
			name: "photo with caption",
			msg: &telego.Message{
				Chat:    telego.Chat{ID: 1, Type: "private"},
				From:    &telego.User{ID: 2, FirstName: "A"},
				Caption: "чек во вложении",
				Photo:   []telego.PhotoSize{{FileID: "f1"}},
			},
			want: bus.MediaPhoto,
		},
		{
			name: "voice",
			msg: &telego.Message{
				Chat:  telego.Chat{ID: 1, Type: "private"},
				From:  &telego.User{ID: 2, FirstName: "A"},
				Voice: &telego.Voice{FileID: "v1"},
			},
			want: bus.MediaVoice,
		},
		{
			name: "animation wins over document",
			msg: &telego.Message{
				Chat:      telego.Chat{ID: 1, Type: "private"},
				From:      &telego.User{ID: 2, FirstName: "A"},
				Animation: &telego.Animation{FileID: "a1"},
				Document:  &telego.Document{FileID: "d1"},
			},
			want: bus.MediaAnimation,
		},
		{
			name: "document",
			msg: &telego.Message{
				Chat:     telego.Chat{ID: 1, Type: "private"},
				From:     &telego.User{ID: 2, FirstName: "A"},
				Document: &telego.Document{FileID: "d1"},
			},
			want: bus.MediaDocument,
		},
		{
			name: "sticker",
			msg: &telego.Message{
				Chat:    telego.Chat{ID: 1, Type: "private"},
				From:    &telego.User{ID: 2, FirstName: "A"},
				Sticker: &telego.Sticker{FileID: "s1"},
			},
			want: bus.MediaSticker,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := normalize(tt.msg, "test")
			if !ok {
				t.Fatal("expected message to normalize")
			}
			if ev.Media != tt.want {
				t.Errorf("media = %q, want %q", ev.Media, tt.want)
			}
		})
	}
}

func TestNormalizeCaptionAsText(t *testing.T) {
	msg := &telego.Message{
		Chat:    telego.Chat{ID: 1, Type: "private"},
		From:    &telego.User{ID: 2, FirstName: "A"},
		Caption: "подпись",
		Photo:   []telego.PhotoSize{{FileID: "f1"}},
	}
	ev, _ := normalize(msg, "test")
	if ev.Text != "подпись" {
		t.Errorf("text = %q, want caption", ev.Text)
	}
}

func TestNormalizeSkipsServiceMessages(t *testing.T) {
	msg := &telego.Message{
		Chat: telego.Chat{ID: 1, Type: "group", Title: "Команда"},
		From: &telego.User{ID: 2, FirstName: "A"},
		// No text, caption or media: member-joined style service update.
	}
	if _, ok := normalize(msg, "test"); ok {
		t.Error("service message should be skipped")
	}
}

func TestNormalizeGroupAndChannel(t *testing.T) {
	group := &telego.Message{
		Chat: telego.Chat{ID: -100, Type: "supergroup", Title: "Проект X"},
		From: &telego.User{ID: 2, FirstName: "A"},
		Text: "обсудим завтра",
	}
	ev, _ := normalize(group, "test")
	if ev.ChatKind != bus.ChatGroup {
		t.Errorf("supergroup kind = %q, want group", ev.ChatKind)
	}
	if ev.ChatTitle != "Проект X" {
		t.Errorf("title = %q", ev.ChatTitle)
	}

	channelPost := &telego.Message{
		Chat:       telego.Chat{ID: -200, Type: "channel", Title: "Новости"},
		SenderChat: &telego.Chat{ID: -200, Type: "channel", Title: "Новости"},
		Text:       "анонс",
	}
	ev, _ = normalize(channelPost, "test")
	if ev.ChatKind != bus.ChatChannel {
		t.Errorf("channel kind = %q", ev.ChatKind)
	}
	if !ev.Sender.IsChannel {
		t.Error("sender should be marked as channel")
	}
	if ev.Sender.ID != -200 || ev.Sender.Name != "Новости" {
		t.Errorf("sender = %+v", ev.Sender)
	}
}

func TestNormalizeBotSender(t *testing.T) {
	msg := &telego.Message{
		Chat: telego.Chat{ID: 1, Type: "private", FirstName: "Bot"},
		From: &telego.User{ID: 9, FirstName: "Notify", IsBot: true},
		Text: "automated alert",
	}
	ev, _ := normalize(msg, "test")
	if !ev.Sender.IsBot {
		t.Error("sender should be marked as bot")
	}
}

func TestNormalizeForwardOrigin(t *testing.T) {
	msg := &telego.Message{
		Chat:          telego.Chat{ID: 1, Type: "private"},
		From:          &telego.User{ID: 2, FirstName: "A"},
		Text:          "переслано",
		ForwardOrigin: &telego.MessageOriginChannel{Chat: telego.Chat{ID: -300, Type: "channel"}},
	}
	ev, _ := normalize(msg, "test")
	if ev.ForwardedFrom != bus.ChatChannel {
		t.Errorf("forwarded from = %q, want channel", ev.ForwardedFrom)
	}

	plain := &telego.Message{
		Chat: telego.Chat{ID: 1, Type: "private"},
		From: &telego.User{ID: 2, FirstName: "A"},
		Text: "обычное",
	}
	ev, _ = normalize(plain, "test")
	if ev.ForwardedFrom != "" {
		t.Errorf("forwarded from = %q, want empty", ev.ForwardedFrom)
	}
}

func TestUserNameFallsBackToUsername(t *testing.T) {
	if got := userName(&telego.User{Username: "ghost"}); got != "ghost" {
		t.Errorf("userName = %q", got)
	}
	if got := userName(&telego.User{FirstName: "Анна"}); got != "Анна" {
		t.Errorf("userName = %q", got)
	}
}
