package discord

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/attache/internal/bus"
)

func msgCreate(m discordgo.Message) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &m}
}

func TestNormalizeDirectMessage(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := msgCreate(discordgo.Message{
		ID:        "111222333",
		ChannelID: "444555666",
		Author:    &discordgo.User{ID: "777888999", Username: "anna", GlobalName: "Anna P"},
		Content:   "готов договор?",
		Timestamp: ts,
	})

	ev, ok := normalize(m, "discord", "botid")
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if ev.ChatKind != bus.ChatPrivate {
		t.Errorf("chat kind = %q, want private", ev.ChatKind)
	}
	if ev.MsgID != 111222333 || ev.ChatID != 444555666 || ev.Sender.ID != 777888999 {
		t.Errorf("ids = %d/%d/%d", ev.MsgID, ev.ChatID, ev.Sender.ID)
	}
	if ev.Sender.Name != "Anna P" {
		t.Errorf("sender name = %q, want global name", ev.Sender.Name)
	}
	if !ev.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
	if ev.Account != "discord" {
		t.Errorf("account = %q", ev.Account)
	}
}

func TestNormalizeGuildMessage(t *testing.T) {
	m := msgCreate(discordgo.Message{
		ID:        "1",
		ChannelID: "2",
		GuildID:   "3",
		Author:    &discordgo.User{ID: "4", Username: "bob"},
		Member:    &discordgo.Member{Nick: "Боб из отдела"},
		Content:   "созвон в пять",
	})

	ev, ok := normalize(m, "discord", "")
	if !ok {
		t.Fatal("expected message to normalize")
	}
	if ev.ChatKind != bus.ChatGroup {
		t.Errorf("chat kind = %q, want group", ev.ChatKind)
	}
	if ev.Sender.Name != "Боб из отдела" {
		t.Errorf("sender name = %q, want nickname", ev.Sender.Name)
	}
}

func TestNormalizeSkips(t *testing.T) {
	tests := []struct {
		name string
		m    *discordgo.MessageCreate
	}{
		{
			name: "own message",
			m: msgCreate(discordgo.Message{
				ID: "1", ChannelID: "2",
				Author:  &discordgo.User{ID: "bot1"},
				Content: "echo",
			}),
		},
		{
			name: "no author",
			m:    msgCreate(discordgo.Message{ID: "1", ChannelID: "2", Content: "x"}),
		},
		{
			name: "empty system message",
			m: msgCreate(discordgo.Message{
				ID: "1", ChannelID: "2",
				Author: &discordgo.User{ID: "4"},
			}),
		},
		{
			name: "unparseable snowflake",
			m: msgCreate(discordgo.Message{
				ID: "abc", ChannelID: "2",
				Author:  &discordgo.User{ID: "4"},
				Content: "x",
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := normalize(tt.m, "discord", "bot1"); ok {
				t.Error("expected message to be skipped")
			}
		})
	}
}

func TestNormalizeAttachmentKinds(t *testing.T) {
	tests := []struct {
		contentType string
		want        bus.MediaKind
	}{
		{"image/png", bus.MediaPhoto},
		{"video/mp4", bus.MediaVideo},
		{"audio/ogg", bus.MediaAudio},
		{"application/pdf", bus.MediaDocument},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			m := msgCreate(discordgo.Message{
				ID: "1", ChannelID: "2",
				Author:      &discordgo.User{ID: "4", Username: "bob"},
				Attachments: []*discordgo.MessageAttachment{{ContentType: tt.contentType}},
			})
			ev, ok := normalize(m, "discord", "")
			if !ok {
				t.Fatal("expected attachment message to normalize")
			}
			if ev.Media != tt.want {
				t.Errorf("media = %q, want %q", ev.Media, tt.want)
			}
		})
	}
}
