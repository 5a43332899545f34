package bot

import (
	"context"
	"testing"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

type fakeStore struct {
	settings map[string]string
	idSets   map[string][]int64
	health   []store.HealthCheck
	stats    *store.Stats
	chats    []store.ChatActivity
	reasons  map[int64]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: make(map[string]string),
		idSets:   make(map[string][]int64),
		reasons:  make(map[int64]string),
	}
}

func (f *fakeStore) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := f.settings[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.settings[key] = value
	return nil
}

func (f *fakeStore) GetIDSet(_ context.Context, key string) ([]int64, error) {
	return f.idSets[key], nil
}

func (f *fakeStore) SetIDSet(_ context.Context, key string, ids []int64) error {
	f.idSets[key] = ids
	return nil
}

func (f *fakeStore) AllHealth(context.Context) ([]store.HealthCheck, error) {
	return f.health, nil
}

func (f *fakeStore) GetStats(context.Context) (*store.Stats, error) {
	return f.stats, nil
}

func (f *fakeStore) KnownChats(context.Context, int) ([]store.ChatActivity, error) {
	return f.chats, nil
}

func (f *fakeStore) SetFeedbackReason(_ context.Context, id int64, reason string) error {
	f.reasons[id] = reason
	return nil
}

func (f *fakeStore) UpsertHeartbeat(context.Context, string, string, string, time.Time) error {
	return nil
}

func TestManageRowsWhitelistSkipsPrivateChats(t *testing.T) {
	fs := newFakeStore()
	fs.chats = []store.ChatActivity{
		{ChatID: -100, Title: "Проект", Count: 5},
		{ChatID: 42, Title: "Личка", Count: 3},
		{ChatID: -200, Title: "Работа", Count: 2},
	}
	b := &Bot{store: fs}

	set := []int64{-200, -300}
	rows := b.manageRows(context.Background(), viewFor(store.SettingWhitelist), set)

	var labels []string
	var buttons []bus.Button
	for _, row := range rows {
		for _, btn := range row {
			labels = append(labels, btn.Label)
			buttons = append(buttons, btn)
		}
	}
	if len(buttons) != 3 {
		t.Fatalf("buttons = %v, want 3 (private chat excluded)", labels)
	}

	// Known groups keep the index order, then set-only ids follow.
	if labels[0] != "➕ Проект" {
		t.Errorf("labels[0] = %q", labels[0])
	}
	if _, ok := buttons[0].Intent.(bus.WhitelistAdd); !ok {
		t.Errorf("buttons[0] intent = %T, want WhitelistAdd", buttons[0].Intent)
	}
	if labels[1] != "❌ Работа" {
		t.Errorf("labels[1] = %q", labels[1])
	}
	if _, ok := buttons[1].Intent.(bus.WhitelistRemove); !ok {
		t.Errorf("buttons[1] intent = %T, want WhitelistRemove", buttons[1].Intent)
	}
	if labels[2] != "❌ -300" {
		t.Errorf("labels[2] = %q (set member unknown to the index)", labels[2])
	}
}

func TestManageRowsBlacklistIncludesPrivateChats(t *testing.T) {
	fs := newFakeStore()
	fs.chats = []store.ChatActivity{
		{ChatID: -100, Title: "Проект"},
		{ChatID: 42, Title: "Личка"},
	}
	b := &Bot{store: fs}

	rows := b.manageRows(context.Background(), viewFor(store.SettingBlacklist), nil)
	total := 0
	for _, row := range rows {
		total += len(row)
	}
	if total != 2 {
		t.Fatalf("buttons = %d, want 2 (private chats included)", total)
	}
}

func TestManageRowsCapsAndPairs(t *testing.T) {
	fs := newFakeStore()
	for i := int64(1); i <= 15; i++ {
		fs.chats = append(fs.chats, store.ChatActivity{ChatID: -i, Title: "Чат"})
	}
	b := &Bot{store: fs}

	rows := b.manageRows(context.Background(), viewFor(store.SettingWhitelist), nil)
	total := 0
	for _, row := range rows {
		if len(row) > 2 {
			t.Errorf("row has %d buttons, want at most 2", len(row))
		}
		total += len(row)
	}
	if total != 10 {
		t.Errorf("buttons = %d, want the cap of 10", total)
	}
}

func TestShortTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Работа", "Работа"},
		{"восемнадцать рун!!", "восемнадцать рун!!"},
		{"абвгдежзиклмнопрстуф", "абвгдежзиклмнопр.."},
	}
	for _, tt := range tests {
		if got := shortTitle(tt.in); got != tt.want {
			t.Errorf("shortTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestForwardedChat(t *testing.T) {
	tests := []struct {
		name     string
		origin   telego.MessageOrigin
		wantID   int64
		wantName string
		wantOK   bool
	}{
		{name: "no forward", origin: nil},
		{
			name:     "channel post",
			origin:   &telego.MessageOriginChannel{Chat: telego.Chat{ID: -100123, Title: "Новости", Type: "channel"}},
			wantID:   -100123,
			wantName: "Новости",
			wantOK:   true,
		},
		{
			name:     "anonymous group admin",
			origin:   &telego.MessageOriginChat{SenderChat: telego.Chat{ID: -42, Title: "Группа", Type: "group"}},
			wantID:   -42,
			wantName: "Группа",
			wantOK:   true,
		},
		{name: "forward from a user", origin: &telego.MessageOriginUser{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &telego.Message{ForwardOrigin: tt.origin}
			id, name, ok := forwardedChat(msg)
			if ok != tt.wantOK || id != tt.wantID || name != tt.wantName {
				t.Errorf("forwardedChat = (%d, %q, %v), want (%d, %q, %v)",
					id, name, ok, tt.wantID, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestViewForWording(t *testing.T) {
	wl := viewFor(store.SettingWhitelist)
	if wl.title(3) != "Whitelist: 3 чатов. ➕ = добавить, ❌ = убрать:" {
		t.Errorf("whitelist title = %q", wl.title(3))
	}
	if wl.maxIDs != 10 || !wl.groupsOnly {
		t.Errorf("whitelist view = %+v", wl)
	}

	bl := viewFor(store.SettingBlacklist)
	if bl.title(2) != "Blacklist: 2. 🚫 = заблокировать, ✅ = разблокировать:" {
		t.Errorf("blacklist title = %q", bl.title(2))
	}
	if bl.maxIDs != 12 || bl.groupsOnly {
		t.Errorf("blacklist view = %+v", bl)
	}
}
