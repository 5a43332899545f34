package store

import (
	"context"
	"encoding/json"
	"strings"
)

// Preferences are the owner's communication preferences, persisted as a
// JSON value under SettingPreferences. Zero fields mean "not set".
type Preferences struct {
	Address string `json:"address,omitempty"` // "ты" or "вы"
	Style   string `json:"style,omitempty"`   // formal, casual, business-casual
	Emoji   *bool  `json:"emoji,omitempty"`
}

// SettingReader is the read half of SettingStore; callers that only render
// settings take this.
type SettingReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// LoadPreferences reads the stored preferences; absent or unparsable rows
// yield the zero value.
func LoadPreferences(ctx context.Context, s SettingReader) Preferences {
	var p Preferences
	raw, err := s.GetSetting(ctx, SettingPreferences)
	if err != nil {
		return p
	}
	_ = json.Unmarshal([]byte(raw), &p)
	return p
}

// SavePreferences persists p.
func SavePreferences(ctx context.Context, s SettingStore, p Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.SetSetting(ctx, SettingPreferences, string(raw))
}

// Describe renders the set preferences as prompt lines, empty when nothing
// is set.
func (p Preferences) Describe() string {
	var lines []string
	if p.Address != "" {
		lines = append(lines, "Обращение: на «"+p.Address+"»")
	}
	if p.Style != "" {
		lines = append(lines, "Стиль общения: "+p.Style)
	}
	if p.Emoji != nil {
		if *p.Emoji {
			lines = append(lines, "Эмодзи: использовать")
		} else {
			lines = append(lines, "Эмодзи: не использовать")
		}
	}
	return strings.Join(lines, "\n")
}
