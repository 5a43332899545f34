package tools

import (
	"context"
	"slices"

	"github.com/nextlevelbuilder/attache/internal/store"
)

// --- manage_whitelist ---

type ManageWhitelistTool struct {
	settings store.SettingStore
}

func NewManageWhitelistTool(s store.SettingStore) *ManageWhitelistTool {
	return &ManageWhitelistTool{settings: s}
}

func (t *ManageWhitelistTool) Name() string { return "manage_whitelist" }

func (t *ManageWhitelistTool) Description() string {
	return "List, add or remove group chats on the monitoring whitelist. Messages from whitelisted groups are captured and classified."
}

func (t *ManageWhitelistTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{"list", "add", "remove"},
			},
			"chat_id": map[string]interface{}{
				"type":        "number",
				"description": "Chat id to add or remove. Required for add and remove.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ManageWhitelistTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	ids, err := t.settings.GetIDSet(ctx, store.SettingWhitelist)
	if err != nil {
		return ErrorResult("whitelist read failed: " + err.Error()).WithError(err)
	}

	switch action {
	case "list":
		return jsonResult(map[string]any{"count": len(ids), "chat_ids": ids})
	case "add":
		chatID, ok := argInt64(args, "chat_id")
		if !ok {
			return ErrorResult("chat_id is required for add")
		}
		if slices.Contains(ids, chatID) {
			return jsonResult(map[string]any{"already_present": true, "chat_id": chatID})
		}
		ids = append(ids, chatID)
		if err := t.settings.SetIDSet(ctx, store.SettingWhitelist, ids); err != nil {
			return ErrorResult("whitelist write failed: " + err.Error()).WithError(err)
		}
		return jsonResult(map[string]any{"added": true, "chat_id": chatID, "count": len(ids)})
	case "remove":
		chatID, ok := argInt64(args, "chat_id")
		if !ok {
			return ErrorResult("chat_id is required for remove")
		}
		idx := slices.Index(ids, chatID)
		if idx < 0 {
			return jsonResult(map[string]any{"not_present": true, "chat_id": chatID})
		}
		ids = slices.Delete(ids, idx, idx+1)
		if err := t.settings.SetIDSet(ctx, store.SettingWhitelist, ids); err != nil {
			return ErrorResult("whitelist write failed: " + err.Error()).WithError(err)
		}
		return jsonResult(map[string]any{"removed": true, "chat_id": chatID, "count": len(ids)})
	default:
		return ErrorResult("action must be one of list, add, remove")
	}
}

// --- update_preferences ---

var (
	validAddress = []string{"ты", "вы"}
	validStyle   = []string{"formal", "casual", "business-casual"}
)

type UpdatePreferencesTool struct {
	settings store.SettingStore
}

func NewUpdatePreferencesTool(s store.SettingStore) *UpdatePreferencesTool {
	return &UpdatePreferencesTool{settings: s}
}

func (t *UpdatePreferencesTool) Name() string { return "update_preferences" }

func (t *UpdatePreferencesTool) Description() string {
	return "Remember how the owner wants to be addressed: ты/вы, communication style, emoji usage."
}

func (t *UpdatePreferencesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"address": map[string]interface{}{
				"type": "string",
				"enum": validAddress,
			},
			"style": map[string]interface{}{
				"type": "string",
				"enum": validStyle,
			},
			"emoji": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether to use emoji in replies.",
			},
		},
	}
}

func (t *UpdatePreferencesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	prefs := store.LoadPreferences(ctx, t.settings)
	changed := false

	if v, present := args["address"]; present {
		s, _ := v.(string)
		if !slices.Contains(validAddress, s) {
			return ErrorResult("address must be ты or вы")
		}
		prefs.Address = s
		changed = true
	}
	if v, present := args["style"]; present {
		s, _ := v.(string)
		if !slices.Contains(validStyle, s) {
			return ErrorResult("style must be one of formal, casual, business-casual")
		}
		prefs.Style = s
		changed = true
	}
	if v, present := args["emoji"]; present {
		b, ok := v.(bool)
		if !ok {
			return ErrorResult("emoji must be a boolean")
		}
		prefs.Emoji = &b
		changed = true
	}
	if !changed {
		return ErrorResult("nothing to update: pass address, style or emoji")
	}

	if err := store.SavePreferences(ctx, t.settings, prefs); err != nil {
		return ErrorResult("save failed: " + err.Error()).WithError(err)
	}
	return jsonResult(map[string]any{"saved": true, "preferences": prefs})
}
