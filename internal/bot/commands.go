package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/attache/internal/brain"
	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const helpText = `КОМАНДЫ:

Запрос     — свободный вопрос (кнопка внизу)
/tasks     — активные задачи с дедлайнами
/summary   — краткое содержание дня
/health    — статус системы и модулей
/whitelist — чаты для мониторинга
/blacklist — исключения из мониторинга
/mode      — LLM-режим, переключение
/settings  — настройки общения
/admin     — статистика и расходы
/help      — эта справка

ФОТО: отправь скриншот — проанализирую содержимое

ТЕКСТОМ (без команд):
"Переключи на резервный" — смена LLM-режима
Любой вопрос — ассистент поймёт контекст`

// handleCommand dispatches one slash command. A trailing @botname on the
// command word is tolerated.
func (b *Bot) handleCommand(ctx context.Context, text string) {
	word, args, _ := strings.Cut(text, " ")
	cmd := strings.TrimPrefix(word, "/")
	cmd, _, _ = strings.Cut(cmd, "@")
	args = strings.TrimSpace(args)

	switch cmd {
	case "start":
		b.cmdStart(ctx)
	case "help":
		b.send(ctx, helpText)
	case "tasks":
		b.cmdTasks(ctx)
	case "summary":
		b.cmdSummary(ctx)
	case "health":
		b.cmdHealth(ctx)
	case "mode":
		b.cmdMode(ctx)
	case "admin":
		b.cmdAdmin(ctx)
	case "settings":
		b.cmdSettings(ctx)
	case "whitelist":
		b.cmdIDList(ctx, store.SettingWhitelist, args)
	case "blacklist":
		b.cmdIDList(ctx, store.SettingBlacklist, args)
	case "skip":
		b.cmdSkip(ctx)
	default:
		b.send(ctx, "Не знаю такую команду. /help")
	}
}

// cmdStart greets and pins the persistent reply keyboard. The keyboard is
// a reply markup, not inline, so this bypasses the notifier.
func (b *Bot) cmdStart(ctx context.Context) {
	markup := &telego.ReplyKeyboardMarkup{
		Keyboard:       [][]telego.KeyboardButton{{{Text: requestButton}}},
		ResizeKeyboard: true,
		IsPersistent:   true,
	}
	msg := &telego.SendMessageParams{
		ChatID:      tu.ID(b.ownerID),
		Text:        "Ассистент активен. Нажми «Запрос» или используй команды.",
		ReplyMarkup: markup,
	}
	if _, err := b.api.SendMessage(ctx, msg); err != nil {
		slog.Error("start greeting failed", "error", err)
	}
}

func (b *Bot) cmdTasks(ctx context.Context) {
	tasksList, err := b.tasks.Active(ctx, "")
	if err != nil {
		b.send(ctx, "Не смог прочитать задачи: "+err.Error())
		return
	}
	if len(tasksList) == 0 {
		b.send(ctx, "Активных задач нет.")
		return
	}

	lines := []string{"АКТИВНЫЕ ЗАДАЧИ:\n"}
	for i := range tasksList {
		lines = append(lines, taskListLine(&tasksList[i]))
	}

	var rows [][]bus.Button
	for i := range tasksList {
		if i >= 5 {
			break
		}
		t := &tasksList[i]
		rows = append(rows, []bus.Button{
			{Label: fmt.Sprintf("Выполнено #%d", t.ID), Intent: bus.TaskDone{TaskID: t.ID}},
			{Label: fmt.Sprintf("Отменить #%d", t.ID), Intent: bus.TaskCancel{TaskID: t.ID}},
		})
	}

	b.notify(ctx, bus.Notification{
		Text:     strings.Join(lines, "\n"),
		Keyboard: rows,
		Plain:    true,
	})
}

// taskListLine renders one /tasks row: "#id [T] description [who] | до 02.01".
func taskListLine(t *store.Task) string {
	marker := map[store.TaskType]string{
		store.TaskKindTask:            "T",
		store.TaskKindPromiseMine:     "P>",
		store.TaskKindPromiseIncoming: ">P",
	}[t.Type]
	if marker == "" {
		marker = "?"
	}
	line := fmt.Sprintf("#%d [%s] %s", t.ID, marker, t.Description)
	if t.Who != "" {
		line += fmt.Sprintf(" [%s]", t.Who)
	}
	if t.Deadline != nil {
		line += " | до " + t.Deadline.Format("02.01")
	}
	return line
}

func (b *Bot) cmdSummary(ctx context.Context) {
	if b.summary == nil {
		b.send(ctx, "Дайджест недоступен.")
		return
	}
	b.send(ctx, "Генерирую дайджест...")
	text, err := b.summary(ctx)
	if err != nil {
		b.send(ctx, "Не получилось: "+err.Error())
		return
	}
	b.send(ctx, text)
}

func (b *Bot) cmdHealth(ctx context.Context) {
	now := b.now().In(b.loc)
	lines := []string{fmt.Sprintf("Статус (%s %s):\n", now.Format("15:04"), b.loc.String())}

	health, err := b.store.AllHealth(ctx)
	if err != nil {
		b.send(ctx, "Не смог прочитать heartbeats: "+err.Error())
		return
	}
	for _, h := range health {
		status := "OK"
		if h.Status != "ok" {
			status = "FAIL"
		}
		ago := ""
		if !h.Timestamp.IsZero() {
			ago = fmt.Sprintf("  heartbeat: %dм назад", int(now.Sub(h.Timestamp).Minutes()))
		}
		errStr := ""
		if h.Error != "" {
			errStr = "  err: " + h.Error
		}
		lines = append(lines, fmt.Sprintf("  %-25s %s%s%s", h.Module, status, ago, errStr))
	}

	if stats, err := b.store.GetStats(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("\nБД: %d сообщений, %d активных задач", stats.Messages, stats.ActiveTasks))
	}
	lines = append(lines, "AI mode: "+b.brain.ModeLabel())
	if len(b.accounts) > 0 {
		lines = append(lines, "Аккаунты: ["+strings.Join(b.accounts, "] + [")+"]")
	}

	b.send(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) cmdMode(ctx context.Context) {
	other, otherLabel := brain.ModeFallback, "резервный"
	if b.brain.Mode() == brain.ModeFallback {
		other, otherLabel = brain.ModePrimary, "основной"
	}
	b.notify(ctx, bus.Notification{
		Text: "Текущий режим: " + b.brain.ModeLabel(),
		Keyboard: [][]bus.Button{{
			{Label: "Переключить на " + otherLabel, Intent: bus.SwitchMode{Mode: other}},
		}},
		Plain: true,
	})
}

// cmdAdmin renders the store snapshot, the busiest chats and the LLM
// spend ledger.
func (b *Bot) cmdAdmin(ctx context.Context) {
	stats, err := b.store.GetStats(ctx)
	if err != nil {
		b.send(ctx, "Не смог прочитать статистику: "+err.Error())
		return
	}

	lines := []string{
		"СТАТИСТИКА:\n",
		fmt.Sprintf("Сообщений: %d", stats.Messages),
		fmt.Sprintf("Задач: %d активных, %d выполнено, %d отменено",
			stats.ActiveTasks, stats.DoneTasks, stats.CancelledTasks),
		fmt.Sprintf("В очереди на разбор: %d", stats.UnresolvedConfidence),
		fmt.Sprintf("Контактов: %d, реплик диалога: %d", stats.Contacts, stats.Turns),
	}

	if chats, err := b.store.KnownChats(ctx, 5); err == nil && len(chats) > 0 {
		lines = append(lines, "\nТоп чатов:")
		for _, ch := range chats {
			title := ch.Title
			if title == "" {
				title = strconv.FormatInt(ch.ChatID, 10)
			}
			lines = append(lines, fmt.Sprintf("  %s — %d", title, ch.Count))
		}
	}

	u := b.brain.Usage()
	lines = append(lines, fmt.Sprintf("\nLLM: %d вызовов, %d in / %d out токенов, ~$%.4f (последний ~$%.4f)",
		u.Calls, u.InputTokens, u.OutputTokens, u.Cost, u.LastCost))
	lines = append(lines, "Режим: "+b.brain.ModeLabel())

	b.send(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) cmdSettings(ctx context.Context) {
	prefs := store.LoadPreferences(ctx, b.store)

	wl, _ := b.store.GetIDSet(ctx, store.SettingWhitelist)
	bl, _ := b.store.GetIDSet(ctx, store.SettingBlacklist)

	lines := []string{
		"НАСТРОЙКИ:\n",
		"AI-режим: " + b.brain.ModeLabel(),
		fmt.Sprintf("Whitelist чатов: %d", len(wl)),
		fmt.Sprintf("Blacklist: %d", len(bl)),
		"",
		"Обращение: " + orDash(prefs.Address),
		"Стиль: " + orDash(prefs.Style),
		"Эмодзи: " + emojiState(prefs.Emoji),
	}

	keyboard := [][]bus.Button{
		{
			{Label: "на «ты»", Intent: bus.SetPreference{Key: "address", Value: "ты"}},
			{Label: "на «вы»", Intent: bus.SetPreference{Key: "address", Value: "вы"}},
		},
		{
			{Label: "formal", Intent: bus.SetPreference{Key: "style", Value: "formal"}},
			{Label: "casual", Intent: bus.SetPreference{Key: "style", Value: "casual"}},
			{Label: "business-casual", Intent: bus.SetPreference{Key: "style", Value: "business-casual"}},
		},
		{
			{Label: "эмодзи: да", Intent: bus.SetPreference{Key: "emoji", Value: "true"}},
			{Label: "эмодзи: нет", Intent: bus.SetPreference{Key: "emoji", Value: "false"}},
		},
	}

	b.notify(ctx, bus.Notification{
		Text:     strings.Join(lines, "\n"),
		Keyboard: keyboard,
		Plain:    true,
	})
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func emojiState(v *bool) string {
	switch {
	case v == nil:
		return "—"
	case *v:
		return "да"
	default:
		return "нет"
	}
}

// idListText parametrizes the shared whitelist/blacklist command wording.
type idListText struct {
	name        string
	empty       string
	footer      string
	addedWord   string
	removedWord string
}

func listTextFor(key string) idListText {
	if key == store.SettingBlacklist {
		return idListText{
			name:        "Blacklist",
			empty:       "Blacklist пуст.",
			footer:      "Добавить: /blacklist add <id>\nУдалить: /blacklist del <id>",
			addedWord:   "Заблокировано",
			removedWord: "Разблокировано",
		}
	}
	return idListText{
		name:        "Whitelist",
		empty:       "Whitelist пуст.",
		footer:      "Перешли сообщение из группы — добавлю автоматически.",
		addedWord:   "Добавлено",
		removedWord: "Удалено",
	}
}

// cmdIDList serves /whitelist and /blacklist: bare command lists the set
// with a manage button, subcommands mutate it.
func (b *Bot) cmdIDList(ctx context.Context, key, args string) {
	txt := listTextFor(key)
	ids, err := b.store.GetIDSet(ctx, key)
	if err != nil {
		b.send(ctx, "Не смог прочитать "+strings.ToLower(txt.name)+": "+err.Error())
		return
	}

	if args == "" {
		var lines []string
		if len(ids) > 0 {
			names := b.chatNameIndex(ctx)
			lines = append(lines, fmt.Sprintf("%s (%d):", txt.name, len(ids)))
			for _, id := range ids {
				label := strconv.FormatInt(id, 10)
				if name := names[id]; name != "" {
					label = fmt.Sprintf("%d (%s)", id, name)
				}
				lines = append(lines, "  • "+label)
			}
		} else {
			lines = append(lines, txt.empty)
		}
		lines = append(lines, "\n"+txt.footer)

		manage := bus.Button{Label: "Управление чатами", Intent: bus.WhitelistManage{}}
		if key == store.SettingBlacklist {
			manage = bus.Button{Label: "Управление", Intent: bus.BlacklistManage{}}
		}
		b.notify(ctx, bus.Notification{
			Text:     strings.Join(lines, "\n"),
			Keyboard: [][]bus.Button{{manage}},
			Plain:    true,
		})
		return
	}

	if args == "clear" {
		if err := b.store.SetIDSet(ctx, key, nil); err != nil {
			b.send(ctx, "Не получилось: "+err.Error())
			return
		}
		b.send(ctx, txt.name+" очищен.")
		return
	}

	action, rest, _ := strings.Cut(args, " ")
	if (action != "add" && action != "del") || strings.TrimSpace(rest) == "" {
		b.send(ctx, fmt.Sprintf("Формат: /%s add <chat_id> или /%s del <chat_id>",
			strings.ToLower(txt.name), strings.ToLower(txt.name)))
		return
	}

	var added, removed, bad []string
	for _, raw := range strings.Fields(strings.ReplaceAll(rest, ",", " ")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			bad = append(bad, raw)
			continue
		}
		switch action {
		case "add":
			if !containsID(ids, id) {
				ids = append(ids, id)
				added = append(added, raw)
			}
		case "del":
			if containsID(ids, id) {
				ids = removeID(ids, id)
				removed = append(removed, raw)
			}
		}
	}

	if err := b.store.SetIDSet(ctx, key, ids); err != nil {
		b.send(ctx, "Не получилось сохранить: "+err.Error())
		return
	}

	var result []string
	if len(added) > 0 {
		result = append(result, txt.addedWord+": "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		result = append(result, txt.removedWord+": "+strings.Join(removed, ", "))
	}
	if len(bad) > 0 {
		result = append(result, "Ошибка (не число): "+strings.Join(bad, ", "))
	}
	result = append(result, fmt.Sprintf("Всего в %s: %d", strings.ToLower(txt.name), len(ids)))
	b.send(ctx, strings.Join(result, "\n"))
}

// cmdSkip drops a pending feedback-reason prompt. The verdict itself was
// recorded when the button was pressed; only the reason is skipped.
func (b *Bot) cmdSkip(ctx context.Context) {
	if _, ok := b.feedback.take(b.ownerID); ok {
		b.send(ctx, "⏭ Пропущено")
		return
	}
	b.send(ctx, "Нечего пропускать.")
}

// chatNameIndex maps known chat ids to their latest titles.
func (b *Bot) chatNameIndex(ctx context.Context) map[int64]string {
	names := make(map[int64]string)
	chats, err := b.store.KnownChats(ctx, 200)
	if err != nil {
		return names
	}
	for _, ch := range chats {
		names[ch.ChatID] = ch.Title
	}
	return names
}

// notify pushes through the notifier and logs failures.
func (b *Bot) notify(ctx context.Context, n bus.Notification) {
	if err := b.notifier.Notify(ctx, n); err != nil {
		slog.Error("owner notify failed", "error", err)
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
