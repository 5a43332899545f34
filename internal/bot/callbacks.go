package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/attache/internal/bus"
	"github.com/nextlevelbuilder/attache/internal/classifier"
	"github.com/nextlevelbuilder/attache/internal/store"
)

const staleToast = "⏳ Данные устарели (рестарт/таймаут)"

// handleCallback decodes and dispatches one button press. Non-owner
// presses are acked without effect.
func (b *Bot) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	if q.From.ID != b.ownerID {
		b.answer(ctx, q.ID, "")
		return
	}

	intent, err := bus.DecodeIntent(q.Data)
	if err != nil {
		slog.Warn("undecodable callback", "data", q.Data, "error", err)
		b.answer(ctx, q.ID, "Не понял кнопку")
		return
	}

	// Inaccessible (too old) messages decode to a different type; edits
	// are silently skipped for them.
	msg, _ := q.Message.(*telego.Message)

	switch v := intent.(type) {
	case bus.ReviewDone:
		b.cbComplete(ctx, q.ID, v.TaskID, fmt.Sprintf("✅ #%d выполнена", v.TaskID))
	case bus.ReviewPostpone:
		b.cbPostpone(ctx, q.ID, v.TaskID)
	case bus.TaskDone:
		b.cbComplete(ctx, q.ID, v.TaskID, fmt.Sprintf("Задача #%d выполнена", v.TaskID))
	case bus.TaskCancel:
		b.cbCancel(ctx, q.ID, v.TaskID)

	case bus.ClassifyCorrect:
		b.cbClassifyCorrect(ctx, q.ID, v.MessageID)
	case bus.ClassifyWrong:
		b.cbClassifyWrong(ctx, q.ID, v.MessageID)
	case bus.ClassifyUpgrade:
		b.cbClassifyUpgrade(ctx, q.ID, v.MessageID)

	case bus.ConfidenceYes:
		b.cbConfidenceYes(ctx, q.ID, v.ItemID)
	case bus.ConfidenceNo:
		b.cbConfidenceNo(ctx, q.ID, v.ItemID)
	case bus.ConfidenceLater:
		b.answer(ctx, q.ID, "⏰ Спрошу вечером")

	case bus.BatchAll:
		b.cbBatchAll(ctx, q.ID)
	case bus.BatchNone:
		b.cbBatchNone(ctx, q.ID)
	case bus.BatchPick:
		b.cbBatchPick(ctx, q.ID, msg)

	case bus.TrackClose:
		b.cbTrackClose(ctx, q.ID, v.TaskID, msg)
	case bus.TrackWait:
		b.cbTrackWait(ctx, q.ID, v.TaskID, msg)

	case bus.ContactMonitor:
		b.cbContactMonitor(ctx, q.ID, v.ContactID)
	case bus.ContactSave:
		b.answer(ctx, q.ID, "Сообщения сохраняются")
	case bus.ContactIgnore:
		b.cbContactIgnore(ctx, q.ID, v.ContactID)

	case bus.WhitelistAdd:
		b.cbSetToggle(ctx, q.ID, msg, store.SettingWhitelist, v.ChatID, true)
	case bus.WhitelistRemove:
		b.cbSetToggle(ctx, q.ID, msg, store.SettingWhitelist, v.ChatID, false)
	case bus.WhitelistManage:
		b.cbManage(ctx, q.ID, msg, store.SettingWhitelist)
	case bus.WhitelistClear:
		b.cbSetClear(ctx, q.ID, msg, store.SettingWhitelist)
	case bus.WhitelistClose:
		b.cbSetClose(ctx, q.ID, msg, store.SettingWhitelist)
	case bus.WhitelistForwardAdd:
		b.cbForwardAdd(ctx, q.ID, msg, v.ChatID)
	case bus.WhitelistForwardSkip:
		b.answer(ctx, q.ID, "Ок")
		b.editText(ctx, msg, "Ок, не добавляю.", nil)

	case bus.BlacklistAdd:
		b.cbSetToggle(ctx, q.ID, msg, store.SettingBlacklist, v.ChatID, true)
	case bus.BlacklistRemove:
		b.cbSetToggle(ctx, q.ID, msg, store.SettingBlacklist, v.ChatID, false)
	case bus.BlacklistManage:
		b.cbManage(ctx, q.ID, msg, store.SettingBlacklist)
	case bus.BlacklistClear:
		b.cbSetClear(ctx, q.ID, msg, store.SettingBlacklist)
	case bus.BlacklistClose:
		b.cbSetClose(ctx, q.ID, msg, store.SettingBlacklist)

	case bus.SwitchMode:
		b.answer(ctx, q.ID, "Переключаю")
		b.switchMode(ctx, v.Mode)
	case bus.SetPreference:
		b.cbSetPreference(ctx, q.ID, v.Key, v.Value)

	default:
		b.answer(ctx, q.ID, "Не понял кнопку")
	}
}

// answer acks the callback with an optional toast.
func (b *Bot) answer(ctx context.Context, queryID, text string) {
	err := b.api.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
	})
	if err != nil {
		slog.Debug("callback answer failed", "error", err)
	}
}

// editText rewrites the message under the pressed button. Failures are
// expected (unchanged text, message too old) and only logged.
func (b *Bot) editText(ctx context.Context, msg *telego.Message, text string, keyboard [][]bus.Button) {
	if msg == nil {
		return
	}
	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(msg.Chat.ID),
		MessageID: msg.MessageID,
		Text:      text,
	}
	if markup := renderKeyboard(keyboard); markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.api.EditMessageText(ctx, params); err != nil {
		slog.Debug("message edit failed", "error", err)
	}
}

// --- Tasks ---

// cbComplete closes a task; a recurring one reports its respawned clone.
func (b *Bot) cbComplete(ctx context.Context, queryID string, taskID int64, toast string) {
	_, respawned, err := b.tasks.Complete(ctx, taskID)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, toast)
	if respawned != nil {
		b.send(ctx, fmt.Sprintf("🔁 Повторяющаяся задача создана заново: #%d", respawned.ID))
	}
}

func (b *Bot) cbCancel(ctx context.Context, queryID string, taskID int64) {
	if err := b.tasks.Cancel(ctx, taskID); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, fmt.Sprintf("Задача #%d отменена", taskID))
}

func (b *Bot) cbPostpone(ctx context.Context, queryID string, taskID int64) {
	if _, err := b.tasks.Postpone(ctx, taskID, 1); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, fmt.Sprintf("➡️ #%d перенесена на завтра", taskID))
}

// --- Classification verdicts ---

func (b *Bot) cbClassifyCorrect(ctx context.Context, queryID string, msgID int64) {
	fid, err := b.classifier.ConfirmAuto(ctx, msgID)
	if errors.Is(err, classifier.ErrStale) {
		b.answer(ctx, queryID, staleToast)
		return
	}
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, "✅ Подтверждено")
	b.armFeedback(ctx, fid, "Почему? (или /skip)")
}

func (b *Bot) cbClassifyWrong(ctx context.Context, queryID string, msgID int64) {
	taskID, fid, err := b.classifier.RejectAuto(ctx, msgID)
	if errors.Is(err, classifier.ErrStale) {
		b.answer(ctx, queryID, staleToast)
		return
	}
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if taskID != 0 {
		b.answer(ctx, queryID, fmt.Sprintf("❌ Задача #%d отменена", taskID))
	} else {
		b.answer(ctx, queryID, "❌ Отмечено")
	}
	b.armFeedback(ctx, fid, "Почему ошибка? (или /skip)")
}

func (b *Bot) cbClassifyUpgrade(ctx context.Context, queryID string, msgID int64) {
	task, created, fid, err := b.classifier.UpgradeToTask(ctx, msgID)
	if errors.Is(err, classifier.ErrStale) {
		b.answer(ctx, queryID, staleToast)
		return
	}
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if created {
		b.answer(ctx, queryID, fmt.Sprintf("📝 Задача #%d создана", task.ID))
	} else {
		b.answer(ctx, queryID, "⚠️ Дубликат — задача не создана")
	}
	b.armFeedback(ctx, fid, "Почему ошибка? (или /skip)")
}

// --- Confidence queue ---

func (b *Bot) cbConfidenceYes(ctx context.Context, queryID string, itemID int64) {
	task, created, err := b.classifier.ConfirmItem(ctx, itemID)
	if errors.Is(err, classifier.ErrResolved) {
		b.answer(ctx, queryID, "Уже обработано")
		return
	}
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if created {
		b.answer(ctx, queryID, fmt.Sprintf("✅ Задача #%d создана", task.ID))
	} else {
		b.answer(ctx, queryID, "⚠️ Дубликат — задача не создана")
	}
}

func (b *Bot) cbConfidenceNo(ctx context.Context, queryID string, itemID int64) {
	err := b.classifier.RejectItem(ctx, itemID)
	if errors.Is(err, classifier.ErrResolved) {
		b.answer(ctx, queryID, "Уже обработано")
		return
	}
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, "Пропущено")
}

func (b *Bot) cbBatchAll(ctx context.Context, queryID string) {
	created, err := b.classifier.BatchConfirmAll(ctx)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, fmt.Sprintf("Добавлено задач: %d", created))
}

func (b *Bot) cbBatchNone(ctx context.Context, queryID string) {
	if _, err := b.classifier.BatchRejectAll(ctx); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, "Все отклонены")
}

// cbBatchPick expands the batch message into per-item yes/no rows.
func (b *Bot) cbBatchPick(ctx context.Context, queryID string, msg *telego.Message) {
	items, err := b.classifier.UnresolvedItems(ctx)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if len(items) == 0 {
		b.answer(ctx, queryID, "Нет неразрешённых вопросов")
		return
	}
	var rows [][]bus.Button
	for _, it := range items {
		short := []rune(it.TextPreview)
		if len(short) > 40 {
			short = short[:40]
		}
		rows = append(rows, []bus.Button{
			{Label: "Задача: " + string(short), Intent: bus.ConfidenceYes{ItemID: it.ID}},
			{Label: "Нет", Intent: bus.ConfidenceNo{ItemID: it.ID}},
		})
	}
	b.answer(ctx, queryID, "")
	b.editText(ctx, msg, "Выбери по каждому:", rows)
}

// --- Tracked tasks ---

func (b *Bot) cbTrackClose(ctx context.Context, queryID string, taskID int64, msg *telego.Message) {
	if _, _, err := b.tasks.Complete(ctx, taskID); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, fmt.Sprintf("Задача #%d закрыта", taskID))
	if msg != nil {
		b.editText(ctx, msg, msg.Text+"\n\n✅ Закрыта", nil)
	}
}

func (b *Bot) cbTrackWait(ctx context.Context, queryID string, taskID int64, msg *telego.Message) {
	if err := b.tracker.Snooze(ctx, taskID); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, fmt.Sprintf("Задача #%d: проверим позже", taskID))
	if msg != nil {
		b.editText(ctx, msg, msg.Text+"\n\n⏰ Проверю позже", nil)
	}
}

// --- Contacts ---

// cbContactMonitor lifts a blacklist entry so the sender's chat is
// classified again. Private chat id equals the sender id.
func (b *Bot) cbContactMonitor(ctx context.Context, queryID string, senderID int64) {
	bl, err := b.store.GetIDSet(ctx, store.SettingBlacklist)
	if err == nil && containsID(bl, senderID) {
		if err := b.store.SetIDSet(ctx, store.SettingBlacklist, removeID(bl, senderID)); err != nil {
			b.answer(ctx, queryID, "Ошибка: "+err.Error())
			return
		}
	}
	b.answer(ctx, queryID, "Буду следить")
}

func (b *Bot) cbContactIgnore(ctx context.Context, queryID string, senderID int64) {
	bl, err := b.store.GetIDSet(ctx, store.SettingBlacklist)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if !containsID(bl, senderID) {
		if err := b.store.SetIDSet(ctx, store.SettingBlacklist, append(bl, senderID)); err != nil {
			b.answer(ctx, queryID, "Ошибка: "+err.Error())
			return
		}
	}
	b.answer(ctx, queryID, fmt.Sprintf("В игнор: %d", senderID))
}

// --- Whitelist / blacklist grids ---

// manageView is the wording and shape of one id-set toggle grid.
type manageView struct {
	title       func(n int) string
	closed      func(n int) string
	cleared     string
	clearLabel  string
	emptyToast  string
	inLabel     string
	outLabel    string
	maxIDs      int
	groupsOnly  bool
	addToast    string
	removeToast string
	dupToast    string
	goneToast   string
	add         func(id int64) bus.Intent
	remove      func(id int64) bus.Intent
	clear       bus.Intent
	close       bus.Intent
}

func viewFor(key string) manageView {
	if key == store.SettingBlacklist {
		return manageView{
			title:       func(n int) string { return fmt.Sprintf("Blacklist: %d. 🚫 = заблокировать, ✅ = разблокировать:", n) },
			closed:      func(n int) string { return fmt.Sprintf("Blacklist: %d записей.", n) },
			cleared:     "Blacklist очищен",
			clearLabel:  "Очистить blacklist",
			emptyToast:  "Пока нет известных чатов",
			inLabel:     "✅",
			outLabel:    "🚫",
			maxIDs:      12,
			groupsOnly:  false,
			addToast:    "Заблокирован: %d",
			removeToast: "Разблокирован: %d",
			dupToast:    "Уже в blacklist",
			goneToast:   "Не было в blacklist",
			add:         func(id int64) bus.Intent { return bus.BlacklistAdd{ChatID: id} },
			remove:      func(id int64) bus.Intent { return bus.BlacklistRemove{ChatID: id} },
			clear:       bus.BlacklistClear{},
			close:       bus.BlacklistClose{},
		}
	}
	return manageView{
		title:       func(n int) string { return fmt.Sprintf("Whitelist: %d чатов. ➕ = добавить, ❌ = убрать:", n) },
		closed:      func(n int) string { return fmt.Sprintf("Whitelist: %d чатов.", n) },
		cleared:     "Whitelist очищен",
		clearLabel:  "Очистить всё",
		emptyToast:  "Пока нет известных групп",
		inLabel:     "❌",
		outLabel:    "➕",
		maxIDs:      10,
		groupsOnly:  true,
		addToast:    "Добавлен: %d",
		removeToast: "Удалён: %d",
		dupToast:    "Уже в whitelist",
		goneToast:   "Не было в whitelist",
		add:         func(id int64) bus.Intent { return bus.WhitelistAdd{ChatID: id} },
		remove:      func(id int64) bus.Intent { return bus.WhitelistRemove{ChatID: id} },
		clear:       bus.WhitelistClear{},
		close:       bus.WhitelistClose{},
	}
}

// cbManage opens the toggle grid over known chats plus current members.
func (b *Bot) cbManage(ctx context.Context, queryID string, msg *telego.Message, key string) {
	view := viewFor(key)
	set, err := b.store.GetIDSet(ctx, key)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	rows := b.manageRows(ctx, view, set)
	if len(rows) == 0 {
		b.answer(ctx, queryID, view.emptyToast)
		return
	}
	b.answer(ctx, queryID, "")
	b.editText(ctx, msg, view.title(len(set)), b.withFooter(view, set, rows))
}

// cbSetToggle flips one id in the set and re-renders the grid.
func (b *Bot) cbSetToggle(ctx context.Context, queryID string, msg *telego.Message, key string, id int64, add bool) {
	view := viewFor(key)
	set, err := b.store.GetIDSet(ctx, key)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}

	switch {
	case add && containsID(set, id):
		b.answer(ctx, queryID, view.dupToast)
	case add:
		set = append(set, id)
		if err := b.store.SetIDSet(ctx, key, set); err != nil {
			b.answer(ctx, queryID, "Ошибка: "+err.Error())
			return
		}
		b.answer(ctx, queryID, fmt.Sprintf(view.addToast, id))
	case !containsID(set, id):
		b.answer(ctx, queryID, view.goneToast)
	default:
		set = removeID(set, id)
		if err := b.store.SetIDSet(ctx, key, set); err != nil {
			b.answer(ctx, queryID, "Ошибка: "+err.Error())
			return
		}
		b.answer(ctx, queryID, fmt.Sprintf(view.removeToast, id))
	}

	if rows := b.manageRows(ctx, view, set); len(rows) > 0 {
		b.editText(ctx, msg, view.title(len(set)), b.withFooter(view, set, rows))
	}
}

func (b *Bot) cbSetClear(ctx context.Context, queryID string, msg *telego.Message, key string) {
	view := viewFor(key)
	if err := b.store.SetIDSet(ctx, key, nil); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, view.cleared)
	b.editText(ctx, msg, view.cleared+".", nil)
}

func (b *Bot) cbSetClose(ctx context.Context, queryID string, msg *telego.Message, key string) {
	view := viewFor(key)
	set, _ := b.store.GetIDSet(ctx, key)
	b.answer(ctx, queryID, "")
	b.editText(ctx, msg, view.closed(len(set)), nil)
}

// manageRows builds toggle buttons for known chats first, then set members
// the message index has never seen, two per row.
func (b *Bot) manageRows(ctx context.Context, view manageView, set []int64) [][]bus.Button {
	inSet := make(map[int64]bool, len(set))
	for _, id := range set {
		inSet[id] = true
	}

	var ids []int64
	titles := make(map[int64]string)
	seen := make(map[int64]bool)
	if known, err := b.store.KnownChats(ctx, 200); err == nil {
		for _, ch := range known {
			if view.groupsOnly && ch.ChatID > 0 {
				continue
			}
			if seen[ch.ChatID] {
				continue
			}
			seen[ch.ChatID] = true
			ids = append(ids, ch.ChatID)
			titles[ch.ChatID] = ch.Title
		}
	}
	for _, id := range set {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) > view.maxIDs {
		ids = ids[:view.maxIDs]
	}

	var rows [][]bus.Button
	var row []bus.Button
	for _, id := range ids {
		title := titles[id]
		if title == "" {
			title = strconv.FormatInt(id, 10)
		}
		short := shortTitle(title)
		btn := bus.Button{Label: view.outLabel + " " + short, Intent: view.add(id)}
		if inSet[id] {
			btn = bus.Button{Label: view.inLabel + " " + short, Intent: view.remove(id)}
		}
		row = append(row, btn)
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func (b *Bot) withFooter(view manageView, set []int64, rows [][]bus.Button) [][]bus.Button {
	if len(set) > 0 {
		rows = append(rows, []bus.Button{{Label: view.clearLabel, Intent: view.clear}})
	}
	return append(rows, []bus.Button{{Label: "Закрыть", Intent: view.close}})
}

// shortTitle truncates a chat title for grid button labels.
func shortTitle(s string) string {
	r := []rune(s)
	if len(r) <= 18 {
		return s
	}
	return string(r[:16]) + ".."
}

// --- Forwarded chats ---

// offerForwardedChat offers to whitelist the source of a forwarded group or
// channel message. Returns false when the message is not such a forward.
func (b *Bot) offerForwardedChat(ctx context.Context, msg *telego.Message) bool {
	chatID, title, ok := forwardedChat(msg)
	if !ok {
		return false
	}
	if title == "" {
		title = strconv.FormatInt(chatID, 10)
	}

	wl, err := b.store.GetIDSet(ctx, store.SettingWhitelist)
	if err != nil {
		slog.Warn("whitelist read failed", "error", err)
		return true
	}
	if containsID(wl, chatID) {
		b.send(ctx, fmt.Sprintf("Чат «%s» (%d) уже в whitelist.", title, chatID))
		return true
	}

	b.notify(ctx, bus.Notification{
		Text: fmt.Sprintf("Добавить «%s» (%d) в whitelist?", title, chatID),
		Keyboard: [][]bus.Button{{
			{Label: "Да, добавить", Intent: bus.WhitelistForwardAdd{ChatID: chatID}},
			{Label: "Нет", Intent: bus.WhitelistForwardSkip{}},
		}},
		Plain: true,
	})
	return true
}

// forwardedChat extracts the source chat of a forwarded group or channel
// message. Forwards from users carry no chat and are not offered.
func forwardedChat(msg *telego.Message) (int64, string, bool) {
	if msg.ForwardOrigin == nil {
		return 0, "", false
	}
	switch o := msg.ForwardOrigin.(type) {
	case *telego.MessageOriginChannel:
		return o.Chat.ID, o.Chat.Title, true
	case telego.MessageOriginChannel:
		return o.Chat.ID, o.Chat.Title, true
	case *telego.MessageOriginChat:
		return o.SenderChat.ID, o.SenderChat.Title, true
	case telego.MessageOriginChat:
		return o.SenderChat.ID, o.SenderChat.Title, true
	}
	return 0, "", false
}

func (b *Bot) cbForwardAdd(ctx context.Context, queryID string, msg *telego.Message, chatID int64) {
	wl, err := b.store.GetIDSet(ctx, store.SettingWhitelist)
	if err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	if !containsID(wl, chatID) {
		wl = append(wl, chatID)
		if err := b.store.SetIDSet(ctx, store.SettingWhitelist, wl); err != nil {
			b.answer(ctx, queryID, "Ошибка: "+err.Error())
			return
		}
	}
	b.answer(ctx, queryID, "Добавлено!")
	b.editText(ctx, msg, fmt.Sprintf("Чат %d добавлен в whitelist. Всего: %d.", chatID, len(wl)), nil)
}

// --- Preferences ---

func (b *Bot) cbSetPreference(ctx context.Context, queryID, key, value string) {
	prefs := store.LoadPreferences(ctx, b.store)
	switch key {
	case "address":
		if value != "ты" && value != "вы" {
			b.answer(ctx, queryID, "Не понял настройку")
			return
		}
		prefs.Address = value
	case "style":
		if value != "formal" && value != "casual" && value != "business-casual" {
			b.answer(ctx, queryID, "Не понял настройку")
			return
		}
		prefs.Style = value
	case "emoji":
		v := value == "true"
		prefs.Emoji = &v
	default:
		b.answer(ctx, queryID, "Не понял настройку")
		return
	}

	if err := store.SavePreferences(ctx, b.store, prefs); err != nil {
		b.answer(ctx, queryID, "Ошибка: "+err.Error())
		return
	}
	b.answer(ctx, queryID, "Сохранено")
}
