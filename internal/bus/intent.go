package bus

import (
	"fmt"
	"strconv"
	"strings"
)

// Intent is a callback-button action with a typed payload. Intents travel
// through the system as values; they are rendered to the "action:payload"
// wire form only at the Telegram boundary by Encode/Decode.
type Intent interface {
	isIntent()
}

// ReviewDone completes a task from a reminder or review grid.
type ReviewDone struct{ TaskID int64 }

// ReviewPostpone moves a task's deadline (and reminder) one day forward.
type ReviewPostpone struct{ TaskID int64 }

// TaskDone / TaskCancel are the per-task buttons under /tasks.
type TaskDone struct{ TaskID int64 }
type TaskCancel struct{ TaskID int64 }

// ClassifyCorrect confirms an auto-classification.
type ClassifyCorrect struct{ MessageID int64 }

// ClassifyWrong rejects an auto-classification; a "why?" follow-up may land.
type ClassifyWrong struct{ MessageID int64 }

// ClassifyUpgrade turns a LOW-band informational item into a task.
type ClassifyUpgrade struct{ MessageID int64 }

// ConfidenceYes confirms a MEDIUM-band item as a task.
type ConfidenceYes struct{ ItemID int64 }

// ConfidenceNo dismisses a MEDIUM-band item.
type ConfidenceNo struct{ ItemID int64 }

// ConfidenceLater leaves a MEDIUM-band item for the evening batch.
type ConfidenceLater struct{ ItemID int64 }

// BatchAll resolves every unresolved queue item as a task. Batch intents
// carry no ids: handlers re-query the unresolved queue, which keeps the
// callback inside Telegram's 64-byte limit.
type BatchAll struct{}

// BatchNone dismisses every unresolved queue item.
type BatchNone struct{}

// BatchPick expands the queue into per-item yes/no buttons.
type BatchPick struct{}

// TrackClose closes a tracked outgoing task after a completion verdict.
type TrackClose struct{ TaskID int64 }

// TrackWait keeps a tracked task open and pushes the next check out.
type TrackWait struct{ TaskID int64 }

// ContactMonitor whitelists a new contact's chat for classification.
type ContactMonitor struct{ ContactID int64 }

// ContactSave keeps storing a new contact's messages without classifying.
type ContactSave struct{ ContactID int64 }

// ContactIgnore blacklists a new contact's chat.
type ContactIgnore struct{ ContactID int64 }

// WhitelistAdd / WhitelistRemove mutate the monitored-group set.
type WhitelistAdd struct{ ChatID int64 }
type WhitelistRemove struct{ ChatID int64 }

// WhitelistManage opens the known-chats toggle grid; Clear empties the
// set; Close collapses the grid back to a one-line summary.
type WhitelistManage struct{}
type WhitelistClear struct{}
type WhitelistClose struct{}

// WhitelistForwardAdd confirms adding a forwarded-from chat;
// WhitelistForwardSkip declines.
type WhitelistForwardAdd struct{ ChatID int64 }
type WhitelistForwardSkip struct{}

// BlacklistAdd / BlacklistRemove mutate the ignore set.
type BlacklistAdd struct{ ChatID int64 }
type BlacklistRemove struct{ ChatID int64 }

type BlacklistManage struct{}
type BlacklistClear struct{}
type BlacklistClose struct{}

// SwitchMode selects the active LLM backend ("primary" or "fallback").
type SwitchMode struct{ Mode string }

// SetPreference updates one whitelisted owner preference.
type SetPreference struct{ Key, Value string }

func (ReviewDone) isIntent()           {}
func (ReviewPostpone) isIntent()       {}
func (TaskDone) isIntent()             {}
func (TaskCancel) isIntent()           {}
func (ClassifyCorrect) isIntent()      {}
func (ClassifyWrong) isIntent()        {}
func (ClassifyUpgrade) isIntent()      {}
func (ConfidenceYes) isIntent()        {}
func (ConfidenceNo) isIntent()         {}
func (ConfidenceLater) isIntent()      {}
func (BatchAll) isIntent()             {}
func (BatchNone) isIntent()            {}
func (BatchPick) isIntent()            {}
func (TrackClose) isIntent()           {}
func (TrackWait) isIntent()            {}
func (ContactMonitor) isIntent()       {}
func (ContactSave) isIntent()          {}
func (ContactIgnore) isIntent()        {}
func (WhitelistAdd) isIntent()         {}
func (WhitelistRemove) isIntent()      {}
func (WhitelistManage) isIntent()      {}
func (WhitelistClear) isIntent()       {}
func (WhitelistClose) isIntent()       {}
func (WhitelistForwardAdd) isIntent()  {}
func (WhitelistForwardSkip) isIntent() {}
func (BlacklistAdd) isIntent()         {}
func (BlacklistRemove) isIntent()      {}
func (BlacklistManage) isIntent()      {}
func (BlacklistClear) isIntent()       {}
func (BlacklistClose) isIntent()       {}
func (SwitchMode) isIntent()           {}
func (SetPreference) isIntent()        {}

// Wire action names. Telegram callback data is capped at 64 bytes, so
// payloads stay minimal: one id, or key=value for preferences.
const (
	actReviewDone       = "review_done"
	actReviewTomorrow   = "review_tomorrow"
	actTaskDone         = "task_done"
	actTaskCancel       = "task_cancel"
	actClassifyOK       = "clf_ok"
	actClassifyNo       = "clf_no"
	actClassifyUpgrade  = "clf_task"
	actConfidenceYes    = "conf_yes"
	actConfidenceNo     = "conf_no"
	actConfidenceLater  = "conf_later"
	actBatchAll         = "batch_all"
	actBatchNone        = "batch_none"
	actBatchPick        = "batch_pick"
	actTrackClose       = "track_close"
	actTrackWait        = "track_wait"
	actContactMonitor   = "contact_monitor"
	actContactSave      = "contact_save"
	actContactIgnore    = "contact_ignore"
	actWhitelistAdd     = "wl_add"
	actWhitelistDel     = "wl_del"
	actWhitelistManage  = "wl_manage"
	actWhitelistClear   = "wl_clear"
	actWhitelistClose   = "wl_close"
	actWhitelistFwdAdd  = "wl_fwd_add"
	actWhitelistFwdSkip = "wl_fwd_no"
	actBlacklistAdd     = "bl_add"
	actBlacklistDel     = "bl_del"
	actBlacklistManage  = "bl_manage"
	actBlacklistClear   = "bl_clear"
	actBlacklistClose   = "bl_close"
	actSwitchMode       = "switch_mode"
	actSetPref          = "set_pref"
)

// EncodeIntent renders an intent to its wire form.
func EncodeIntent(in Intent) (string, error) {
	switch v := in.(type) {
	case ReviewDone:
		return wire(actReviewDone, v.TaskID), nil
	case ReviewPostpone:
		return wire(actReviewTomorrow, v.TaskID), nil
	case TaskDone:
		return wire(actTaskDone, v.TaskID), nil
	case TaskCancel:
		return wire(actTaskCancel, v.TaskID), nil
	case ClassifyCorrect:
		return wire(actClassifyOK, v.MessageID), nil
	case ClassifyWrong:
		return wire(actClassifyNo, v.MessageID), nil
	case ClassifyUpgrade:
		return wire(actClassifyUpgrade, v.MessageID), nil
	case ConfidenceYes:
		return wire(actConfidenceYes, v.ItemID), nil
	case ConfidenceNo:
		return wire(actConfidenceNo, v.ItemID), nil
	case ConfidenceLater:
		return wire(actConfidenceLater, v.ItemID), nil
	case BatchAll:
		return actBatchAll, nil
	case BatchNone:
		return actBatchNone, nil
	case BatchPick:
		return actBatchPick, nil
	case TrackClose:
		return wire(actTrackClose, v.TaskID), nil
	case TrackWait:
		return wire(actTrackWait, v.TaskID), nil
	case ContactMonitor:
		return wire(actContactMonitor, v.ContactID), nil
	case ContactSave:
		return wire(actContactSave, v.ContactID), nil
	case ContactIgnore:
		return wire(actContactIgnore, v.ContactID), nil
	case WhitelistAdd:
		return wire(actWhitelistAdd, v.ChatID), nil
	case WhitelistRemove:
		return wire(actWhitelistDel, v.ChatID), nil
	case WhitelistManage:
		return actWhitelistManage, nil
	case WhitelistClear:
		return actWhitelistClear, nil
	case WhitelistClose:
		return actWhitelistClose, nil
	case WhitelistForwardAdd:
		return wire(actWhitelistFwdAdd, v.ChatID), nil
	case WhitelistForwardSkip:
		return actWhitelistFwdSkip, nil
	case BlacklistAdd:
		return wire(actBlacklistAdd, v.ChatID), nil
	case BlacklistRemove:
		return wire(actBlacklistDel, v.ChatID), nil
	case BlacklistManage:
		return actBlacklistManage, nil
	case BlacklistClear:
		return actBlacklistClear, nil
	case BlacklistClose:
		return actBlacklistClose, nil
	case SwitchMode:
		return actSwitchMode + ":" + v.Mode, nil
	case SetPreference:
		return actSetPref + ":" + v.Key + "=" + v.Value, nil
	default:
		return "", fmt.Errorf("unknown intent %T", in)
	}
}

// DecodeIntent parses the wire form back into a typed intent.
func DecodeIntent(data string) (Intent, error) {
	action, payload, _ := strings.Cut(data, ":")
	switch action {
	case actBatchAll:
		return BatchAll{}, nil
	case actBatchNone:
		return BatchNone{}, nil
	case actBatchPick:
		return BatchPick{}, nil
	case actWhitelistManage:
		return WhitelistManage{}, nil
	case actWhitelistClear:
		return WhitelistClear{}, nil
	case actWhitelistClose:
		return WhitelistClose{}, nil
	case actWhitelistFwdSkip:
		return WhitelistForwardSkip{}, nil
	case actBlacklistManage:
		return BlacklistManage{}, nil
	case actBlacklistClear:
		return BlacklistClear{}, nil
	case actBlacklistClose:
		return BlacklistClose{}, nil
	case actSwitchMode:
		if payload != "primary" && payload != "fallback" {
			return nil, fmt.Errorf("bad switch_mode payload %q", payload)
		}
		return SwitchMode{Mode: payload}, nil
	case actSetPref:
		key, value, ok := strings.Cut(payload, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad set_pref payload %q", payload)
		}
		return SetPreference{Key: key, Value: value}, nil
	}

	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad payload in %q: %w", data, err)
	}
	switch action {
	case actReviewDone:
		return ReviewDone{TaskID: id}, nil
	case actReviewTomorrow:
		return ReviewPostpone{TaskID: id}, nil
	case actTaskDone:
		return TaskDone{TaskID: id}, nil
	case actTaskCancel:
		return TaskCancel{TaskID: id}, nil
	case actClassifyOK:
		return ClassifyCorrect{MessageID: id}, nil
	case actClassifyNo:
		return ClassifyWrong{MessageID: id}, nil
	case actClassifyUpgrade:
		return ClassifyUpgrade{MessageID: id}, nil
	case actConfidenceYes:
		return ConfidenceYes{ItemID: id}, nil
	case actConfidenceNo:
		return ConfidenceNo{ItemID: id}, nil
	case actConfidenceLater:
		return ConfidenceLater{ItemID: id}, nil
	case actTrackClose:
		return TrackClose{TaskID: id}, nil
	case actTrackWait:
		return TrackWait{TaskID: id}, nil
	case actContactMonitor:
		return ContactMonitor{ContactID: id}, nil
	case actContactSave:
		return ContactSave{ContactID: id}, nil
	case actContactIgnore:
		return ContactIgnore{ContactID: id}, nil
	case actWhitelistAdd:
		return WhitelistAdd{ChatID: id}, nil
	case actWhitelistDel:
		return WhitelistRemove{ChatID: id}, nil
	case actWhitelistFwdAdd:
		return WhitelistForwardAdd{ChatID: id}, nil
	case actBlacklistAdd:
		return BlacklistAdd{ChatID: id}, nil
	case actBlacklistDel:
		return BlacklistRemove{ChatID: id}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func wire(action string, id int64) string {
	return action + ":" + strconv.FormatInt(id, 10)
}
