package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/attache/internal/store"
)

// TaskService is the mutating slice of the task engine the tools consume.
type TaskService interface {
	Create(ctx context.Context, t *store.Task) (*store.Task, bool, error)
	Complete(ctx context.Context, id int64) (closed *store.Task, respawned *store.Task, err error)
	Cancel(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64, fields map[string]any) error
	Get(ctx context.Context, id int64) (*store.Task, error)
}

// TaskLister is the read slice list_tasks consumes.
type TaskLister interface {
	Active(ctx context.Context, typeFilter store.TaskType) ([]store.Task, error)
}

// taskView is the LLM-facing task shape.
type taskView struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Who         string `json:"who,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	RemindAt    string `json:"remind_at,omitempty"`
	Recurrence  string `json:"recurrence,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func viewOf(t *store.Task, loc *time.Location) taskView {
	v := taskView{
		ID:          t.ID,
		Type:        string(t.Type),
		Description: t.Description,
		Who:         t.Who,
		Recurrence:  string(t.Recurrence),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	}
	if t.Deadline != nil {
		v.Deadline = t.Deadline.Format("2006-01-02")
	}
	if t.RemindAt != nil {
		v.RemindAt = t.RemindAt.In(loc).Format("2006-01-02 15:04")
	}
	return v
}

// parseDate reads YYYY-MM-DD into the stored date form (UTC midnight).
func parseDate(s string) (*time.Time, error) {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("bad date %q, want YYYY-MM-DD", s)
	}
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

// parseMoment reads an owner-local timestamp, YYYY-MM-DD HH:MM or RFC3339.
func parseMoment(s string, loc *time.Location) (*time.Time, error) {
	if ts, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return &ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return &ts, nil
	}
	return nil, fmt.Errorf("bad time %q, want YYYY-MM-DD HH:MM", s)
}

func validTaskType(s string) bool {
	switch store.TaskType(s) {
	case store.TaskKindTask, store.TaskKindPromiseMine, store.TaskKindPromiseIncoming:
		return true
	}
	return false
}

func validRecurrence(s string) bool {
	switch store.Recurrence(s) {
	case store.RecurNone, store.RecurDaily, store.RecurWeekly, store.RecurMonthly:
		return true
	}
	return false
}

// argInt64 reads a numeric argument; JSON numbers decode as float64 but
// models occasionally send stringified ids.
func argInt64(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// --- create_task ---

type CreateTaskTool struct {
	svc TaskService
	loc *time.Location
}

func NewCreateTaskTool(svc TaskService, loc *time.Location) *CreateTaskTool {
	return &CreateTaskTool{svc: svc, loc: loc}
}

func (t *CreateTaskTool) Name() string { return "create_task" }

func (t *CreateTaskTool) Description() string {
	return "Create a new task or promise. Checks for similar active tasks first and reports a duplicate instead of creating one."
}

func (t *CreateTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"description": map[string]interface{}{
				"type":        "string",
				"description": "What has to be done, in the owner's language.",
			},
			"task_type": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"task", "promise_mine", "promise_incoming"},
				"description": "task = owner's to-do; promise_mine = owner promised someone; promise_incoming = someone promised the owner.",
			},
			"deadline": map[string]interface{}{
				"type":        "string",
				"description": "Due date, YYYY-MM-DD.",
			},
			"who": map[string]interface{}{
				"type":        "string",
				"description": "Counterparty name, if any.",
			},
			"remind_at": map[string]interface{}{
				"type":        "string",
				"description": "When to remind, YYYY-MM-DD HH:MM in the owner's timezone.",
			},
			"recurrence": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"daily", "weekly", "monthly"},
				"description": "Respawn period for recurring tasks.",
			},
		},
		"required": []string{"description"},
	}
}

func (t *CreateTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	description, _ := args["description"].(string)
	if description == "" {
		return ErrorResult("description is required")
	}

	taskType := "task"
	if v, _ := args["task_type"].(string); v != "" {
		if !validTaskType(v) {
			return ErrorResult("task_type must be one of task, promise_mine, promise_incoming")
		}
		taskType = v
	}

	task := &store.Task{
		Type:        store.TaskType(taskType),
		Description: description,
		Source:      "assistant",
		Confidence:  100,
		Status:      store.TaskActive,
	}
	if v, _ := args["who"].(string); v != "" {
		task.Who = v
	}
	if v, _ := args["deadline"].(string); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return ErrorResult(err.Error())
		}
		task.Deadline = d
	}
	if v, _ := args["remind_at"].(string); v != "" {
		ts, err := parseMoment(v, t.loc)
		if err != nil {
			return ErrorResult(err.Error())
		}
		task.RemindAt = ts
	}
	if v, _ := args["recurrence"].(string); v != "" {
		if !validRecurrence(v) {
			return ErrorResult("recurrence must be one of daily, weekly, monthly")
		}
		task.Recurrence = store.Recurrence(v)
	}

	stored, created, err := t.svc.Create(ctx, task)
	if err != nil {
		return ErrorResult("create failed: " + err.Error()).WithError(err)
	}
	if !created {
		return jsonResult(map[string]any{
			"duplicate":     true,
			"existing_task": viewOf(stored, t.loc),
		})
	}
	return jsonResult(map[string]any{"created": true, "task_id": stored.ID})
}

// --- list_tasks ---

type ListTasksTool struct {
	svc TaskLister
	loc *time.Location
}

func NewListTasksTool(svc TaskLister, loc *time.Location) *ListTasksTool {
	return &ListTasksTool{svc: svc, loc: loc}
}

func (t *ListTasksTool) Name() string { return "list_tasks" }

func (t *ListTasksTool) Description() string {
	return "List active tasks and promises, optionally filtered by type."
}

func (t *ListTasksTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_type": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"task", "promise_mine", "promise_incoming"},
				"description": "Only return tasks of this type.",
			},
		},
	}
}

func (t *ListTasksTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	var filter store.TaskType
	if v, _ := args["task_type"].(string); v != "" {
		if !validTaskType(v) {
			return ErrorResult("task_type must be one of task, promise_mine, promise_incoming")
		}
		filter = store.TaskType(v)
	}
	active, err := t.svc.Active(ctx, filter)
	if err != nil {
		return ErrorResult("list failed: " + err.Error()).WithError(err)
	}
	views := make([]taskView, 0, len(active))
	for i := range active {
		views = append(views, viewOf(&active[i], t.loc))
	}
	return jsonResult(map[string]any{"count": len(views), "tasks": views})
}

// --- complete_task ---

type CompleteTaskTool struct {
	svc TaskService
	loc *time.Location
}

func NewCompleteTaskTool(svc TaskService, loc *time.Location) *CompleteTaskTool {
	return &CompleteTaskTool{svc: svc, loc: loc}
}

func (t *CompleteTaskTool) Name() string { return "complete_task" }

func (t *CompleteTaskTool) Description() string {
	return "Mark a task as done. Recurring tasks are closed and rescheduled for the next occurrence."
}

func (t *CompleteTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "number",
				"description": "Id of the task to complete.",
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *CompleteTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := argInt64(args, "task_id")
	if !ok {
		return ErrorResult("task_id is required")
	}
	closed, respawned, err := t.svc.Complete(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResult(fmt.Sprintf("task %d not found", id))
		}
		return ErrorResult("complete failed: " + err.Error()).WithError(err)
	}
	out := map[string]any{"completed": true, "task": viewOf(closed, t.loc)}
	if respawned != nil {
		out["next_occurrence"] = viewOf(respawned, t.loc)
	}
	return jsonResult(out)
}

// --- cancel_task ---

type CancelTaskTool struct {
	svc TaskService
}

func NewCancelTaskTool(svc TaskService) *CancelTaskTool {
	return &CancelTaskTool{svc: svc}
}

func (t *CancelTaskTool) Name() string { return "cancel_task" }

func (t *CancelTaskTool) Description() string {
	return "Cancel a task that is no longer relevant."
}

func (t *CancelTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "number",
				"description": "Id of the task to cancel.",
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *CancelTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := argInt64(args, "task_id")
	if !ok {
		return ErrorResult("task_id is required")
	}
	if err := t.svc.Cancel(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResult(fmt.Sprintf("task %d not found", id))
		}
		return ErrorResult("cancel failed: " + err.Error()).WithError(err)
	}
	return jsonResult(map[string]any{"cancelled": true, "task_id": id})
}

// --- update_task ---

type UpdateTaskTool struct {
	svc TaskService
	loc *time.Location
}

func NewUpdateTaskTool(svc TaskService, loc *time.Location) *UpdateTaskTool {
	return &UpdateTaskTool{svc: svc, loc: loc}
}

func (t *UpdateTaskTool) Name() string { return "update_task" }

func (t *UpdateTaskTool) Description() string {
	return "Change fields of an existing task: description, deadline, counterparty, reminder or recurrence."
}

func (t *UpdateTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "number",
				"description": "Id of the task to update.",
			},
			"description": map[string]interface{}{"type": "string"},
			"deadline": map[string]interface{}{
				"type":        "string",
				"description": "New due date, YYYY-MM-DD. Empty string clears it.",
			},
			"who": map[string]interface{}{"type": "string"},
			"remind_at": map[string]interface{}{
				"type":        "string",
				"description": "New reminder, YYYY-MM-DD HH:MM in the owner's timezone. Empty string clears it.",
			},
			"recurrence": map[string]interface{}{
				"type": "string",
				"enum": []string{"", "daily", "weekly", "monthly"},
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *UpdateTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, ok := argInt64(args, "task_id")
	if !ok {
		return ErrorResult("task_id is required")
	}
	if _, err := t.svc.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResult(fmt.Sprintf("task %d not found", id))
		}
		return ErrorResult("lookup failed: " + err.Error()).WithError(err)
	}

	fields := make(map[string]any)
	if v, present := args["description"]; present {
		s, _ := v.(string)
		if s == "" {
			return ErrorResult("description cannot be empty")
		}
		fields["description"] = s
	}
	if v, present := args["who"]; present {
		s, _ := v.(string)
		fields["who"] = s
	}
	if v, present := args["deadline"]; present {
		s, _ := v.(string)
		if s == "" {
			fields["deadline"] = (*time.Time)(nil)
		} else {
			d, err := parseDate(s)
			if err != nil {
				return ErrorResult(err.Error())
			}
			fields["deadline"] = d
		}
	}
	if v, present := args["remind_at"]; present {
		s, _ := v.(string)
		if s == "" {
			fields["remind_at"] = (*time.Time)(nil)
		} else {
			ts, err := parseMoment(s, t.loc)
			if err != nil {
				return ErrorResult(err.Error())
			}
			fields["remind_at"] = ts
		}
	}
	if v, present := args["recurrence"]; present {
		s, _ := v.(string)
		if !validRecurrence(s) {
			return ErrorResult("recurrence must be one of daily, weekly, monthly or empty")
		}
		fields["recurrence"] = s
	}
	if len(fields) == 0 {
		return ErrorResult("nothing to update")
	}

	if err := t.svc.Update(ctx, id, fields); err != nil {
		return ErrorResult("update failed: " + err.Error()).WithError(err)
	}
	updated, err := t.svc.Get(ctx, id)
	if err != nil {
		return jsonResult(map[string]any{"updated": true, "task_id": id})
	}
	return jsonResult(map[string]any{"updated": true, "task": viewOf(updated, t.loc)})
}
