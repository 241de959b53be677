package tools

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"taskchat/app/core/orchestrator/task"
)

const (
	maxTitleRunes       = 500
	maxDescriptionRunes = 5000
)

// Executor performs exactly one catalog operation per call against the task
// store. Owner isolation is enforced on every query; the owner id comes from
// the caller, never from tool arguments.
type Executor struct {
	tasks *task.Store
}

func NewExecutor(tasks *task.Store) *Executor {
	return &Executor{tasks: tasks}
}

// DecodeArguments parses a model-proposed argument payload. Models
// occasionally emit junk, so anything that is not a JSON object is an
// InvalidArgument rather than a crash.
func DecodeArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	if !gjson.Valid(raw) {
		return nil, invalidArgumentf("malformed tool arguments: not valid JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, invalidArgumentf("malformed tool arguments: expected a JSON object")
	}
	value, _ := parsed.Value().(map[string]interface{})
	if value == nil {
		value = map[string]interface{}{}
	}
	return value, nil
}

func (e *Executor) Execute(ctx context.Context, owner string, name string, args map[string]interface{}) (interface{}, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	manifest, ok := Lookup(name)
	if !ok {
		return nil, invalidArgumentf("unknown tool: %s", name)
	}
	for key := range args {
		if _, known := manifest.Parameters[key]; !known {
			return nil, invalidArgumentf("unexpected argument %q for %s", key, manifest.Name)
		}
	}

	switch name {
	case "add_task":
		return e.addTask(ctx, owner, args)
	case "list_tasks":
		return e.listTasks(ctx, owner, args)
	case "complete_task":
		return e.completeTask(ctx, owner, args)
	case "update_task":
		return e.updateTask(ctx, owner, args)
	case "delete_task":
		return e.deleteTask(ctx, owner, args)
	default:
		return nil, invalidArgumentf("unknown tool: %s", name)
	}
}

func (e *Executor) addTask(ctx context.Context, owner string, args map[string]interface{}) (interface{}, error) {
	title, err := argString(args, "title")
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalidArgumentf("Task title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return nil, invalidArgumentf("Task title exceeds %d characters", maxTitleRunes)
	}

	description, err := argString(args, "description")
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(description) > maxDescriptionRunes {
		return nil, invalidArgumentf("Task description exceeds %d characters", maxDescriptionRunes)
	}

	dueRaw, err := argString(args, "due_date")
	if err != nil {
		return nil, err
	}
	var due int64
	if strings.TrimSpace(dueRaw) != "" {
		due, err = parseDueDate(dueRaw)
		if err != nil {
			return nil, err
		}
	}

	created, err := e.tasks.Create(ctx, owner, title, description, due)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"task_id": created.ID,
		"task":    serializeTask(created),
	}, nil
}

func (e *Executor) listTasks(ctx context.Context, owner string, args map[string]interface{}) (interface{}, error) {
	status, err := argString(args, "status")
	if err != nil {
		return nil, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", task.StatusAll, task.StatusPending, task.StatusCompleted:
	default:
		return nil, invalidArgumentf("invalid status %q: use all, pending or completed", status)
	}

	items, err := e.tasks.List(ctx, owner, status, 0)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(items))
	for _, t := range items {
		out = append(out, serializeTask(t))
	}
	return out, nil
}

func (e *Executor) completeTask(ctx context.Context, owner string, args map[string]interface{}) (interface{}, error) {
	target, err := e.resolveTarget(ctx, owner, args, "title")
	if err != nil {
		return nil, err
	}
	updated, err := e.tasks.Complete(ctx, owner, target.ID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return map[string]interface{}{
		"success": true,
		"task_id": updated.ID,
		"task":    serializeTask(updated),
	}, nil
}

func (e *Executor) updateTask(ctx context.Context, owner string, args map[string]interface{}) (interface{}, error) {
	target, err := e.resolveTarget(ctx, owner, args, "current_title")
	if err != nil {
		return nil, err
	}

	var update task.Update
	if raw, present := args["title"]; present {
		title, ok := raw.(string)
		if !ok {
			return nil, invalidArgumentf("title must be a string")
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, invalidArgumentf("Task title cannot be empty")
		}
		if utf8.RuneCountInString(title) > maxTitleRunes {
			return nil, invalidArgumentf("Task title exceeds %d characters", maxTitleRunes)
		}
		update.Title = &title
	}
	if raw, present := args["description"]; present {
		description, ok := raw.(string)
		if !ok {
			return nil, invalidArgumentf("description must be a string")
		}
		if utf8.RuneCountInString(description) > maxDescriptionRunes {
			return nil, invalidArgumentf("Task description exceeds %d characters", maxDescriptionRunes)
		}
		update.Description = &description
	}
	if raw, present := args["due_date"]; present {
		dueRaw, ok := raw.(string)
		if !ok {
			return nil, invalidArgumentf("due_date must be a string")
		}
		due, err := parseDueDate(dueRaw)
		if err != nil {
			return nil, err
		}
		update.DueDate = &due
	}

	updated, err := e.tasks.Apply(ctx, owner, target.ID, update)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return map[string]interface{}{
		"success": true,
		"status":  "updated",
		"task_id": updated.ID,
		"title":   updated.Title,
		"task":    serializeTask(updated),
	}, nil
}

func (e *Executor) deleteTask(ctx context.Context, owner string, args map[string]interface{}) (interface{}, error) {
	target, err := e.resolveTarget(ctx, owner, args, "title")
	if err != nil {
		return nil, err
	}
	removed, err := e.tasks.Delete(ctx, owner, target.ID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return map[string]interface{}{
		"success": true,
		"status":  "deleted",
		"task_id": removed.ID,
		"title":   removed.Title,
	}, nil
}

// resolveTarget finds the operation's task either by id or by the named
// title argument (substring, case-insensitive, scoped to the owner).
func (e *Executor) resolveTarget(ctx context.Context, owner string, args map[string]interface{}, titleKey string) (task.Task, error) {
	id, err := argString(args, "task_id")
	if err != nil {
		return task.Task{}, err
	}
	if id = strings.TrimSpace(id); id != "" {
		found, err := e.tasks.Get(ctx, owner, id)
		if err != nil {
			return task.Task{}, mapStoreErr(err)
		}
		return found, nil
	}

	title, err := argString(args, titleKey)
	if err != nil {
		return task.Task{}, err
	}
	if title = strings.TrimSpace(title); title == "" {
		return task.Task{}, invalidArgumentf("either task_id or %s is required", titleKey)
	}
	found, err := e.tasks.FindByTitle(ctx, owner, title)
	if err != nil {
		return task.Task{}, mapStoreErr(err)
	}
	return found, nil
}

func argString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", invalidArgumentf("%s must be a string", key)
	}
	return value, nil
}

func parseDueDate(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.Unix(), nil
		}
	}
	return 0, invalidArgumentf("Invalid due_date format: %s. Use YYYY-MM-DD or ISO format", raw)
}

func mapStoreErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// serializeTask renders a task for tool results and the protocol boundary.
// Dates are ISO-8601 strings; due_date is null when unset.
func serializeTask(t task.Task) map[string]interface{} {
	var due interface{}
	if t.DueDate > 0 {
		due = time.Unix(t.DueDate, 0).UTC().Format(time.RFC3339)
	}
	return map[string]interface{}{
		"id":          t.ID,
		"user_id":     t.UserID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"due_date":    due,
		"created_at":  time.Unix(t.CreatedAt, 0).UTC().Format(time.RFC3339),
		"updated_at":  time.Unix(t.UpdatedAt, 0).UTC().Format(time.RFC3339),
	}
}
