package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"taskchat/app/core/orchestrator/db"
	"taskchat/app/core/orchestrator/task"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return NewExecutor(task.NewStore(database))
}

func mustExecute(t *testing.T, e *Executor, owner, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	result, err := e.Execute(context.Background(), owner, name, args)
	if err != nil {
		t.Fatalf("execute %s: %v", name, err)
	}
	m, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map result from %s, got %T", name, result)
	}
	return m
}

func TestDecodeArguments(t *testing.T) {
	args, err := DecodeArguments(`{"title": "buy milk"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args["title"] != "buy milk" {
		t.Fatalf("unexpected args: %v", args)
	}

	if args, err := DecodeArguments(""); err != nil || len(args) != 0 {
		t.Fatalf("empty payload must decode to empty map, got %v %v", args, err)
	}

	for _, bad := range []string{`not json`, `[1,2]`, `"text"`} {
		if _, err := DecodeArguments(bad); !IsInvalidArgument(err) {
			t.Fatalf("expected InvalidArgument for %q, got %v", bad, err)
		}
	}
}

func TestAddTask(t *testing.T) {
	e := newTestExecutor(t)

	result := mustExecute(t, e, "u1", "add_task", map[string]interface{}{
		"title":       "  buy milk  ",
		"description": "2 liters",
	})
	if result["success"] != true {
		t.Fatalf("expected success, got %v", result)
	}
	created, _ := result["task"].(map[string]interface{})
	if created["title"] != "buy milk" {
		t.Fatalf("title not trimmed: %v", created["title"])
	}
	if created["completed"] != false {
		t.Fatalf("new task must be pending: %v", created)
	}
	if created["due_date"] != nil {
		t.Fatalf("expected null due_date, got %v", created["due_date"])
	}
}

func TestAddTaskValidation(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	cases := []map[string]interface{}{
		{},
		{"title": "   "},
		{"title": 42},
		{"title": strings.Repeat("x", maxTitleRunes+1)},
		{"title": "ok", "description": strings.Repeat("d", maxDescriptionRunes+1)},
	}
	for i, args := range cases {
		if _, err := e.Execute(ctx, "u1", "add_task", args); !IsInvalidArgument(err) {
			t.Fatalf("case %d: expected InvalidArgument, got %v", i, err)
		}
	}
}

func TestAddTaskWithDueDate(t *testing.T) {
	e := newTestExecutor(t)

	result := mustExecute(t, e, "u1", "add_task", map[string]interface{}{
		"title":    "pay rent",
		"due_date": "2026-10-01",
	})
	created, _ := result["task"].(map[string]interface{})
	due, _ := created["due_date"].(string)
	if !strings.HasPrefix(due, "2026-10-01") {
		t.Fatalf("unexpected due date: %v", created["due_date"])
	}
}

func TestInvalidDueDateFormats(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	for _, bad := range []string{"next tuesday", "10/01/2026", "2026-13-45"} {
		_, err := e.Execute(ctx, "u1", "add_task", map[string]interface{}{
			"title":    "pay rent",
			"due_date": bad,
		})
		if !IsInvalidArgument(err) {
			t.Fatalf("expected InvalidArgument for %q, got %v", bad, err)
		}
		if !strings.Contains(err.Error(), "Invalid due_date format") {
			t.Fatalf("unexpected message: %v", err)
		}
	}
}

func TestListTasks(t *testing.T) {
	e := newTestExecutor(t)

	mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "first"})
	mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "second"})
	mustExecute(t, e, "u1", "complete_task", map[string]interface{}{"title": "first"})

	result, err := e.Execute(context.Background(), "u1", "list_tasks", map[string]interface{}{"status": "pending"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	items, ok := result.([]interface{})
	if !ok {
		t.Fatalf("expected list result, got %T", result)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 pending task, got %d", len(items))
	}
	pending, _ := items[0].(map[string]interface{})
	if pending["title"] != "second" {
		t.Fatalf("unexpected pending task: %v", pending)
	}

	if _, err := e.Execute(context.Background(), "u1", "list_tasks", map[string]interface{}{"status": "someday"}); !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument for bad status, got %v", err)
	}
}

func TestCompleteTaskByTitle(t *testing.T) {
	e := newTestExecutor(t)

	mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "Write Report"})
	result := mustExecute(t, e, "u1", "complete_task", map[string]interface{}{"title": "report"})
	completed, _ := result["task"].(map[string]interface{})
	if completed["completed"] != true {
		t.Fatalf("task not completed: %v", completed)
	}
}

func TestUpdateTaskRename(t *testing.T) {
	e := newTestExecutor(t)

	mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "buy milk"})
	result := mustExecute(t, e, "u1", "update_task", map[string]interface{}{
		"current_title": "milk",
		"title":         "buy oat milk",
	})
	if result["status"] != "updated" || result["title"] != "buy oat milk" {
		t.Fatalf("unexpected update result: %v", result)
	}

	_, err := e.Execute(context.Background(), "u1", "update_task", map[string]interface{}{
		"current_title": "oat milk",
		"title":         "   ",
	})
	if !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument for blank new title, got %v", err)
	}
	if err.Error() != "Task title cannot be empty" {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestUpdateTaskByID(t *testing.T) {
	e := newTestExecutor(t)

	added := mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "buy milk"})
	id, _ := added["task_id"].(string)

	result := mustExecute(t, e, "u1", "update_task", map[string]interface{}{
		"task_id": id,
		"title":   "buy bread",
	})
	if result["title"] != "buy bread" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestDeleteTask(t *testing.T) {
	e := newTestExecutor(t)

	mustExecute(t, e, "u1", "add_task", map[string]interface{}{"title": "temporary note"})
	result := mustExecute(t, e, "u1", "delete_task", map[string]interface{}{"title": "temporary"})
	if result["status"] != "deleted" || result["title"] != "temporary note" {
		t.Fatalf("unexpected delete result: %v", result)
	}

	listed, err := e.Execute(context.Background(), "u1", "list_tasks", map[string]interface{}{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items, _ := listed.([]interface{}); len(items) != 0 {
		t.Fatalf("expected no tasks after delete, got %v", listed)
	}
}

func TestNotFoundMapping(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	for _, name := range []string{"complete_task", "delete_task"} {
		_, err := e.Execute(ctx, "u1", name, map[string]interface{}{"title": "nonexistent"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
	_, err := e.Execute(ctx, "u1", "update_task", map[string]interface{}{"current_title": "nonexistent", "title": "new"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("update_task: expected ErrNotFound, got %v", err)
	}
}

func TestMissingTargetArgument(t *testing.T) {
	e := newTestExecutor(t)

	_, err := e.Execute(context.Background(), "u1", "delete_task", map[string]interface{}{})
	if !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestUnknownToolAndUnknownArgument(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "u1", "explode_task", map[string]interface{}{}); !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument for unknown tool, got %v", err)
	}
	if _, err := e.Execute(ctx, "u1", "add_task", map[string]interface{}{"title": "ok", "user_id": "mallory"}); !IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument for injected owner, got %v", err)
	}
}

func TestExecutorOwnerIsolation(t *testing.T) {
	e := newTestExecutor(t)
	ctx := context.Background()

	mustExecute(t, e, "alice", "add_task", map[string]interface{}{"title": "alice errand"})

	if _, err := e.Execute(ctx, "bob", "delete_task", map[string]interface{}{"title": "errand"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}

	listed, err := e.Execute(ctx, "bob", "list_tasks", map[string]interface{}{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items, _ := listed.([]interface{}); len(items) != 0 {
		t.Fatalf("bob must not see alice's tasks: %v", listed)
	}

	if _, err := e.Execute(ctx, "  ", "list_tasks", map[string]interface{}{}); err == nil {
		t.Fatal("expected error for blank owner")
	}
}
