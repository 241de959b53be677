package agent

import (
	"fmt"
	"strings"

	"taskchat/app/pkg/types"
)

// Synthesize turns executed tool-call records into one user-facing
// confirmation string. It is a pure function and never fails: malformed
// result shapes degrade to a best-effort message.
func Synthesize(records []types.ToolCallRecord) string {
	if len(records) == 0 {
		return "I'm here to help with your tasks!"
	}

	parts := make([]string, 0, len(records))
	for _, record := range records {
		if rendered := renderRecord(record); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	if len(parts) == 0 {
		return "Task operation completed!"
	}
	return strings.Join(parts, "\n\n")
}

func renderRecord(record types.ToolCallRecord) string {
	if record.Error != "" {
		return renderError(record)
	}

	switch record.Tool {
	case "add_task":
		return fmt.Sprintf("✅ I've added '%s' to your task list!", resultTitle(record))
	case "list_tasks":
		return renderTaskList(record.Result)
	case "delete_task":
		return fmt.Sprintf("🗑️ I've removed '%s' from your task list.", resultTitle(record))
	case "update_task":
		result := asMap(record.Result)
		if stringField(result, "status") == "updated" {
			oldTitle := stringField(record.Arguments, "current_title")
			if oldTitle == "" {
				oldTitle = "task"
			}
			return fmt.Sprintf("✏️ I've updated '%s' to '%s' successfully!", oldTitle, resultTitle(record))
		}
		return "❌ Task not found or couldn't be updated. Please check the task name."
	case "complete_task":
		return fmt.Sprintf("🎉 Great! I've marked '%s' as completed!", resultTitle(record))
	}
	return "Task operation completed!"
}

func renderError(record types.ToolCallRecord) string {
	if strings.Contains(strings.ToLower(record.Error), "not found") {
		title := stringField(record.Arguments, "title")
		if title == "" {
			title = stringField(record.Arguments, "current_title")
		}
		if title != "" {
			return fmt.Sprintf("❌ Task '%s' not found. Please check the task name.", title)
		}
		return "❌ Task not found. Please check the task name."
	}
	return "❌ " + record.Error
}

func renderTaskList(result interface{}) string {
	tasks := asList(result)
	if tasks == nil {
		// some shapes wrap the list in a map
		wrapped := asMap(result)
		if inner := asList(wrapped["data"]); inner != nil {
			tasks = inner
		} else if inner := asList(wrapped["tasks"]); inner != nil {
			tasks = inner
		}
	}
	if len(tasks) == 0 {
		return "📝 You don't have any tasks yet."
	}

	var b strings.Builder
	b.WriteString("📋 **Your Tasks:**\n\n")
	line := 0
	for _, raw := range tasks {
		item := asMap(raw)
		if item == nil {
			continue
		}
		line++
		status := "⏳"
		if completed, _ := item["completed"].(bool); completed {
			status = "✅"
		}
		title := stringField(item, "title")
		if title == "" {
			title = "Untitled"
		}
		b.WriteString(fmt.Sprintf("%d. %s %s", line, status, title))
		if desc := stringField(item, "description"); desc != "" {
			b.WriteString(" - " + desc)
		}
		b.WriteString("\n")
	}
	if line == 0 {
		return "📝 You don't have any tasks yet."
	}
	return b.String()
}

// resultTitle digs the task title out of a tool result, falling back to the
// nested task object, then the call arguments, then a generic word.
func resultTitle(record types.ToolCallRecord) string {
	result := asMap(record.Result)
	if title := stringField(result, "title"); title != "" {
		return title
	}
	if nested := asMap(result["task"]); nested != nil {
		if title := stringField(nested, "title"); title != "" {
			return title
		}
	}
	if title := stringField(record.Arguments, "title"); title != "" {
		return title
	}
	return "task"
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
