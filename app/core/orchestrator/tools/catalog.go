package tools

// Manifest declares one task operation: its name, a model-facing description
// and a JSON-schema-shaped parameter object. The catalog is pure data and the
// single source of truth shared by the model schema and the executor's
// argument validation; the two drifting apart is a defect. Owner identity is
// never part of any schema — it is injected server-side on every call.
type Manifest struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Required    []string
}

// Schema returns the JSON-schema parameter object presented to the model and
// to protocol-tool listings.
func (m Manifest) Schema() map[string]interface{} {
	required := m.Required
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": m.Parameters,
		"required":   required,
	}
}

func Manifests() []Manifest {
	return []Manifest{
		{
			Name:        "add_task",
			Description: "Create a new task with title and optional description. Use this when the user wants to add a new todo item.",
			Parameters: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Task title - use exactly what user says",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Task description - only include if user explicitly provides one",
				},
				"due_date": map[string]interface{}{
					"type":        "string",
					"description": "Optional due date in YYYY-MM-DD or ISO format",
				},
			},
			Required: []string{"title"},
		},
		{
			Name:        "list_tasks",
			Description: "Show the user's tasks, optionally filtered by status.",
			Parameters: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"all", "pending", "completed"},
					"description": "Filter by status",
				},
			},
		},
		{
			Name:        "update_task",
			Description: "Update or rename a task. MUST extract current_title (old name) and title (new name) from user message. Example: 'rename X to Y' means current_title=X, title=Y",
			Parameters: map[string]interface{}{
				"current_title": map[string]interface{}{
					"type":        "string",
					"description": "Current task title to find (the old name before 'to')",
				},
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the task to update, when known instead of current_title",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "New title to set (the new name after 'to')",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "New description (optional)",
				},
				"due_date": map[string]interface{}{
					"type":        "string",
					"description": "New due date in YYYY-MM-DD or ISO format (optional)",
				},
			},
			Required: []string{"current_title"},
		},
		{
			Name:        "delete_task",
			Description: "Delete a task by title. Use this when the user wants to remove a task.",
			Parameters: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Task title to delete",
				},
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the task to delete, when known instead of title",
				},
			},
			Required: []string{"title"},
		},
		{
			Name:        "complete_task",
			Description: "Mark a task as complete. Use this when the user indicates they finished a task.",
			Parameters: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Task title to complete",
				},
				"task_id": map[string]interface{}{
					"type":        "string",
					"description": "Id of the task to complete, when known instead of title",
				},
			},
			Required: []string{"title"},
		},
	}
}

func Lookup(name string) (Manifest, bool) {
	for _, m := range Manifests() {
		if m.Name == name {
			return m, true
		}
	}
	return Manifest{}, false
}
