package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	config "taskchat/app/configs"
	"taskchat/app/core/orchestrator/conversation"
	"taskchat/app/core/orchestrator/db"
	"taskchat/app/core/orchestrator/task"
	"taskchat/app/core/orchestrator/tools"
	"taskchat/app/core/provider"
	"taskchat/app/pkg/types"
)

// scriptedProvider returns a fixed result or error and records whether it was
// called.
type scriptedProvider struct {
	result provider.Result
	err    error
	called bool
}

func (p *scriptedProvider) Complete(ctx context.Context, req provider.Request) (provider.Result, error) {
	p.called = true
	if p.err != nil {
		return provider.Result{}, p.err
	}
	return p.result, nil
}

type testHarness struct {
	agent         *DefaultAgent
	tasks         *task.Store
	conversations *conversation.Store
}

func newTestAgent(t *testing.T, llm LLMProvider) *testHarness {
	t.Helper()
	database, err := db.NewSQLiteDB(t.TempDir())
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	tasks := task.NewStore(database)
	conversations := conversation.NewStore(database)
	executor := tools.NewExecutor(tasks)
	brain := NewAgent("TaskChat", llm, executor, conversations, config.ChatConfig{HistoryLimit: 40})
	return &testHarness{agent: brain, tasks: tasks, conversations: conversations}
}

func process(t *testing.T, h *testHarness, userID, content string) types.Message {
	t.Helper()
	reply, err := h.agent.Process(context.Background(), types.Message{
		ID:        "msg-test",
		Content:   content,
		Role:      types.MessageRoleUser,
		ChannelID: "cli",
		UserID:    userID,
	})
	if err != nil {
		t.Fatalf("process %q: %v", content, err)
	}
	return reply
}

func TestGreeting(t *testing.T) {
	llm := &scriptedProvider{err: errors.New("must not be called")}
	h := newTestAgent(t, llm)

	for _, text := range []string{"hi", "Hello", "HEY", "salam"} {
		reply := process(t, h, "u1", text)
		if !strings.Contains(reply.Content, "How can I help you with your tasks") {
			t.Fatalf("expected greeting for %q, got %q", text, reply.Content)
		}
		if len(reply.ToolCalls) != 0 {
			t.Fatalf("greeting must not run tools: %+v", reply.ToolCalls)
		}
	}
	if llm.called {
		t.Fatal("greeting must short-circuit before the model")
	}

	// substring of a longer message is not a greeting
	reply := process(t, h, "u1", "hit the lights")
	if strings.Contains(reply.Content, "How can I help you") {
		t.Fatalf("greeting matched a non-greeting message: %q", reply.Content)
	}
}

func TestHeuristicAdd(t *testing.T) {
	h := newTestAgent(t, nil)

	reply := process(t, h, "u1", "add buy milk")
	if !strings.Contains(reply.Content, "✅ I've added 'buy milk' to your task list!") {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Tool != "add_task" {
		t.Fatalf("expected one add_task record, got %+v", reply.ToolCalls)
	}
	if reply.ToolCalls[0].Arguments["user_id"] != "u1" {
		t.Fatalf("owner not recorded in arguments: %+v", reply.ToolCalls[0].Arguments)
	}

	items, err := h.tasks.List(context.Background(), "u1", task.StatusAll, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Title != "buy milk" {
		t.Fatalf("task not persisted: %+v", items)
	}
}

func TestHeuristicShowTasks(t *testing.T) {
	h := newTestAgent(t, nil)

	process(t, h, "u1", "add buy milk")
	reply := process(t, h, "u1", "show my tasks")
	if !strings.Contains(reply.Content, "📋 **Your Tasks:**") {
		t.Fatalf("expected task list, got %q", reply.Content)
	}
	if !strings.Contains(reply.Content, "1. ⏳ buy milk") {
		t.Fatalf("expected pending glyph and title, got %q", reply.Content)
	}
}

func TestHeuristicHelpFallback(t *testing.T) {
	h := newTestAgent(t, nil)

	reply := process(t, h, "u1", "what is the weather")
	if !strings.Contains(reply.Content, "I can help you manage tasks") {
		t.Fatalf("expected help text, got %q", reply.Content)
	}
	if len(reply.ToolCalls) != 0 {
		t.Fatalf("help reply must not run tools: %+v", reply.ToolCalls)
	}
}

func TestDirectRename(t *testing.T) {
	// a failing provider proves the direct path never consults the model
	llm := &scriptedProvider{err: errors.New("must not be called")}
	h := newTestAgent(t, llm)

	if _, err := h.tasks.Create(context.Background(), "u1", "buy milk", "", 0); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	reply := process(t, h, "u1", "rename buy milk to buy bread")
	if reply.Content != "✏️ I've updated 'buy milk' to 'buy bread' successfully!" {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
	if llm.called {
		t.Fatal("direct update must bypass the model")
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Tool != "update_task" {
		t.Fatalf("expected update_task record, got %+v", reply.ToolCalls)
	}

	renamed, err := h.tasks.FindByTitle(context.Background(), "u1", "bread")
	if err != nil {
		t.Fatalf("renamed task missing: %v", err)
	}
	if renamed.Title != "buy bread" {
		t.Fatalf("rename not persisted: %q", renamed.Title)
	}
}

func TestDirectRenameQuotedTarget(t *testing.T) {
	h := newTestAgent(t, nil)

	if _, err := h.tasks.Create(context.Background(), "u1", "old chore", "", 0); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	reply := process(t, h, "u1", `update old chore to "new chore"`)
	if !strings.Contains(reply.Content, "I've updated 'old chore' to 'new chore'") {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
}

func TestDirectRenameNotFound(t *testing.T) {
	h := newTestAgent(t, nil)

	reply := process(t, h, "u1", "rename phantom chore to real chore")
	if reply.Content != "❌ Task 'phantom chore' not found. Please check the task name." {
		t.Fatalf("unexpected reply: %q", reply.Content)
	}
	if len(reply.ToolCalls) != 0 {
		t.Fatalf("failed rename must not record a call: %+v", reply.ToolCalls)
	}
}

func TestModelProposedToolCall(t *testing.T) {
	llm := &scriptedProvider{result: provider.Result{
		Text: "model prose that should be discarded",
		ToolCalls: []provider.ToolCall{
			{ID: "call-1", Name: "add_task", Arguments: `{"title":"water the plants","user_id":"mallory"}`},
		},
	}}
	h := newTestAgent(t, llm)

	reply := process(t, h, "u1", "please remember to water the plants")
	if !llm.called {
		t.Fatal("model path not taken")
	}
	if !strings.Contains(reply.Content, "✅ I've added 'water the plants' to your task list!") {
		t.Fatalf("expected synthesized confirmation, got %q", reply.Content)
	}
	if strings.Contains(reply.Content, "model prose") {
		t.Fatal("model prose must be replaced when tools ran")
	}

	// the model-supplied owner is ignored; the task belongs to the session user
	items, err := h.tasks.List(context.Background(), "u1", task.StatusAll, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected task for session user, got %+v", items)
	}
	if reply.ToolCalls[0].Arguments["user_id"] != "u1" {
		t.Fatalf("recorded owner must be the session user: %+v", reply.ToolCalls[0].Arguments)
	}
}

func TestModelDeleteNotFound(t *testing.T) {
	llm := &scriptedProvider{result: provider.Result{
		ToolCalls: []provider.ToolCall{
			{ID: "call-1", Name: "delete_task", Arguments: `{"title":"nonexistent task"}`},
		},
	}}
	h := newTestAgent(t, llm)

	reply := process(t, h, "u1", "delete nonexistent task")
	if !strings.Contains(reply.Content, "not found") {
		t.Fatalf("expected not-found reply, got %q", reply.Content)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Error == "" {
		t.Fatalf("expected errored record, got %+v", reply.ToolCalls)
	}
}

func TestModelProseWithoutTools(t *testing.T) {
	llm := &scriptedProvider{result: provider.Result{Text: "You have a lot on your plate today."}}
	h := newTestAgent(t, llm)

	reply := process(t, h, "u1", "how does my day look")
	if reply.Content != "You have a lot on your plate today." {
		t.Fatalf("expected verbatim model text, got %q", reply.Content)
	}
	if len(reply.ToolCalls) != 0 {
		t.Fatalf("no tools should have run: %+v", reply.ToolCalls)
	}
}

func TestModelFailureFallsBackToHeuristics(t *testing.T) {
	llm := &scriptedProvider{err: errors.New("upstream timeout")}
	h := newTestAgent(t, llm)

	reply := process(t, h, "u1", "add call the plumber")
	if !llm.called {
		t.Fatal("model should have been tried first")
	}
	if !strings.Contains(reply.Content, "✅ I've added 'call the plumber'") {
		t.Fatalf("expected heuristic fallback, got %q", reply.Content)
	}
}

func TestConversationContinuity(t *testing.T) {
	h := newTestAgent(t, nil)
	ctx := context.Background()

	first := process(t, h, "u1", "add buy milk")
	if first.ConversationID == "" {
		t.Fatal("reply must carry the conversation id")
	}

	second, err := h.agent.Process(ctx, types.Message{
		ID:             "msg-2",
		Content:        "show tasks",
		Role:           types.MessageRoleUser,
		ChannelID:      "cli",
		UserID:         "u1",
		ConversationID: first.ConversationID,
	})
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Fatalf("conversation id changed: %s vs %s", first.ConversationID, second.ConversationID)
	}

	history, err := h.conversations.History(ctx, "u1", first.ConversationID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 persisted turns, got %d", len(history))
	}
	if history[0].Role != types.MessageRoleUser || history[1].Role != types.MessageRoleAssistant {
		t.Fatalf("unexpected turn order: %+v", history)
	}
	if history[1].ToolCalls == "" {
		t.Fatal("assistant turn with tools must persist tool calls")
	}
}

func TestOwnerIsolationEndToEnd(t *testing.T) {
	h := newTestAgent(t, nil)

	process(t, h, "alice", "add secret errand")
	reply := process(t, h, "bob", "show my tasks")
	if !strings.Contains(reply.Content, "don't have any tasks yet") {
		t.Fatalf("bob must see an empty list, got %q", reply.Content)
	}
}

func TestEmptyMessage(t *testing.T) {
	h := newTestAgent(t, nil)

	reply := process(t, h, "u1", "   ")
	if reply.Content != "" {
		t.Fatalf("expected empty reply, got %q", reply.Content)
	}
	if reply.ConversationID != "" {
		t.Fatal("blank input must not open a conversation")
	}
}

func TestEncodeToolCalls(t *testing.T) {
	if encodeToolCalls(nil) != "" {
		t.Fatal("no records must encode to empty string")
	}

	payload := encodeToolCalls([]types.ToolCallRecord{
		{
			Tool:      "add_task",
			Arguments: map[string]interface{}{"title": "buy milk", "user_id": "u1"},
			Result:    map[string]interface{}{"success": true},
		},
		{
			Tool:      "delete_task",
			Arguments: map[string]interface{}{"title": "ghost", "user_id": "u1"},
			Error:     "task not found",
		},
	})
	for _, want := range []string{`"tool":"add_task"`, `"title":"buy milk"`, `"success":true`, `"error":"task not found"`} {
		if !strings.Contains(payload, want) {
			t.Fatalf("payload missing %s: %s", want, payload)
		}
	}
}
