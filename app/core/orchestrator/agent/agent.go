package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	config "taskchat/app/configs"
	"taskchat/app/core/orchestrator/conversation"
	"taskchat/app/core/orchestrator/tools"
	"taskchat/app/core/provider"
	"taskchat/app/pkg/types"
)

// greetings are matched against the whole normalized message, never as a
// substring, so "hit the gym" is not a greeting.
var greetings = map[string]struct{}{
	"hi":      {},
	"hello":   {},
	"hey":     {},
	"salam":   {},
	"assalam": {},
}

const (
	greetingReply = "Hello! 😊 How can I help you with your tasks today?"
	helpReply     = "I can help you manage tasks! Try:\n• 'add buy groceries'\n• 'show my tasks'\n• 'rename [old name] to [new name]'\n• 'delete [task name]'\n• 'complete [task name]'"
	apologyReply  = "I'm sorry, something went wrong while handling that. Please try again."
)

// LLMProvider is the slice of the provider client the agent needs. Tests
// substitute a scripted implementation.
type LLMProvider interface {
	Complete(ctx context.Context, req provider.Request) (provider.Result, error)
}

// DefaultAgent turns one inbound chat message into one reply: greeting,
// direct update, model-assisted tool calling, or keyword heuristics, in that
// fixed order. The first matching stage wins.
type DefaultAgent struct {
	name          string
	llm           LLMProvider
	executor      *tools.Executor
	conversations *conversation.Store
	historyLimit  int

	mu sync.RWMutex
}

// NewAgent wires the agent. llm may be nil; the agent then routes every
// non-greeting, non-direct message through the keyword heuristics.
func NewAgent(name string, llm LLMProvider, executor *tools.Executor, conversations *conversation.Store, chatCfg config.ChatConfig) *DefaultAgent {
	limit := chatCfg.HistoryLimit
	if limit <= 0 {
		limit = 40
	}
	return &DefaultAgent{
		name:          name,
		llm:           llm,
		executor:      executor,
		conversations: conversations,
		historyLimit:  limit,
	}
}

func (a *DefaultAgent) Process(ctx context.Context, msg types.Message) (out types.Message, err error) {
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		userID = "anonymous"
	}
	msg.UserID = userID
	if strings.TrimSpace(msg.RequestID) == "" {
		msg.RequestID = msg.ID
	}

	trimmed := strings.TrimSpace(msg.Content)
	if trimmed == "" {
		return a.newReply(msg, "", nil), nil
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Agent] Recovered from panic while processing message: %v", r)
			out = a.newReply(msg, apologyReply, map[string]interface{}{"error": true})
			err = nil
		}
	}()

	conv, convErr := a.conversations.GetOrCreate(ctx, userID, msg.ConversationID)
	if convErr != nil {
		log.Printf("[Agent] Failed to open conversation: %v", convErr)
		return a.newReply(msg, apologyReply, map[string]interface{}{"error": true}), nil
	}
	msg.ConversationID = conv.ID

	// history is captured before the current turn is appended so the model
	// sees prior turns only once.
	history, histErr := a.conversations.History(ctx, userID, conv.ID, a.historyLimit)
	if histErr != nil {
		log.Printf("[Agent] Failed to load history: %v", histErr)
		history = nil
	}

	// the user's turn is durable before any model or tool work happens
	if _, appendErr := a.conversations.Append(ctx, conv.ID, types.MessageRoleUser, trimmed, ""); appendErr != nil {
		log.Printf("[Agent] Failed to persist user message: %v", appendErr)
		return a.newReply(msg, apologyReply, map[string]interface{}{"error": true}), nil
	}

	text, records := a.route(ctx, userID, trimmed, history)

	if _, appendErr := a.conversations.Append(ctx, conv.ID, types.MessageRoleAssistant, text, encodeToolCalls(records)); appendErr != nil {
		log.Printf("[Agent] Failed to persist assistant message: %v", appendErr)
	}

	reply := a.newReply(msg, text, nil)
	reply.ToolCalls = records
	return reply, nil
}

// route applies the intent stages in order and returns the reply text plus
// the tool calls that ran.
func (a *DefaultAgent) route(ctx context.Context, userID string, message string, history []conversation.ChatMessage) (string, []types.ToolCallRecord) {
	lower := strings.ToLower(message)

	if _, ok := greetings[lower]; ok {
		return greetingReply, nil
	}

	if (strings.Contains(lower, "rename") || strings.Contains(lower, "update")) && strings.Contains(lower, " to ") {
		return a.directUpdate(ctx, userID, message)
	}

	if a.llm != nil {
		text, records, err := a.modelAssisted(ctx, userID, message, history)
		if err == nil {
			return text, records
		}
		log.Printf("[Agent] Model-assisted routing failed, falling back to heuristics: %v", err)
	}

	return a.heuristic(ctx, userID, message)
}

// directUpdate handles "rename X to Y" / "update X to Y" without the model.
// The left side loses its leading keyword, the right side loses surrounding
// quotes.
func (a *DefaultAgent) directUpdate(ctx context.Context, userID string, message string) (string, []types.ToolCallRecord) {
	idx := strings.Index(strings.ToLower(message), " to ")
	if idx < 0 {
		return "❌ Please use format: 'rename [old name] to [new name]'", nil
	}

	current := strings.TrimSpace(message[:idx])
	for _, keyword := range []string{"rename", "update"} {
		if strings.HasPrefix(strings.ToLower(current), keyword) {
			current = strings.TrimSpace(current[len(keyword):])
			break
		}
	}
	newTitle := strings.Trim(strings.TrimSpace(message[idx+len(" to "):]), `"'`)

	if current == "" || newTitle == "" {
		return "❌ Please use format: 'rename [old name] to [new name]'", nil
	}

	args := map[string]interface{}{"current_title": current, "title": newTitle}
	result, err := a.executor.Execute(ctx, userID, "update_task", args)
	if err != nil {
		if errors.Is(err, tools.ErrNotFound) {
			return fmt.Sprintf("❌ Task '%s' not found. Please check the task name.", current), nil
		}
		if tools.IsInvalidArgument(err) {
			return fmt.Sprintf("❌ Error updating task: %v", err), nil
		}
		log.Printf("[Agent] Direct update failed: %v", err)
		return "❌ Error updating task. Please try again.", nil
	}

	record := types.ToolCallRecord{
		Tool:      "update_task",
		Arguments: withOwner(args, userID),
		Result:    result,
	}
	return fmt.Sprintf("✏️ I've updated '%s' to '%s' successfully!", current, newTitle), []types.ToolCallRecord{record}
}

// modelAssisted hands the message plus history and the tool schema to the
// model. Proposed calls are executed with the owner injected server-side;
// when any ran, the reply is synthesized from their results and the model's
// prose is discarded.
func (a *DefaultAgent) modelAssisted(ctx context.Context, userID string, message string, history []conversation.ChatMessage) (string, []types.ToolCallRecord, error) {
	turns := make([]provider.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}

	res, err := a.llm.Complete(ctx, provider.Request{
		System:      a.systemPrompt(),
		History:     turns,
		UserMessage: message,
		Tools:       tools.Manifests(),
	})
	if err != nil {
		return "", nil, err
	}

	if len(res.ToolCalls) == 0 {
		text := strings.TrimSpace(res.Text)
		if text == "" {
			text = helpReply
		}
		return text, nil, nil
	}

	records := make([]types.ToolCallRecord, 0, len(res.ToolCalls))
	for _, call := range res.ToolCalls {
		args, decodeErr := tools.DecodeArguments(call.Arguments)
		if decodeErr != nil {
			records = append(records, types.ToolCallRecord{
				Tool:      call.Name,
				Arguments: map[string]interface{}{"user_id": userID},
				Error:     decodeErr.Error(),
			})
			continue
		}
		// the owner always comes from the session, never from the model
		delete(args, "user_id")

		result, execErr := a.executor.Execute(ctx, userID, call.Name, args)
		record := types.ToolCallRecord{Tool: call.Name, Arguments: withOwner(args, userID)}
		if execErr != nil {
			record.Error = execErr.Error()
		} else {
			record.Result = result
		}
		records = append(records, record)
	}

	return Synthesize(records), records, nil
}

// heuristic is the no-model fallback: a couple of keyword rules plus a help
// message.
func (a *DefaultAgent) heuristic(ctx context.Context, userID string, message string) (string, []types.ToolCallRecord) {
	lower := strings.ToLower(message)

	if idx := strings.Index(lower, "add"); idx >= 0 {
		title := strings.TrimSpace(message[:idx] + message[idx+len("add"):])
		if title != "" {
			args := map[string]interface{}{"title": title}
			result, err := a.executor.Execute(ctx, userID, "add_task", args)
			if err != nil {
				log.Printf("[Agent] Heuristic add failed: %v", err)
				return fmt.Sprintf("❌ Couldn't add the task: %v", err), nil
			}
			records := []types.ToolCallRecord{{
				Tool:      "add_task",
				Arguments: withOwner(args, userID),
				Result:    result,
			}}
			return Synthesize(records), records
		}
	}

	if strings.Contains(lower, "show") || strings.Contains(lower, "list") {
		args := map[string]interface{}{"status": "all"}
		result, err := a.executor.Execute(ctx, userID, "list_tasks", args)
		if err != nil {
			log.Printf("[Agent] Heuristic list failed: %v", err)
			return "❌ Couldn't load your tasks. Please try again.", nil
		}
		records := []types.ToolCallRecord{{
			Tool:      "list_tasks",
			Arguments: withOwner(args, userID),
			Result:    result,
		}}
		return Synthesize(records), records
	}

	return helpReply, nil
}

func (a *DefaultAgent) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(a.Name())
	b.WriteString(", a helpful task management assistant.\n")
	b.WriteString("Use the provided tools to manage the user's tasks.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- 'add X' or 'remind me to X' means add_task with title=X.\n")
	b.WriteString("- 'show/list tasks' means list_tasks.\n")
	b.WriteString("- 'rename X to Y' or 'update X to Y' means update_task with current_title=X and title=Y.\n")
	b.WriteString("- 'delete/remove X' means delete_task with title=X.\n")
	b.WriteString("- 'done with X' or 'finished X' means complete_task with title=X.\n")
	b.WriteString("- Use the user's exact wording for titles. Do not invent descriptions.\n")
	b.WriteString("- For anything unrelated to tasks, answer briefly without tools.")
	return b.String()
}

// encodeToolCalls serializes the records for the messages table. Empty input
// yields the empty string so the tool_calls column stays NULL.
func encodeToolCalls(records []types.ToolCallRecord) string {
	if len(records) == 0 {
		return ""
	}
	payload := "[]"
	for i, r := range records {
		payload, _ = sjson.Set(payload, fmt.Sprintf("%d.tool", i), r.Tool)
		payload, _ = sjson.Set(payload, fmt.Sprintf("%d.arguments", i), r.Arguments)
		if r.Result != nil {
			payload, _ = sjson.Set(payload, fmt.Sprintf("%d.result", i), r.Result)
		}
		if r.Error != "" {
			payload, _ = sjson.Set(payload, fmt.Sprintf("%d.error", i), r.Error)
		}
	}
	return payload
}

// withOwner copies the argument map and records the injected owner id.
func withOwner(args map[string]interface{}, userID string) map[string]interface{} {
	out := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["user_id"] = userID
	return out
}

func (a *DefaultAgent) newReply(msg types.Message, content string, meta map[string]interface{}) types.Message {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	for k, v := range msg.Meta {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	return types.Message{
		ID:             fmt.Sprintf("asst-%d", time.Now().UnixNano()),
		Content:        content,
		Role:           types.MessageRoleAssistant,
		ChannelID:      msg.ChannelID,
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		RequestID:      msg.RequestID,
		Meta:           meta,
	}
}

func (a *DefaultAgent) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

func (a *DefaultAgent) SetName(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.name = name
}
