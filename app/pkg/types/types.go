package types

import "context"

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message represents one chat turn crossing a channel boundary.
type Message struct {
	ID             string
	Content        string
	Role           string // "user" or "assistant"
	ChannelID      string // source channel identifier (e.g. "cli", "http")
	UserID         string
	ConversationID string
	RequestID      string
	ToolCalls      []ToolCallRecord
	Meta           map[string]interface{}
}

// ToolCallRecord is the immutable record of one executed tool invocation.
// It is produced once per executed call and embedded in the assistant message.
type ToolCallRecord struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    interface{}            `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Agent represents the core reasoning entity
type Agent interface {
	Process(ctx context.Context, msg Message) (Message, error)
	Name() string
}

// Channel represents an input/output interface (CLI, HTTP)
type Channel interface {
	Start(ctx context.Context, handler func(Message)) error
	Send(ctx context.Context, msg Message) error
	ID() string
}

// Gateway orchestrates channels and the agent
type Gateway interface {
	RegisterChannel(c Channel)
	Start(ctx context.Context) error
}
