package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"taskchat/app/pkg/types"
)

// CLIChannel is an interactive stdin/stdout session for one local user. It
// pins replies to one conversation: the id from the first reply is attached
// to every following input so the whole session shares history.
type CLIChannel struct {
	id     string
	userID string

	mu             sync.Mutex
	conversationID string
}

func NewCLIChannel(userID string) *CLIChannel {
	if strings.TrimSpace(userID) == "" {
		userID = "local_user"
	}
	return &CLIChannel{id: "cli", userID: userID}
}

func (c *CLIChannel) ID() string {
	return c.id
}

func (c *CLIChannel) Start(ctx context.Context, handler func(types.Message)) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(">> TaskChat CLI started. Type 'exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fmt.Print("> ")
			if !scanner.Scan() {
				return nil
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "exit" || text == "quit" {
				fmt.Println("Exiting CLI loop...")
				return nil
			}
			if text == "" {
				continue
			}

			msgID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
			msg := types.Message{
				ID:             msgID,
				Content:        text,
				Role:           types.MessageRoleUser,
				ChannelID:      c.id,
				UserID:         c.userID,
				ConversationID: c.currentConversation(),
				Meta: map[string]interface{}{
					"user_id": c.userID,
				},
			}
			handler(msg)
		}
	}
}

func (c *CLIChannel) Send(ctx context.Context, msg types.Message) error {
	if id := strings.TrimSpace(msg.ConversationID); id != "" {
		c.mu.Lock()
		c.conversationID = id
		c.mu.Unlock()
	}
	fmt.Printf("[TaskChat]: %s\n", msg.Content)
	return nil
}

func (c *CLIChannel) currentConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}
