package gateway

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"taskchat/app/pkg/types"
)

// DefaultGateway fans inbound messages from every registered channel into the
// agent and routes each reply back to the channel it came from.
type DefaultGateway struct {
	agent    types.Agent
	channels map[string]types.Channel
	mu       sync.RWMutex

	processedMessages uint64
	lastMessageUnix   atomic.Int64
	startedUnix       atomic.Int64
}

type HealthStatus struct {
	Started            bool
	StartedAt          time.Time
	RegisteredChannels []string
	AgentName          string
	ProcessedMessages  uint64
	LastMessageAt      time.Time
}

func NewGateway(agent types.Agent) *DefaultGateway {
	return &DefaultGateway{
		agent:    agent,
		channels: make(map[string]types.Channel),
	}
}

func (g *DefaultGateway) RegisterChannel(c types.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[c.ID()] = c
	log.Printf("[Gateway] Registered channel: %s", c.ID())
}

// Start launches every registered channel and blocks until all of them stop.
// Channel failures are logged, not fatal: the remaining channels keep serving.
func (g *DefaultGateway) Start(ctx context.Context) error {
	if g.agent == nil {
		return fmt.Errorf("gateway has no agent")
	}

	var wg sync.WaitGroup
	g.startedUnix.Store(time.Now().Unix())

	handler := func(msg types.Message) {
		atomic.AddUint64(&g.processedMessages, 1)
		g.lastMessageUnix.Store(time.Now().Unix())
		log.Printf("[Gateway] Received message from channel=%s user=%s", msg.ChannelID, msg.UserID)

		if err := g.processAndReply(ctx, msg); err != nil {
			log.Printf("[Gateway] Processing failed: %v", err)
			_ = g.sendErrorReply(ctx, msg, "Error: "+err.Error())
		}
	}

	g.mu.RLock()
	for _, c := range g.channels {
		wg.Add(1)
		go func(ch types.Channel) {
			defer wg.Done()
			if err := ch.Start(ctx, handler); err != nil && ctx.Err() == nil {
				log.Printf("[Gateway] Channel %s error: %v", ch.ID(), err)
			}
		}(c)
	}
	g.mu.RUnlock()

	log.Println("[Gateway] Started all channels")
	wg.Wait()
	return nil
}

func (g *DefaultGateway) processAndReply(ctx context.Context, msg types.Message) error {
	response, err := g.agent.Process(ctx, msg)
	if err != nil {
		return fmt.Errorf("agent process: %w", err)
	}
	if strings.TrimSpace(msg.Content) == "" && strings.TrimSpace(response.Content) == "" {
		return nil
	}

	channel, exists := g.channelByID(msg.ChannelID)
	if !exists {
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}

	normalizeReply(&response, msg)
	if err := channel.Send(ctx, response); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (g *DefaultGateway) sendErrorReply(ctx context.Context, msg types.Message, reason string) error {
	channel, exists := g.channelByID(msg.ChannelID)
	if !exists {
		return fmt.Errorf("channel not found for reply: %s", msg.ChannelID)
	}
	response := types.Message{
		ID:             "resp-" + msg.ID,
		Content:        reason,
		Role:           types.MessageRoleAssistant,
		ChannelID:      msg.ChannelID,
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		RequestID:      msg.RequestID,
		Meta:           map[string]interface{}{},
	}
	normalizeReply(&response, msg)
	return channel.Send(ctx, response)
}

func normalizeReply(response *types.Message, request types.Message) {
	if response.ID == "" {
		response.ID = "resp-" + request.ID
	}
	if response.ChannelID == "" {
		response.ChannelID = request.ChannelID
	}
	if response.Role == "" {
		response.Role = types.MessageRoleAssistant
	}
	if response.UserID == "" {
		response.UserID = request.UserID
	}
	if response.ConversationID == "" {
		response.ConversationID = request.ConversationID
	}
	if response.RequestID == "" {
		response.RequestID = request.RequestID
	}
	if response.Meta == nil {
		response.Meta = map[string]interface{}{}
	}
	for k, v := range request.Meta {
		if _, exists := response.Meta[k]; !exists {
			response.Meta[k] = v
		}
	}
}

func (g *DefaultGateway) channelByID(channelID string) (types.Channel, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	channel, exists := g.channels[channelID]
	return channel, exists
}

func (g *DefaultGateway) HealthStatus() HealthStatus {
	g.mu.RLock()
	channels := make([]string, 0, len(g.channels))
	for id := range g.channels {
		channels = append(channels, id)
	}
	agentName := ""
	if g.agent != nil {
		agentName = g.agent.Name()
	}
	g.mu.RUnlock()
	sort.Strings(channels)

	status := HealthStatus{
		RegisteredChannels: channels,
		AgentName:          agentName,
		ProcessedMessages:  atomic.LoadUint64(&g.processedMessages),
	}
	if started := g.startedUnix.Load(); started > 0 {
		status.Started = true
		status.StartedAt = time.Unix(started, 0).UTC()
	}
	if last := g.lastMessageUnix.Load(); last > 0 {
		status.LastMessageAt = time.Unix(last, 0).UTC()
	}
	return status
}
