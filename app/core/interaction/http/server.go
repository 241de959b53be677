package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"taskchat/app/core/orchestrator/tools"
	"taskchat/app/pkg/types"
)

const (
	defaultResponseTimeout = 60 * time.Second
	maxMessageRunes        = 10000
	defaultUserID          = "local_user"
)

// HTTPChannel serves the chat API. Each POST blocks on a per-request reply
// channel until the gateway delivers the agent's response or the timeout
// fires.
type HTTPChannel struct {
	id              string
	port            int
	server          *http.Server
	handler         func(types.Message)
	statusProvider  func(context.Context) map[string]interface{}
	shutdownTimeout time.Duration

	pendingMu   sync.Mutex
	pending     map[string]chan types.Message
	counter     uint64
	startedUnix atomic.Int64
}

func NewHTTPChannel(port int) *HTTPChannel {
	return &HTTPChannel{
		id:              "http",
		port:            port,
		pending:         map[string]chan types.Message{},
		shutdownTimeout: 5 * time.Second,
	}
}

func (c *HTTPChannel) ID() string {
	return c.id
}

func (c *HTTPChannel) SetStatusProvider(provider func(context.Context) map[string]interface{}) {
	c.statusProvider = provider
}

func (c *HTTPChannel) SetShutdownTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.shutdownTimeout = timeout
}

func (c *HTTPChannel) Start(ctx context.Context, handler func(types.Message)) error {
	c.handler = handler
	c.startedUnix.Store(time.Now().Unix())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", c.handleChat)
	mux.HandleFunc("/api/tools", c.handleTools)
	mux.HandleFunc("/api/status", c.handleStatus)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}()

	log.Printf("[HTTP] Listening on port %d...", c.port)
	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Send resolves the pending request that is blocked waiting for this reply.
func (c *HTTPChannel) Send(ctx context.Context, msg types.Message) error {
	if strings.TrimSpace(msg.RequestID) == "" {
		log.Printf("[HTTP] Outgoing message without request id: %s", msg.Content)
		return nil
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[msg.RequestID]
	c.pendingMu.Unlock()
	if !ok {
		log.Printf("[HTTP] Pending request not found: %s", msg.RequestID)
		return nil
	}

	select {
	case ch <- msg:
	default:
	}
	return nil
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Response       string                 `json:"response"`
	ToolCalls      []types.ToolCallRecord `json:"tool_calls,omitempty"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type toolListResponse struct {
	Tools []toolDescriptor `json:"tools"`
}

type statusResponse struct {
	ChannelID       string                 `json:"channel_id"`
	PendingRequests int                    `json:"pending_requests"`
	StartedAt       string                 `json:"started_at,omitempty"`
	UptimeSec       int64                  `json:"uptime_sec"`
	Runtime         map[string]interface{} `json:"runtime,omitempty"`
}

func (c *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(message) > maxMessageRunes {
		http.Error(w, fmt.Sprintf("message exceeds %d characters", maxMessageRunes), http.StatusBadRequest)
		return
	}
	if c.handler == nil {
		http.Error(w, "handler not ready", http.StatusServiceUnavailable)
		return
	}

	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		userID = defaultUserID
	}

	msg, respCh := c.prepareMessage(userID, strings.TrimSpace(req.ConversationID), message)
	defer c.removePendingRequest(msg.RequestID)

	c.handler(msg)

	select {
	case response := <-respCh:
		payload := chatResponse{
			ConversationID: response.ConversationID,
			Response:       response.Content,
			ToolCalls:      response.ToolCalls,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(payload)
	case <-time.After(defaultResponseTimeout):
		http.Error(w, "request timeout", http.StatusGatewayTimeout)
	}
}

func (c *HTTPChannel) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	manifests := tools.Manifests()
	resp := toolListResponse{Tools: make([]toolDescriptor, 0, len(manifests))}
	for _, m := range manifests {
		resp.Tools = append(resp.Tools, toolDescriptor{
			Name:        m.Name,
			Description: m.Description,
			InputSchema: m.Schema(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (c *HTTPChannel) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{ChannelID: c.id}
	c.pendingMu.Lock()
	resp.PendingRequests = len(c.pending)
	c.pendingMu.Unlock()

	if started := c.startedUnix.Load(); started > 0 {
		startAt := time.Unix(started, 0).UTC()
		resp.StartedAt = startAt.Format(time.RFC3339)
		resp.UptimeSec = int64(time.Since(startAt).Seconds())
		if resp.UptimeSec < 0 {
			resp.UptimeSec = 0
		}
	}
	if c.statusProvider != nil {
		resp.Runtime = c.statusProvider(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (c *HTTPChannel) prepareMessage(userID string, conversationID string, content string) (types.Message, chan types.Message) {
	requestID := c.newID("req")
	respCh := make(chan types.Message, 1)
	c.pendingMu.Lock()
	c.pending[requestID] = respCh
	c.pendingMu.Unlock()

	msg := types.Message{
		ID:             c.newID("http"),
		Content:        content,
		Role:           types.MessageRoleUser,
		ChannelID:      c.id,
		UserID:         userID,
		ConversationID: conversationID,
		RequestID:      requestID,
		Meta: map[string]interface{}{
			"user_id": userID,
		},
	}
	return msg, respCh
}

func (c *HTTPChannel) removePendingRequest(requestID string) {
	c.pendingMu.Lock()
	delete(c.pending, requestID)
	c.pendingMu.Unlock()
}

func (c *HTTPChannel) newID(prefix string) string {
	seq := atomic.AddUint64(&c.counter, 1)
	return prefix + "-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + strconv.FormatUint(seq, 10)
}
