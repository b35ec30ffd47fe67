package syncer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mealgrid/realtime/channel"
)

// DefaultChatChannel is the channel name used when none is configured.
const DefaultChatChannel = "chat"

// ChatEventKind is the closed set of chat domain events.
type ChatEventKind string

const (
	ChatMessageReceived ChatEventKind = "message_received"
	ChatTypingStarted   ChatEventKind = "typing_started"
	ChatTypingStopped   ChatEventKind = "typing_stopped"
	ChatReadReceipt     ChatEventKind = "read_receipt"
)

// Message is one chat message.
type Message struct {
	ID       string    `json:"id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
	Read     bool      `json:"read,omitempty"`
}

// ChatEvent is the domain notification delivered to the UI callback.
type ChatEvent struct {
	Kind       ChatEventKind
	Message    *Message // set for message_received
	SenderID   string   // set for typing events and read receipts
	MessageIDs []string // set for read receipts
}

type chatPayload struct {
	Message    *Message `json:"message,omitempty"`
	SenderID   string   `json:"sender_id,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// ChatConfig configures a chat synchronizer.
type ChatConfig struct {
	// Channel overrides the default channel name.
	Channel string

	// Notify receives every decoded domain event. Optional.
	Notify func(ChatEvent)

	// OnError receives decode failures. Optional.
	OnError func(error)

	Logger *slog.Logger
}

// ChatSync keeps an in-order local message cache with typing and read-state
// tracking.
type ChatSync struct {
	cfg    ChatConfig
	ch     *channel.Channel
	logger *slog.Logger

	mu       sync.RWMutex
	messages []Message
	typing   map[string]bool

	unbinds []func()
}

// NewChatSync subscribes the chat channel and starts translating its events.
func NewChatSync(reg *channel.Registry, cfg ChatConfig) *ChatSync {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChatChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &ChatSync{
		cfg:    cfg,
		logger: cfg.Logger.With("syncer", "chat"),
		typing: make(map[string]bool),
	}
	s.ch = reg.Subscribe(cfg.Channel)

	s.unbinds = append(s.unbinds,
		s.ch.On(string(ChatMessageReceived), s.handleMessage),
		s.ch.On(string(ChatTypingStarted), s.handleTyping(true)),
		s.ch.On(string(ChatTypingStopped), s.handleTyping(false)),
		s.ch.On(string(ChatReadReceipt), s.handleReadReceipt),
	)
	return s
}

// Messages returns the cached messages in arrival order.
func (s *ChatSync) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Typing returns the senders currently marked as typing.
func (s *ChatSync) Typing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.typing))
	for id, on := range s.typing {
		if on {
			out = append(out, id)
		}
	}
	return out
}

// Send publishes a chat message. While offline it is queued, not rejected.
// Outbound messages travel under the same message_received event name the
// provider uses to fan them out, so every participant (the sender's other
// devices included) decodes one event shape.
func (s *ChatSync) Send(msg Message) {
	s.publish(ChatMessageReceived, chatPayload{Message: &msg})
}

// StartTyping publishes a typing indicator for the sender.
func (s *ChatSync) StartTyping(senderID string) {
	s.publish(ChatTypingStarted, chatPayload{SenderID: senderID})
}

// StopTyping clears the typing indicator for the sender.
func (s *ChatSync) StopTyping(senderID string) {
	s.publish(ChatTypingStopped, chatPayload{SenderID: senderID})
}

// MarkRead publishes a read receipt for the given messages.
func (s *ChatSync) MarkRead(readerID string, messageIDs []string) {
	s.publish(ChatReadReceipt, chatPayload{SenderID: readerID, MessageIDs: messageIDs})
}

// Close unbinds the event handlers.
func (s *ChatSync) Close() {
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
}

func (s *ChatSync) publish(kind ChatEventKind, p chatPayload) {
	data, err := json.Marshal(p)
	if err != nil {
		s.fail(fmt.Errorf("encode chat payload: %w", err))
		return
	}
	s.ch.Publish(string(kind), data)
}

func (s *ChatSync) handleMessage(_ string, payload []byte) {
	var p chatPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Message == nil {
		s.fail(fmt.Errorf("decode chat message: %w", errInsufficientPayload(err)))
		return
	}

	s.mu.Lock()
	s.messages = append(s.messages, *p.Message)
	delete(s.typing, p.Message.SenderID)
	s.mu.Unlock()

	s.notify(ChatEvent{Kind: ChatMessageReceived, Message: p.Message, SenderID: p.Message.SenderID})
}

func (s *ChatSync) handleTyping(started bool) channel.Handler {
	kind := ChatTypingStopped
	if started {
		kind = ChatTypingStarted
	}
	return func(_ string, payload []byte) {
		var p chatPayload
		if err := json.Unmarshal(payload, &p); err != nil || p.SenderID == "" {
			s.fail(fmt.Errorf("decode typing event: %w", errInsufficientPayload(err)))
			return
		}

		s.mu.Lock()
		if started {
			s.typing[p.SenderID] = true
		} else {
			delete(s.typing, p.SenderID)
		}
		s.mu.Unlock()

		s.notify(ChatEvent{Kind: kind, SenderID: p.SenderID})
	}
}

func (s *ChatSync) handleReadReceipt(_ string, payload []byte) {
	var p chatPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.fail(fmt.Errorf("decode read receipt: %w", err))
		return
	}

	read := make(map[string]bool, len(p.MessageIDs))
	for _, id := range p.MessageIDs {
		read[id] = true
	}

	s.mu.Lock()
	for i := range s.messages {
		if read[s.messages[i].ID] {
			s.messages[i].Read = true
		}
	}
	s.mu.Unlock()

	s.notify(ChatEvent{Kind: ChatReadReceipt, SenderID: p.SenderID, MessageIDs: p.MessageIDs})
}

func (s *ChatSync) notify(ev ChatEvent) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(ev)
	}
}

func (s *ChatSync) fail(err error) {
	s.logger.Warn("chat sync error", "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
