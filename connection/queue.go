package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QueuedMessage is one buffered outbound message. Created on
// send-while-disconnected, destroyed on successful send or retry exhaustion.
type QueuedMessage struct {
	ID          string
	ChannelName string
	EventName   string
	Payload     []byte
	EnqueuedAt  time.Time
	RetryCount  int
	MaxRetries  int
}

// Outbox buffers messages that could not be sent because the connection was
// down and replays them in order once reconnected. The buffer never exceeds
// its capacity: when full, the oldest entry is evicted.
type Outbox struct {
	m          *Manager
	logger     *slog.Logger
	capacity   int
	maxRetries int

	mu   sync.Mutex
	msgs []*QueuedMessage
}

func newOutbox(m *Manager, capacity, maxRetries int, logger *slog.Logger) *Outbox {
	return &Outbox{
		m:          m,
		logger:     logger,
		capacity:   capacity,
		maxRetries: maxRetries,
	}
}

// Enqueue attempts an immediate send when connected; on failure or while
// disconnected the message is buffered for replay. The call never returns an
// error: delivery outcomes surface through stats and OnError.
func (q *Outbox) Enqueue(channel, event string, payload []byte) {
	if err := q.m.sendNow(channel, event, payload); err == nil {
		return
	}

	msg := &QueuedMessage{
		ID:          uuid.NewString(),
		ChannelName: channel,
		EventName:   event,
		Payload:     payload,
		EnqueuedAt:  q.m.now(),
		MaxRetries:  q.maxRetries,
	}

	q.mu.Lock()
	q.msgs = append(q.msgs, msg)
	if len(q.msgs) > q.capacity {
		evicted := q.msgs[0]
		q.msgs = q.msgs[1:]
		q.logger.Debug("outbox full, evicting oldest",
			"evicted_id", evicted.ID,
			"channel", evicted.ChannelName,
		)
	}
	depth := len(q.msgs)
	q.mu.Unlock()

	q.logger.Debug("message queued",
		"channel", channel,
		"event", event,
		"depth", depth,
	)
}

// Len returns the number of buffered messages.
func (q *Outbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// Messages returns a snapshot of the buffered messages in replay order.
func (q *Outbox) Messages() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedMessage, len(q.msgs))
	for i, msg := range q.msgs {
		out[i] = *msg
	}
	return out
}

// flush replays every buffered message in enqueue order. A failed send is
// re-enqueued with an incremented retry count until its budget is spent,
// then dropped and counted in FailedMessages. Invoked by the Manager on
// every transition into connected.
func (q *Outbox) flush() {
	q.mu.Lock()
	pending := q.msgs
	q.msgs = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	q.logger.Info("flushing outbox", "count", len(pending))

	var retained []*QueuedMessage
	for _, msg := range pending {
		err := q.m.sendNow(msg.ChannelName, msg.EventName, msg.Payload)
		if err == nil {
			continue
		}

		if msg.RetryCount >= msg.MaxRetries {
			q.m.recordFailedMessage()
			q.logger.Warn("dropping message after retry exhaustion",
				"id", msg.ID,
				"channel", msg.ChannelName,
				"event", msg.EventName,
				"retries", msg.RetryCount,
			)
			continue
		}

		msg.RetryCount++
		retained = append(retained, msg)
	}

	if len(retained) == 0 {
		return
	}

	// Requeued messages precede anything enqueued during the flush so
	// per-channel order survives partial replays.
	q.mu.Lock()
	q.msgs = append(retained, q.msgs...)
	if len(q.msgs) > q.capacity {
		q.msgs = q.msgs[len(q.msgs)-q.capacity:]
	}
	q.mu.Unlock()
}
