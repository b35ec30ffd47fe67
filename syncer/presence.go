package syncer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mealgrid/realtime/channel"
)

// DefaultPresenceChannel is the channel name used when none is configured.
const DefaultPresenceChannel = "presence"

// PresenceStatus is a participant's last reported status. Staleness beyond
// the provider TTL is the transport's responsibility, not ours.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusBusy    PresenceStatus = "busy"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// online reports whether the status counts as a present participant.
func (s PresenceStatus) online() bool {
	return s == StatusOnline || s == StatusBusy
}

// PresenceEventKind is the closed set of presence domain events.
type PresenceEventKind string

const (
	PresenceJoined        PresenceEventKind = "participant_joined"
	PresenceLeft          PresenceEventKind = "participant_left"
	PresenceStatusChanged PresenceEventKind = "status_changed"
	// presenceStateEvent carries a full authoritative snapshot after
	// reconnection; it is reconciled silently, without a notification per
	// participant.
	presenceStateEvent = "presence_state"
)

// Participant is one tracked member of the presence channel.
type Participant struct {
	ID         string         `json:"id"`
	Status     PresenceStatus `json:"status"`
	LastSeenAt time.Time      `json:"last_seen_at,omitempty"`
}

// PresenceEvent is the domain notification delivered to the UI callback.
type PresenceEvent struct {
	Kind        PresenceEventKind
	Participant Participant
}

type presencePayload struct {
	Participant   *Participant   `json:"participant,omitempty"`
	ParticipantID string         `json:"participant_id,omitempty"`
	Status        PresenceStatus `json:"status,omitempty"`
	Participants  []Participant  `json:"participants,omitempty"`
}

// PresenceConfig configures a presence synchronizer.
type PresenceConfig struct {
	// Channel overrides the default channel name.
	Channel string

	// Notify receives every decoded domain event. Optional.
	Notify func(PresenceEvent)

	// OnError receives decode failures. Optional.
	OnError func(error)

	Logger *slog.Logger
}

// PresenceSync tracks the last reported status of every participant.
type PresenceSync struct {
	cfg    PresenceConfig
	ch     *channel.Channel
	logger *slog.Logger

	mu           sync.RWMutex
	participants map[string]Participant

	unbinds []func()
}

// NewPresenceSync subscribes the presence channel and starts tracking.
func NewPresenceSync(reg *channel.Registry, cfg PresenceConfig) *PresenceSync {
	if cfg.Channel == "" {
		cfg.Channel = DefaultPresenceChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &PresenceSync{
		cfg:          cfg,
		logger:       cfg.Logger.With("syncer", "presence"),
		participants: make(map[string]Participant),
	}
	s.ch = reg.Subscribe(cfg.Channel)

	s.unbinds = append(s.unbinds,
		s.ch.On(string(PresenceJoined), s.handleJoin),
		s.ch.On(string(PresenceLeft), s.handleLeave),
		s.ch.On(string(PresenceStatusChanged), s.handleStatus),
		s.ch.On(presenceStateEvent, s.handleState),
	)
	return s
}

// Online returns the participants whose last reported status counts as
// online (online or busy).
func (s *PresenceSync) Online() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Status.online() {
			out = append(out, p)
		}
	}
	return out
}

// IsOnline reports whether the participant's last reported status is online
// or busy.
func (s *PresenceSync) IsOnline(participantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantID]
	return ok && p.Status.online()
}

// Participants returns a snapshot of every tracked participant.
func (s *PresenceSync) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}

// SetStatus publishes this client's own status. Queued while offline.
func (s *PresenceSync) SetStatus(participantID string, status PresenceStatus) {
	data, err := json.Marshal(presencePayload{ParticipantID: participantID, Status: status})
	if err != nil {
		s.fail(fmt.Errorf("encode presence payload: %w", err))
		return
	}
	s.ch.Publish(string(PresenceStatusChanged), data)
}

// Close unbinds the event handlers.
func (s *PresenceSync) Close() {
	for _, unbind := range s.unbinds {
		unbind()
	}
	s.unbinds = nil
}

func (s *PresenceSync) handleJoin(_ string, payload []byte) {
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Participant == nil {
		s.fail(fmt.Errorf("decode presence join: %w", errInsufficientPayload(err)))
		return
	}

	member := *p.Participant
	if member.Status == "" {
		member.Status = StatusOnline
	}

	s.mu.Lock()
	s.participants[member.ID] = member
	s.mu.Unlock()

	s.notify(PresenceEvent{Kind: PresenceJoined, Participant: member})
}

func (s *PresenceSync) handleLeave(_ string, payload []byte) {
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ParticipantID == "" {
		s.fail(fmt.Errorf("decode presence leave: %w", errInsufficientPayload(err)))
		return
	}

	s.mu.Lock()
	member, ok := s.participants[p.ParticipantID]
	delete(s.participants, p.ParticipantID)
	s.mu.Unlock()

	if !ok {
		member = Participant{ID: p.ParticipantID, Status: StatusOffline}
	}
	member.Status = StatusOffline
	s.notify(PresenceEvent{Kind: PresenceLeft, Participant: member})
}

func (s *PresenceSync) handleStatus(_ string, payload []byte) {
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ParticipantID == "" || p.Status == "" {
		s.fail(fmt.Errorf("decode presence status: %w", errInsufficientPayload(err)))
		return
	}

	s.mu.Lock()
	member, ok := s.participants[p.ParticipantID]
	if !ok {
		member = Participant{ID: p.ParticipantID}
	}
	member.Status = p.Status
	s.participants[p.ParticipantID] = member
	s.mu.Unlock()

	s.notify(PresenceEvent{Kind: PresenceStatusChanged, Participant: member})
}

// handleState replaces the cached view with the provider's authoritative
// snapshot.
func (s *PresenceSync) handleState(_ string, payload []byte) {
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.fail(fmt.Errorf("decode presence state: %w", err))
		return
	}

	next := make(map[string]Participant, len(p.Participants))
	for _, member := range p.Participants {
		next[member.ID] = member
	}

	s.mu.Lock()
	s.participants = next
	s.mu.Unlock()
}

func (s *PresenceSync) notify(ev PresenceEvent) {
	if s.cfg.Notify != nil {
		s.cfg.Notify(ev)
	}
}

func (s *PresenceSync) fail(err error) {
	s.logger.Warn("presence sync error", "error", err)
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}
