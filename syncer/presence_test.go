package syncer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceSyncJoinLeave(t *testing.T) {
	reg, tr := newTestRegistry(t)

	var events []PresenceEvent
	s := NewPresenceSync(reg, PresenceConfig{
		Notify: func(ev PresenceEvent) { events = append(events, ev) },
	})
	defer s.Close()

	tr.deliver(t, "presence", string(PresenceJoined), presencePayload{
		Participant: &Participant{ID: "driver-1", Status: StatusOnline},
	})
	assert.True(t, s.IsOnline("driver-1"))

	tr.deliver(t, "presence", string(PresenceLeft), presencePayload{ParticipantID: "driver-1"})
	assert.False(t, s.IsOnline("driver-1"))
	assert.Empty(t, s.Participants())

	require.Len(t, events, 2)
	assert.Equal(t, PresenceJoined, events[0].Kind)
	assert.Equal(t, PresenceLeft, events[1].Kind)
	assert.Equal(t, StatusOffline, events[1].Participant.Status)
}

func TestPresenceSyncJoinDefaultsToOnline(t *testing.T) {
	reg, tr := newTestRegistry(t)

	s := NewPresenceSync(reg, PresenceConfig{})
	defer s.Close()

	tr.deliver(t, "presence", string(PresenceJoined), presencePayload{
		Participant: &Participant{ID: "driver-1"},
	})

	assert.True(t, s.IsOnline("driver-1"))
}

func TestPresenceSyncStatusChanges(t *testing.T) {
	reg, tr := newTestRegistry(t)

	s := NewPresenceSync(reg, PresenceConfig{})
	defer s.Close()

	tr.deliver(t, "presence", string(PresenceJoined), presencePayload{
		Participant: &Participant{ID: "driver-1", Status: StatusOnline},
	})

	// Busy still counts as present; away does not.
	tr.deliver(t, "presence", string(PresenceStatusChanged), presencePayload{
		ParticipantID: "driver-1",
		Status:        StatusBusy,
	})
	assert.True(t, s.IsOnline("driver-1"))

	tr.deliver(t, "presence", string(PresenceStatusChanged), presencePayload{
		ParticipantID: "driver-1",
		Status:        StatusAway,
	})
	assert.False(t, s.IsOnline("driver-1"))
	assert.Len(t, s.Participants(), 1, "away participants stay tracked")
}

func TestPresenceSyncOnlineFilter(t *testing.T) {
	reg, tr := newTestRegistry(t)

	s := NewPresenceSync(reg, PresenceConfig{})
	defer s.Close()

	for id, status := range map[string]PresenceStatus{
		"a": StatusOnline,
		"b": StatusBusy,
		"c": StatusAway,
	} {
		tr.deliver(t, "presence", string(PresenceJoined), presencePayload{
			Participant: &Participant{ID: id, Status: status},
		})
	}

	online := s.Online()
	assert.Len(t, online, 2)
	for _, p := range online {
		assert.NotEqual(t, "c", p.ID)
	}
}

func TestPresenceSyncStateSnapshotReconciles(t *testing.T) {
	reg, tr := newTestRegistry(t)

	notifications := 0
	s := NewPresenceSync(reg, PresenceConfig{
		Notify: func(PresenceEvent) { notifications++ },
	})
	defer s.Close()

	tr.deliver(t, "presence", string(PresenceJoined), presencePayload{
		Participant: &Participant{ID: "stale", Status: StatusOnline},
	})
	require.Equal(t, 1, notifications)

	// The authoritative snapshot replaces the cache silently.
	tr.deliver(t, "presence", presenceStateEvent, presencePayload{
		Participants: []Participant{
			{ID: "driver-1", Status: StatusOnline},
			{ID: "driver-2", Status: StatusAway},
		},
	})

	assert.Equal(t, 1, notifications, "snapshot reconciliation is silent")
	assert.False(t, s.IsOnline("stale"))
	assert.True(t, s.IsOnline("driver-1"))
	assert.Len(t, s.Participants(), 2)
}

func TestPresenceSyncSetStatusPublishes(t *testing.T) {
	reg, tr := newTestRegistry(t)

	s := NewPresenceSync(reg, PresenceConfig{})
	defer s.Close()

	s.SetStatus("me", StatusBusy)

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "presence", sent[0].channel)
	assert.Equal(t, string(PresenceStatusChanged), sent[0].event)

	var p presencePayload
	require.NoError(t, json.Unmarshal(sent[0].payload, &p))
	assert.Equal(t, "me", p.ParticipantID)
	assert.Equal(t, StatusBusy, p.Status)
}
