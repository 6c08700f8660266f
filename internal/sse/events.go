// Package sse implements Server-Sent Events for live mirror status and sync progress.
package sse

import (
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventMirrorStatus is sent when a mirror's status, error or file count changes.
	EventMirrorStatus EventType = "mirror.status"
	// EventMirrorRemoved is sent when a mirror leaves the configuration.
	EventMirrorRemoved EventType = "mirror.removed"
	// EventMirrorProgress carries the completion percentage of an in-flight sync.
	EventMirrorProgress EventType = "mirror.progress"
	// EventConfigChanged is sent for every published configuration.
	EventConfigChanged EventType = "config.changed"
	// EventSnapshot opens every stream with the state a client needs to render.
	EventSnapshot EventType = "snapshot"
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`

	// AlternativeID scopes the event; empty means every client receives it.
	AlternativeID string `json:"-"`
}

// MirrorStatusData is the payload of EventMirrorStatus.
type MirrorStatusData struct {
	AlternativeID string            `json:"alternative_id"`
	MirrorID      string            `json:"mirror_id"`
	Status        domain.SyncStatus `json:"status"`
	LastError     string            `json:"last_error,omitempty"`
	FileCount     *int              `json:"file_count,omitempty"`
}

// MirrorRemovedData is the payload of EventMirrorRemoved.
type MirrorRemovedData struct {
	AlternativeID string `json:"alternative_id"`
	MirrorID      string `json:"mirror_id"`
}

// MirrorProgressData is the payload of EventMirrorProgress.
type MirrorProgressData struct {
	Mirrors map[string]float64 `json:"mirrors"`
}

// SnapshotData is the payload of EventSnapshot.
type SnapshotData struct {
	ClientID string             `json:"client_id"`
	Mirrors  []MirrorStatusData `json:"mirrors"`
	Progress map[string]float64 `json:"progress"`
}

// ConfigChangedData is the payload of EventConfigChanged.
type ConfigChangedData struct {
	Alternatives int `json:"alternatives"`
	Mirrors      int `json:"mirrors"`
	Assignments  int `json:"assignments"`
}

// NewMirrorStatusEvent creates a mirror.status event.
func NewMirrorStatusEvent(alternativeID string, m *domain.LibraryMirror) Event {
	return Event{
		Type: EventMirrorStatus,
		Data: MirrorStatusData{
			AlternativeID: alternativeID,
			MirrorID:      m.ID,
			Status:        m.Status,
			LastError:     m.LastError,
			FileCount:     m.LastSyncFileCount,
		},
		Timestamp:     time.Now(),
		AlternativeID: alternativeID,
	}
}

// NewMirrorRemovedEvent creates a mirror.removed event.
func NewMirrorRemovedEvent(alternativeID, mirrorID string) Event {
	return Event{
		Type:          EventMirrorRemoved,
		Data:          MirrorRemovedData{AlternativeID: alternativeID, MirrorID: mirrorID},
		Timestamp:     time.Now(),
		AlternativeID: alternativeID,
	}
}

// NewMirrorProgressEvent creates a mirror.progress event.
func NewMirrorProgressEvent(progress map[string]float64) Event {
	return Event{
		Type:      EventMirrorProgress,
		Data:      MirrorProgressData{Mirrors: progress},
		Timestamp: time.Now(),
	}
}

// NewConfigChangedEvent creates a config.changed event summarizing cfg.
func NewConfigChangedEvent(cfg *domain.Configuration) Event {
	data := ConfigChangedData{
		Alternatives: len(cfg.Alternatives),
		Assignments:  len(cfg.UserAssignments),
	}
	for i := range cfg.Alternatives {
		data.Mirrors += len(cfg.Alternatives[i].Mirrors)
	}
	return Event{Type: EventConfigChanged, Data: data, Timestamp: time.Now()}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Data: struct{}{}, Timestamp: time.Now()}
}
