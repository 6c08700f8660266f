package sse

import (
	"cmp"
	"slices"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// mirrorState is what a client sees of one mirror.
type mirrorState struct {
	alternativeID string
	status        domain.SyncStatus
	lastError     string
	fileCount     int
}

func stateOf(alternativeID string, m *domain.LibraryMirror) mirrorState {
	s := mirrorState{alternativeID: alternativeID, status: m.Status, lastError: m.LastError, fileCount: -1}
	if m.LastSyncFileCount != nil {
		s.fileCount = *m.LastSyncFileCount
	}
	return s
}

// Prime records cfg as the baseline without emitting anything.
func (m *Manager) Prime(cfg *domain.Configuration) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.statuses = collectStates(cfg)
}

// ObserveConfiguration emits a mirror.status event for every mirror that is
// new or changed since the last observed configuration, a mirror.removed
// event for every mirror that is gone, and one config.changed event.
// It is registered as a store change listener.
func (m *Manager) ObserveConfiguration(cfg *domain.Configuration) {
	m.statusMu.Lock()
	next := collectStates(cfg)
	prev := m.statuses
	m.statuses = next

	var events []Event
	for i := range cfg.Alternatives {
		alt := &cfg.Alternatives[i]
		for j := range alt.Mirrors {
			mir := &alt.Mirrors[j]
			if old, ok := prev[mir.ID]; !ok || old != next[mir.ID] {
				events = append(events, NewMirrorStatusEvent(alt.ID, mir))
			}
		}
	}
	for mirrorID, old := range prev {
		if _, ok := next[mirrorID]; !ok {
			events = append(events, NewMirrorRemovedEvent(old.alternativeID, mirrorID))
		}
	}
	m.statusMu.Unlock()

	for _, e := range events {
		m.Emit(e)
	}
	m.Emit(NewConfigChangedEvent(cfg))
}

// Snapshot returns the last observed status of every mirror, and the progress
// of those being synced, limited to one alternative unless alternativeID is empty.
func (m *Manager) Snapshot(clientID, alternativeID string) SnapshotData {
	data := SnapshotData{ClientID: clientID, Mirrors: []MirrorStatusData{}, Progress: map[string]float64{}}

	m.statusMu.Lock()
	for mirrorID, st := range m.statuses {
		if alternativeID != "" && st.alternativeID != alternativeID {
			continue
		}
		d := MirrorStatusData{
			AlternativeID: st.alternativeID,
			MirrorID:      mirrorID,
			Status:        st.status,
			LastError:     st.lastError,
		}
		if st.fileCount >= 0 {
			n := st.fileCount
			d.FileCount = &n
		}
		data.Mirrors = append(data.Mirrors, d)
	}
	m.statusMu.Unlock()
	slices.SortFunc(data.Mirrors, func(a, b MirrorStatusData) int {
		return cmp.Compare(a.MirrorID, b.MirrorID)
	})

	if m.progress == nil {
		return data
	}
	for mirrorID, pct := range m.progress() {
		if alternativeID == "" || slices.ContainsFunc(data.Mirrors, func(d MirrorStatusData) bool { return d.MirrorID == mirrorID }) {
			data.Progress[mirrorID] = pct
		}
	}
	return data
}

func collectStates(cfg *domain.Configuration) map[string]mirrorState {
	out := make(map[string]mirrorState)
	for i := range cfg.Alternatives {
		alt := &cfg.Alternatives[i]
		for j := range alt.Mirrors {
			out[alt.Mirrors[j].ID] = stateOf(alt.ID, &alt.Mirrors[j])
		}
	}
	return out
}
