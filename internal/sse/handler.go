package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Handler streams events at GET /api/v1/events. The optional alternative_id
// query parameter narrows the stream to one alternative. Every stream opens
// with a snapshot event, so a reconnecting client catches up without a
// separate fetch.
type Handler struct {
	manager      *Manager
	logger       *slog.Logger
	writeTimeout time.Duration
	retry        time.Duration
}

// NewHandler creates a Handler serving manager's events.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	return &Handler{
		manager:      manager,
		logger:       logger,
		writeTimeout: time.Minute,
		retry:        5 * time.Second,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	alternativeID := r.URL.Query().Get("alternative_id")

	client, err := h.manager.Connect(alternativeID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrShutdown) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("event stream refused", "error", err)
		http.Error(w, "event stream unavailable", status)
		return
	}
	defer h.manager.Disconnect(client.ID)
	log := h.logger.With("client_id", client.ID, "alternative_id", alternativeID)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	s := newStream(w, h.writeTimeout, h.retry)
	if err := s.write(Event{
		Type:      EventSnapshot,
		Data:      h.manager.Snapshot(client.ID, alternativeID),
		Timestamp: time.Now(),
	}); err != nil {
		log.Debug("event stream closed before snapshot", "error", err)
		return
	}

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := s.write(event); err != nil {
				log.Debug("event stream write failed", "error", err)
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// stream frames events onto one response, numbering them from 1. The first
// frame also tells the browser how long to wait before reconnecting.
type stream struct {
	w       io.Writer
	rc      *http.ResponseController
	timeout time.Duration
	retry   time.Duration
	seq     uint64
}

func newStream(w http.ResponseWriter, timeout, retry time.Duration) *stream {
	return &stream{w: w, rc: http.NewResponseController(w), timeout: timeout, retry: retry}
}

func (s *stream) write(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	s.seq++
	if s.seq == 1 && s.retry > 0 {
		if _, err := fmt.Fprintf(s.w, "retry: %d\n", s.retry.Milliseconds()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, e.Type, data); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}
	// A client that stops reading fails the next write instead of pinning the goroutine.
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
