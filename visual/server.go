package visual

import (
	"encoding/json"
	"net/http"
)

// Handler routes the hub endpoints: /ws streams frames, /api/frame returns the
// latest frame, /api/control accepts a command.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/api/frame", h.handleFrame)
	mux.HandleFunc("/api/control", h.handleControl)
	return mux
}

func (h *Hub) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.RLock()
	latest := h.latest
	h.mu.RUnlock()

	if latest == nil {
		http.Error(w, "No frame available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(latest)
}

func (h *Hub) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd ControlCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid command", http.StatusBadRequest)
		return
	}
	switch cmd.Type {
	case CommandPause, CommandResume, CommandStop:
	case CommandDepart:
		if cmd.Replica == "" {
			http.Error(w, "depart needs a replica", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Unknown command", http.StatusBadRequest)
		return
	}
	if !h.Enqueue(cmd) {
		http.Error(w, "Command queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
