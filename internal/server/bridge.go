package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Bridge is the one-shot mailbox between the daemon and the worker process.
// The daemon POSTs a decision payload; the worker polls with GET and the
// payload is consumed on delivery so a decision is never applied twice.
type Bridge struct {
	mu    sync.Mutex
	boxes map[string]json.RawMessage
	log   *zap.Logger
}

func NewBridge(log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{boxes: map[string]json.RawMessage{}, log: log}
}

// Post stores a payload, replacing any undelivered one for the same slot.
func (b *Bridge) Post(slot string, payload json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.boxes[slot]; exists {
		b.log.Warn("Replacing undelivered bridge payload", zap.String("slot", slot))
	}
	b.boxes[slot] = payload
}

// Take removes and returns the pending payload for a slot, if any.
func (b *Bridge) Take(slot string) (json.RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	payload, ok := b.boxes[slot]
	if ok {
		delete(b.boxes, slot)
	}
	return payload, ok
}

func (b *Bridge) postHandler(slot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}
		b.Post(slot, payload)
		b.log.Debug("Bridge payload stored", zap.String("slot", slot))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (b *Bridge) getHandler(slot string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		payload, ok := b.Take(slot)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		b.log.Debug("Bridge payload delivered", zap.String("slot", slot))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(payload)
	}
}
