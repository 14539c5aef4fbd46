package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/breath.report/internal/respiration/pipeline"
	"github.com/google/uuid"
)

// subscriberBuffer events may queue per subscriber before new events are
// dropped for it.
const subscriberBuffer = 64

type event struct {
	Name string
	Data any
}

type frameEvent struct {
	Frame   int     `json:"frame"`
	Sampled bool    `json:"sampled"`
	Value   float64 `json:"value"`
	Valid   int     `json:"valid"`
	Tracked int     `json:"tracked"`

	// Motion holds old and new positions of the valid points.
	Motion []pipeline.Motion `json:"motion,omitempty"`
}

// hub fans events out to stream subscribers. publish never blocks: a
// subscriber that falls behind misses events.
type hub struct {
	mu          sync.Mutex
	subscribers map[string]chan event
	closed      bool
	dropped     int
}

func newHub() *hub {
	return &hub{subscribers: make(map[string]chan event)}
}

func (h *hub) subscribe() (string, <-chan event) {
	id := uuid.NewString()
	ch := make(chan event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

func (h *hub) publish(e event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// handleStream sends frame and result events as server-sent events until
// the client goes away or the server shuts down.
func (ws *WebServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := ws.hub.subscribe()
	defer ws.hub.unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case e, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(e.Data)
			if err != nil {
				logf("stream: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
