package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"linehaul/engine"
)

type SSEEvent struct {
	TenantID string
	Event    string
	Data     string
}

type sseClient struct {
	id     string
	tenant string
	ch     chan SSEEvent
}

// wants reports whether the client receives evt. Untagged events and
// unfiltered clients match everything.
func (c *sseClient) wants(evt SSEEvent) bool {
	return c.tenant == "" || evt.TenantID == "" || c.tenant == evt.TenantID
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[*sseClient]struct{}
	broadcast chan SSEEvent
	keepalive time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	log       zerolog.Logger
}

func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{
		clients:   make(map[*sseClient]struct{}),
		broadcast: make(chan SSEEvent, 256),
		keepalive: 30 * time.Second,
		stopChan:  make(chan struct{}),
		log:       log,
	}
}

func (h *EventHub) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *EventHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()
}

func (h *EventHub) run() {
	defer h.wg.Done()
	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.fanOut(evt)
		case <-keepalive.C:
			h.fanOut(SSEEvent{Event: "keepalive", Data: "ping"})
		}
	}
}

func (h *EventHub) fanOut(evt SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(evt) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
			// slow client, drop
		}
	}
}

func (h *EventHub) Broadcast(tenantID, event, data string) {
	select {
	case h.broadcast <- SSEEvent{TenantID: tenantID, Event: event, Data: data}:
	default:
		h.log.Warn().Str("event", event).Msg("sse broadcast buffer full, dropping")
	}
}

func (h *EventHub) AddClient(tenant string) *sseClient {
	c := &sseClient{id: uuid.New().String(), tenant: tenant, ch: make(chan SSEEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *EventHub) RemoveClient(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetupEngineListeners forwards every engine event to SSE clients as JSON.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.Subscribe(func(evt engine.Event) {
		name := evt.Type.Name()
		if name == "" {
			return
		}
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			h.log.Warn().Err(err).Str("event", name).Msg("sse encode")
			return
		}
		h.Broadcast(evt.TenantID, name, string(data))
	})
}

// SSEHandler serves the SSE endpoint. ?tenant= limits delivery to one tenant.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := h.AddClient(r.URL.Query().Get("tenant"))
	defer h.RemoveClient(c)

	fmt.Fprintf(w, "event: connected\ndata: {\"client_id\":%q}\n\n", c.id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.stopChan:
			return
		case evt := <-c.ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				h.log.Debug().Err(err).Str("client", c.id).Msg("sse write")
				return
			}
			flusher.Flush()
		}
	}
}
