package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/streamzone/sz/internal/webhook"
)

// Change types sent to listeners
const (
	changeAdded    = "added"
	changeModified = "modified"
	changeRemoved  = "removed"
)

// listenBuffer is how many changes a listener may fall behind before it is
// disconnected.
const listenBuffer = 64

// changeEvent is one message on a listen stream
type changeEvent struct {
	Type       string       `json:"type"`
	Collection string       `json:"collection"`
	Doc        documentJSON `json:"doc"`
}

type subscriber struct {
	ch chan changeEvent
}

// Hub fans document changes out to the listeners of each collection.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool

	// onDrop is called when a slow subscriber is cut off
	onDrop func()
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

func hubKey(project, collection string) string {
	return project + "/" + collection
}

// Subscribe registers a listener for one collection. The channel is closed
// when cancel is called, when the listener falls too far behind, or when
// the hub closes.
func (h *Hub) Subscribe(project, collection string) (<-chan changeEvent, func()) {
	sub := &subscriber{ch: make(chan changeEvent, listenBuffer)}
	key := hubKey(project, collection)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[key] == nil {
		h.subs[key] = make(map[*subscriber]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.removeLocked(key, sub)
		})
	}
}

// removeLocked closes sub's channel if it is still registered
func (h *Hub) removeLocked(key string, sub *subscriber) {
	set, ok := h.subs[key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, key)
	}
	close(sub.ch)
}

// publish fans ev out to listeners and the webhook, if one is configured.
func (s *Server) publish(project string, ev changeEvent) {
	s.hub.Publish(project, ev)
	if s.webhook != nil {
		s.webhook.Enqueue(webhook.Event{
			Project:    project,
			Collection: ev.Collection,
			Type:       ev.Type,
			DocID:      ev.Doc.ID,
			Data:       ev.Doc.Data,
			Timestamp:  ev.Doc.UpdateTime,
		})
	}
}

// Publish delivers ev to every listener of its collection without blocking.
func (h *Hub) Publish(project string, ev changeEvent) {
	key := hubKey(project, ev.Collection)
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[key] {
		select {
		case sub.ch <- ev:
		default:
			h.removeLocked(key, sub)
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

// Count returns the number of registered listeners.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// CountProject returns the number of listeners on one project's collections.
func (h *Hub) CountProject(project string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for key, set := range h.subs {
		if strings.HasPrefix(key, project+"/") {
			n += len(set)
		}
	}
	return n
}

// Close disconnects every listener; later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for key, set := range h.subs {
		for sub := range set {
			h.removeLocked(key, sub)
		}
	}
}

// handleListen handles GET /v1/projects/{project}/collections/{collection}/listen.
// It upgrades to a websocket and streams changeEvent messages as JSON.
func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	project, collection, ok := collectionPath(w, r)
	if !ok {
		return
	}

	// Subscribe before the handshake completes so a client that writes
	// right after dialing sees its own change.
	events, cancel := s.hub.Subscribe(project, collection)
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.config.CORSAllowedOrigins,
	})
	if err != nil {
		logFor(r.Context()).Warn("websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	s.metrics.ListenerOpened()
	defer s.metrics.ListenerClosed()
	log := logFor(r.Context()).With("collection", collection)
	log.Debug("listener connected")

	// The client never sends; CloseRead handles pings and close frames.
	ctx := conn.CloseRead(context.Background())
	for {
		select {
		case <-ctx.Done():
			log.Debug("listener disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "listener closed")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				log.Debug("listener write failed", "err", err)
				return
			}
		}
	}
}
