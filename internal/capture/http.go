// Package capture correlates CDP network events into response observations.
package capture

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/dgnsrekt/media_sniffer/internal/types"
)

// Sink receives completed observations.
type Sink interface {
	OnResponse(obs types.Observation) bool
}

const (
	cleanupInterval = 1 * time.Minute
	pendingMaxAge   = 5 * time.Minute
)

// HTTPCapture pairs requestWillBeSent with responseReceived so the sink sees
// the request method next to the response metadata.
type HTTPCapture struct {
	sink Sink

	pending   map[string]*types.PendingRequest
	pendingMu sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPCapture starts the stale-request cleanup loop. Call Close to stop it.
func NewHTTPCapture(sink Sink) *HTTPCapture {
	h := &HTTPCapture{
		sink:    sink,
		pending: make(map[string]*types.PendingRequest),
		done:    make(chan struct{}),
	}
	go h.cleanupLoop()
	return h
}

func (h *HTTPCapture) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// OnRequestWillBeSent remembers the request unless its resource type can
// never be playable media.
func (h *HTTPCapture) OnRequestWillBeSent(tabID string, ev *network.EventRequestWillBeSent) {
	if ev.Request == nil || skipResourceType(string(ev.Type)) {
		return
	}
	if strings.HasPrefix(ev.Request.URL, "data:") {
		return
	}

	h.pendingMu.Lock()
	h.pending[string(ev.RequestID)] = &types.PendingRequest{
		URL:       ev.Request.URL,
		Method:    ev.Request.Method,
		Timestamp: time.Now(),
	}
	h.pendingMu.Unlock()
}

// OnResponseReceived completes a pending request and hands it to the sink.
// Responses for unknown request IDs are ignored.
func (h *HTTPCapture) OnResponseReceived(tabID string, ev *network.EventResponseReceived) {
	h.pendingMu.Lock()
	pending, ok := h.pending[string(ev.RequestID)]
	if ok {
		delete(h.pending, string(ev.RequestID))
	}
	h.pendingMu.Unlock()

	if !ok || ev.Response == nil {
		return
	}

	url := ev.Response.URL
	if url == "" {
		url = pending.URL
	}

	obs := types.Observation{
		Timestamp: time.Now().UTC(),
		RequestID: string(ev.RequestID),
		TabID:     types.TabID(tabID),
		URL:       url,
		Response: types.ResponseMetadata{
			Method:       pending.Method,
			Status:       int(ev.Response.Status),
			ResourceType: string(ev.Type),
			Headers:      headerMapToStringMap(ev.Response.Headers),
		},
	}
	if h.sink.OnResponse(obs) {
		slog.Debug("observation accepted", "request_id", ev.RequestID, "tab_id", tabID)
	}
}

func (h *HTTPCapture) OnLoadingFailed(tabID string, ev *network.EventLoadingFailed) {
	h.pendingMu.Lock()
	delete(h.pending, string(ev.RequestID))
	h.pendingMu.Unlock()
}

// PendingCount returns the number of requests awaiting a response.
func (h *HTTPCapture) PendingCount() int {
	h.pendingMu.RLock()
	defer h.pendingMu.RUnlock()
	return len(h.pending)
}

func (h *HTTPCapture) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupStale(time.Now().Add(-pendingMaxAge))
		case <-h.done:
			return
		}
	}
}

func (h *HTTPCapture) cleanupStale(threshold time.Time) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	for id, pending := range h.pending {
		if pending.Timestamp.Before(threshold) {
			delete(h.pending, id)
		}
	}
}

// skipResourceType reports CDP resource types that never carry playable
// media.
func skipResourceType(resourceType string) bool {
	switch resourceType {
	case "Image", "Stylesheet", "Script", "Font", "WebSocket", "EventSource", "Ping", "CSPViolationReport", "Manifest", "SignedExchange", "Preflight":
		return true
	}
	return false
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
