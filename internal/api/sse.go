package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicware/realtime-scheduling/internal/notify"
)

// SSEHandler is the transport adapter between the broker and one connected
// client: it opens a subscription, drains it into the response as
// server-sent events, and surrenders the handle when the client goes away.
type SSEHandler struct {
	broker    notify.Broker
	heartbeat time.Duration
	log       zerolog.Logger
}

func NewSSEHandler(broker notify.Broker, heartbeat time.Duration, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		broker:    broker,
		heartbeat: heartbeat,
		log:       log.With().Str("component", "sse").Logger(),
	}
}

// StreamProviderEvents handles GET /providers/{id}/events.
func (h *SSEHandler) StreamProviderEvents(w http.ResponseWriter, r *http.Request) {
	providerID, ok := providerIDParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	sub, err := h.broker.Subscribe(r.Context(), providerID)
	if err != nil {
		h.log.Error().Err(err).Int64("provider_id", providerID).Msg("subscribe failed")
		return
	}
	defer h.broker.Unsubscribe(sub)

	h.log.Info().Int64("provider_id", providerID).Msg("client connected")

	sendFrame(w, "connected", map[string]any{
		"providerId": providerID,
		"timestamp":  time.Now().UTC(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Int64("provider_id", providerID).Msg("client disconnected")
			return
		case <-ticker.C:
			sendFrame(w, "heartbeat", map[string]any{
				"timestamp": time.Now().UTC(),
			})
			flusher.Flush()
		case ev, open := <-sub.Events():
			if !open {
				// Broker shut down underneath us.
				return
			}
			sendFrame(w, ev.Kind, ev)
			flusher.Flush()
		}
	}
}

func sendFrame(w http.ResponseWriter, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
