package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicware/realtime-scheduling/internal/notify"
)

func startStreamServer(t *testing.T, broker notify.Broker) *httptest.Server {
	t.Helper()

	sse := NewSSEHandler(broker, time.Minute, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/providers/{id}/events", sse.StreamProviderEvents)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// readFrame scans the stream until the next event/data pair.
func readFrame(t *testing.T, scanner *bufio.Scanner) (event, data string) {
	t.Helper()

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			return event, strings.TrimPrefix(line, "data: ")
		}
	}
	t.Fatalf("stream ended before a full frame arrived: %v", scanner.Err())
	return "", ""
}

func TestStreamProviderEvents(t *testing.T) {
	broker := notify.NewMemoryBroker(8, zerolog.Nop())
	defer broker.Close()

	srv := startStreamServer(t, broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/providers/7/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)

	event, data := readFrame(t, scanner)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, `"providerId":7`)

	// The connected frame means the subscription is registered; publish now.
	ev := notify.Event{
		Kind:       notify.EventAppointmentBooked,
		ProviderID: 7,
		Patient:    "Ana Gómez",
		Timestamp:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Message:    "New appointment booked",
	}
	require.NoError(t, broker.Publish(context.Background(), ev))

	event, data = readFrame(t, scanner)
	assert.Equal(t, notify.EventAppointmentBooked, event)
	assert.Contains(t, data, `"providerId":7`)
	assert.Contains(t, data, `"patient":"Ana Gómez"`)
	assert.Contains(t, data, `"timestamp":"2025-03-01T10:00:00Z"`)
}

func TestStreamProviderEvents_InvalidID(t *testing.T) {
	broker := notify.NewMemoryBroker(8, zerolog.Nop())
	defer broker.Close()

	srv := startStreamServer(t, broker)

	resp, err := http.Get(srv.URL + "/providers/abc/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
