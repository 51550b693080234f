package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderChannel(t *testing.T) {
	assert.Equal(t, "appointments.provider.7", providerChannel(7))
	assert.Equal(t, "appointments.provider.120043", providerChannel(120043))
}

func TestDecodeEvent(t *testing.T) {
	want := Event{
		Kind:       EventAppointmentCancelled,
		ProviderID: 7,
		Patient:    "Ana Gómez",
		Timestamp:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Message:    "Appointment cancelled by the patient",
	}

	payload, err := json.Marshal(want)
	require.NoError(t, err)

	got, err := decodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := decodeEvent([]byte("{not json"))
	assert.Error(t, err)

	_, err = decodeEvent([]byte(`{"providerId": 7}`))
	assert.Error(t, err, "payload without a kind is rejected")
}
