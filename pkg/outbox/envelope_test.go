package outbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","occurredAt":"2026-09-01T10:00:00Z","data":{"order_id":"o-1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "e-1", env.EventID)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(env.Data))

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e-2","data":null}`))
	assert.ErrorIs(t, err, ErrEmptyEventData)

	_, err = DecodeEnvelope([]byte(`{"version":2,"eventId":"e-3","data":{}}`))
	assert.ErrorContains(t, err, "not supported")

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
