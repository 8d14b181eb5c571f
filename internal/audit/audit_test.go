package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog_Normalizes(t *testing.T) {
	log := NewMemoryLog(zerolog.Nop())
	require.NoError(t, log.Log(context.Background(), Entry{
		Actor:    "owner",
		Action:   "terminate",
		Metadata: []byte(`{"withheld_amount":10}`),
	}))

	entries := log.Entries()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ID, "audit-")
	require.False(t, entries[0].CreatedAt.IsZero())
	require.Equal(t, DigestJSON([]byte(`{"withheld_amount":10}`)), entries[0].PayloadDigest)
	require.Empty(t, DigestJSON(nil))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	require.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	require.Equal(t, "10.0.0.3", ClientIP(req))
}
