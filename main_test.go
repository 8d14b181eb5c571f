package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgermemory "trusted-properties/internal/ledger/infrastructure/memory"
)

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var logs bytes.Buffer
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), zerolog.New(&logs))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agreements/lease-1", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, logs.String(), `"status":418`)
	assert.Contains(t, logs.String(), `"path":"/api/v1/agreements/lease-1"`)
}

func TestMemoryBackendWiring(t *testing.T) {
	stores := newEventStores(nil)
	require.NotNil(t, stores.outbox)
	require.NotNil(t, stores.processed)
	require.NotNil(t, stores.dlq)

	_, ok := newLedger(nil).(*ledgermemory.Ledger)
	assert.True(t, ok)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("RENT_CONFIG", "")
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	envFile = ""

	cmd := tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"owner-1", "--role", "admin"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out.String()), "."))
}
