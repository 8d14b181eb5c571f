package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agreement "trusted-properties/internal/agreement/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RENT_CONFIG", "DATABASE_URL", "PG_DSN", "HTTP_ADDR", "AUTH_JWT_SECRET", "JWT_SECRET",
		"LEDGER_BACKEND", "FAUCET_ENABLED", "DISPATCH_INTERVAL", "SHUTDOWN_TIMEOUT",
		"AGREEMENT_MAX_DURATION", "AGREEMENT_REFUND_ON_COMPLETION", "AGREEMENT_DRAWDOWN_POLICY",
		"KAFKA_BROKERS", "KAFKA_TOPIC", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, agreement.DefaultPolicy(), cfg.Policy())
	assert.False(t, cfg.FaucetEnabled)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "rent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
faucet_enabled: true
dispatch_interval: 5s
agreement:
  max_duration: 24
  refund_on_completion: false
  drawdown_policy: settlement_only
kafka:
  brokers: ["kafka-1:9092"]
`), 0o600))
	t.Setenv("RENT_CONFIG", path)
	t.Setenv("HTTP_ADDR", ":7070")
	t.Setenv("KAFKA_TOPIC", "leases")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
	assert.True(t, cfg.FaucetEnabled)
	assert.Equal(t, 5*time.Second, cfg.DispatchInterval)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "leases", cfg.Kafka.Topic)
	assert.Equal(t, agreement.Policy{
		RefundOnCompletion: false,
		Drawdown:           agreement.DrawdownSettlementOnly,
		MaxDuration:        24,
	}, cfg.Policy())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LOG_LEVEL")
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\n"), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	os.Unsetenv("LOG_LEVEL")

	_, err = Load(filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LedgerBackend = BackendPostgres
	require.Error(t, cfg.Validate())
	cfg.DatabaseURL = "postgres://localhost/rent"
	require.NoError(t, cfg.Validate())

	cfg.LedgerBackend = "sqlite"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Agreement.DrawdownPolicy = "automatic"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Agreement.MaxDuration = agreement.DurationLimit
	require.NoError(t, cfg.Validate())
	cfg.Agreement.MaxDuration = agreement.DurationLimit + 1
	require.Error(t, cfg.Validate())
}

func TestLoad_RejectsUnboundedMaxDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGREEMENT_MAX_DURATION", "100000")
	_, err := Load("")
	require.Error(t, err)
}
