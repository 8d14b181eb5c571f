package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	agreement "trusted-properties/internal/agreement/domain"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config is the service configuration.
type Config struct {
	DatabaseURL      string          `yaml:"database_url"`
	HTTPAddr         string          `yaml:"http_addr"`
	JWTSecret        string          `yaml:"jwt_secret"`
	LedgerBackend    string          `yaml:"ledger_backend"`
	FaucetEnabled    bool            `yaml:"faucet_enabled"`
	DispatchInterval time.Duration   `yaml:"dispatch_interval"`
	ShutdownTimeout  time.Duration   `yaml:"shutdown_timeout"`
	Agreement        AgreementConfig `yaml:"agreement"`
	Kafka            KafkaConfig     `yaml:"kafka"`
	Log              LogConfig       `yaml:"log"`
}

// AgreementConfig holds state machine policy settings.
type AgreementConfig struct {
	MaxDuration        uint64 `yaml:"max_duration"`
	RefundOnCompletion bool   `yaml:"refund_on_completion"`
	DrawdownPolicy     string `yaml:"drawdown_policy"`
}

// KafkaConfig enables the Kafka event sink when brokers are set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:         ":8080",
		LedgerBackend:    BackendMemory,
		DispatchInterval: 2 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		Agreement: AgreementConfig{
			MaxDuration:        agreement.DefaultMaxDuration,
			RefundOnCompletion: true,
			DrawdownPolicy:     string(agreement.DrawdownOwnerWithholding),
		},
		Kafka: KafkaConfig{Topic: "rent-agreement-events"},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// Load applies defaults, the dotenv file, the YAML file named by RENT_CONFIG
// and finally environment variables, in that order.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("RENT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.LedgerBackend = getenvDefault("LEDGER_BACKEND", cfg.LedgerBackend)
	cfg.FaucetEnabled = getenvBool("FAUCET_ENABLED", cfg.FaucetEnabled)
	cfg.DispatchInterval = getenvDuration("DISPATCH_INTERVAL", cfg.DispatchInterval)
	cfg.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Agreement.MaxDuration = getenvUint("AGREEMENT_MAX_DURATION", cfg.Agreement.MaxDuration)
	cfg.Agreement.RefundOnCompletion = getenvBool("AGREEMENT_REFUND_ON_COMPLETION", cfg.Agreement.RefundOnCompletion)
	cfg.Agreement.DrawdownPolicy = getenvDefault("AGREEMENT_DRAWDOWN_POLICY", cfg.Agreement.DrawdownPolicy)
	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.LedgerBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: database url required for postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.LedgerBackend)
	}
	if c.Agreement.MaxDuration == 0 || c.Agreement.MaxDuration > agreement.DurationLimit {
		return fmt.Errorf("config: agreement max duration must be within 1..%d", agreement.DurationLimit)
	}
	if _, err := agreement.ParseDrawdownPolicy(c.Agreement.DrawdownPolicy); err != nil {
		return err
	}
	return nil
}

// Policy builds the state machine policy.
func (c Config) Policy() agreement.Policy {
	drawdown, err := agreement.ParseDrawdownPolicy(c.Agreement.DrawdownPolicy)
	if err != nil {
		drawdown = agreement.DrawdownOwnerWithholding
	}
	return agreement.Policy{
		RefundOnCompletion: c.Agreement.RefundOnCompletion,
		Drawdown:           drawdown,
		MaxDuration:        c.Agreement.MaxDuration,
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvUint(key string, fallback uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
