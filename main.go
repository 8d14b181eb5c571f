package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trusted-properties/internal/agreement/application"
	"trusted-properties/internal/agreement/application/events"
	agreementinterfaces "trusted-properties/internal/agreement/interfaces"
	agreementhttp "trusted-properties/internal/agreement/interfaces/http"
	"trusted-properties/internal/audit"
	"trusted-properties/internal/auth"
	"trusted-properties/internal/config"
	"trusted-properties/internal/eventing"
	eventingkafka "trusted-properties/internal/eventing/infrastructure/kafka"
	eventingmemory "trusted-properties/internal/eventing/infrastructure/memory"
	eventingrepo "trusted-properties/internal/eventing/infrastructure/postgres"
	ledger "trusted-properties/internal/ledger/domain"
	ledgermemory "trusted-properties/internal/ledger/infrastructure/memory"
	ledgerpostgres "trusted-properties/internal/ledger/infrastructure/postgres"
	"trusted-properties/internal/logging"
	"trusted-properties/internal/migrations"
	"trusted-properties/internal/observability/metrics"
)

const (
	eventSource    = "rent-http"
	dispatchBatch  = 100
	kafkaConsumer  = "agreement-kafka-sink"
	readTimeout    = 10 * time.Second
	writeTimeout   = 30 * time.Second
	defaultEnvFile = ".env"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "trusted-properties",
		Short:         "Rent agreement escrow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before the environment")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), inspectCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and outbox dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger, migrate bool) error {
	if cfg.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if migrate {
			if _, err := migrations.Upgrade(ctx, db, logger); err != nil {
				return err
			}
		}
	}

	metrics.Init(db, logger)

	stores := newEventStores(db)
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.All()...)
	dispatcher := eventing.NewDispatcher(bus, stores.outbox, registry, stores.dlq, eventing.WithDispatcherLogger(logger))
	publisher := agreementinterfaces.NewOutboxPublisher(eventing.NewPublisher(stores.outbox, dispatcher, bus,
		eventing.WithRegistry(registry),
		eventing.WithPublisherLogger(logger),
	), eventSource)

	agreementinterfaces.NewEventLog(logger).Register(bus, stores.processed)
	if len(cfg.Kafka.Brokers) > 0 {
		writer := eventingkafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn().Err(err).Msg("close kafka writer")
			}
		}()
		sink, err := eventingkafka.NewSink(writer, logger)
		if err != nil {
			return err
		}
		eventing.SubscribeAll(bus, events.All(), kafkaConsumer, sink.Handle, stores.processed)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka sink enabled")
	}

	service, err := application.NewService(newLedger(db),
		application.WithPublisher(publisher),
		application.WithPolicy(cfg.Policy()),
		application.WithLogger(logger),
		application.WithFaucet(cfg.FaucetEnabled),
	)
	if err != nil {
		return err
	}

	var auditLogger audit.Logger = audit.NewMemoryLog(logger)
	if db != nil {
		auditLogger = audit.NewRepository(db)
	}
	handler, err := agreementhttp.NewHandler(service, auditLogger, logger)
	if err != nil {
		return err
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	go dispatcher.Run(ctx, cfg.DispatchInterval, dispatchBatch)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("ledger", cfg.LedgerBackend).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// openDB returns nil for the memory backend.
func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.LedgerBackend != config.BackendPostgres {
		return nil, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func newLedger(db *sql.DB) ledger.Ledger {
	if db == nil {
		return ledgermemory.NewLedger()
	}
	return ledgerpostgres.NewLedger(db)
}

type outboxStore interface {
	eventing.OutboxStore
	eventing.OutboxWriter
}

type eventStores struct {
	outbox    outboxStore
	processed eventing.ProcessedStore
	dlq       eventing.DLQStore
}

func newEventStores(db *sql.DB) eventStores {
	if db == nil {
		return eventStores{
			outbox:    eventingmemory.NewOutboxStore(),
			processed: eventingmemory.NewProcessedStore(),
			dlq:       eventingmemory.NewDLQStore(),
		}
	}
	return eventStores{
		outbox:    eventingrepo.NewOutboxStore(db),
		processed: eventingrepo.NewProcessedStore(db),
		dlq:       eventingrepo.NewDLQStore(db),
	}
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Msg("http")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
