package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"trusted-properties/internal/eventing"
)

const defaultOutboxTable = "event_outbox"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// OutboxStore is a Postgres implementation for outbox records.
type OutboxStore struct {
	db    *sql.DB
	table string
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert writes an envelope to outbox.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := eventing.NewEventID()
	query, args, err := psql.Insert(s.table).
		Columns("id", "event_id", "event_type", "payload", "status", "attempts").
		Values(outboxID, env.EventID, env.EventType, payload, "pending", 0).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, "outbox store: build insert")
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", errors.Wrap(err, "outbox store: insert")
	}
	return outboxID, nil
}

// ListPending returns pending outbox records oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query, args, err := psql.Select("id", "payload").
		From(s.table).
		Where(sq.Eq{"status": "pending"}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "outbox store: build select")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "outbox store: list pending")
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, errors.Wrapf(err, "outbox store: decode %s", id)
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	return result, rows.Err()
}

// MarkSent marks outbox record as sent.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.update(ctx, psql.Update(s.table).
		Set("status", "sent").
		Set("sent_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}))
}

// MarkFailed marks outbox record as failed and increments attempts.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.update(ctx, psql.Update(s.table).
		Set("status", "failed").
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"id": id}))
}

func (s *OutboxStore) update(ctx context.Context, builder sq.UpdateBuilder) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(err, "outbox store: build update")
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "outbox store: update")
}
