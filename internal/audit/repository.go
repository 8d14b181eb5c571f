package audit

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
)

// Repository writes audit logs.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry = normalize(entry)
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	query, args, err := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert("audit_logs").
		Columns("id", "actor", "role", "action", "resource_type", "resource_id",
			"metadata", "payload_digest", "ip", "user_agent", "created_at").
		Values(entry.ID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
			metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "audit repo: build insert")
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "audit repo: insert")
}
