package memory

import (
	"context"
	"errors"
	"sync"

	"trusted-properties/internal/eventing"
)

type outboxEntry struct {
	record   eventing.OutboxRecord
	status   string
	attempts int
}

// OutboxStore is an in-memory outbox.
type OutboxStore struct {
	mu      sync.Mutex
	entries []*outboxEntry
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{}
}

// Insert appends an envelope as pending.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	id := eventing.NewEventID()
	s.mu.Lock()
	s.entries = append(s.entries, &outboxEntry{
		record: eventing.OutboxRecord{ID: id, Envelope: env},
		status: "pending",
	})
	s.mu.Unlock()
	return id, nil
}

// ListPending returns pending records in insertion order.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []eventing.OutboxRecord
	for _, entry := range s.entries {
		if entry.status != "pending" {
			continue
		}
		result = append(result, entry.record)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkSent marks a record as sent.
func (s *OutboxStore) MarkSent(_ context.Context, id string) error {
	return s.mark(id, "sent")
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(_ context.Context, id string) error {
	return s.mark(id, "failed")
}

// Status returns the status of a record, or "" when unknown.
func (s *OutboxStore) Status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.record.ID == id {
			return entry.status
		}
	}
	return ""
}

func (s *OutboxStore) mark(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.record.ID == id {
			entry.status = status
			if status == "failed" {
				entry.attempts++
			}
			return nil
		}
	}
	return errors.New("outbox store: record not found")
}

// ProcessedStore is an in-memory idempotency store.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed checks if event was already processed by consumer.
func (s *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	if eventID == "" || consumerName == "" {
		return false, errors.New("processed store: invalid arguments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[eventID+"|"+consumerName]
	return ok, nil
}

// MarkProcessed records an event as processed by consumer.
func (s *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	s.mu.Lock()
	s.seen[eventID+"|"+consumerName] = struct{}{}
	s.mu.Unlock()
	return nil
}

// DeadLetter is a failed delivery.
type DeadLetter struct {
	Envelope eventing.Envelope
	Error    string
	Attempts int
}

// DLQStore is an in-memory dead letter store.
type DLQStore struct {
	mu      sync.Mutex
	letters map[string]*DeadLetter
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore() *DLQStore {
	return &DLQStore{letters: make(map[string]*DeadLetter)}
}

// RecordFailure inserts or updates a dead letter.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, err error) error {
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	message := ""
	if err != nil {
		message = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	letter, ok := s.letters[env.EventID]
	if !ok {
		letter = &DeadLetter{}
		s.letters[env.EventID] = letter
	}
	letter.Envelope = env
	letter.Error = message
	letter.Attempts++
	return nil
}

// List returns a copy of the dead letters.
func (s *DLQStore) List() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]DeadLetter, 0, len(s.letters))
	for _, letter := range s.letters {
		result = append(result, *letter)
	}
	return result
}
