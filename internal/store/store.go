package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Record is one persisted broadcast message.
type Record struct {
	ID         string // UUID
	Identifier string
	CreatedAt  time.Time
	Payload    []byte // serialized proto.Message, no length prefix
}

// NewRecord serializes msg into a Record with a fresh ID and the current time.
func NewRecord(identifier string, msg proto.Message) (*Record, error) {
	payload, err := proto.MarshalPayload(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return &Record{
		ID:         uuid.NewString(),
		Identifier: identifier,
		CreatedAt:  time.Now().UTC(),
		Payload:    payload,
	}, nil
}

// Message decodes the stored payload.
func (r *Record) Message() (proto.Message, error) {
	return proto.UnmarshalPayload(r.Payload)
}

// UserStore handles identifier registration.
type UserStore interface {
	// Authenticate registers identifier. Registering an existing identifier is a no-op.
	Authenticate(ctx context.Context, identifier string) error

	// CountUsers returns the number of registered identifiers.
	CountUsers(ctx context.Context) (int, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a record. The identifier must already be registered.
	SaveMessage(ctx context.Context, rec *Record) error

	// ListMessages returns up to limit most recent records in chronological order.
	// An empty identifier matches every sender.
	ListMessages(ctx context.Context, identifier string, limit int) ([]*Record, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
