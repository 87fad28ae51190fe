// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"comingsoon/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// AppendSubscriber stores a new record and returns its generated document ID.
	AppendSubscriber(ctx context.Context, rec model.SubscriberRecord) (string, error)
	// ListDocuments returns every subscriber document, newest capture first.
	ListDocuments(ctx context.Context) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// Revision changes whenever a subscriber is added or removed.
	Revision(ctx context.Context) (model.Revision, error)

	GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error)
	UpsertAdmin(ctx context.Context, admin *model.Admin) error
	RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)

	Close() error
}
