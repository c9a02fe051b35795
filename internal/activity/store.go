package activity

import (
	"context"
	"time"
)

// Store persists activities. Intentionally append-only.
type Store interface {
	Insert(ctx context.Context, a *Activity) error
	InsertBatch(ctx context.Context, entries []Activity) (int64, error)
	ListByContact(ctx context.Context, agencyID, contactID int64) ([]Activity, error)
	ListSince(ctx context.Context, agencyID int64, since time.Time) ([]Activity, error)
}
