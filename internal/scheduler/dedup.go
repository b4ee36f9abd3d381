package scheduler

import (
	"context"

	"cinelog/internal/types"
)

// NotificationStore abstracts the notification persistence operations the
// jobs need. Only creation and the duplicate probe are reachable from here;
// the read-side store operations belong to the CRUD layer.
type NotificationStore interface {
	// Create inserts a new notification, generating its ID when unset.
	Create(ctx context.Context, n *types.Notification) error
	// Exists reports whether a notification matching the filter exists.
	Exists(ctx context.Context, f types.DuplicateFilter) (bool, error)
}

// DuplicateChecker decides whether a would-be notification has effectively
// already been sent. It is a pure read over the NotificationStore: jobs ask
// before creating, and suppress on a match. It never mutates anything.
type DuplicateChecker struct {
	store NotificationStore
}

// NewDuplicateChecker creates a DuplicateChecker over the given store.
func NewDuplicateChecker(store NotificationStore) *DuplicateChecker {
	return &DuplicateChecker{store: store}
}

// IsDuplicate reports whether a notification matching the filter already
// exists. The filter must carry the user and type scope plus at least one
// reference criterion; the store rejects anything broader.
func (c *DuplicateChecker) IsDuplicate(ctx context.Context, f types.DuplicateFilter) (bool, error) {
	return c.store.Exists(ctx, f)
}
