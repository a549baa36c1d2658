package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

const notificationsCollection = "notifications"

// Inbox stores per-user notifications in the document store.
type Inbox struct {
	store docstore.Store
	now   func() time.Time
}

var _ Sink = (*Inbox)(nil)

// NewInbox returns an inbox over store.
func NewInbox(store docstore.Store) *Inbox {
	return &Inbox{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Notify appends one notification for userID.
func (i *Inbox) Notify(ctx context.Context, userID string, eventType models.EventType, referenceID, message string) (models.Notification, error) {
	n := models.Notification{
		UserID:      userID,
		Type:        eventType,
		ReferenceID: referenceID,
		Message:     message,
		CreatedAt:   i.now(),
	}
	id, err := i.store.Append(ctx, notificationsCollection, n)
	if err != nil {
		return models.Notification{}, fmt.Errorf("notify %s: %w", userID, err)
	}
	n.ID = id
	return n, nil
}

// Name identifies the sink in logs.
func (i *Inbox) Name() string { return "inbox" }

// Deliver writes the event to every recipient's inbox, continuing past failures.
func (i *Inbox) Deliver(ctx context.Context, event models.Event, recipients []models.User) error {
	var errs []error
	for _, u := range recipients {
		if _, err := i.Notify(ctx, u.ID, event.Type, event.ReferenceID, event.Message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// List returns a user's notifications, oldest first.
func (i *Inbox) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	filter := docstore.Fields{"userId": userID}
	if unreadOnly {
		filter["read"] = false
	}
	var out []models.Notification
	if err := i.store.Find(ctx, notificationsCollection, filter, &out); err != nil {
		return nil, fmt.Errorf("list notifications: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

// MarkRead flags a notification owned by userID as read.
func (i *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	err := i.store.UpdateIf(ctx, notificationsCollection, id, docstore.Fields{"userId": userID}, docstore.Fields{"read": true})
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	case err != nil:
		return fmt.Errorf("mark notification read: %w: %w", models.ErrPersistence, err)
	}
	return nil
}
