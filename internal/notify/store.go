package notify

import (
	"context"

	"github.com/orrn/printfarm/internal/db"
)

// StoreSink writes notifications to the in-app inbox.
type StoreSink struct {
	store *db.Store
}

func NewStoreSink(store *db.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string {
	return "inbox"
}

func (s *StoreSink) Deliveries(_ context.Context, n *Notification) ([]Delivery, error) {
	record := &db.NotificationRecord{
		ID:          n.ID,
		Audience:    n.Audience,
		Event:       n.Event,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RelatedType: n.RelatedType,
		CreatedAt:   n.CreatedAt,
	}
	if n.UserID > 0 {
		userID := n.UserID
		record.UserID = &userID
	}
	if n.RelatedID > 0 {
		relatedID := n.RelatedID
		record.RelatedID = &relatedID
	}

	return []Delivery{{
		Target: "inbox",
		Send: func(ctx context.Context) error {
			return s.store.Notifications.CreateNotification(ctx, record)
		},
	}}, nil
}
