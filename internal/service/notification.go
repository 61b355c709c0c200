package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
)

// NotificationService reads and acknowledges in-app notifications
type NotificationService struct {
	notifications NotificationStore
}

func NewNotificationService(notifications NotificationStore) *NotificationService {
	return &NotificationService{notifications: notifications}
}

type NotificationList struct {
	Notifications []*domain.Notification `json:"notifications"`
	Unread        int                    `json:"unread"`
}

func (s *NotificationService) List(ctx context.Context, empresaID, userID uuid.UUID, unreadOnly bool, limit int) (*NotificationList, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := s.notifications.List(ctx, empresaID, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifications.CountUnread(ctx, empresaID, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	return &NotificationList{Notifications: items, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, empresaID, userID, id uuid.UUID) error {
	ok, err := s.notifications.MarkRead(ctx, empresaID, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, empresaID, userID uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, empresaID, userID)
}
