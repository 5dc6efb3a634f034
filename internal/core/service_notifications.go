package core

import (
	"context"
	"encoding/json"
	"sort"

	"permitdesk/pkg/domain"
)

// ListNotifications returns the actor's notifications, newest first. Users
// only ever see their own partition; admins may read any.
func (s *Service) ListNotifications(ctx context.Context, actor domain.Actor, userID string) ([]domain.Notification, error) {
	if actor.ID != userID && actor.Role != domain.RoleAdmin {
		return nil, domain.AccessDeniedError{Actor: actor.ID, Action: "list_notifications", Reason: "not your notifications"}
	}
	notifications, err := listNotifications(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(notifications, func(i, j int) bool {
		if !notifications[i].CreatedAt.Equal(notifications[j].CreatedAt) {
			return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
		}
		return notifications[i].ID < notifications[j].ID
	})
	return notifications, nil
}

// MarkNotificationRead flips IsRead on one notification. This is the only
// mutation a notification admits after creation.
func (s *Service) MarkNotificationRead(ctx context.Context, actor domain.Actor, notificationID string) (domain.Notification, error) {
	raw, err := s.store.Get(ctx, domain.NotificationsOf(actor.ID), notificationID)
	if err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return domain.Notification{}, err
	}
	if n.IsRead {
		return n, nil
	}
	n.IsRead = true
	if err := putNotification(ctx, s.store, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// MarkAllNotificationsRead flips IsRead on every unread notification of the
// actor in one batch per chunk.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, actor domain.Actor) (int, error) {
	notifications, err := listNotifications(ctx, s.store, actor.ID)
	if err != nil {
		return 0, err
	}
	p := domain.NotificationsOf(actor.ID)
	marked := 0
	batch := s.store.Batch(p)
	for _, n := range notifications {
		if n.IsRead {
			continue
		}
		n.IsRead = true
		raw, err := json.Marshal(n)
		if err != nil {
			return marked, err
		}
		batch.Put(n.ID, raw)
		marked++
		if batch.Len() == domain.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return marked - batch.Len(), err
			}
			batch = s.store.Batch(p)
		}
	}
	if batch.Len() > 0 {
		if err := batch.Commit(ctx); err != nil {
			return marked - batch.Len(), err
		}
	}
	return marked, nil
}
