package core

import (
	"context"
	"time"

	"permitdesk/pkg/domain"
)

// PurgeNotifications deletes a user's notifications created before cutoff.
// Deletes are chunked at the store's batch ceiling and each chunk commits
// independently: a failure mid-sequence leaves prior chunks deleted, so the
// purge is at-least-once per chunk, not atomic. Returns how many
// notifications were actually deleted.
func (s *Service) PurgeNotifications(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	notifications, err := listNotifications(ctx, s.store, userID)
	if err != nil {
		return 0, err
	}

	p := domain.NotificationsOf(userID)
	deleted := 0
	batch := s.store.Batch(p)
	for _, n := range notifications {
		if !n.CreatedAt.Before(cutoff) {
			continue
		}
		batch.Delete(n.ID)
		if batch.Len() == domain.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return deleted, err
			}
			deleted += domain.MaxBatchOps
			batch = s.store.Batch(p)
		}
	}
	if batch.Len() > 0 {
		n := batch.Len()
		if err := batch.Commit(ctx); err != nil {
			return deleted, err
		}
		deleted += n
	}
	if deleted > 0 {
		s.log.Info().Str("op", "purge_notifications").Str("user", userID).
			Int("deleted", deleted).Time("cutoff", cutoff).Msg("notifications purged")
	}
	return deleted, nil
}

// PurgeAllNotifications runs the retention purge over every notification
// partition. Per-user failures are logged and skipped so one bad partition
// does not block the sweep.
func (s *Service) PurgeAllNotifications(ctx context.Context, retain time.Duration) (int, error) {
	cutoff := s.now().Add(-retain)
	partitions, err := s.store.ListPartitions(ctx, "notifications")
	if err != nil {
		return 0, err
	}
	total := 0
	for _, userID := range partitions {
		n, err := s.PurgeNotifications(ctx, userID, cutoff)
		total += n
		if err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("notification purge failed, continuing")
		}
	}
	return total, nil
}
