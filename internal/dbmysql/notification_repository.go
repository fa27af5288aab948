package dbmysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruitdesk/internal/common"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("notification not found")

type notificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) common.NotificationStore {
	return &notificationStore{db: db}
}

func (r *notificationStore) Create(ctx context.Context, n *common.Notification) error {
	record := fromDomain(n)
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	*n = record.toDomain()
	return nil
}

func (r *notificationStore) ByID(ctx context.Context, id string) (*common.Notification, error) {
	var record Notification

	err := r.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", id, false).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	n := record.toDomain()
	return &n, nil
}

func (r *notificationStore) ByUser(ctx context.Context, userID string) ([]common.Notification, error) {
	var records []*Notification

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user notifications: %w", err)
	}

	result := make([]common.Notification, len(records))
	for i, record := range records {
		result[i] = record.toDomain()
	}
	return result, nil
}

func (r *notificationStore) Update(ctx context.Context, id string, req common.UpdateNotificationRequest) (*common.Notification, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if req.Message != nil {
		updates["message"] = *req.Message
	}
	if req.IsRead != nil && *req.IsRead {
		// read is monotonic; readAt is stamped only on the false->true transition
		updates["is_read"] = true
		updates["read_at"] = gorm.Expr("COALESCE(read_at, ?)", time.Now())
	}

	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	return r.ByID(ctx, id)
}

func (r *notificationStore) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ? AND deleted = ?", id, false).
		Updates(map[string]interface{}{
			"deleted":    true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND is_read = ? AND deleted = ?", userID, false, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}
