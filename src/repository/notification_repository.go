package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionmonitor/src/database"
	"positionmonitor/src/model"
)

// NotificationRepository appends and reads position notifications.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{db: database.MainDB}
}

func NewNotificationRepositoryWithDB(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(
	ctx context.Context,
	n *model.Notification,
) error {

	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "NotificationRepository",
			"op":          "Create",
			"position_id": n.PositionID,
			"event":       n.Event,
		}).WithError(err).Error("Failed to create notification")

		return err
	}

	return nil
}

// FindByPosition returns a position's notifications in insertion order.
func (r *NotificationRepository) FindByPosition(
	ctx context.Context,
	positionID uint,
) ([]model.Notification, error) {

	var out []model.Notification

	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("id ASC").
		Find(&out).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "NotificationRepository",
			"op":          "FindByPosition",
			"position_id": positionID,
		}).WithError(err).Error("Failed to fetch notifications")

		return nil, err
	}

	return out, nil
}
