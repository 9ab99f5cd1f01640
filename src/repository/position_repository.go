package repository

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionmonitor/src/database"
	"positionmonitor/src/model"
)

// PositionRepository handles read/write operations for positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// NewPositionRepositoryWithDB binds the repository to an explicit connection.
func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating PositionRepository with custom DB instance")

	return &PositionRepository{db: db}
}

// Create inserts a new position.
// The given position will be updated with the generated ID and timestamps.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "Create",
		"trader_id":  position.TraderID,
		"trade_pair": position.TradePair,
		"order_type": position.OrderType,
	}).Debug("Creating new position")

	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created successfully")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "PositionRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching position by ID")

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PositionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Position not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")

		return nil, err
	}

	return &position, nil
}

// FindByStatuses returns every position currently in one of the given statuses,
// oldest first.
func (r *PositionRepository) FindByStatuses(
	ctx context.Context,
	statuses []model.PositionStatus,
) ([]model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "PositionRepository",
		"op":       "FindByStatuses",
		"statuses": statuses,
	}).Debug("Fetching positions by status")

	var positions []model.Position
	if len(statuses) == 0 {
		return positions, nil
	}

	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "FindByStatuses",
			"statuses": statuses,
		}).WithError(err).Error("Failed to fetch positions by status")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "FindByStatuses",
		"rows_return": len(positions),
	}).Debug("Positions fetched")

	return positions, nil
}

// FindOpenByTrader returns the trader's non-closed positions, newest first.
func (r *PositionRepository) FindOpenByTrader(
	ctx context.Context,
	traderID uint,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("trader_id = ?", traderID).
		Where("status <> ?", model.PositionStatusClosed).
		Order("id DESC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "PositionRepository",
			"op":        "FindOpenByTrader",
			"trader_id": traderID,
		}).WithError(err).Error("Failed to fetch open positions for trader")

		return nil, err
	}

	return positions, nil
}

// UpdateFields applies a partial update guarded by the expected status.
// Returns ErrConflict when the row no longer carries that status.
func (r *PositionRepository) UpdateFields(
	ctx context.Context,
	id uint,
	expected model.PositionStatus,
	fields map[string]interface{},
) error {

	logFields := map[string]interface{}{
		"repo":     "PositionRepository",
		"op":       "UpdateFields",
		"id":       id,
		"expected": expected,
	}

	if len(fields) == 0 {
		return nil
	}

	logger.WithFields(logFields).WithField("fields", fields).Debug("Updating position fields")

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", id).
		Where("status = ?", expected).
		Updates(fields)

	if res.Error != nil {
		logger.WithFields(logFields).WithError(res.Error).Error("Failed to update position")
		return fmt.Errorf("update position %d: %w", id, res.Error)
	}

	if res.RowsAffected == 0 {
		logger.WithFields(logFields).Warn("Position changed underneath update")
		return ErrConflict
	}

	return nil
}

// Transition moves a position from one status to another, recording the
// previous status in old_status and applying the extra fields in the same
// statement. Returns ErrConflict when the position is no longer in from.
func (r *PositionRepository) Transition(
	ctx context.Context,
	id uint,
	from model.PositionStatus,
	to model.PositionStatus,
	fields map[string]interface{},
) error {

	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["old_status"] = from

	if err := r.UpdateFields(ctx, id, from, updates); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo": "PositionRepository",
		"op":   "Transition",
		"id":   id,
		"from": from,
		"to":   to,
	}).Info("Position status transitioned")

	return nil
}
