package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"positionmonitor/src/database"
	"positionmonitor/src/model"
)

// AmbassadorRepository reads and writes the trader → hotkey bindings.
type AmbassadorRepository struct {
	db *gorm.DB
}

func NewAmbassadorRepository() *AmbassadorRepository {
	logger.WithField("component", "AmbassadorRepository").
		Info("Creating new AmbassadorRepository with MainDB")

	return &AmbassadorRepository{db: database.MainDB}
}

func NewAmbassadorRepositoryWithDB(db *gorm.DB) *AmbassadorRepository {
	return &AmbassadorRepository{db: db}
}

// FindByTrader returns the ambassador for a trader on a network.
// Returns (nil, nil) if none is registered.
func (r *AmbassadorRepository) FindByTrader(
	ctx context.Context,
	traderID uint,
	source model.Source,
) (*model.Ambassador, error) {

	var a model.Ambassador

	err := r.db.WithContext(ctx).
		Where("trader_id = ?", traderID).
		Where("source = ?", source).
		First(&a).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "AmbassadorRepository",
			"op":        "FindByTrader",
			"trader_id": traderID,
			"source":    source,
		}).WithError(err).Error("Failed to fetch ambassador")

		return nil, err
	}

	return &a, nil
}

// FindHotKey resolves the hotkey for a trader on a network.
// Returns ErrNotFound when the trader has no ambassador there.
func (r *AmbassadorRepository) FindHotKey(
	ctx context.Context,
	traderID uint,
	source model.Source,
) (string, error) {

	a, err := r.FindByTrader(ctx, traderID, source)
	if err != nil {
		return "", err
	}
	if a == nil || a.HotKey == "" {
		return "", ErrNotFound
	}
	return a.HotKey, nil
}

// LoadAll returns every ambassador. Used to warm the hotkey cache.
func (r *AmbassadorRepository) LoadAll(ctx context.Context) ([]model.Ambassador, error) {
	var out []model.Ambassador

	if err := r.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "AmbassadorRepository",
			"op":   "LoadAll",
		}).WithError(err).Error("Failed to load ambassadors")

		return nil, err
	}

	return out, nil
}

// Upsert creates or replaces the ambassador for (trader_id, source).
func (r *AmbassadorRepository) Upsert(
	ctx context.Context,
	a *model.Ambassador,
) error {

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "trader_id"}, {Name: "source"}},
			DoUpdates: clause.AssignmentColumns([]string{"hot_key", "api_key_hash", "updated_at"}),
		}).
		Create(a).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "AmbassadorRepository",
			"op":        "Upsert",
			"trader_id": a.TraderID,
			"source":    a.Source,
		}).WithError(err).Error("Failed to upsert ambassador")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "AmbassadorRepository",
		"op":        "Upsert",
		"trader_id": a.TraderID,
		"source":    a.Source,
	}).Info("Ambassador stored")

	return nil
}
