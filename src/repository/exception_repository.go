package repository

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionmonitor/src/database"
	"positionmonitor/src/model"
)

// ExceptionRepository handles persistence of system exceptions.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

func NewExceptionRepositoryWithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}

// ExceptionContext locates the position an exception relates to.
type ExceptionContext struct {
	Service    string
	Module     string
	Method     string
	Level      string
	PositionID uint
	TraderID   uint
	TradePair  string
	Extra      map[string]interface{}
}

// Capture records a system exception, logs it locally, and persists it.
// Persistence failures are logged and swallowed.
func (r *ExceptionRepository) Capture(
	ctx context.Context,
	info ExceptionContext,
	err error,
) {

	if err == nil {
		return
	}

	ctxJSON := "{}"
	if info.Extra != nil {
		if b, e := json.Marshal(info.Extra); e == nil {
			ctxJSON = string(b)
		}
	}

	level := info.Level
	if level == "" {
		level = "error"
	}

	exc := &model.Exception{
		Service:   info.Service,
		Module:    info.Module,
		Method:    info.Method,
		TradePair: info.TradePair,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}
	if info.PositionID != 0 {
		id := info.PositionID
		exc.PositionID = &id
	}
	if info.TraderID != 0 {
		id := info.TraderID
		exc.TraderID = &id
	}

	logger.WithFields(map[string]interface{}{
		"service":     info.Service,
		"module":      info.Module,
		"method":      info.Method,
		"level":       level,
		"position_id": info.PositionID,
		"trader_id":   info.TraderID,
		"trade_pair":  info.TradePair,
	}).WithError(err).Error("System exception captured")

	if r == nil || r.db == nil {
		return
	}
	if e := r.Create(ctx, exc); e != nil {
		logger.WithError(e).Error("Failed to persist exception")
	}
}
