package database

import (
	"fmt"

	"positionmonitor/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReadOnlyDB serves the status endpoints. Its database user only needs SELECT.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB connects ReadOnlyDB without migrating and checks the
// positions table is readable.
func InitReadOnlyDB() error {
	config := GetConfig()

	db, err := open("ReadOnlyDB", config.DatabaseURLReadOnly, config, true)
	if err != nil {
		return err
	}

	var count int64
	if err := db.Model(&model.Position{}).Count(&count).Error; err != nil {
		return fmt.Errorf("ReadOnlyDB: positions not readable: %w", err)
	}
	ReadOnlyDB = db

	logrus.WithFields(logrus.Fields{"db": "read_only", "positions": count}).Info("[database] connected")
	return nil
}
