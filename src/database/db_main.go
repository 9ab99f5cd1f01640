package database

import (
	"fmt"

	"positionmonitor/src/database/migrations"
	"positionmonitor/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the read/write connection used by the engine.
var MainDB *gorm.DB

// InitMainDB connects MainDB and brings the schema up to date. Call once at
// startup, before any repository is built.
func InitMainDB() error {
	config := GetConfig()

	db, err := open("MainDB", config.DatabaseURLMain, config, false)
	if err != nil {
		return err
	}

	if err := Migrate(db); err != nil {
		return err
	}
	MainDB = db

	logrus.WithField("db", "main").Info("[database] connected and migrated")
	return nil
}

// Migrate creates the write-side schema and applies pending data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Position{},
		&model.Notification{},
		&model.Exception{},
		&model.Ambassador{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}

	return nil
}
