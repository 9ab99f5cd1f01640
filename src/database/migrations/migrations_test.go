package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type positionRow struct {
	ID                   uint `gorm:"primaryKey"`
	StopLoss             float64
	TakeProfit           float64
	CumulativeStopLoss   float64
	CumulativeTakeProfit float64
	Source               string
}

func (positionRow) TableName() string { return "positions" }

func TestRun_BackfillsCumulativeThresholdsOnce(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrations_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&positionRow{}))

	require.NoError(t, db.Create(&[]positionRow{
		{ID: 1, StopLoss: 5, TakeProfit: 10, Source: "test"},
		{ID: 2, StopLoss: 5, CumulativeStopLoss: 3, Source: "main"},
		{ID: 3},
	}).Error)

	require.NoError(t, Run(db))

	var rows []positionRow
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Equal(t, 5.0, rows[0].CumulativeStopLoss)
	require.Equal(t, 10.0, rows[0].CumulativeTakeProfit)
	require.Equal(t, 3.0, rows[1].CumulativeStopLoss)
	require.Equal(t, 0.0, rows[2].CumulativeStopLoss)
	require.Equal(t, "test", rows[0].Source)
	require.Equal(t, "main", rows[2].Source)

	// a second run must not touch rows again
	require.NoError(t, db.Model(&positionRow{}).Where("id = ?", 1).Update("cumulative_stop_loss", 0).Error)
	require.NoError(t, Run(db))

	var first positionRow
	require.NoError(t, db.First(&first, 1).Error)
	require.Equal(t, 0.0, first.CumulativeStopLoss)

	var applied int64
	require.NoError(t, db.Model(&DataMigration{}).Count(&applied).Error)
	require.Equal(t, int64(2), applied)
}
