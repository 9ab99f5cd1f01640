package model

import "time"

// Ambassador links a trader to the venue hotkey that mirrors their trades on
// a given network, plus the encrypted key used to submit signals for them.
type Ambassador struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TraderID   uint      `gorm:"not null;uniqueIndex:ux_ambassador_trader_source,priority:1" json:"trader_id"`
	Source     Source    `gorm:"size:10;not null;uniqueIndex:ux_ambassador_trader_source,priority:2" json:"source"`
	HotKey     string    `gorm:"size:100;not null" json:"hot_key"`
	APIKeyHash string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Ambassador) TableName() string {
	return "ambassadors"
}
