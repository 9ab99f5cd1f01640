package model

import "time"

const (
	NotificationEventOpened           = "opened"
	NotificationEventLimitTriggered   = "limit_triggered"
	NotificationEventTrailingAdjusted = "trailing_adjusted"
	NotificationEventClosing          = "closing"
	NotificationEventClosed           = "closed"
	NotificationEventForceClosed      = "force_closed"
	NotificationEventAdjusted         = "adjusted"
	NotificationEventAdjustRequested  = "adjust_requested"
)

// Notification is an append-only, human readable record of something that
// happened to a position. Rows are only written after the state they describe
// has been committed.
type Notification struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TraderID   uint      `gorm:"index;not null" json:"trader_id"`
	TradePair  string    `gorm:"size:30" json:"trade_pair"`
	PositionID uint      `gorm:"index" json:"position_id"`
	Event      string    `gorm:"size:50;index" json:"event"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
