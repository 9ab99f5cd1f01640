package model

import "time"

// Exception is an invariant violation or unexpected failure captured while
// evaluating a position. The position itself is left untouched.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "monitor"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "trailing"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "evaluateOpen"

	// Position context
	PositionID *uint  `gorm:"index" json:"position_id,omitempty"`
	TraderID   *uint  `gorm:"index" json:"trader_id,omitempty"`
	TradePair  string `gorm:"size:30" json:"trade_pair,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:jsonb" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
