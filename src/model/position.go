package model

import "time"

type PositionStatus string

const (
	PositionStatusPending          PositionStatus = "PENDING"
	PositionStatusProcessing       PositionStatus = "PROCESSING"
	PositionStatusAdjustProcessing PositionStatus = "ADJUST_PROCESSING"
	PositionStatusCloseProcessing  PositionStatus = "CLOSE_PROCESSING"
	PositionStatusOpen             PositionStatus = "OPEN"
	PositionStatusClosed           PositionStatus = "CLOSED"
)

type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
	OrderTypeFlat OrderType = "FLAT"
)

// Valid reports whether the order type is one the venue understands.
func (o OrderType) Valid() bool {
	switch o {
	case OrderTypeBuy, OrderTypeSell, OrderTypeFlat:
		return true
	default:
		return false
	}
}

type AssetType string

const (
	AssetTypeCrypto  AssetType = "crypto"
	AssetTypeForex   AssetType = "forex"
	AssetTypeIndices AssetType = "indices"
)

// Source identifies the venue network a position is mirrored on.
type Source string

const (
	SourceMain Source = "main"
	SourceTest Source = "test"
)

// Position is a leveraged trade mirrored against the external venue.
//
// StopLoss/TakeProfit hold the trader's last requested values. The cumulative
// fields are the thresholds currently armed and are the only ones compared
// against live profit/loss. Zero disables a threshold.
type Position struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TraderID        uint      `gorm:"index;not null" json:"trader_id"`
	TradePair       string    `gorm:"size:30;index;not null" json:"trade_pair"`
	AssetType       AssetType `gorm:"size:20;not null;default:crypto" json:"asset_type"`
	VenuePositionID string    `gorm:"size:100;index" json:"venue_position_id"`
	Source          Source    `gorm:"size:10;not null;default:main" json:"source"`

	// Order terms
	OrderType    OrderType `gorm:"size:10;not null" json:"order_type"`
	Leverage     float64   `gorm:"not null" json:"leverage"`
	EntryPrice   float64   `json:"entry_price"`
	InitialPrice float64   `json:"initial_price"`
	LimitOrder   float64   `json:"limit_order"`

	// Risk terms
	StopLoss             float64 `json:"stop_loss"`
	TakeProfit           float64 `json:"take_profit"`
	CumulativeStopLoss   float64 `json:"cumulative_stop_loss"`
	CumulativeTakeProfit float64 `json:"cumulative_take_profit"`
	Trailing             bool    `gorm:"not null;default:false" json:"trailing"`

	// Lifecycle
	Status     PositionStatus `gorm:"size:30;not null;default:PENDING;index" json:"status"`
	OldStatus  PositionStatus `gorm:"size:30" json:"old_status"`
	OrderLevel int            `gorm:"not null;default:0" json:"order_level"`
	OpenTime   *time.Time     `json:"open_time,omitempty"`
	AdjustTime *time.Time     `json:"adjust_time,omitempty"`
	CloseTime  *time.Time     `json:"close_time,omitempty"`
	ClosePrice float64        `json:"close_price"`

	// Tracked figures. The Venue* fields mirror what the venue reports.
	ProfitLoss                float64 `json:"profit_loss"`
	ProfitLossWithoutFee      float64 `json:"profit_loss_without_fee"`
	MaxProfitLoss             float64 `json:"max_profit_loss"`
	VenueProfitLoss           float64 `json:"venue_profit_loss"`
	VenueProfitLossWithoutFee float64 `json:"venue_profit_loss_without_fee"`
	VenueReturn               float64 `json:"venue_return"`
	VenueReturnWithoutFee     float64 `json:"venue_return_without_fee"`
	AverageEntryPrice         float64 `json:"average_entry_price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for positions.
func (Position) TableName() string {
	return "positions"
}

// IsClosed reports whether the position reached its terminal state.
func (p *Position) IsClosed() bool {
	return p.Status == PositionStatusClosed
}

// MonitoredStatuses are evaluated by the trailing/close monitor every tick.
var MonitoredStatuses = []PositionStatus{
	PositionStatusOpen,
	PositionStatusAdjustProcessing,
	PositionStatusPending,
}

// ProcessingStatuses are awaiting asynchronous venue confirmation.
var ProcessingStatuses = []PositionStatus{
	PositionStatusProcessing,
	PositionStatusAdjustProcessing,
	PositionStatusCloseProcessing,
}
