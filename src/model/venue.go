package model

import "time"

// Quote is the latest bid/ask for a trade pair. Zero values mean unavailable.
type Quote struct {
	Bid float64
	Ask float64
	At  time.Time
}

// Available reports whether both sides of the quote are usable.
func (q Quote) Available() bool {
	return q.Bid != 0 && q.Ask != 0
}

// VenuePosition is the externally reported state of a position.
// A zero Price means the venue has no usable data, not a literal zero price.
type VenuePosition struct {
	Price            float64
	ProfitLoss       float64
	ProfitLossNoFee  float64
	VenueReturn      float64
	VenueReturnNoFee float64
	UUID             string
	HotKey           string
	FillCount        int
	AvgEntryPrice    float64
	Closed           bool
}

// Available reports whether the snapshot can be acted upon.
func (v VenuePosition) Available() bool {
	return v.Price != 0 && !v.Closed
}

// TrailingSnapshot is the cache copy of a position's trailing levels.
type TrailingSnapshot struct {
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	InitialPrice float64   `json:"initial_price"`
	At           time.Time `json:"at"`
}
