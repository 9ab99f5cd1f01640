package reconciler

import (
	"time"

	"positionmonitor/src/model"
)

// Kind names the venue submission a processing position is waiting on.
type Kind string

const (
	KindOpen   Kind = "open"
	KindAdjust Kind = "adjust"
	KindClose  Kind = "close"
)

// Confirmation is the pending step of a processing position: what it waits
// for, since when, and when the wait is given up.
type Confirmation struct {
	Kind      Kind
	StartedAt time.Time
	Deadline  time.Time
}

// Expired reports whether the confirmation window has passed.
func (c Confirmation) Expired(now time.Time) bool {
	return now.After(c.Deadline)
}

// ConfirmationFor maps a processing position to its confirmation. Positions in
// any other status have none.
func ConfirmationFor(p model.Position, cfg Config) (Confirmation, bool) {
	var (
		kind    Kind
		started *time.Time
		timeout time.Duration
	)

	switch p.Status {
	case model.PositionStatusProcessing:
		kind, started, timeout = KindOpen, p.OpenTime, cfg.OpenTimeout
	case model.PositionStatusAdjustProcessing:
		kind, started, timeout = KindAdjust, p.AdjustTime, cfg.AdjustTimeout
	case model.PositionStatusCloseProcessing:
		kind, started, timeout = KindClose, p.CloseTime, cfg.CloseTimeout
	default:
		return Confirmation{}, false
	}

	// rows written before the timestamp existed fall back to the last update
	start := p.UpdatedAt
	if started != nil {
		start = *started
	}

	return Confirmation{
		Kind:      kind,
		StartedAt: start,
		Deadline:  start.Add(timeout),
	}, true
}
