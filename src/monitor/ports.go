package monitor

import (
	"context"

	"positionmonitor/src/model"
	"positionmonitor/src/repository"
)

type positionStore interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	UpdateFields(ctx context.Context, id uint, expected model.PositionStatus, fields map[string]interface{}) error
	Transition(ctx context.Context, id uint, from, to model.PositionStatus, fields map[string]interface{}) error
}

type quoteSource interface {
	GetBidAsk(ctx context.Context, tradePair string) (model.Quote, error)
}

type trailingStore interface {
	SaveTrailing(ctx context.Context, positionID uint, snap model.TrailingSnapshot) error
}

type venueSource interface {
	GetVenuePosition(ctx context.Context, traderID uint, tradePair string, venueUUID string, network model.Source) (model.VenuePosition, error)
}

type dispatcher interface {
	Submit(ctx context.Context, traderID uint, tradePair string, orderType model.OrderType, leverage float64) bool
	CloseAll(ctx context.Context, traderID uint, tradePair string) bool
}

type notifier interface {
	Record(ctx context.Context, traderID uint, tradePair string, positionID uint, event string, message string)
}

type exceptionSink interface {
	Capture(ctx context.Context, info repository.ExceptionContext, err error)
}

// Deps are the collaborators of the state machine.
type Deps struct {
	Positions  positionStore
	Quotes     quoteSource
	Trailing   trailingStore
	Venue      venueSource
	Dispatcher dispatcher
	Notifier   notifier
	Exceptions exceptionSink
}
