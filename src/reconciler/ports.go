package reconciler

import (
	"context"

	"positionmonitor/src/model"
)

type positionStore interface {
	Transition(ctx context.Context, id uint, from, to model.PositionStatus, fields map[string]interface{}) error
}

type venueSource interface {
	GetVenuePosition(ctx context.Context, traderID uint, tradePair string, venueUUID string, network model.Source) (model.VenuePosition, error)
}

type dispatcher interface {
	CloseAll(ctx context.Context, traderID uint, tradePair string) bool
}

type notifier interface {
	Record(ctx context.Context, traderID uint, tradePair string, positionID uint, event string, message string)
}

// Deps are the collaborators of the reconciler.
type Deps struct {
	Positions  positionStore
	Venue      venueSource
	Dispatcher dispatcher
	Notifier   notifier
}
