package connectors

import (
	"context"
	"fmt"

	"positionmonitor/src/model"
	"positionmonitor/src/security"
)

type ambassadorFinder interface {
	FindByTrader(ctx context.Context, traderID uint, source model.Source) (*model.Ambassador, error)
}

// AmbassadorCredentials decrypts the per-trader signal key stored on the
// ambassador row. FallbackKey is used for traders without a stored key.
type AmbassadorCredentials struct {
	Ambassadors ambassadorFinder
	Source      model.Source
	FallbackKey string
	Decrypt     func(string) (string, error)
}

func NewAmbassadorCredentials(finder ambassadorFinder, source model.Source, fallback string) *AmbassadorCredentials {
	return &AmbassadorCredentials{
		Ambassadors: finder,
		Source:      source,
		FallbackKey: fallback,
		Decrypt:     security.DecryptString,
	}
}

func (c *AmbassadorCredentials) APIKey(ctx context.Context, traderID uint) (string, error) {
	a, err := c.Ambassadors.FindByTrader(ctx, traderID, c.Source)
	if err != nil {
		return "", err
	}
	if a == nil || a.APIKeyHash == "" {
		if c.FallbackKey == "" {
			return "", fmt.Errorf("no signal key for trader %d", traderID)
		}
		return c.FallbackKey, nil
	}

	key, err := c.Decrypt(a.APIKeyHash)
	if err != nil {
		return "", fmt.Errorf("decrypt signal key for trader %d: %w", traderID, err)
	}
	return key, nil
}
