package keys

import (
	"context"
	"errors"
	"fmt"

	"positionmonitor/src/model"
	"positionmonitor/src/security"
)

type ambassadorUpserter interface {
	Upsert(ctx context.Context, a *model.Ambassador) error
}

// SetAmbassador stores the trader's hotkey and signal key for a network. The
// key is encrypted before it reaches the database; an empty key keeps the
// trader on the fallback key.
func SetAmbassador(ctx context.Context, repo ambassadorUpserter, traderID uint, source model.Source, hotKey, apiKey string) error {
	if traderID == 0 {
		return errors.New("trader id is required")
	}
	if hotKey == "" {
		return errors.New("hotkey is required")
	}
	switch source {
	case model.SourceMain, model.SourceTest:
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	var encrypted string
	if apiKey != "" {
		var err error
		encrypted, err = security.EncryptString(apiKey)
		if err != nil {
			return fmt.Errorf("encrypt signal key: %w", err)
		}
	}

	return repo.Upsert(ctx, &model.Ambassador{
		TraderID:   traderID,
		Source:     source,
		HotKey:     hotKey,
		APIKeyHash: encrypted,
	})
}
