package cache

import (
	"context"
	"fmt"
	"time"

	"positionmonitor/src/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	logger "github.com/sirupsen/logrus"
)

// HotkeyLoader is the source of truth behind the hotkey cache.
type HotkeyLoader interface {
	FindHotKey(ctx context.Context, traderID uint, source model.Source) (string, error)
	LoadAll(ctx context.Context) ([]model.Ambassador, error)
}

type hotkeyKey struct {
	traderID uint
	source   model.Source
}

// HotkeyCache is a read-through cache of trader hotkeys with a TTL.
type HotkeyCache struct {
	loader  HotkeyLoader
	entries *expirable.LRU[hotkeyKey, string]
}

// NewHotkeyCache builds an unbounded cache; entries expire ttl after they
// were loaded.
func NewHotkeyCache(loader HotkeyLoader, ttl time.Duration) *HotkeyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HotkeyCache{
		loader:  loader,
		entries: expirable.NewLRU[hotkeyKey, string](0, nil, ttl),
	}
}

// Get returns the trader's hotkey on the given network, loading it on miss or
// expiry.
func (c *HotkeyCache) Get(ctx context.Context, traderID uint, source model.Source) (string, error) {
	k := hotkeyKey{traderID: traderID, source: source}
	if hotKey, ok := c.entries.Get(k); ok {
		return hotKey, nil
	}

	hotKey, err := c.loader.FindHotKey(ctx, traderID, source)
	if err != nil {
		return "", fmt.Errorf("load hotkey for trader %d (%s): %w", traderID, source, err)
	}

	c.entries.Add(k, hotKey)
	return hotKey, nil
}

// Invalidate drops every cached hotkey of a trader.
func (c *HotkeyCache) Invalidate(traderID uint) {
	for _, k := range c.entries.Keys() {
		if k.traderID == traderID {
			c.entries.Remove(k)
		}
	}
}

// Refresh replaces the whole cache with a fresh load. On a loader error the
// current entries are kept.
func (c *HotkeyCache) Refresh(ctx context.Context) error {
	all, err := c.loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh hotkeys: %w", err)
	}

	c.entries.Purge()
	for _, a := range all {
		if a.HotKey == "" {
			continue
		}
		c.entries.Add(hotkeyKey{traderID: a.TraderID, source: a.Source}, a.HotKey)
	}

	logger.WithField("entries", c.entries.Len()).Debug("[hotkeys] cache refreshed")
	return nil
}

// Len reports how many hotkeys are cached.
func (c *HotkeyCache) Len() int {
	return c.entries.Len()
}
