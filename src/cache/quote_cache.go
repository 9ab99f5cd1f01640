package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"positionmonitor/src/model"

	"github.com/redis/go-redis/v9"
)

// QuoteCache reads and writes live bid/ask quotes and trailing snapshots.
//
// Quotes live at "quote:{trade_pair}" with fields bid, ask and ts (unix nanos).
// Trailing snapshots live at "trailing:{position_id}".
type QuoteCache struct {
	rdb *redis.Client
}

func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(tradePair string) string {
	return "quote:" + tradePair
}

func trailingKey(positionID uint) string {
	return "trailing:" + strconv.FormatUint(uint64(positionID), 10)
}

// SetBidAsk stores the latest quote for a trade pair.
func (qc *QuoteCache) SetBidAsk(ctx context.Context, tradePair string, bid, ask float64, ts time.Time) error {
	fields := map[string]interface{}{
		"bid": strconv.FormatFloat(bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(tradePair), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", tradePair, err)
	}
	return nil
}

// GetBidAsk returns the latest quote for a trade pair. A missing key yields a
// zero quote, which callers treat as unavailable.
func (qc *QuoteCache) GetBidAsk(ctx context.Context, tradePair string) (model.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(tradePair)).Result()
	if err != nil {
		return model.Quote{}, fmt.Errorf("redis: get quote %s: %w", tradePair, err)
	}
	if len(vals) == 0 {
		return model.Quote{}, nil
	}

	var q model.Quote
	if q.Bid, err = parseFloatField(vals, "bid"); err != nil {
		return model.Quote{}, fmt.Errorf("redis: parse bid %s: %w", tradePair, err)
	}
	if q.Ask, err = parseFloatField(vals, "ask"); err != nil {
		return model.Quote{}, fmt.Errorf("redis: parse ask %s: %w", tradePair, err)
	}
	if q.At, err = parseTimeField(vals, "ts"); err != nil {
		return model.Quote{}, fmt.Errorf("redis: parse ts %s: %w", tradePair, err)
	}

	return q, nil
}

// SaveTrailing records the latest trailing levels for a position.
func (qc *QuoteCache) SaveTrailing(ctx context.Context, positionID uint, snap model.TrailingSnapshot) error {
	at := snap.At
	if at.IsZero() {
		at = time.Now()
	}
	fields := map[string]interface{}{
		"entry_price":   strconv.FormatFloat(snap.EntryPrice, 'f', -1, 64),
		"stop_loss":     strconv.FormatFloat(snap.StopLoss, 'f', -1, 64),
		"initial_price": strconv.FormatFloat(snap.InitialPrice, 'f', -1, 64),
		"ts":            strconv.FormatInt(at.UnixNano(), 10),
	}
	if err := qc.rdb.HSet(ctx, trailingKey(positionID), fields).Err(); err != nil {
		return fmt.Errorf("redis: save trailing %d: %w", positionID, err)
	}
	return nil
}

// GetTrailing returns the last trailing snapshot, ok=false when none exists.
func (qc *QuoteCache) GetTrailing(ctx context.Context, positionID uint) (model.TrailingSnapshot, bool, error) {
	vals, err := qc.rdb.HGetAll(ctx, trailingKey(positionID)).Result()
	if err != nil {
		return model.TrailingSnapshot{}, false, fmt.Errorf("redis: get trailing %d: %w", positionID, err)
	}
	if len(vals) == 0 {
		return model.TrailingSnapshot{}, false, nil
	}

	var s model.TrailingSnapshot
	if s.EntryPrice, err = parseFloatField(vals, "entry_price"); err != nil {
		return model.TrailingSnapshot{}, false, err
	}
	if s.StopLoss, err = parseFloatField(vals, "stop_loss"); err != nil {
		return model.TrailingSnapshot{}, false, err
	}
	if s.InitialPrice, err = parseFloatField(vals, "initial_price"); err != nil {
		return model.TrailingSnapshot{}, false, err
	}
	if s.At, err = parseTimeField(vals, "ts"); err != nil {
		return model.TrailingSnapshot{}, false, err
	}

	return s, true, nil
}

// DeleteTrailing drops the snapshot once a position is closed.
func (qc *QuoteCache) DeleteTrailing(ctx context.Context, positionID uint) error {
	if err := qc.rdb.Del(ctx, trailingKey(positionID)).Err(); err != nil {
		return fmt.Errorf("redis: delete trailing %d: %w", positionID, err)
	}
	return nil
}

func parseFloatField(vals map[string]string, field string) (float64, error) {
	raw, ok := vals[field]
	if !ok || raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func parseTimeField(vals map[string]string, field string) (time.Time, error) {
	raw, ok := vals[field]
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}
