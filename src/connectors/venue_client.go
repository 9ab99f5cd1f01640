package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"positionmonitor/src/model"
	"positionmonitor/src/pnl"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

type venueOrder struct {
	OrderType   string  `json:"order_type"`
	Leverage    float64 `json:"leverage"`
	Price       float64 `json:"price"`
	ProcessedMs int64   `json:"processed_ms"`
	OrderUUID   string  `json:"order_uuid"`
}

type venuePosition struct {
	MinerHotkey       string          `json:"miner_hotkey"`
	PositionUUID      string          `json:"position_uuid"`
	OpenMs            int64           `json:"open_ms"`
	CloseMs           *int64          `json:"close_ms"`
	TradePair         json.RawMessage `json:"trade_pair"`
	Orders            []venueOrder    `json:"orders"`
	CurrentReturn     float64         `json:"current_return"`
	ReturnAtClose     float64         `json:"return_at_close"`
	AverageEntryPrice float64         `json:"average_entry_price"`
	PositionType      string          `json:"position_type"`
	IsClosedPosition  bool            `json:"is_closed_position"`
}

// tradePairID returns the pair id, which the venue sends either as a plain
// string or as the first element of an array.
func (p venuePosition) tradePairID() string {
	var s string
	if err := json.Unmarshal(p.TradePair, &s); err == nil {
		return s
	}
	var arr []interface{}
	if err := json.Unmarshal(p.TradePair, &arr); err == nil && len(arr) > 0 {
		if id, ok := arr[0].(string); ok {
			return id
		}
	}
	return ""
}

type minerPositionsResponse map[string]struct {
	Positions []venuePosition `json:"positions"`
}

type hotkeyResolver interface {
	Get(ctx context.Context, traderID uint, source model.Source) (string, error)
}

// VenueClient reads authoritative position snapshots from the venue's
// main and test networks.
type VenueClient struct {
	networks map[model.Source]*resty.Client
	hotkeys  hotkeyResolver
	timeout  time.Duration
}

func NewVenueClient(cfg Config, hotkeys hotkeyResolver) *VenueClient {
	return &VenueClient{
		networks: map[model.Source]*resty.Client{
			model.SourceMain: newRetryingRestyClient(cfg.VenueMainURL, cfg.VenueTimeout),
			model.SourceTest: newRetryingRestyClient(cfg.VenueTestURL, cfg.VenueTimeout),
		},
		hotkeys: hotkeys,
		timeout: cfg.VenueTimeout,
	}
}

// GetVenuePosition fetches the trader's positions and maps the one matching
// venueUUID, or the latest open position for the pair when venueUUID is empty.
// A missing position yields a zero snapshot, which callers treat as unavailable.
func (c *VenueClient) GetVenuePosition(
	ctx context.Context,
	traderID uint,
	tradePair string,
	venueUUID string,
	network model.Source,
) (model.VenuePosition, error) {

	if network == "" {
		network = model.SourceMain
	}
	client, ok := c.networks[network]
	if !ok {
		return model.VenuePosition{}, fmt.Errorf("unknown venue network %q", network)
	}

	hotKey, err := c.hotkeys.Get(ctx, traderID, network)
	if err != nil {
		return model.VenuePosition{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := client.R().
		SetContext(ctx).
		Get("/miner-positions/" + url.PathEscape(hotKey))
	if err != nil {
		return model.VenuePosition{}, fmt.Errorf("fetch venue positions: %w", err)
	}
	if resp.IsError() {
		return model.VenuePosition{}, fmt.Errorf("fetch venue positions: HTTP %d", resp.StatusCode())
	}

	var parsed minerPositionsResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return model.VenuePosition{}, fmt.Errorf("decode venue positions: %w", err)
	}

	selected, found := selectVenuePosition(parsed[hotKey].Positions, tradePair, venueUUID)
	if !found {
		logger.WithFields(map[string]interface{}{
			"connector":  "VenueClient",
			"trader_id":  traderID,
			"trade_pair": tradePair,
			"uuid":       venueUUID,
			"network":    network,
		}).Debug("No venue position matched")

		return model.VenuePosition{}, nil
	}

	return mapVenuePosition(selected, hotKey), nil
}

func selectVenuePosition(positions []venuePosition, tradePair, venueUUID string) (venuePosition, bool) {
	if venueUUID != "" {
		for _, p := range positions {
			if p.PositionUUID == venueUUID {
				return p, true
			}
		}
		return venuePosition{}, false
	}

	var (
		best  venuePosition
		found bool
	)
	for _, p := range positions {
		if p.IsClosedPosition || p.tradePairID() != tradePair {
			continue
		}
		if !found || p.OpenMs > best.OpenMs {
			best = p
			found = true
		}
	}
	return best, found
}

func mapVenuePosition(p venuePosition, hotKey string) model.VenuePosition {
	var price float64
	if n := len(p.Orders); n > 0 {
		price = p.Orders[n-1].Price
	}

	return model.VenuePosition{
		Price:            price,
		ProfitLoss:       pnl.VenueReturnToPercent(p.ReturnAtClose),
		ProfitLossNoFee:  pnl.VenueReturnToPercent(p.CurrentReturn),
		VenueReturn:      p.ReturnAtClose,
		VenueReturnNoFee: p.CurrentReturn,
		UUID:             p.PositionUUID,
		HotKey:           hotKey,
		FillCount:        len(p.Orders),
		AvgEntryPrice:    p.AverageEntryPrice,
		Closed:           p.IsClosedPosition,
	}
}
