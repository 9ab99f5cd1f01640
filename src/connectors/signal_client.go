package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"positionmonitor/src/model"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

// Signal is one trade instruction for the venue.
type Signal struct {
	TraderID  uint
	TradePair string
	OrderType model.OrderType
	Leverage  float64
}

type signalRequest struct {
	APIKey    string  `json:"api_key"`
	TraderID  uint    `json:"trader_id"`
	TradePair string  `json:"trade_pair"`
	OrderType string  `json:"order_type"`
	Leverage  float64 `json:"leverage"`
}

type subscribeRequest struct {
	TradePair string `json:"trade_pair"`
}

type signalResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// CredentialSource resolves the signal API key of a trader.
type CredentialSource interface {
	APIKey(ctx context.Context, traderID uint) (string, error)
}

// SignalClient talks to the venue's signal receiver.
type SignalClient struct {
	http  *resty.Client
	creds CredentialSource
}

func NewSignalClient(baseURL string, timeout time.Duration, creds CredentialSource) *SignalClient {
	return &SignalClient{
		http:  newRestyClient(baseURL, timeout),
		creds: creds,
	}
}

// venueOrderType maps local sides onto the venue's vocabulary.
func venueOrderType(o model.OrderType) (string, error) {
	switch o {
	case model.OrderTypeBuy:
		return "LONG", nil
	case model.OrderTypeSell:
		return "SHORT", nil
	case model.OrderTypeFlat:
		return "FLAT", nil
	default:
		return "", fmt.Errorf("unsupported order type %q", o)
	}
}

// SendSignal posts a trade instruction. Any non-2xx answer is an error.
func (c *SignalClient) SendSignal(ctx context.Context, s Signal) error {
	orderType, err := venueOrderType(s.OrderType)
	if err != nil {
		return err
	}

	apiKey, err := c.creds.APIKey(ctx, s.TraderID)
	if err != nil {
		return fmt.Errorf("resolve api key for trader %d: %w", s.TraderID, err)
	}

	body := signalRequest{
		APIKey:    apiKey,
		TraderID:  s.TraderID,
		TradePair: s.TradePair,
		OrderType: orderType,
		Leverage:  s.Leverage,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/receive-signal")
	if err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	if resp.IsError() {
		var parsed signalResponse
		_ = json.Unmarshal(resp.Body(), &parsed)
		return fmt.Errorf("send signal: HTTP %d: %s", resp.StatusCode(), firstNonEmpty(parsed.Error, parsed.Message, string(resp.Body())))
	}

	logger.WithFields(map[string]interface{}{
		"connector":  "SignalClient",
		"trader_id":  s.TraderID,
		"trade_pair": s.TradePair,
		"order_type": orderType,
		"leverage":   s.Leverage,
	}).Info("Signal accepted by venue")

	return nil
}

// Subscribe asks the price feed to start streaming a trade pair.
func (c *SignalClient) Subscribe(ctx context.Context, tradePair string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(subscribeRequest{TradePair: tradePair}).
		Post("/api/subscribe")
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", tradePair, err)
	}
	if resp.IsError() {
		return fmt.Errorf("subscribe %s: HTTP %d: %s", tradePair, resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
