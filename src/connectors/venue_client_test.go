package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"positionmonitor/src/model"

	"github.com/stretchr/testify/require"
)

type staticHotkeys struct {
	hotKey string
	err    error
}

func (s staticHotkeys) Get(context.Context, uint, model.Source) (string, error) { return s.hotKey, s.err }

const minerPositionsPayload = `{
  "5HotKey": {
    "positions": [
      {
        "miner_hotkey": "5HotKey",
        "position_uuid": "old-btc",
        "open_ms": 1000,
        "trade_pair": ["BTCUSD", "BTC/USD", 0.003, 0.001, 0.5],
        "orders": [{"order_type": "LONG", "leverage": 1, "price": 60000}, {"order_type": "FLAT", "leverage": 1, "price": 61000}],
        "current_return": 1.016,
        "return_at_close": 1.015,
        "average_entry_price": 60000,
        "is_closed_position": true
      },
      {
        "miner_hotkey": "5HotKey",
        "position_uuid": "live-btc",
        "open_ms": 2000,
        "trade_pair": ["BTCUSD", "BTC/USD", 0.003, 0.001, 0.5],
        "orders": [{"order_type": "LONG", "leverage": 1, "price": 62000}, {"order_type": "LONG", "leverage": 1, "price": 63000}],
        "current_return": 1.05,
        "return_at_close": 1.04,
        "average_entry_price": 62500,
        "is_closed_position": false
      },
      {
        "miner_hotkey": "5HotKey",
        "position_uuid": "live-eur",
        "open_ms": 3000,
        "trade_pair": "EURUSD",
        "orders": [{"order_type": "SHORT", "leverage": 10, "price": 1.08}],
        "current_return": 0.95,
        "return_at_close": 0.94,
        "average_entry_price": 1.08,
        "is_closed_position": false
      }
    ]
  }
}`

func newVenueTestClient(t *testing.T, hotkeys hotkeyResolver, handler http.HandlerFunc) *VenueClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewVenueClient(Config{
		VenueMainURL: server.URL,
		VenueTestURL: server.URL + "/testnet",
		VenueTimeout: time.Second,
	}, hotkeys)
}

func TestVenueClient_SelectsLatestOpenForPair(t *testing.T) {
	var gotPath string
	client := newVenueTestClient(t, staticHotkeys{hotKey: "5HotKey"}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(minerPositionsPayload))
	})

	snap, err := client.GetVenuePosition(context.Background(), 1, "BTCUSD", "", model.SourceMain)
	require.NoError(t, err)
	require.Equal(t, "/miner-positions/5HotKey", gotPath)

	require.Equal(t, "live-btc", snap.UUID)
	require.Equal(t, 63000.0, snap.Price)
	require.Equal(t, 2, snap.FillCount)
	require.InDelta(t, 4.0, snap.ProfitLoss, 1e-9)
	require.InDelta(t, 5.0, snap.ProfitLossNoFee, 1e-9)
	require.Equal(t, 1.04, snap.VenueReturn)
	require.Equal(t, 62500.0, snap.AvgEntryPrice)
	require.True(t, snap.Available())
}

func TestVenueClient_SelectsByUUID(t *testing.T) {
	client := newVenueTestClient(t, staticHotkeys{hotKey: "5HotKey"}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(minerPositionsPayload))
	})

	snap, err := client.GetVenuePosition(context.Background(), 1, "BTCUSD", "old-btc", model.SourceMain)
	require.NoError(t, err)
	require.True(t, snap.Closed)
	require.Equal(t, 61000.0, snap.Price)
	require.False(t, snap.Available())

	eur, err := client.GetVenuePosition(context.Background(), 1, "EURUSD", "", model.SourceMain)
	require.NoError(t, err)
	require.InDelta(t, -6.0, eur.ProfitLoss, 1e-9)
}

func TestVenueClient_MissingPositionIsZeroSnapshot(t *testing.T) {
	client := newVenueTestClient(t, staticHotkeys{hotKey: "5HotKey"}, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(minerPositionsPayload))
	})

	snap, err := client.GetVenuePosition(context.Background(), 1, "ETHUSD", "", model.SourceMain)
	require.NoError(t, err)
	require.Equal(t, model.VenuePosition{}, snap)
}

func TestVenueClient_TestNetwork(t *testing.T) {
	var gotPath string
	client := newVenueTestClient(t, staticHotkeys{hotKey: "5HotKey"}, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.GetVenuePosition(context.Background(), 1, "BTCUSD", "", model.SourceTest)
	require.NoError(t, err)
	require.Equal(t, "/testnet/miner-positions/5HotKey", gotPath)
}

func TestVenueClient_Errors(t *testing.T) {
	client := newVenueTestClient(t, staticHotkeys{err: errors.New("no ambassador")}, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("venue must not be called without a hotkey")
	})
	_, err := client.GetVenuePosition(context.Background(), 1, "BTCUSD", "", model.SourceMain)
	require.Error(t, err)

	bad := newVenueTestClient(t, staticHotkeys{hotKey: "5HotKey"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = bad.GetVenuePosition(context.Background(), 1, "BTCUSD", "", model.SourceMain)
	require.Error(t, err)
}
