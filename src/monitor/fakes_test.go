package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"positionmonitor/src/model"
	"positionmonitor/src/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeQuotes struct {
	quotes map[string]model.Quote
	err    error
}

func (f *fakeQuotes) GetBidAsk(_ context.Context, tradePair string) (model.Quote, error) {
	if f.err != nil {
		return model.Quote{}, f.err
	}
	return f.quotes[tradePair], nil
}

type fakeTrailing struct {
	mu    sync.Mutex
	saved map[uint]model.TrailingSnapshot
}

func (f *fakeTrailing) SaveTrailing(_ context.Context, positionID uint, snap model.TrailingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[uint]model.TrailingSnapshot{}
	}
	f.saved[positionID] = snap
	return nil
}

type fakeVenue struct {
	snap model.VenuePosition
	err  error
}

func (f *fakeVenue) GetVenuePosition(context.Context, uint, string, string, model.Source) (model.VenuePosition, error) {
	return f.snap, f.err
}

type signal struct {
	TraderID  uint
	TradePair string
	OrderType model.OrderType
	Leverage  float64
}

type fakeDispatcher struct {
	mu      sync.Mutex
	fail    bool
	signals []signal
}

func (f *fakeDispatcher) Submit(_ context.Context, traderID uint, tradePair string, orderType model.OrderType, leverage float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false
	}
	f.signals = append(f.signals, signal{traderID, tradePair, orderType, leverage})
	return true
}

func (f *fakeDispatcher) CloseAll(ctx context.Context, traderID uint, tradePair string) bool {
	return f.Submit(ctx, traderID, tradePair, model.OrderTypeFlat, 1)
}

type event struct {
	PositionID uint
	Event      string
	Message    string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeNotifier) Record(_ context.Context, _ uint, _ string, positionID uint, ev string, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{positionID, ev, message})
}

type fakeExceptions struct {
	captured []repository.ExceptionContext
}

func (f *fakeExceptions) Capture(_ context.Context, info repository.ExceptionContext, _ error) {
	f.captured = append(f.captured, info)
}

type harness struct {
	repo       *repository.PositionRepository
	quotes     *fakeQuotes
	trailing   *fakeTrailing
	venue      *fakeVenue
	dispatcher *fakeDispatcher
	notifier   *fakeNotifier
	exceptions *fakeExceptions
	monitor    *Monitor
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Position{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}

	h := &harness{
		repo:       repository.NewPositionRepositoryWithDB(db),
		quotes:     &fakeQuotes{quotes: map[string]model.Quote{}},
		trailing:   &fakeTrailing{},
		venue:      &fakeVenue{},
		dispatcher: &fakeDispatcher{},
		notifier:   &fakeNotifier{},
		exceptions: &fakeExceptions{},
	}
	h.monitor = New(Deps{
		Positions:  h.repo,
		Quotes:     h.quotes,
		Trailing:   h.trailing,
		Venue:      h.venue,
		Dispatcher: h.dispatcher,
		Notifier:   h.notifier,
		Exceptions: h.exceptions,
	}, cfg)
	return h
}

func (h *harness) create(t *testing.T, p model.Position) model.Position {
	t.Helper()
	if p.TraderID == 0 {
		p.TraderID = 42
	}
	if p.TradePair == "" {
		p.TradePair = "BTCUSD"
	}
	if p.AssetType == "" {
		p.AssetType = model.AssetTypeCrypto
	}
	if p.Source == "" {
		p.Source = model.SourceMain
	}
	if err := h.repo.Create(context.Background(), &p); err != nil {
		t.Fatalf("failed to create position: %v", err)
	}
	return p
}

func (h *harness) reload(t *testing.T, id uint) model.Position {
	t.Helper()
	p, err := h.repo.FindByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("failed to reload position %d: %v", id, err)
	}
	return *p
}
