package engine

import (
	"errors"
	"testing"

	appconfig "coinquest/config"
	"coinquest/models"
)

type recordingNotifier struct {
	closed []models.ClosedPosition
	whales []models.WhaleEvent
}

func (n *recordingNotifier) NotifyPositionClosed(c models.ClosedPosition) {
	n.closed = append(n.closed, c)
}

func (n *recordingNotifier) NotifyWhale(e models.WhaleEvent) {
	n.whales = append(n.whales, e)
}

func tradingConfig(balance float64) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Trading.InitialBalance = balance
	cfg.Trading.MaxLeverage = 100
	return cfg
}

func priceSnap(pairs map[string]float64) models.PriceSnapshot {
	snap := make(models.PriceSnapshot, len(pairs))
	for sym, price := range pairs {
		snap[sym] = models.SymbolPrice{Price: price}
	}
	return snap
}

func TestOpenDerivesSizeAndLiquidation(t *testing.T) {
	p := NewPositions(tradingConfig(1000), nil)
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 100}))

	pos, err := p.Open("BTC", models.Long, 100, 10, nil, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if pos.Size != 1000 {
		t.Errorf("expected size 1000, got %f", pos.Size)
	}
	if pos.LiquidationPrice != 90 {
		t.Errorf("expected liquidation at 90, got %f", pos.LiquidationPrice)
	}
	if got := p.Balance(); got != 900 {
		t.Errorf("expected margin deducted, balance 900, got %f", got)
	}

	short, err := p.Open("BTC", models.Short, 100, 10, nil, nil)
	if err != nil {
		t.Fatalf("open short failed: %v", err)
	}
	if short.LiquidationPrice != 110.00000000000001 && short.LiquidationPrice != 110 {
		t.Errorf("expected short liquidation near 110, got %f", short.LiquidationPrice)
	}
}

func TestOpenValidation(t *testing.T) {
	p := NewPositions(tradingConfig(50), nil)
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 100}))

	if _, err := p.Open("BTC", models.Long, 100, 10, nil, nil); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := p.Open("DOGE", models.Long, 10, 10, nil, nil); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := p.Open("BTC", models.Long, 0, 10, nil, nil); err == nil {
		t.Error("expected error for zero margin")
	}
	if _, err := p.Open("BTC", models.Long, 10, 500, nil, nil); err == nil {
		t.Error("expected error for excessive leverage")
	}
	if _, err := p.Open("BTC", "SIDEWAYS", 10, 10, nil, nil); err == nil {
		t.Error("expected error for invalid side")
	}
}

func TestSnapshotRepricesAndCloseSettles(t *testing.T) {
	notifier := &recordingNotifier{}
	p := NewPositions(tradingConfig(1000), notifier)
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 100}))

	pos, err := p.Open("BTC", models.Long, 100, 10, nil, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 110}))

	open := p.List()
	if len(open) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(open))
	}
	if open[0].PnL != 100 {
		t.Errorf("expected pnl 100, got %f", open[0].PnL)
	}
	if open[0].ROIPercent != 100 {
		t.Errorf("expected roi 100%%, got %f", open[0].ROIPercent)
	}

	closed := p.Close(pos.ID, 110)
	if closed == nil {
		t.Fatal("close returned nil")
	}
	if closed.PnL != 100 || closed.Reason != models.CloseManual {
		t.Errorf("unexpected settlement: %+v", closed)
	}
	if got := p.Balance(); got != 1100 {
		t.Errorf("expected balance 1100 after settlement, got %f", got)
	}
	if len(notifier.closed) != 1 {
		t.Errorf("expected close notification, got %d", len(notifier.closed))
	}

	// closing again must be a no-op returning the original settlement
	again := p.Close(pos.ID, 120)
	if again == nil || again.PnL != 100 {
		t.Errorf("repeat close changed settlement: %+v", again)
	}
	if got := p.Balance(); got != 1100 {
		t.Errorf("repeat close moved balance to %f", got)
	}

	if got := p.Close("missing", 100); got != nil {
		t.Errorf("closing unknown id should be a no-op, got %+v", got)
	}
}

func TestForcedLiquidation(t *testing.T) {
	notifier := &recordingNotifier{}
	p := NewPositions(tradingConfig(1000), notifier)
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 100}))

	pos, err := p.Open("BTC", models.Long, 100, 10, nil, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// price crashes through the liquidation level
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 80}))

	if len(p.List()) != 0 {
		t.Fatal("position should have been liquidated")
	}
	closed := p.Close(pos.ID, 0)
	if closed == nil {
		t.Fatal("settlement missing after liquidation")
	}
	if closed.Reason != models.CloseLiquidated {
		t.Errorf("expected liquidation, got %s", closed.Reason)
	}
	if closed.PnL != -100 {
		t.Errorf("liquidation should cost exactly the margin, got pnl %f", closed.PnL)
	}
	if got := p.Balance(); got != 900 {
		t.Errorf("expected balance 900 after liquidation, got %f", got)
	}
}

func TestTakeProfitAndStopLoss(t *testing.T) {
	p := NewPositions(tradingConfig(1000), nil)
	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 100, "ETH": 100}))

	tp := 105.0
	sl := 97.0
	long, err := p.Open("BTC", models.Long, 100, 5, &tp, &sl)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	shortSL := 103.0
	short, err := p.Open("ETH", models.Short, 100, 5, nil, &shortSL)
	if err != nil {
		t.Fatalf("open short failed: %v", err)
	}

	p.ApplySnapshot(priceSnap(map[string]float64{"BTC": 106, "ETH": 104}))

	closedLong := p.Close(long.ID, 0)
	if closedLong == nil || closedLong.Reason != models.CloseTakeProfit || closedLong.ExitPrice != 105 {
		t.Errorf("unexpected long settlement: %+v", closedLong)
	}

	closedShort := p.Close(short.ID, 0)
	if closedShort == nil || closedShort.Reason != models.CloseStopLoss || closedShort.ExitPrice != 103 {
		t.Errorf("unexpected short settlement: %+v", closedShort)
	}
}

func TestShortPnl(t *testing.T) {
	if pnl := UnrealizedPnl(models.Short, 100, 90, 1000); pnl != 100 {
		t.Errorf("expected short profit 100, got %f", pnl)
	}
	if pnl := UnrealizedPnl(models.Long, 100, 90, 1000); pnl != -100 {
		t.Errorf("expected long loss -100, got %f", pnl)
	}
	if pnl := UnrealizedPnl(models.Long, 0, 90, 1000); pnl != 0 {
		t.Errorf("zero entry must value to 0, got %f", pnl)
	}
}
