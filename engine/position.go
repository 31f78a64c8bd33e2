// Package engine holds the derived financial state: leveraged demo
// positions priced from aggregator snapshots and the idle token accrual.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "coinquest/config"
	"coinquest/logger"
	"coinquest/models"
	"coinquest/sink"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownSymbol       = errors.New("no price available for symbol")
)

// Positions manages the demo trading book. Open deducts margin, Close
// settles margin plus pnl back to the balance, and ApplySnapshot reprices
// every open position and enforces liquidation, take-profit and stop-loss
// levels. All state is in memory; positions do not survive restarts.
type Positions struct {
	config   *appconfig.Config
	notifier sink.Notifier
	now      func() time.Time

	mu      sync.Mutex
	balance float64
	open    map[string]*models.Position
	closed  map[string]*models.ClosedPosition
	prices  models.PriceSnapshot

	log *logger.Log
}

func NewPositions(cfg *appconfig.Config, notifier sink.Notifier) *Positions {
	return &Positions{
		config:   cfg,
		notifier: notifier,
		now:      time.Now,
		balance:  cfg.Trading.InitialBalance,
		open:     make(map[string]*models.Position),
		closed:   make(map[string]*models.ClosedPosition),
		prices:   make(models.PriceSnapshot),
		log:      logger.GetLogger(),
	}
}

// LiquidationPrice returns the price at which a position of the given side
// and leverage loses its entire margin.
func LiquidationPrice(side models.PositionSide, entry, leverage float64) float64 {
	if side == models.Short {
		return entry * (1 + 1/leverage)
	}
	return entry * (1 - 1/leverage)
}

// UnrealizedPnl values a position of the given notional size against the
// current price.
func UnrealizedPnl(side models.PositionSide, entry, current, size float64) float64 {
	if entry == 0 {
		return 0
	}
	move := (current - entry) / entry
	if side == models.Short {
		move = -move
	}
	return size * move
}

// Open creates a position at the last known price for symbol. Margin is
// deducted from the balance up front.
func (p *Positions) Open(symbol string, side models.PositionSide, margin, leverage float64, takeProfit, stopLoss *float64) (*models.Position, error) {
	if side != models.Long && side != models.Short {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if margin <= 0 {
		return nil, fmt.Errorf("margin must be greater than 0")
	}
	if leverage < 1 || leverage > p.config.Trading.MaxLeverage {
		return nil, fmt.Errorf("leverage must be between 1 and %g", p.config.Trading.MaxLeverage)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok || price.Price <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if margin > p.balance {
		return nil, ErrInsufficientBalance
	}

	pos := &models.Position{
		ID:               uuid.New().String(),
		Symbol:           symbol,
		Side:             side,
		EntryPrice:       price.Price,
		CurrentPrice:     price.Price,
		Margin:           margin,
		Leverage:         leverage,
		Size:             margin * leverage,
		LiquidationPrice: LiquidationPrice(side, price.Price, leverage),
		TakeProfit:       takeProfit,
		StopLoss:         stopLoss,
		OpenedAt:         p.now(),
	}

	p.balance -= margin
	p.open[pos.ID] = pos

	p.log.WithComponent("positions").WithFields(logger.Fields{
		"position_id": pos.ID,
		"symbol":      symbol,
		"side":        side,
		"margin":      margin,
		"leverage":    leverage,
		"entry_price": pos.EntryPrice,
	}).Info("opened position")

	out := *pos
	return &out, nil
}

// Close settles a position at exitPrice; when exitPrice is zero the last
// known price is used. Closing an already-closed position returns the
// original settlement without touching the balance, and closing an unknown
// id is a no-op, so callers may close idempotently.
func (p *Positions) Close(id string, exitPrice float64) *models.ClosedPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	if done, ok := p.closed[id]; ok {
		out := *done
		return &out
	}
	pos, ok := p.open[id]
	if !ok {
		return nil
	}
	if exitPrice <= 0 {
		exitPrice = pos.CurrentPrice
	}

	closed := p.settleLocked(pos, exitPrice, models.CloseManual)
	out := *closed
	return &out
}

// ApplySnapshot reprices every open position from the snapshot, then closes
// any position that crossed its liquidation, take-profit or stop-loss level.
func (p *Positions) ApplySnapshot(snapshot models.PriceSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, price := range snapshot {
		p.prices[symbol] = price
	}

	for _, pos := range p.open {
		price, ok := snapshot[pos.Symbol]
		if !ok || price.Price <= 0 {
			continue
		}
		pos.CurrentPrice = price.Price
		pos.PnL = UnrealizedPnl(pos.Side, pos.EntryPrice, price.Price, pos.Size)
		if pos.Margin > 0 {
			pos.ROIPercent = pos.PnL / pos.Margin * 100
		}
	}

	for _, pos := range p.openSortedLocked() {
		if reason, exit, hit := triggerLevel(pos); hit {
			p.settleLocked(pos, exit, reason)
		}
	}
}

// triggerLevel reports the first enforcement level the current price has
// crossed. Liquidation takes precedence over take-profit and stop-loss.
func triggerLevel(pos *models.Position) (models.CloseReason, float64, bool) {
	price := pos.CurrentPrice
	long := pos.Side == models.Long

	if (long && price <= pos.LiquidationPrice) || (!long && price >= pos.LiquidationPrice) {
		return models.CloseLiquidated, pos.LiquidationPrice, true
	}
	if tp := pos.TakeProfit; tp != nil {
		if (long && price >= *tp) || (!long && price <= *tp) {
			return models.CloseTakeProfit, *tp, true
		}
	}
	if sl := pos.StopLoss; sl != nil {
		if (long && price <= *sl) || (!long && price >= *sl) {
			return models.CloseStopLoss, *sl, true
		}
	}
	return "", 0, false
}

// settleLocked removes pos from the book, credits margin plus pnl at the
// exit price and records the settlement. Caller holds p.mu.
func (p *Positions) settleLocked(pos *models.Position, exitPrice float64, reason models.CloseReason) *models.ClosedPosition {
	pnl := UnrealizedPnl(pos.Side, pos.EntryPrice, exitPrice, pos.Size)
	if pnl < -pos.Margin {
		pnl = -pos.Margin
	}
	pos.CurrentPrice = exitPrice
	pos.PnL = pnl
	if pos.Margin > 0 {
		pos.ROIPercent = pnl / pos.Margin * 100
	}

	closed := &models.ClosedPosition{
		Position:  *pos,
		ExitPrice: exitPrice,
		PnL:       pnl,
		Reason:    reason,
		ClosedAt:  p.now(),
	}

	p.balance += pos.Margin + pnl
	delete(p.open, pos.ID)
	p.closed[pos.ID] = closed

	entry := p.log.WithComponent("positions").WithFields(logger.Fields{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"reason":      reason,
		"exit_price":  exitPrice,
		"pnl":         pnl,
	})
	if reason == models.CloseLiquidated {
		entry.Warn("position liquidated")
	} else {
		entry.Info("closed position")
	}

	if p.notifier != nil {
		p.notifier.NotifyPositionClosed(*closed)
	}
	return closed
}

// Balance returns the free balance, excluding margin locked in open
// positions.
func (p *Positions) Balance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// List returns the open positions ordered by open time.
func (p *Positions) List() []models.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Position, 0, len(p.open))
	for _, pos := range p.openSortedLocked() {
		out = append(out, *pos)
	}
	return out
}

// Closed returns settlements ordered most recent first.
func (p *Positions) Closed() []models.ClosedPosition {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.ClosedPosition, 0, len(p.closed))
	for _, c := range p.closed {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	return out
}

func (p *Positions) openSortedLocked() []*models.Position {
	out := make([]*models.Position, 0, len(p.open))
	for _, pos := range p.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
