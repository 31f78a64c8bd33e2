// Package processor turns raw feed messages into throttled price snapshots
// and unthrottled trade events for downstream consumers.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "coinquest/config"
	feedch "coinquest/internal/channel/feed"
	"coinquest/logger"
	"coinquest/models"
)

// SnapshotFunc receives the merged price table after a throttled flush.
type SnapshotFunc func(models.PriceSnapshot)

// TradeFunc receives individual trades as they arrive.
type TradeFunc func(models.Trade)

// Aggregator buffers ticker updates between flushes so a burst of feed
// messages collapses into a single downstream notification. Flushing is
// driven by message arrival: a batch flushes only when the throttle window
// since the previous flush has elapsed, with last-write-wins semantics per
// symbol in between. Trades are never throttled.
type Aggregator struct {
	config   *appconfig.Config
	channels *feedch.Channels
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool

	pending   map[string]models.SymbolPrice
	latest    models.PriceSnapshot
	lastFlush time.Time
	now       func() time.Time

	subMu        sync.Mutex
	nextSubID    int
	snapshotSubs map[int]SnapshotFunc
	tradeSubs    map[int]TradeFunc

	tickersSeen int64
	flushes     int64
	tradesSeen  int64

	log *logger.Log
}

func NewAggregator(cfg *appconfig.Config, ch *feedch.Channels) *Aggregator {
	return &Aggregator{
		config:       cfg,
		channels:     ch,
		wg:           &sync.WaitGroup{},
		pending:      make(map[string]models.SymbolPrice),
		latest:       make(models.PriceSnapshot),
		now:          time.Now,
		snapshotSubs: make(map[int]SnapshotFunc),
		tradeSubs:    make(map[int]TradeFunc),
		log:          logger.GetLogger(),
	}
}

// SubscribeSnapshots registers fn for flushed price snapshots and returns a
// cancel function removing the registration.
func (a *Aggregator) SubscribeSnapshots(fn SnapshotFunc) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.nextSubID++
	id := a.nextSubID
	a.snapshotSubs[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.snapshotSubs, id)
	}
}

// SubscribeTrades registers fn for parsed trades, delivered without
// throttling, and returns a cancel function.
func (a *Aggregator) SubscribeTrades(fn TradeFunc) func() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	a.nextSubID++
	id := a.nextSubID
	a.tradeSubs[id] = fn
	return func() {
		a.subMu.Lock()
		defer a.subMu.Unlock()
		delete(a.tradeSubs, id)
	}
}

// Latest returns a copy of the cumulative price table across all flushes.
func (a *Aggregator) Latest() models.PriceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest.Clone()
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already running")
	}
	a.running = true
	a.lastFlush = a.now()
	a.mu.Unlock()

	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"throttle_interval": a.config.Aggregator.ThrottleInterval,
		"quote_asset":       a.config.Feed.QuoteAsset,
	}).Info("starting aggregator")

	a.wg.Add(1)
	go a.run(ctx)

	log.Info("aggregator started successfully")
	return nil
}

// Stop flushes any buffered updates and waits for the worker to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("aggregator").Info("stopping aggregator")
	a.wg.Wait()

	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()
	if pending > 0 {
		a.flush(a.now())
	}

	a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"tickers_seen": a.tickersSeen,
		"trades_seen":  a.tradesSeen,
		"flushes":      a.flushes,
	}).Info("aggregator stopped")
}

func (a *Aggregator) run(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.channels.Ticker:
			if !ok {
				return
			}
			a.handleTicker(msg)
		case msg, ok := <-a.channels.Trade:
			if !ok {
				return
			}
			a.handleTrade(msg)
		}
	}
}

// handleTicker merges a ticker array into the pending buffer and flushes if
// the throttle window since the last flush has elapsed.
func (a *Aggregator) handleTicker(msg models.RawTickerMessage) {
	var items []models.TickerItem
	if err := json.Unmarshal(msg.Payload, &items); err != nil {
		a.log.WithComponent("aggregator").WithError(err).Debug("dropping undecodable ticker batch")
		return
	}

	quote := a.config.Feed.QuoteAsset

	a.mu.Lock()
	a.tickersSeen++
	for _, item := range items {
		if !strings.HasSuffix(item.Symbol, quote) {
			continue
		}
		price, err := strconv.ParseFloat(item.LastPrice, 64)
		if err != nil {
			continue
		}
		change, err := strconv.ParseFloat(item.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(item.Symbol, quote)
		if base == "" {
			continue
		}
		a.pending[base] = models.SymbolPrice{Price: price, Change24h: change}
	}
	now := a.now()
	due := len(a.pending) > 0 && now.Sub(a.lastFlush) > a.config.Aggregator.ThrottleInterval
	a.mu.Unlock()

	if due {
		a.flush(now)
	}
}

func (a *Aggregator) flush(now time.Time) {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	for symbol, price := range a.pending {
		a.latest[symbol] = price
	}
	a.pending = make(map[string]models.SymbolPrice)
	a.lastFlush = now
	a.flushes++
	snapshot := a.latest.Clone()
	a.mu.Unlock()

	a.subMu.Lock()
	subs := make([]SnapshotFunc, 0, len(a.snapshotSubs))
	for _, fn := range a.snapshotSubs {
		subs = append(subs, fn)
	}
	a.subMu.Unlock()

	for _, fn := range subs {
		fn(snapshot.Clone())
	}

	logger.RecordChannelMessage("aggregator.snapshot", len(snapshot))
}

// handleTrade parses and forwards a trade immediately. Malformed trades are
// dropped without error.
func (a *Aggregator) handleTrade(msg models.RawTradeMessage) {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		a.log.WithComponent("aggregator").WithError(err).Debug("dropping undecodable trade")
		return
	}
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return
	}
	quantity, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		return
	}

	trade := models.Trade{
		Symbol:     event.Symbol,
		Price:      price,
		Quantity:   quantity,
		BuyerMaker: event.IsBuyerMaker,
		Time:       time.UnixMilli(event.TradeTime),
	}

	a.mu.Lock()
	a.tradesSeen++
	a.mu.Unlock()

	a.subMu.Lock()
	subs := make([]TradeFunc, 0, len(a.tradeSubs))
	for _, fn := range a.tradeSubs {
		subs = append(subs, fn)
	}
	a.subMu.Unlock()

	for _, fn := range subs {
		fn(trade)
	}
}
