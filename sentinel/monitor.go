// Package sentinel runs the background market monitor: synthesized whale
// alerts and passive engagement rewards, gated by operator quiet hours.
package sentinel

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "coinquest/config"
	archivech "coinquest/internal/channel/archive"
	"coinquest/logger"
	"coinquest/models"
	"coinquest/sink"
)

// PriceProvider exposes the cumulative price table the monitor samples
// symbols from.
type PriceProvider interface {
	Latest() models.PriceSnapshot
}

// Monitor evaluates the market on a fixed tick. Whale events are synthetic,
// drawn from the injected random source so runs are reproducible in tests;
// the same source also sizes the notional. Quiet hours suppress both alerts
// and passive XP.
type Monitor struct {
	config   *appconfig.Config
	prices   PriceProvider
	notifier sink.Notifier
	xp       sink.XP
	archive  *archivech.Channels

	wg      *sync.WaitGroup
	running bool

	mu       sync.Mutex
	settings models.SentinelConfig
	history  []models.WhaleEvent
	stats    models.SentinelStats
	lastXP   time.Time

	now func() time.Time
	rng *rand.Rand

	log *logger.Log
}

// NewMonitor builds the monitor from static configuration. The archive
// channel may be nil when cold storage is disabled.
func NewMonitor(cfg *appconfig.Config, prices PriceProvider, notifier sink.Notifier, xp sink.XP, archive *archivech.Channels) *Monitor {
	return &Monitor{
		config:   cfg,
		prices:   prices,
		notifier: notifier,
		xp:       xp,
		archive:  archive,
		wg:       &sync.WaitGroup{},
		settings: models.SentinelConfig{
			Active:            cfg.Sentinel.Active,
			WhaleThresholdUSD: cfg.Sentinel.WhaleThresholdUSD,
			TrackWhales:       cfg.Sentinel.TrackWhales,
			TrackVolatility:   cfg.Sentinel.TrackVolatility,
			TrackSentiment:    cfg.Sentinel.TrackSentiment,
			QuietHoursStart:   cfg.Sentinel.QuietHoursStart,
			QuietHoursEnd:     cfg.Sentinel.QuietHoursEnd,
		},
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		log: logger.GetLogger(),
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("sentinel already running")
	}
	m.running = true
	m.lastXP = m.now()
	m.mu.Unlock()

	log := m.log.WithComponent("sentinel").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"tick_interval":       m.config.Sentinel.TickInterval,
		"whale_threshold_usd": m.config.Sentinel.WhaleThresholdUSD,
		"quiet_hours":         fmt.Sprintf("%02d-%02d", m.config.Sentinel.QuietHoursStart, m.config.Sentinel.QuietHoursEnd),
	}).Info("starting sentinel")

	m.wg.Add(1)
	go m.run(ctx)

	log.Info("sentinel started successfully")
	return nil
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.log.WithComponent("sentinel").Info("stopping sentinel")
	m.wg.Wait()

	stats := m.Stats()
	m.log.WithComponent("sentinel").WithFields(logger.Fields{
		"ticks":        stats.Ticks,
		"quiet_skips":  stats.QuietSkips,
		"whale_events": stats.WhaleEvents,
		"xp_grants":    stats.XPGrants,
	}).Info("sentinel stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	interval := m.config.Sentinel.TickInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(m.now())
		}
	}
}

func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()
	m.stats.Ticks++
	settings := m.settings
	m.mu.Unlock()

	if !settings.Active {
		return
	}

	if isQuietHour(now.Hour(), settings.QuietHoursStart, settings.QuietHoursEnd) {
		m.mu.Lock()
		m.stats.QuietSkips++
		m.mu.Unlock()
		return
	}

	if settings.TrackWhales {
		m.detectWhale(now, settings)
	}
	m.grantPassiveXP(now)
}

// isQuietHour reports whether hour falls inside [start, end), wrapping
// across midnight when start > end. An equal start and end disables quiet
// hours entirely.
func isQuietHour(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (m *Monitor) detectWhale(now time.Time, settings models.SentinelConfig) {
	prices := m.prices.Latest()
	if len(prices) == 0 {
		return
	}

	m.mu.Lock()
	roll := m.rng.Float64()
	if roll >= m.config.Sentinel.WhaleProbability {
		m.mu.Unlock()
		return
	}

	symbols := make([]string, 0, len(prices))
	for s := range prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	symbol := symbols[m.rng.Intn(len(symbols))]

	span := m.config.Sentinel.NotionalMaxUSD - m.config.Sentinel.NotionalMinUSD
	notional := m.config.Sentinel.NotionalMinUSD + m.rng.Float64()*span

	side := models.WhaleAccumulation
	if m.rng.Float64() < 0.5 {
		side = models.WhaleInflow
	}
	m.mu.Unlock()

	if notional < settings.WhaleThresholdUSD {
		return
	}

	price := prices[symbol].Price
	if price <= 0 {
		return
	}

	event := models.WhaleEvent{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      side,
		Quantity:  notional / price,
		ValueUSD:  notional,
		Timestamp: now,
		Narrative: narrative(symbol, side, notional),
	}

	m.mu.Lock()
	m.history = append([]models.WhaleEvent{event}, m.history...)
	if limit := m.config.Sentinel.HistoryLimit; limit > 0 && len(m.history) > limit {
		m.history = m.history[:limit]
	}
	m.stats.WhaleEvents++
	m.mu.Unlock()

	m.log.WithComponent("sentinel").WithFields(logger.Fields{
		"symbol":    symbol,
		"side":      side,
		"value_usd": notional,
	}).Info("whale movement detected")
	logger.IncrementAlertRaised()

	if m.notifier != nil {
		m.notifier.NotifyWhale(event)
	}
	if m.archive != nil {
		m.archive.SendRecord(context.Background(), models.ArchiveRecord{
			Kind:      "whale",
			Symbol:    symbol,
			Price:     price,
			Quantity:  event.Quantity,
			ValueUSD:  notional,
			Narrative: event.Narrative,
			Timestamp: now.UnixMilli(),
		})
	}
}

func narrative(symbol string, side models.WhaleSide, notional float64) string {
	if side == models.WhaleInflow {
		return fmt.Sprintf("Whale moved $%.0f of %s to an exchange", notional, symbol)
	}
	return fmt.Sprintf("Whale accumulated $%.0f of %s", notional, symbol)
}

func (m *Monitor) grantPassiveXP(now time.Time) {
	interval := m.config.Sentinel.PassiveXPInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m.mu.Lock()
	if now.Sub(m.lastXP) <= interval {
		m.mu.Unlock()
		return
	}
	m.lastXP = now
	m.stats.XPGrants++
	m.mu.Unlock()

	if m.xp != nil {
		m.xp.GrantXP(m.config.Sentinel.PassiveXPAmount, "passive")
	}
}

// Stats returns the counter snapshot.
func (m *Monitor) Stats() models.SentinelStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Active = m.settings.Active
	stats.HistorySize = len(m.history)
	return stats
}

// History returns recorded whale events, newest first.
func (m *Monitor) History() []models.WhaleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WhaleEvent, len(m.history))
	copy(out, m.history)
	return out
}

// SetConfig replaces the operator settings wholesale. History and counters
// are preserved.
func (m *Monitor) SetConfig(settings models.SentinelConfig) {
	m.mu.Lock()
	m.settings = settings
	m.mu.Unlock()

	m.log.WithComponent("sentinel").WithFields(logger.Fields{
		"active":       settings.Active,
		"track_whales": settings.TrackWhales,
		"quiet_hours":  fmt.Sprintf("%02d-%02d", settings.QuietHoursStart, settings.QuietHoursEnd),
	}).Info("sentinel settings updated")
}
