package sentinel

import (
	"math/rand"
	"testing"
	"time"

	appconfig "coinquest/config"
	"coinquest/models"
)

type staticPrices models.PriceSnapshot

func (p staticPrices) Latest() models.PriceSnapshot {
	return models.PriceSnapshot(p).Clone()
}

type recordingSinks struct {
	whales []models.WhaleEvent
	xp     []int
}

func (s *recordingSinks) NotifyPositionClosed(models.ClosedPosition) {}

func (s *recordingSinks) NotifyWhale(e models.WhaleEvent) {
	s.whales = append(s.whales, e)
}

func (s *recordingSinks) GrantXP(amount int, reason string) {
	s.xp = append(s.xp, amount)
}

func sentinelConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Sentinel.Active = true
	cfg.Sentinel.TrackWhales = true
	cfg.Sentinel.WhaleThresholdUSD = 0
	cfg.Sentinel.WhaleProbability = 1.0
	cfg.Sentinel.NotionalMinUSD = 500_000
	cfg.Sentinel.NotionalMaxUSD = 5_000_000
	cfg.Sentinel.HistoryLimit = 50
	cfg.Sentinel.PassiveXPAmount = 5
	cfg.Sentinel.PassiveXPInterval = 30 * time.Second
	cfg.Sentinel.QuietHoursStart = 23
	cfg.Sentinel.QuietHoursEnd = 7
	return cfg
}

func testMonitor(cfg *appconfig.Config, sinks *recordingSinks, prices staticPrices) *Monitor {
	m := NewMonitor(cfg, prices, sinks, sinks, nil)
	m.rng = rand.New(rand.NewSource(42))
	return m
}

func TestIsQuietHour(t *testing.T) {
	cases := []struct {
		hour, start, end int
		want             bool
	}{
		{12, 9, 17, true},
		{20, 9, 17, false},
		{9, 9, 17, true},
		{17, 9, 17, false},
		{1, 23, 7, true},
		{23, 23, 7, true},
		{12, 23, 7, false},
		{7, 23, 7, false},
		{5, 0, 0, false},
	}
	for _, c := range cases {
		if got := isQuietHour(c.hour, c.start, c.end); got != c.want {
			t.Errorf("isQuietHour(%d, %d, %d) = %v, want %v", c.hour, c.start, c.end, got, c.want)
		}
	}
}

func TestQuietHoursSuppressEverything(t *testing.T) {
	sinks := &recordingSinks{}
	m := testMonitor(sentinelConfig(), sinks, staticPrices{"BTC": {Price: 50000}})

	quiet := time.Date(2026, 1, 15, 1, 0, 0, 0, time.UTC)
	m.lastXP = quiet.Add(-time.Hour)
	for i := 0; i < 20; i++ {
		m.tick(quiet.Add(time.Duration(i) * 10 * time.Second))
	}

	if len(sinks.whales) != 0 {
		t.Errorf("quiet hours leaked %d whale alerts", len(sinks.whales))
	}
	if len(sinks.xp) != 0 {
		t.Errorf("quiet hours leaked %d xp grants", len(sinks.xp))
	}
	stats := m.Stats()
	if stats.Ticks != 20 || stats.QuietSkips != 20 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestInactiveSkipsWithoutCountingQuiet(t *testing.T) {
	cfg := sentinelConfig()
	cfg.Sentinel.Active = false
	sinks := &recordingSinks{}
	m := testMonitor(cfg, sinks, staticPrices{"BTC": {Price: 50000}})

	m.tick(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))

	stats := m.Stats()
	if stats.Ticks != 1 || stats.QuietSkips != 0 || stats.WhaleEvents != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestWhaleDetection(t *testing.T) {
	sinks := &recordingSinks{}
	m := testMonitor(sentinelConfig(), sinks, staticPrices{"BTC": {Price: 50000}, "ETH": {Price: 3000}})

	// daytime, probability forced to 1: every tick produces an alert
	day := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	m.tick(day)

	if len(sinks.whales) != 1 {
		t.Fatalf("expected 1 whale alert, got %d", len(sinks.whales))
	}
	event := sinks.whales[0]
	if event.Symbol != "BTC" && event.Symbol != "ETH" {
		t.Errorf("unexpected symbol %q", event.Symbol)
	}
	if event.ValueUSD < 500_000 || event.ValueUSD > 5_000_000 {
		t.Errorf("notional %f outside configured range", event.ValueUSD)
	}
	price := map[string]float64{"BTC": 50000, "ETH": 3000}[event.Symbol]
	if want := event.ValueUSD / price; event.Quantity != want {
		t.Errorf("expected quantity %f, got %f", want, event.Quantity)
	}
	if event.ID == "" || event.Narrative == "" {
		t.Errorf("event missing identity or narrative: %+v", event)
	}

	history := m.History()
	if len(history) != 1 || history[0].ID != event.ID {
		t.Errorf("history should hold the alert: %+v", history)
	}
}

func TestWhaleThresholdFilters(t *testing.T) {
	cfg := sentinelConfig()
	cfg.Sentinel.WhaleThresholdUSD = 10_000_000 // above the notional range
	sinks := &recordingSinks{}
	m := testMonitor(cfg, sinks, staticPrices{"BTC": {Price: 50000}})

	for i := 0; i < 10; i++ {
		m.tick(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * 10 * time.Second))
	}
	if len(sinks.whales) != 0 {
		t.Errorf("threshold should have filtered all alerts, got %d", len(sinks.whales))
	}
}

func TestNoPricesNoWhales(t *testing.T) {
	sinks := &recordingSinks{}
	m := testMonitor(sentinelConfig(), sinks, staticPrices{})

	m.tick(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	if len(sinks.whales) != 0 {
		t.Errorf("expected no alerts without prices, got %d", len(sinks.whales))
	}
}

func TestHistoryCapNewestFirst(t *testing.T) {
	cfg := sentinelConfig()
	cfg.Sentinel.HistoryLimit = 5
	sinks := &recordingSinks{}
	m := testMonitor(cfg, sinks, staticPrices{"BTC": {Price: 50000}})

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		m.tick(base.Add(time.Duration(i) * 10 * time.Second))
	}

	history := m.History()
	if len(history) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.After(history[i-1].Timestamp) {
			t.Fatal("history must be ordered newest first")
		}
	}
	if got := m.Stats().WhaleEvents; got != 12 {
		t.Errorf("expected 12 counted events, got %d", got)
	}
}

func TestPassiveXPInterval(t *testing.T) {
	cfg := sentinelConfig()
	cfg.Sentinel.TrackWhales = false
	sinks := &recordingSinks{}
	m := testMonitor(cfg, sinks, staticPrices{})

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	m.lastXP = base

	m.tick(base.Add(10 * time.Second))
	m.tick(base.Add(20 * time.Second))
	m.tick(base.Add(30 * time.Second)) // exactly the interval: not yet due
	if len(sinks.xp) != 0 {
		t.Fatalf("xp granted too early: %v", sinks.xp)
	}

	m.tick(base.Add(40 * time.Second))
	if len(sinks.xp) != 1 || sinks.xp[0] != 5 {
		t.Fatalf("expected one grant of 5 xp, got %v", sinks.xp)
	}

	// the window resets from the grant
	m.tick(base.Add(50 * time.Second))
	if len(sinks.xp) != 1 {
		t.Errorf("expected no second grant yet, got %v", sinks.xp)
	}
}

func TestSetConfigTakesEffect(t *testing.T) {
	sinks := &recordingSinks{}
	m := testMonitor(sentinelConfig(), sinks, staticPrices{"BTC": {Price: 50000}})

	settings := m.settings
	settings.TrackWhales = false
	m.SetConfig(settings)

	m.tick(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	if len(sinks.whales) != 0 {
		t.Errorf("disabled whale tracking still produced %d alerts", len(sinks.whales))
	}

	settings.Active = false
	m.SetConfig(settings)
	if m.Stats().Active {
		t.Error("stats should reflect deactivation")
	}
}
