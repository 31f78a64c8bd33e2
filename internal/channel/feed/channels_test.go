package feed

import (
	"context"
	"testing"
	"time"

	"coinquest/models"
)

func TestSendTickerDropsWhenFull(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	msg := models.RawTickerMessage{Payload: []byte("[]"), Received: time.Now()}
	if !c.SendTicker(ctx, msg) {
		t.Fatalf("first send should succeed")
	}
	if c.SendTicker(ctx, msg) {
		t.Fatalf("second send should drop on full buffer")
	}

	stats := c.GetStats()
	if stats.TickerSent != 1 {
		t.Errorf("expected 1 sent, got %d", stats.TickerSent)
	}
	if stats.TickerDropped != 1 {
		t.Errorf("expected 1 dropped, got %d", stats.TickerDropped)
	}
}

func TestSendTradeCancelledContext(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()

	// fill the buffer so send falls through to the context branch
	ctx := context.Background()
	c.SendTrade(ctx, models.RawTradeMessage{Payload: []byte("{}")})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if c.SendTrade(cancelled, models.RawTradeMessage{Payload: []byte("{}")}) {
		t.Fatalf("send should fail with cancelled context and full buffer")
	}
}
