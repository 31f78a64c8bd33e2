package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appconfig "coinquest/config"
	feedch "coinquest/internal/channel/feed"
	"coinquest/models"
)

func testConfig(url string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Feed.URL = url
	cfg.Feed.QuoteAsset = "USDT"
	cfg.Feed.ReconnectDelay = 20 * time.Millisecond
	cfg.Feed.PingInterval = time.Minute
	cfg.Feed.Control = appconfig.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 100}
	return cfg
}

func TestDispatchRoutesByShape(t *testing.T) {
	ch := feedch.NewChannels(4, 4)
	f := NewFeed(testConfig("ws://unused"), ch)
	ctx := context.Background()

	f.dispatch(ctx, []byte(`[{"s":"BTCUSDT","c":"50000.00","P":"2.5"}]`))
	f.dispatch(ctx, []byte(`{"e":"trade","E":1700000000000,"s":"BTCUSDT","p":"50000.00","q":"0.5","T":1700000000000,"m":false}`))
	f.dispatch(ctx, []byte(`{"result":null,"id":1}`))
	f.dispatch(ctx, []byte(`{"e":"kline","s":"BTCUSDT"}`))
	f.dispatch(ctx, []byte(`not json at all`))
	f.dispatch(ctx, []byte(`   `))

	if got := len(ch.Ticker); got != 1 {
		t.Fatalf("expected 1 ticker message, got %d", got)
	}
	if got := len(ch.Trade); got != 1 {
		t.Fatalf("expected 1 trade message, got %d", got)
	}

	msg := <-ch.Ticker
	if !strings.HasPrefix(string(msg.Payload), "[") {
		t.Errorf("ticker payload should be the raw array, got %s", msg.Payload)
	}
}

func TestSubscribeTracksStreamsOnce(t *testing.T) {
	f := NewFeed(testConfig("ws://unused"), feedch.NewChannels(1, 1))

	f.Subscribe("btcusdt@trade")
	f.Subscribe("btcusdt@trade")
	f.Subscribe("ethusdt@trade")

	tracked := f.Tracked()
	if len(tracked) != 2 {
		t.Fatalf("expected 2 tracked streams, got %v", tracked)
	}
	if tracked[0] != "btcusdt@trade" || tracked[1] != "ethusdt@trade" {
		t.Errorf("unexpected tracked set: %v", tracked)
	}

	f.Unsubscribe("btcusdt@trade")
	f.Unsubscribe("btcusdt@trade")
	if tracked := f.Tracked(); len(tracked) != 1 || tracked[0] != "ethusdt@trade" {
		t.Errorf("unexpected tracked set after unsubscribe: %v", tracked)
	}

	if f.Status() != StatusClosed {
		t.Errorf("feed should report closed before start, got %s", f.Status())
	}
}

func TestReconnectReappliesSubscriptions(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscriptions := make(chan models.ControlMessage, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg models.ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		subscriptions <- msg
		// drop the connection to force a reconnect
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	f := NewFeed(testConfig(wsURL), feedch.NewChannels(16, 16))
	f.Subscribe("btcusdt@trade")

	ctx, cancel := context.WithCancel(context.Background())
	if err := f.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		cancel()
		f.Stop()
	}()

	for i := 0; i < 2; i++ {
		select {
		case msg := <-subscriptions:
			if msg.Method != models.MethodSubscribe {
				t.Fatalf("connection %d: expected %s, got %s", i+1, models.MethodSubscribe, msg.Method)
			}
			want := []string{"!ticker@arr", "btcusdt@trade"}
			if len(msg.Params) != len(want) {
				t.Fatalf("connection %d: expected params %v, got %v", i+1, want, msg.Params)
			}
			for j := range want {
				if msg.Params[j] != want[j] {
					t.Fatalf("connection %d: expected params %v, got %v", i+1, want, msg.Params)
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for subscription %d", i+1)
		}
	}
}
