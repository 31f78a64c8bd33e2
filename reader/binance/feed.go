package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "coinquest/config"
	feedch "coinquest/internal/channel/feed"
	"coinquest/logger"
	"coinquest/models"
)

// Status reflects the lifecycle of the single upstream connection.
type Status int

const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// defaultStream is the implicit all-market ticker array stream that is
// re-applied on every successful connection.
const defaultStream = "!ticker@arr"

const defaultReconnectDelay = 5 * time.Second

// Feed owns the single websocket connection to the exchange stream endpoint.
// Subscriptions survive reconnects: the tracked set is re-applied on every
// transition to open. There is no terminal failure state; the feed retries
// on a fixed delay until the context is cancelled.
type Feed struct {
	config   *appconfig.Config
	channels *feedch.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	status   Status
	tracked  map[string]struct{}
	nextID   int64
	limiter  *rate.Limiter
	running  bool
	log      *logger.Log
}

// NewFeed creates the feed transport. Subscribe may be called before Start;
// streams tracked early are applied on the first successful connection.
func NewFeed(cfg *appconfig.Config, ch *feedch.Channels) *Feed {
	rps := cfg.Feed.Control.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Feed.Control.BurstSize
	if burst <= 0 {
		burst = rps
	}

	return &Feed{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		status:   StatusClosed,
		tracked:  make(map[string]struct{}),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		log:      logger.GetLogger(),
	}
}

// Start launches the connection loop and the one-shot REST price seed.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"url":             f.config.Feed.URL,
		"reconnect_delay": f.config.Feed.ReconnectDelay,
	}).Info("starting feed")

	if f.config.Feed.Seed.Enabled {
		f.wg.Add(1)
		go f.seedWorker(ctx)
	}

	f.wg.Add(1)
	go f.run(ctx)

	log.Info("feed started successfully")
	return nil
}

// Stop waits for the connection loop to exit. The context passed to Start
// must be cancelled first.
func (f *Feed) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()

	f.log.WithComponent("feed").Info("stopping feed")
	f.wg.Wait()
	f.log.WithComponent("feed").Info("feed stopped")
}

// Status returns the current connection state.
func (f *Feed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Tracked returns the sorted set of explicitly tracked streams.
func (f *Feed) Tracked() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	streams := make([]string, 0, len(f.tracked))
	for s := range f.tracked {
		streams = append(streams, s)
	}
	sort.Strings(streams)
	return streams
}

// Subscribe adds a stream to the tracked set. Already-tracked streams are a
// no-op. When the connection is open the subscribe control message is sent
// immediately; otherwise it is applied on the next successful connection.
func (f *Feed) Subscribe(stream string) {
	f.mu.Lock()
	if _, ok := f.tracked[stream]; ok {
		f.mu.Unlock()
		return
	}
	f.tracked[stream] = struct{}{}
	open := f.status == StatusOpen
	f.mu.Unlock()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"stream": stream})
	log.Info("tracking stream")

	if open {
		if err := f.sendControl(models.MethodSubscribe, []string{stream}); err != nil {
			log.WithError(err).Warn("failed to send subscribe message")
		}
	}
}

// Unsubscribe removes a stream from the tracked set and, when open, sends
// the unsubscribe control message.
func (f *Feed) Unsubscribe(stream string) {
	f.mu.Lock()
	_, ok := f.tracked[stream]
	delete(f.tracked, stream)
	open := f.status == StatusOpen
	f.mu.Unlock()

	if !ok {
		return
	}

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"stream": stream})
	log.Info("dropped stream")

	if open {
		if err := f.sendControl(models.MethodUnsubscribe, []string{stream}); err != nil {
			log.WithError(err).Warn("failed to send unsubscribe message")
		}
	}
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"worker": "connection"})

	delay := f.config.Feed.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	dialer := websocket.DefaultDialer

	for {
		if ctx.Err() != nil {
			return
		}

		f.setStatus(StatusConnecting, nil)

		conn, _, err := dialer.DialContext(ctx, f.config.Feed.URL, nil)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"url": f.config.Feed.URL}).Warn("failed to connect to feed websocket")
			f.setStatus(StatusClosed, nil)
			if waitForReconnect(ctx, delay) {
				return
			}
			continue
		}

		streams := f.openStreams(conn)
		log.WithFields(logger.Fields{"streams": streams}).Info("feed connected")

		if err := f.sendControl(models.MethodSubscribe, streams); err != nil {
			log.WithError(err).Warn("failed to apply subscriptions")
			f.setStatus(StatusClosed, nil)
			conn.Close()
			if waitForReconnect(ctx, delay) {
				return
			}
			continue
		}

		pingCancel := f.startPingLoop(ctx, conn)

		if err := f.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("feed read loop ended")
		}

		pingCancel()
		f.setStatus(StatusClosed, nil)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn("feed disconnected, reconnecting")
		if waitForReconnect(ctx, delay) {
			return
		}
	}
}

// openStreams installs the new connection, marks the feed open and returns
// the full subscription list to apply: the implicit default stream plus
// every tracked stream, each exactly once.
func (f *Feed) openStreams(conn *websocket.Conn) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conn = conn
	f.status = StatusOpen

	streams := make([]string, 0, len(f.tracked)+1)
	streams = append(streams, defaultStream)
	for s := range f.tracked {
		if s == defaultStream {
			continue
		}
		streams = append(streams, s)
	}
	sort.Strings(streams[1:])
	return streams
}

func (f *Feed) setStatus(status Status, conn *websocket.Conn) {
	f.mu.Lock()
	f.status = status
	f.conn = conn
	f.mu.Unlock()
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(ctx, msg)
	}
}

// dispatch routes an inbound payload by shape: a ticker array or a tagged
// trade event. Anything else, including control acks and malformed
// payloads, is dropped without error.
func (f *Feed) dispatch(ctx context.Context, msg []byte) {
	log := f.log.WithComponent("feed")

	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return
	}

	switch trimmed[0] {
	case '[':
		if !f.channels.SendTicker(ctx, models.RawTickerMessage{Payload: trimmed, Received: time.Now()}) {
			if ctx.Err() == nil {
				log.Warn("ticker channel full, dropping message")
			}
			return
		}
		logger.IncrementTickerRead(len(trimmed))
	case '{':
		var tag struct {
			Event string `json:"e"`
		}
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			log.WithError(err).Debug("dropping malformed payload")
			return
		}
		if tag.Event != "trade" {
			// subscription acks and unknown event types
			return
		}
		if !f.channels.SendTrade(ctx, models.RawTradeMessage{Payload: trimmed, Received: time.Now()}) {
			if ctx.Err() == nil {
				log.Warn("trade channel full, dropping message")
			}
			return
		}
		logger.IncrementTradeRead(len(trimmed))
	default:
		log.Debug("dropping unrecognized payload")
	}
}

func (f *Feed) sendControl(method string, params []string) error {
	if len(params) == 0 {
		return nil
	}

	f.mu.RLock()
	ctx := f.ctx
	f.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("control rate limiter: %w", err)
	}

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.nextID++
	return conn.WriteJSON(models.ControlMessage{
		Method: method,
		Params: params,
		ID:     f.nextID,
	})
}

func (f *Feed) startPingLoop(ctx context.Context, conn *websocket.Conn) context.CancelFunc {
	interval := f.config.Feed.PingInterval
	if interval <= 0 {
		interval = 20 * time.Second
	}

	log := f.log.WithComponent("feed")
	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					log.WithError(err).Warn("failed to send websocket ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}

func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
