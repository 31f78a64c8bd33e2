package feed

import (
	"context"
	"sync"

	"coinquest/logger"
	"coinquest/models"
)

type ChannelStats struct {
	TickerSent    int64
	TradeSent     int64
	TickerDropped int64
	TradeDropped  int64
}

// Channels carries raw feed messages from the transport to the aggregator.
// Sends never block: a full buffer drops the message and bumps a counter.
type Channels struct {
	Ticker chan models.RawTickerMessage
	Trade  chan models.RawTradeMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(tickerBufferSize, tradeBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Ticker: make(chan models.RawTickerMessage, tickerBufferSize),
		Trade:  make(chan models.RawTradeMessage, tradeBufferSize),
		log:    log,
	}

	log.WithComponent("feed_channels").WithFields(logger.Fields{
		"ticker_buffer_size": tickerBufferSize,
		"trade_buffer_size":  tradeBufferSize,
	}).Info("feed channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Ticker)
	close(c.Trade)
	c.log.WithComponent("feed_channels").Info("feed channels closed")
}

func (c *Channels) SendTicker(ctx context.Context, msg models.RawTickerMessage) bool {
	select {
	case c.Ticker <- msg:
		c.statsMutex.Lock()
		c.stats.TickerSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.TickerDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendTrade(ctx context.Context, msg models.RawTradeMessage) bool {
	select {
	case c.Trade <- msg:
		c.statsMutex.Lock()
		c.stats.TradeSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.TradeDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
