package channel

import (
	"context"
	"time"

	"coinquest/internal/channel/archive"
	"coinquest/internal/channel/feed"
	"coinquest/logger"
)

type Channels struct {
	Feed    *feed.Channels
	Archive *archive.Channels
}

func NewChannels(tickerBufferSize, tradeBufferSize, archiveBufferSize int) *Channels {
	return &Channels{
		Feed:    feed.NewChannels(tickerBufferSize, tradeBufferSize),
		Archive: archive.NewChannels(archiveBufferSize),
	}
}

func (c *Channels) Close() {
	if c.Feed != nil {
		c.Feed.Close()
	}
	if c.Archive != nil {
		c.Archive.Close()
	}
}

// StartMetricsReporting periodically logs channel depth and send/drop
// counters until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	log := logger.GetLogger()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			feedStats := c.Feed.GetStats()
			archiveStats := c.Archive.GetStats()

			log.LogMetric("channels", "ticker_len", len(c.Feed.Ticker), "gauge", logger.Fields{})
			log.LogMetric("channels", "trade_len", len(c.Feed.Trade), "gauge", logger.Fields{})
			log.LogMetric("channels", "archive_len", len(c.Archive.Records), "gauge", logger.Fields{})

			log.WithComponent("channels").WithFields(logger.Fields{
				"ticker_len":      len(c.Feed.Ticker),
				"ticker_cap":      cap(c.Feed.Ticker),
				"ticker_sent":     feedStats.TickerSent,
				"ticker_dropped":  feedStats.TickerDropped,
				"trade_len":       len(c.Feed.Trade),
				"trade_cap":       cap(c.Feed.Trade),
				"trade_sent":      feedStats.TradeSent,
				"trade_dropped":   feedStats.TradeDropped,
				"archive_len":     len(c.Archive.Records),
				"archive_sent":    archiveStats.RecordsSent,
				"archive_dropped": archiveStats.RecordsDropped,
			}).Info("channel metrics")
		}
	}
}
