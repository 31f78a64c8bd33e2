package binance

import (
	"context"
	"encoding/json"
	"time"

	binanceapi "github.com/adshao/go-binance/v2"

	"coinquest/logger"
	"coinquest/models"
)

// seedWorker fetches the 24h ticker statistics over REST once and pushes
// them through the ticker channel in the same wire shape as the websocket
// array, so consumers see prices before the first streamed batch arrives.
func (f *Feed) seedWorker(ctx context.Context) {
	defer f.wg.Done()

	log := f.log.WithComponent("feed").WithFields(logger.Fields{"worker": "seed"})

	client := binanceapi.NewClient("", "")
	if f.config.Feed.Seed.Endpoint != "" {
		client.BaseURL = f.config.Feed.Seed.Endpoint
	}

	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	stats, err := client.NewListPriceChangeStatsService().Do(reqCtx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch 24h ticker statistics")
		return
	}

	items := make([]models.TickerItem, 0, len(stats))
	for _, s := range stats {
		items = append(items, models.TickerItem{
			Symbol:             s.Symbol,
			LastPrice:          s.LastPrice,
			PriceChangePercent: s.PriceChangePercent,
		})
	}
	if len(items) == 0 {
		log.Warn("24h ticker statistics response was empty")
		return
	}

	payload, err := json.Marshal(items)
	if err != nil {
		log.WithError(err).Error("failed to encode seeded ticker batch")
		return
	}

	if f.channels.SendTicker(ctx, models.RawTickerMessage{Payload: payload, Received: time.Now()}) {
		log.WithFields(logger.Fields{"symbols": len(items)}).Info("seeded prices from REST")
	}
}
