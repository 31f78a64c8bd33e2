package sink

import (
	"coinquest/logger"
	"coinquest/models"
)

// LogSink is the default implementation of every sink: it writes events to
// the structured log. Hosts embedding the engines replace it with real
// notification and persistence backends.
type LogSink struct {
	log *logger.Log
}

func NewLogSink() *LogSink {
	return &LogSink{log: logger.GetLogger()}
}

func (s *LogSink) SaveWallet(update WalletUpdate) error {
	s.log.WithComponent("sink").WithFields(logger.Fields{
		"balance":       update.Balance,
		"last_claim_at": update.LastClaimAt,
	}).Info("wallet updated")
	return nil
}

func (s *LogSink) NotifyPositionClosed(closed models.ClosedPosition) {
	s.log.WithComponent("sink").WithFields(logger.Fields{
		"position_id": closed.Position.ID,
		"symbol":      closed.Position.Symbol,
		"reason":      closed.Reason,
		"pnl":         closed.PnL,
	}).Info("position closed notification")
}

func (s *LogSink) NotifyWhale(event models.WhaleEvent) {
	s.log.WithComponent("sink").WithFields(logger.Fields{
		"symbol":    event.Symbol,
		"side":      event.Side,
		"value_usd": event.ValueUSD,
	}).Info(event.Narrative)
}

func (s *LogSink) GrantXP(amount int, reason string) {
	s.log.WithComponent("sink").WithFields(logger.Fields{
		"amount": amount,
		"reason": reason,
	}).Info("xp granted")
}
