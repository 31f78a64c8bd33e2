// Package sink declares the outbound contracts the engines push state
// through. Implementations live with the host application; everything here
// is synchronous and returns an error the caller may log and ignore.
package sink

import (
	"time"

	"coinquest/models"
)

// WalletUpdate is the durable wallet slice written after a claim or an
// upgrade purchase.
type WalletUpdate struct {
	Balance     float64
	LastClaimAt time.Time
}

// Persistence stores the wallet state that must survive restarts.
type Persistence interface {
	SaveWallet(update WalletUpdate) error
}

// Notifier receives user-facing trading events.
type Notifier interface {
	NotifyPositionClosed(closed models.ClosedPosition)
	NotifyWhale(event models.WhaleEvent)
}

// XP credits experience points for engagement rewards.
type XP interface {
	GrantXP(amount int, reason string)
}
