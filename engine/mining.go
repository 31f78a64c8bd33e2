package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	appconfig "coinquest/config"
	"coinquest/logger"
	"coinquest/models"
	"coinquest/sink"
)

var (
	ErrNothingToClaim     = errors.New("nothing to claim")
	ErrInsufficientTokens = errors.New("insufficient token balance")
)

// claimDust is the smallest accrual worth claiming. Anything below it is
// rejected so a rapid double-tap cannot reset the accrual window for free.
const claimDust = 0.01

// Mining accrues tokens continuously from LastClaimAt up to the storage cap.
// Earned is a pure function of the clock; only Claim and Upgrade mutate
// state, and both write the wallet through the persistence sink.
type Mining struct {
	config  *appconfig.Config
	persist sink.Persistence
	now     func() time.Time

	mu      sync.Mutex
	state   models.MiningState
	balance float64

	log *logger.Log
}

// NewMining starts the accrual window at the current time with an empty
// token balance.
func NewMining(cfg *appconfig.Config, persist sink.Persistence) *Mining {
	m := &Mining{
		config:  cfg,
		persist: persist,
		now:     time.Now,
		log:     logger.GetLogger(),
	}
	m.state = models.MiningState{
		RatePerSecond:        cfg.Mining.RatePerSecond,
		StorageCapacityHours: cfg.Mining.CapacityHours,
		LastClaimAt:          m.now(),
	}
	return m
}

// Restore replaces the accrual window and balance, used when loading a
// previously persisted wallet.
func (m *Mining) Restore(balance float64, lastClaimAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
	m.state.LastClaimAt = lastClaimAt
}

// Earned returns the claimable accrual: elapsed time since the last claim,
// capped by storage capacity, times the rate.
func (m *Mining) Earned() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.earnedLocked(m.now())
}

func (m *Mining) earnedLocked(now time.Time) float64 {
	elapsed := now.Sub(m.state.LastClaimAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := m.state.CapacitySeconds(); elapsed > limit {
		elapsed = limit
	}
	return elapsed * m.state.RatePerSecond
}

// Progress returns how full the storage is, from 0 to 1.
func (m *Mining) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	capacity := m.state.CapacitySeconds() * m.state.RatePerSecond
	if capacity <= 0 {
		return 0
	}
	return m.earnedLocked(m.now()) / capacity
}

// Claim credits the accrual to the balance and resets the window. Accruals
// below the dust threshold return ErrNothingToClaim and leave the window
// untouched.
func (m *Mining) Claim() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	amount := m.earnedLocked(now)
	if amount < claimDust {
		return 0, ErrNothingToClaim
	}

	m.balance += amount
	m.state.LastClaimAt = now

	m.log.WithComponent("mining").WithFields(logger.Fields{
		"amount":  amount,
		"balance": m.balance,
	}).Info("claimed mined tokens")

	m.saveLocked()
	return amount, nil
}

// Upgrade buys a permanent improvement to the rate or the storage window.
func (m *Mining) Upgrade(kind models.UpgradeKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var upgrade appconfig.UpgradeConfig
	switch kind {
	case models.UpgradeRate:
		upgrade = m.config.Mining.RateUpgrade
	case models.UpgradeStorage:
		upgrade = m.config.Mining.StorageUpgrade
	default:
		return fmt.Errorf("invalid upgrade kind %q", kind)
	}

	if m.balance < upgrade.Cost {
		return ErrInsufficientTokens
	}
	m.balance -= upgrade.Cost

	switch kind {
	case models.UpgradeRate:
		m.state.RatePerSecond += upgrade.Increment
	case models.UpgradeStorage:
		m.state.StorageCapacityHours += upgrade.Increment
	}

	m.log.WithComponent("mining").WithFields(logger.Fields{
		"upgrade":        kind,
		"cost":           upgrade.Cost,
		"rate":           m.state.RatePerSecond,
		"capacity_hours": m.state.StorageCapacityHours,
	}).Info("purchased mining upgrade")

	m.saveLocked()
	return nil
}

// TokenBalance returns the claimed token balance.
func (m *Mining) TokenBalance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance
}

// State returns a copy of the mining parameters.
func (m *Mining) State() models.MiningState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mining) saveLocked() {
	if m.persist == nil {
		return
	}
	update := sink.WalletUpdate{Balance: m.balance, LastClaimAt: m.state.LastClaimAt}
	if err := m.persist.SaveWallet(update); err != nil {
		m.log.WithComponent("mining").WithError(err).Warn("failed to persist wallet")
	}
}
