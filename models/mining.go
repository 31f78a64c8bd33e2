package models

import "time"

// UpgradeKind selects which mining parameter an upgrade improves.
type UpgradeKind string

const (
	UpgradeRate    UpgradeKind = "RATE"
	UpgradeStorage UpgradeKind = "STORAGE"
)

// MiningState models continuous token generation capped by storage.
// Accrual is a pure function of elapsed time since LastClaimAt; nothing in
// the market feed mutates it.
type MiningState struct {
	RatePerSecond        float64   `json:"rate_per_second"`
	StorageCapacityHours float64   `json:"storage_capacity_hours"`
	LastClaimAt          time.Time `json:"last_claim_at"`
}

// CapacitySeconds returns the storage window in seconds.
func (s MiningState) CapacitySeconds() float64 {
	return s.StorageCapacityHours * 3600
}
