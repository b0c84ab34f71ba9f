package stats

import (
	"time"

	"github.com/google/uuid"
)

// Info is one line of a compute pass: an application, a hardware part or a
// user, and the mAh attributed to it.
type Info struct {
	Type     ConsumptionType `json:"type"`
	UID      int32           `json:"uid"`
	UserID   int32           `json:"user_id"`
	PowerMah float64         `json:"power_mah"`
}

// Pass is a completed compute pass as recorded in history.
type Pass struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	OnBattery bool      `json:"on_battery"`
	TotalMah  float64   `json:"total_mah"`
	Records   []Info    `json:"records"`
}

// NewPass stamps a ledger with a fresh random identifier.
func NewPass(at time.Time, onBattery bool, totalMah float64, records []Info) Pass {
	cp := make([]Info, len(records))
	copy(cp, records)
	return Pass{
		ID:        uuid.NewString(),
		Timestamp: at,
		OnBattery: onBattery,
		TotalMah:  totalMah,
		Records:   cp,
	}
}
