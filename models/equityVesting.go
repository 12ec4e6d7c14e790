package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EquityVesting tracks how much of an accepted offer's grant has been earned.
// One row per accepted offer; mutated only by the vesting batch.
// Invariant: 0 <= vested_equity <= total_equity.
type EquityVesting struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index;not null" json:"business_id"`
	ContractId    int             `gorm:"uniqueIndex;not null" json:"contract_id"`
	ProjectId     int             `gorm:"index;not null" json:"project_id"`
	BeneficiaryId int             `gorm:"index;not null" json:"beneficiary_id"`
	TotalEquity   decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_equity"`
	VestedEquity  decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"vested_equity"`
	Schedule      VestingSchedule `gorm:"size:20;not null" json:"schedule"`
	VestingStart  time.Time       `gorm:"not null" json:"vesting_start"`
	VestingEnd    time.Time       `gorm:"not null" json:"vesting_end"`
	CliffDate     *time.Time      `json:"cliff_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Events []VestingEvent `gorm:"foreignKey:VestingId" json:"events,omitempty"`
}

func (v *EquityVesting) IsFullyVested() bool {
	return v.VestedEquity.GreaterThanOrEqual(v.TotalEquity)
}

// VestingEvent is the append-only ledger of disbursements: how vested_equity
// reached its current value. Rows are never mutated or deleted.
type VestingEvent struct {
	ID         int              `gorm:"primary_key" json:"id"`
	BusinessId string           `gorm:"index;not null" json:"business_id"`
	VestingId  int              `gorm:"index;not null" json:"vesting_id"`
	EventType  VestingEventType `gorm:"size:20;not null" json:"event_type"`
	Amount     decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"amount"`
	EventDate  time.Time        `gorm:"not null" json:"event_date"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
