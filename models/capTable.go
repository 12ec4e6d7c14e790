package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CapTableEntry is one ownership row of a project's cap table. At most one
// entry exists per (business, project, holder_type, holder_id): acceptance
// increments an existing entry instead of inserting a second one. Rows are
// never deleted.
//
// is_vested is a coarse flag stamped by the vesting batch; the running vested
// total lives on EquityVesting. The two are deliberately separate pieces of
// state (detailed ledger vs. display flag).
type CapTableEntry struct {
	ID         int        `gorm:"primary_key" json:"id"`
	BusinessId string     `gorm:"uniqueIndex:ux_cap_entry;not null" json:"business_id"`
	ProjectId  int        `gorm:"uniqueIndex:ux_cap_entry;not null" json:"project_id"`
	HolderType HolderType `gorm:"uniqueIndex:ux_cap_entry;size:10;not null" json:"holder_type"`
	// HolderId is 0 for the RESERVE holder.
	HolderId    int             `gorm:"uniqueIndex:ux_cap_entry;not null;default:0" json:"holder_id"`
	Percentage  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"percentage"`
	Source      string          `gorm:"size:255" json:"source"`
	ContractId  *int            `gorm:"index" json:"contract_id"`
	IsVested    *bool           `gorm:"not null;default:false" json:"is_vested"`
	VestingDate *time.Time      `json:"vesting_date"`
	// LockVersion backs optimistic concurrency on percentage updates.
	LockVersion int       `gorm:"not null;default:0" json:"lock_version"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Project *Project `gorm:"foreignKey:ProjectId" json:"project,omitempty"`
}

// CapTableState is the reserve/allocated split the offer manager consults
// before creating an offer.
type CapTableState struct {
	ProjectId int             `json:"project_id"`
	Reserve   decimal.Decimal `json:"reserve"`
	Allocated decimal.Decimal `json:"allocated"`
	Holders   int             `json:"holders"`
}

// GetCapTableState reads the project's current reserve and allocated totals.
// Read-only oracle; must run inside the posting lock when used for mutation.
func GetCapTableState(tx *gorm.DB, ctx context.Context, businessId string, projectId int) (*CapTableState, error) {
	var entries []CapTableEntry
	if err := tx.WithContext(ctx).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	state := CapTableState{ProjectId: projectId, Reserve: decimal.Zero, Allocated: decimal.Zero}
	for _, e := range entries {
		if e.HolderType == HolderTypeReserve {
			state.Reserve = state.Reserve.Add(e.Percentage)
		} else {
			state.Allocated = state.Allocated.Add(e.Percentage)
			state.Holders++
		}
	}
	return &state, nil
}

// SumProjectPercentages returns the full cap-table sum for the project,
// reserve included. Equals 100 when the books are consistent.
func SumProjectPercentages(tx *gorm.DB, ctx context.Context, businessId string, projectId int) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := tx.WithContext(ctx).Model(&CapTableEntry{}).
		Where("business_id = ? AND project_id = ?", businessId, projectId).
		Select("SUM(percentage)").Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

func GetHolderEntry(tx *gorm.DB, ctx context.Context, businessId string, projectId int, holderId int) (*CapTableEntry, error) {
	var entry CapTableEntry
	err := tx.WithContext(ctx).
		Where("business_id = ? AND project_id = ? AND holder_type = ? AND holder_id = ?",
			businessId, projectId, HolderTypeUser, holderId).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func GetReserveEntry(tx *gorm.DB, ctx context.Context, businessId string, projectId int) (*CapTableEntry, error) {
	var entry CapTableEntry
	err := tx.WithContext(ctx).
		Where("business_id = ? AND project_id = ? AND holder_type = ?",
			businessId, projectId, HolderTypeReserve).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UserCapTableEntries returns the user's holdings joined with their projects,
// for the portfolio aggregator.
func UserCapTableEntries(db *gorm.DB, ctx context.Context, businessId string, userId int) ([]*CapTableEntry, error) {
	var entries []*CapTableEntry
	err := db.WithContext(ctx).
		Where("business_id = ? AND holder_type = ? AND holder_id = ?", businessId, HolderTypeUser, userId).
		Preload("Project").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
