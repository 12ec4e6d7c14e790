package models

import (
	"context"
	"errors"
	"time"

	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Project owns a fixed 100% equity pool, split between the RESERVE holder and
// allocated holders on the cap table.
type Project struct {
	ID             int             `gorm:"primary_key" json:"id"`
	BusinessId     string          `gorm:"index;not null" json:"business_id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Category       string          `gorm:"size:100;not null" json:"category"`
	Summary        string          `gorm:"type:text" json:"summary"`
	ProjectValue   decimal.Decimal `gorm:"type:decimal(20,8);default:0" json:"project_value"`
	LastActivityAt *time.Time      `json:"last_activity_at"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	CapTableEntries []CapTableEntry `gorm:"foreignKey:ProjectId" json:"cap_table_entries,omitempty"`
}

type NewProject struct {
	Name         string          `json:"name" binding:"required"`
	Category     string          `json:"category" binding:"required"`
	Summary      string          `json:"summary"`
	ProjectValue decimal.Decimal `json:"project_value"`
	// ReservePercentage defaults to the full pool when zero.
	ReservePercentage decimal.Decimal `json:"reserve_percentage"`
}

// CreateProject persists the project together with its cap-table seed rows.
// A partial reserve puts the remainder on a founder entry for the creating
// user, so allocated + reserve sums to 100 from the first row.
func CreateProject(db *gorm.DB, ctx context.Context, input *NewProject) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	reserve := input.ReservePercentage
	if reserve.IsZero() {
		reserve = decimal.NewFromInt(100)
	}
	if reserve.IsNegative() || reserve.GreaterThan(decimal.NewFromInt(100)) {
		return nil, utils.E(utils.ErrorKindValidation, "reserve percentage must be between 0 and 100")
	}
	founderShare := decimal.NewFromInt(100).Sub(reserve)
	founderId := 0
	if founderShare.IsPositive() {
		founderId, ok = utils.GetUserIdFromContext(ctx)
		if !ok || founderId == 0 {
			return nil, utils.E(utils.ErrorKindValidation,
				"a partial reserve needs an authenticated creator to hold the remainder")
		}
	}

	project := Project{
		BusinessId:   businessId,
		Name:         input.Name,
		Category:     input.Category,
		Summary:      input.Summary,
		ProjectValue: input.ProjectValue,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		entry := CapTableEntry{
			BusinessId: businessId,
			ProjectId:  project.ID,
			HolderType: HolderTypeReserve,
			Percentage: reserve,
			Source:     "project reserve",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if !founderShare.IsPositive() {
			return nil
		}
		founder := CapTableEntry{
			BusinessId: businessId,
			ProjectId:  project.ID,
			HolderType: HolderTypeUser,
			HolderId:   founderId,
			Percentage: founderShare,
			Source:     "founding allocation",
		}
		return tx.Create(&founder).Error
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func GetProject(db *gorm.DB, ctx context.Context, id int) (*Project, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Project](db, ctx, businessId, id)
}

// TouchProjectActivity stamps last_activity_at; used by the opportunity score.
func TouchProjectActivity(tx *gorm.DB, projectId int, at time.Time) error {
	return tx.Model(&Project{}).Where("id = ?", projectId).
		Update("last_activity_at", at).Error
}
