package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// capTableTolerance bounds acceptable drift on the 100%-sum invariant.
var capTableTolerance = decimal.New(1, -6)

// postAcceptedEquity credits the recipient and debits the reserve inside the
// accept transaction. Must run under the project's posting lock.
//
// A missing reserve row is logged and skipped rather than failing the accept:
// the recipient still gets credited. Known data-quality gap carried over from
// legacy books; the invariant assertion below stays silent in that case.
func (e *Engine) postAcceptedEquity(tx *gorm.DB, ctx context.Context, offer *models.ContractOffer) error {
	amount := offer.EquityPercentage

	entry, err := models.GetHolderEntry(tx, ctx, offer.BusinessId, offer.ProjectId, offer.RecipientId)
	switch {
	case err == nil:
		// Existing holder: increment and stamp the originating contract.
		res := tx.Model(&models.CapTableEntry{}).
			Where("id = ? AND lock_version = ?", entry.ID, entry.LockVersion).
			Updates(map[string]interface{}{
				"percentage":   gorm.Expr("percentage + ?", amount),
				"contract_id":  offer.ID,
				"source":       fmt.Sprintf("contract #%d", offer.ID),
				"lock_version": gorm.Expr("lock_version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("cap table entry changed concurrently")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		newEntry := models.CapTableEntry{
			BusinessId: offer.BusinessId,
			ProjectId:  offer.ProjectId,
			HolderType: models.HolderTypeUser,
			HolderId:   offer.RecipientId,
			Percentage: amount,
			Source:     fmt.Sprintf("contract #%d", offer.ID),
			ContractId: &offer.ID,
		}
		if err := tx.Create(&newEntry).Error; err != nil {
			return err
		}
	default:
		return err
	}

	reserve, err := models.GetReserveEntry(tx, ctx, offer.BusinessId, offer.ProjectId)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		config.LogWarn(e.logger, "capTableWorkflow.go", "postAcceptedEquity", "reserve missing",
			map[string]interface{}{"project_id": offer.ProjectId, "contract_id": offer.ID},
			"no reserve entry to decrement; equity credited without offsetting reserve")
		return nil
	}
	if err != nil {
		return err
	}

	res := tx.Model(&models.CapTableEntry{}).
		Where("id = ? AND percentage >= ?", reserve.ID, amount).
		Updates(map[string]interface{}{
			"percentage":   gorm.Expr("percentage - ?", amount),
			"lock_version": gorm.Expr("lock_version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// The creation-time check passed, but a concurrent accept drained the
		// reserve first.
		return utils.E(utils.ErrorKindInsufficientReserve,
			fmt.Sprintf("reserve below requested equity for project %d", offer.ProjectId))
	}

	if config.StrictCapTableInvariant() {
		return assertCapTableBalanced(tx, ctx, offer.BusinessId, offer.ProjectId)
	}
	return nil
}

// assertCapTableBalanced fails the surrounding transaction when allocated +
// reserve drifts from 100%.
func assertCapTableBalanced(tx *gorm.DB, ctx context.Context, businessId string, projectId int) error {
	sum, err := models.SumProjectPercentages(tx, ctx, businessId, projectId)
	if err != nil {
		return err
	}
	if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(capTableTolerance) {
		return fmt.Errorf("cap table out of balance for project_id=%d: sum=%s", projectId, sum)
	}
	return nil
}
