package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateOffer validates the requested grant against the project's reserve and
// persists the PENDING offer with its 30-day expiry.
func (e *Engine) CreateOffer(ctx context.Context, input *models.NewContractOffer) (*models.ContractOffer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.VestingSchedule == "" {
		input.VestingSchedule = models.VestingScheduleImmediate
	}

	if err := utils.ValidateResourceId[models.Project](e.db, ctx, businessId, input.ProjectId); err != nil {
		return nil, utils.E(utils.ErrorKindNotFound, "project not found")
	}
	if err := utils.ValidateResourceId[models.User](e.db, ctx, businessId, input.RecipientId); err != nil {
		return nil, utils.E(utils.ErrorKindNotFound, "recipient not found")
	}

	state, err := models.GetCapTableState(e.db, ctx, businessId, input.ProjectId)
	if err != nil {
		return nil, err
	}
	if state.Reserve.LessThan(input.EquityPercentage) {
		return nil, utils.E(utils.ErrorKindInsufficientReserve,
			fmt.Sprintf("requested %s%% exceeds available reserve %s%%", input.EquityPercentage, state.Reserve))
	}

	now := e.clock.Now()
	offer := models.ContractOffer{
		BusinessId:       businessId,
		ProjectId:        input.ProjectId,
		RecipientId:      input.RecipientId,
		EquityPercentage: input.EquityPercentage,
		VestingSchedule:  input.VestingSchedule,
		ContributionType: input.ContributionType,
		EffortHours:      input.EffortHours,
		ImpactEstimate:   input.ImpactEstimate,
		Terms:            input.Terms,
		Deliverables:     input.Deliverables,
		Milestones:       input.Milestones,
		Status:           models.ContractStatusPending,
		CreatedBy:        userId,
		ExpiresAt:        now.AddDate(0, 0, models.OfferExpiryDays),
	}
	if err := e.db.WithContext(ctx).Create(&offer).Error; err != nil {
		return nil, err
	}

	e.audit.Record(ctx, "contract_offer", offer.ID, models.AuditActionCreate, userId, map[string]interface{}{
		"project_id":        offer.ProjectId,
		"recipient_id":      offer.RecipientId,
		"equity_percentage": offer.EquityPercentage,
		"vesting_schedule":  offer.VestingSchedule,
		"expires_at":        offer.ExpiresAt,
	})

	// Joined view for display.
	return e.getOfferWithRelations(ctx, businessId, offer.ID)
}

// AcceptOffer transitions a PENDING offer to ACCEPTED and posts its equity.
// The status update, signature, vesting row, cap-table credit, reserve
// decrement and portfolio snapshot are one logical unit: any failure rolls
// the whole acceptance back.
func (e *Engine) AcceptOffer(ctx context.Context, contractId int, userId int) (*models.ContractOffer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	now := e.clock.Now()

	offer, err := utils.FetchModel[models.ContractOffer](e.db, ctx, businessId, contractId)
	if err != nil {
		return nil, utils.E(utils.ErrorKindNotFound, "offer not found")
	}
	if err := offer.CanBeActionedBy(userId, now, true); err != nil {
		return nil, err
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCapTablePostingLock(tx, businessId, offer.ProjectId); err != nil {
			return err
		}
		defer ReleaseCapTablePostingLock(tx, businessId, offer.ProjectId)

		// Re-read under the lock; a concurrent accept may have won.
		var locked models.ContractOffer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ?", businessId).
			First(&locked, contractId).Error; err != nil {
			return utils.E(utils.ErrorKindNotFound, "offer not found")
		}
		if err := locked.CanBeActionedBy(userId, now, true); err != nil {
			return err
		}

		res := tx.Model(&models.ContractOffer{}).
			Where("id = ? AND status = ?", contractId, models.ContractStatusPending).
			Updates(map[string]interface{}{
				"status":      models.ContractStatusAccepted,
				"accepted_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.E(utils.ErrorKindInvalidState, "offer is not pending")
		}
		locked.Status = models.ContractStatusAccepted
		locked.AcceptedAt = &now

		signature := models.NewContractSignature(&locked, userId, now)
		if err := tx.Create(signature).Error; err != nil {
			return err
		}

		if _, err := createVestingForOffer(tx, &locked, now); err != nil {
			return err
		}

		if err := e.postAcceptedEquity(tx, ctx, &locked); err != nil {
			return err
		}

		if err := e.updateUserPortfolioMetrics(tx, ctx, businessId, userId, now); err != nil {
			return err
		}

		return models.TouchProjectActivity(tx, locked.ProjectId, now)
	})
	if err != nil {
		if utils.KindOf(err) != "" {
			return nil, err
		}
		config.LogError(e.logger, "offerWorkflow.go", "AcceptOffer", "transaction", contractId, err)
		return nil, utils.WrapTransaction(err)
	}

	e.audit.Record(ctx, "contract_offer", contractId, models.AuditActionAccept, userId, map[string]interface{}{
		"project_id":        offer.ProjectId,
		"equity_percentage": offer.EquityPercentage,
		"accepted_at":       now,
	})
	e.invalidatePortfolioCache(businessId, userId)

	return e.getOfferWithRelations(ctx, businessId, contractId)
}

// RejectOffer transitions a PENDING offer to REJECTED. The cap table and
// reserve are untouched.
func (e *Engine) RejectOffer(ctx context.Context, contractId int, userId int, reason string) (*models.ContractOffer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	now := e.clock.Now()

	offer, err := utils.FetchModel[models.ContractOffer](e.db, ctx, businessId, contractId)
	if err != nil {
		return nil, utils.E(utils.ErrorKindNotFound, "offer not found")
	}
	if err := offer.CanBeActionedBy(userId, now, false); err != nil {
		return nil, err
	}

	res := e.db.WithContext(ctx).Model(&models.ContractOffer{}).
		Where("id = ? AND business_id = ? AND status = ?", contractId, businessId, models.ContractStatusPending).
		Updates(map[string]interface{}{
			"status":           models.ContractStatusRejected,
			"rejected_at":      now,
			"rejection_reason": utils.NilIfEmpty(reason),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.E(utils.ErrorKindInvalidState, "offer is not pending")
	}

	e.audit.Record(ctx, "contract_offer", contractId, models.AuditActionReject, userId, map[string]interface{}{
		"reason": reason,
	})

	return e.getOfferWithRelations(ctx, businessId, contractId)
}

func (e *Engine) GetOffer(ctx context.Context, contractId int) (*models.ContractOffer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	offer, err := e.getOfferWithRelations(ctx, businessId, contractId)
	if err != nil {
		return nil, utils.E(utils.ErrorKindNotFound, "offer not found")
	}
	return offer, nil
}

func (e *Engine) getOfferWithRelations(ctx context.Context, businessId string, contractId int) (*models.ContractOffer, error) {
	return utils.FetchModel[models.ContractOffer](e.db, ctx, businessId, contractId, "Project", "Recipient")
}
