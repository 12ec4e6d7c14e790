package workflow

import (
	"context"
	"time"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const vestingRunHandler = "VESTING_RUN"

// Period units for linear interpolation, in days.
const (
	monthlyPeriodDays   = 30
	quarterlyPeriodDays = 90
	annualPeriodDays    = 365
)

// VestingDates derives the schedule window from its kind:
// MONTHLY +12mo, QUARTERLY +18mo, ANNUAL +24mo, CLIFF cliff=+12mo end=+36mo,
// anything else (IMMEDIATE) ends at start.
func VestingDates(schedule models.VestingSchedule, start time.Time) (end time.Time, cliff *time.Time) {
	switch schedule {
	case models.VestingScheduleMonthly:
		return start.AddDate(0, 12, 0), nil
	case models.VestingScheduleQuarterly:
		return start.AddDate(0, 18, 0), nil
	case models.VestingScheduleAnnual:
		return start.AddDate(0, 24, 0), nil
	case models.VestingScheduleCliff:
		c := start.AddDate(0, 12, 0)
		return start.AddDate(0, 36, 0), &c
	default:
		return start, nil
	}
}

func schedulePeriodDays(schedule models.VestingSchedule) int {
	switch schedule {
	case models.VestingScheduleMonthly:
		return monthlyPeriodDays
	case models.VestingScheduleQuarterly:
		return quarterlyPeriodDays
	case models.VestingScheduleAnnual, models.VestingScheduleCliff:
		return annualPeriodDays
	default:
		return 0
	}
}

// CumulativeVested computes the total equity earned as of today: whole
// elapsed periods linearly interpolated over the schedule window, clamped to
// [0, total]. This is a CUMULATIVE amount, not a delta; callers that apply it
// must subtract what has already vested (see processVestingSchedule).
// MILESTONE schedules always return zero: milestone completion tracking is
// not wired into the engine yet.
func CumulativeVested(v *models.EquityVesting, today time.Time) decimal.Decimal {
	if v.CliffDate != nil && today.Before(*v.CliffDate) {
		return decimal.Zero
	}
	unit := schedulePeriodDays(v.Schedule)
	if unit <= 0 {
		return decimal.Zero
	}
	// Past the end the whole grant is owed. Whole-period truncation alone
	// would strand the final period on windows that don't divide evenly into
	// period units (a 24-month window with no leap day is 730 days, one short
	// of two whole 365-day periods).
	if !today.Before(v.VestingEnd) {
		return v.TotalEquity
	}

	elapsedPeriods := int(today.Sub(v.VestingStart).Hours()/24) / unit
	totalPeriods := int(v.VestingEnd.Sub(v.VestingStart).Hours()/24) / unit
	if totalPeriods <= 0 {
		return v.TotalEquity
	}
	if elapsedPeriods <= 0 {
		return decimal.Zero
	}

	cumulative := v.TotalEquity.
		Mul(decimal.NewFromInt(int64(elapsedPeriods))).
		Div(decimal.NewFromInt(int64(totalPeriods)))
	return decimal.Min(cumulative, v.TotalEquity)
}

// createVestingForOffer materializes the EquityVesting row for a freshly
// accepted offer; invoked only from AcceptOffer inside its transaction.
// IMMEDIATE schedules vest in full at creation and seed the INITIAL event.
func createVestingForOffer(tx *gorm.DB, offer *models.ContractOffer, now time.Time) (*models.EquityVesting, error) {
	end, cliff := VestingDates(offer.VestingSchedule, now)

	vested := decimal.Zero
	if offer.VestingSchedule == models.VestingScheduleImmediate {
		vested = offer.EquityPercentage
	}

	vesting := models.EquityVesting{
		BusinessId:    offer.BusinessId,
		ContractId:    offer.ID,
		ProjectId:     offer.ProjectId,
		BeneficiaryId: offer.RecipientId,
		TotalEquity:   offer.EquityPercentage,
		VestedEquity:  vested,
		Schedule:      offer.VestingSchedule,
		VestingStart:  now,
		VestingEnd:    end,
		CliffDate:     cliff,
	}
	if err := tx.Create(&vesting).Error; err != nil {
		return nil, err
	}

	if offer.VestingSchedule == models.VestingScheduleImmediate {
		event := models.VestingEvent{
			BusinessId: offer.BusinessId,
			VestingId:  vesting.ID,
			EventType:  models.VestingEventTypeInitial,
			Amount:     offer.EquityPercentage,
			EventDate:  now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return nil, err
		}
	}
	return &vesting, nil
}

type VestingRunResult struct {
	// Processed counts schedules examined, not schedules that vested.
	Processed int `json:"processed"`
	Vested    int `json:"vested"`
	Expired   int `json:"expired"`
}

// ProcessVestingEvents is the batch entry point, intended to be triggered by
// an external scheduler (daily cron); the logic itself is schedule-agnostic.
// Runs are idempotent per calendar day, so overlapping or repeated triggers
// are harmless.
func (e *Engine) ProcessVestingEvents(ctx context.Context) (*VestingRunResult, error) {
	today := e.clock.Now()
	runId := today.Format("2006-01-02")
	result := VestingRunResult{}

	// Internal op: sweeps every tenant's schedules.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := BeginIdempotency(tx, "*", vestingRunHandler, runId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		// Selection keys on what is still owed, not on the window: a schedule
		// whose end passed between runs still needs its final credit.
		var vestings []*models.EquityVesting
		if err := tx.
			Where("vested_equity < total_equity AND schedule NOT IN ?",
				[]models.VestingSchedule{models.VestingScheduleImmediate, models.VestingScheduleMilestone}).
			Find(&vestings).Error; err != nil {
			return err
		}

		for _, vesting := range vestings {
			result.Processed++
			vestedNow, err := e.processVestingSchedule(tx, vesting, today)
			if err != nil {
				config.LogError(e.logger, "vestingWorkflow.go", "ProcessVestingEvents", "processVestingSchedule", vesting.ID, err)
				return err
			}
			if vestedNow {
				result.Vested++
			}
		}

		if config.ExpirePendingOffersInBatch() {
			expired, err := e.expirePendingOffers(tx, today)
			if err != nil {
				return err
			}
			result.Expired = expired
		}

		return MarkIdempotencySucceeded(tx, "*", vestingRunHandler, runId)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// processVestingSchedule applies the time-based vesting owed as of today.
// The interpolation yields a cumulative figure; only the delta against
// vested_equity is applied and logged, so re-running within the same period
// credits nothing extra.
func (e *Engine) processVestingSchedule(tx *gorm.DB, vesting *models.EquityVesting, today time.Time) (bool, error) {
	cumulative := CumulativeVested(vesting, today)
	delta := cumulative.Sub(vesting.VestedEquity)
	if !delta.IsPositive() {
		return false, nil
	}

	event := models.VestingEvent{
		BusinessId: vesting.BusinessId,
		VestingId:  vesting.ID,
		EventType:  models.VestingEventTypeTimeBased,
		Amount:     delta,
		EventDate:  today,
	}
	if err := tx.Create(&event).Error; err != nil {
		return false, err
	}

	if err := tx.Model(&models.EquityVesting{}).
		Where("id = ?", vesting.ID).
		Update("vested_equity", gorm.Expr("vested_equity + ?", delta)).Error; err != nil {
		return false, err
	}
	vesting.VestedEquity = vesting.VestedEquity.Add(delta)

	// Coarse flag on the cap table; partial progress stays on EquityVesting.
	// Keyed on the holder, not contract_id: the entry's contract stamp is
	// overwritten by each newer accepted offer for the same holder.
	err := tx.Model(&models.CapTableEntry{}).
		Where("business_id = ? AND project_id = ? AND holder_type = ? AND holder_id = ?",
			vesting.BusinessId, vesting.ProjectId, models.HolderTypeUser, vesting.BeneficiaryId).
		Updates(map[string]interface{}{"is_vested": true, "vesting_date": today}).Error
	if err != nil {
		return false, err
	}

	e.audit.Record(utils.SetBusinessIdInContext(context.Background(), vesting.BusinessId),
		"equity_vesting", vesting.ID, models.AuditActionVest, 0, map[string]interface{}{
			"contract_id": vesting.ContractId,
			"amount":      delta,
			"cumulative":  cumulative,
		})

	return true, nil
}

// expirePendingOffers sweeps PENDING offers past their expiry into the
// explicit EXPIRED terminal state. Acceptance already rejects lazily on
// expires_at, so this is bookkeeping, not enforcement.
func (e *Engine) expirePendingOffers(tx *gorm.DB, today time.Time) (int, error) {
	var stale []*models.ContractOffer
	if err := tx.
		Where("status = ? AND expires_at < ?", models.ContractStatusPending, today).
		Find(&stale).Error; err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]int, 0, len(stale))
	for _, offer := range stale {
		ids = append(ids, offer.ID)
	}
	err := tx.Model(&models.ContractOffer{}).
		Where("id IN ? AND status = ?", ids, models.ContractStatusPending).
		Update("status", models.ContractStatusExpired).Error
	if err != nil {
		return 0, err
	}

	for _, offer := range stale {
		e.audit.Record(utils.SetBusinessIdInContext(context.Background(), offer.BusinessId),
			"contract_offer", offer.ID, models.AuditActionExpire, 0, map[string]interface{}{
				"expired_at": offer.ExpiresAt,
			})
	}
	return len(stale), nil
}
