package workflow

import (
	"github.com/alicesolutions/equity_backend/models"
	"github.com/shopspring/decimal"
)

var (
	equityFloor   = decimal.NewFromFloat(0.5)
	equityCeiling = decimal.NewFromInt(5)
	bonusCap      = decimal.NewFromInt(2)
	neutralRating = decimal.NewFromInt(3)
	impactWeight  = decimal.NewFromFloat(0.3)
	qualityWeight = decimal.NewFromFloat(0.2)
	collabWeight  = decimal.NewFromFloat(0.1)
)

// EquityInput are the contribution factors behind a recommended grant.
// Quality and Collaboration default to the neutral midpoint (3) when zero.
type EquityInput struct {
	EffortHours   int
	Impact        int
	Quality       int
	Collaboration int
	ProjectValue  decimal.Decimal
}

type EquityCalculation struct {
	BaseEquity         decimal.Decimal        `json:"base_equity"`
	EffortBonus        decimal.Decimal        `json:"effort_bonus"`
	ImpactBonus        decimal.Decimal        `json:"impact_bonus"`
	QualityBonus       decimal.Decimal        `json:"quality_bonus"`
	CollaborationBonus decimal.Decimal        `json:"collaboration_bonus"`
	TotalEquity        decimal.Decimal        `json:"total_equity"`
	SuggestedSchedule  models.VestingSchedule `json:"suggested_schedule"`
	EstimatedValue     decimal.Decimal        `json:"estimated_value"`
}

// CalculateOptimalEquity recommends an equity grant from contribution
// factors. Advisory only: offer creation takes the caller's figure, not this
// one. Deterministic, no side effects.
//
// The grant floors at 0.5% and ceils at 5%, with roughly 1% per 40 effort
// hours; ratings only contribute above the neutral midpoint.
func CalculateOptimalEquity(input EquityInput) EquityCalculation {
	quality := input.Quality
	if quality == 0 {
		quality = 3
	}
	collaboration := input.Collaboration
	if collaboration == 0 {
		collaboration = 3
	}

	effort := decimal.NewFromInt(int64(input.EffortHours))

	baseEquity := decimal.Max(equityFloor, effort.Div(decimal.NewFromInt(40)))
	effortBonus := decimal.Min(effort.Div(decimal.NewFromInt(100)), bonusCap)
	impactBonus := decimal.Max(decimal.Zero,
		decimal.NewFromInt(int64(input.Impact)).Sub(neutralRating).Mul(impactWeight))
	qualityBonus := decimal.Max(decimal.Zero,
		decimal.NewFromInt(int64(quality)).Sub(neutralRating).Mul(qualityWeight))
	collaborationBonus := decimal.Max(decimal.Zero,
		decimal.NewFromInt(int64(collaboration)).Sub(neutralRating).Mul(collabWeight))

	total := decimal.Min(equityCeiling,
		baseEquity.Add(effortBonus).Add(impactBonus).Add(qualityBonus).Add(collaborationBonus))

	schedule := models.VestingScheduleImmediate
	if input.EffortHours > 500 {
		schedule = models.VestingScheduleAnnual
	} else if input.EffortHours > 200 {
		schedule = models.VestingScheduleQuarterly
	}

	estimated := input.ProjectValue.Mul(total).Div(decimal.NewFromInt(100))

	return EquityCalculation{
		BaseEquity:         baseEquity,
		EffortBonus:        effortBonus,
		ImpactBonus:        impactBonus,
		QualityBonus:       qualityBonus,
		CollaborationBonus: collaborationBonus,
		TotalEquity:        total,
		SuggestedSchedule:  schedule,
		EstimatedValue:     estimated,
	}
}
