package workflow

import (
	"testing"

	"github.com/alicesolutions/equity_backend/models"
	"github.com/shopspring/decimal"
)

func TestCalculateOptimalEquity_FloorApplies(t *testing.T) {
	result := CalculateOptimalEquity(EquityInput{EffortHours: 0, Impact: 0})

	if !result.TotalEquity.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("expected floor 0.5, got %s", result.TotalEquity)
	}
	if result.SuggestedSchedule != models.VestingScheduleImmediate {
		t.Fatalf("expected IMMEDIATE for low effort, got %s", result.SuggestedSchedule)
	}
}

func TestCalculateOptimalEquity_CeilingApplies(t *testing.T) {
	result := CalculateOptimalEquity(EquityInput{
		EffortHours:   10000,
		Impact:        5,
		Quality:       5,
		Collaboration: 5,
	})

	if !result.TotalEquity.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected ceiling 5, got %s", result.TotalEquity)
	}
	if result.SuggestedSchedule != models.VestingScheduleAnnual {
		t.Fatalf("expected ANNUAL for high effort, got %s", result.SuggestedSchedule)
	}
}

func TestCalculateOptimalEquity_MidRangeComponents(t *testing.T) {
	// 120 effort hours: base = 120/40 = 3, effort bonus = 1.2,
	// impact 4 = +0.3, quality default (3) and collaboration default (3) = 0.
	result := CalculateOptimalEquity(EquityInput{EffortHours: 120, Impact: 4})

	if !result.BaseEquity.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("base: expected 3, got %s", result.BaseEquity)
	}
	if !result.EffortBonus.Equal(decimal.NewFromFloat(1.2)) {
		t.Fatalf("effort bonus: expected 1.2, got %s", result.EffortBonus)
	}
	if !result.ImpactBonus.Equal(decimal.NewFromFloat(0.3)) {
		t.Fatalf("impact bonus: expected 0.3, got %s", result.ImpactBonus)
	}
	if !result.QualityBonus.IsZero() || !result.CollaborationBonus.IsZero() {
		t.Fatalf("neutral defaults must contribute nothing, got %s / %s",
			result.QualityBonus, result.CollaborationBonus)
	}
	if !result.TotalEquity.Equal(decimal.NewFromFloat(4.5)) {
		t.Fatalf("total: expected 4.5, got %s", result.TotalEquity)
	}
}

func TestCalculateOptimalEquity_BelowNeutralRatingsIgnored(t *testing.T) {
	result := CalculateOptimalEquity(EquityInput{
		EffortHours:   40,
		Impact:        1,
		Quality:       2,
		Collaboration: 1,
	})

	if !result.ImpactBonus.IsZero() || !result.QualityBonus.IsZero() || !result.CollaborationBonus.IsZero() {
		t.Fatalf("ratings below neutral must not reduce the grant: %s / %s / %s",
			result.ImpactBonus, result.QualityBonus, result.CollaborationBonus)
	}
}

func TestCalculateOptimalEquity_ScheduleThresholds(t *testing.T) {
	cases := []struct {
		effort int
		want   models.VestingSchedule
	}{
		{0, models.VestingScheduleImmediate},
		{200, models.VestingScheduleImmediate},
		{201, models.VestingScheduleQuarterly},
		{500, models.VestingScheduleQuarterly},
		{501, models.VestingScheduleAnnual},
	}
	for _, tc := range cases {
		got := CalculateOptimalEquity(EquityInput{EffortHours: tc.effort}).SuggestedSchedule
		if got != tc.want {
			t.Fatalf("effort=%d: expected %s, got %s", tc.effort, tc.want, got)
		}
	}
}

func TestCalculateOptimalEquity_EstimatedValue(t *testing.T) {
	result := CalculateOptimalEquity(EquityInput{
		EffortHours:  120,
		Impact:       4,
		ProjectValue: decimal.NewFromInt(1000000),
	})
	// 4.5% of 1,000,000
	if !result.EstimatedValue.Equal(decimal.NewFromInt(45000)) {
		t.Fatalf("expected 45000, got %s", result.EstimatedValue)
	}
}
