package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alicesolutions/equity_backend/config"
	"github.com/alicesolutions/equity_backend/models"
	"github.com/alicesolutions/equity_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const portfolioCacheTTL = 5 * time.Minute

type PortfolioInsight struct {
	UserId                  int             `json:"user_id"`
	TotalEquityOwned        decimal.Decimal `json:"total_equity_owned"`
	AverageEquityPerProject decimal.Decimal `json:"average_equity_per_project"`
	PortfolioDiversity      int             `json:"portfolio_diversity"`
	HighestEquityProject    string          `json:"highest_equity_project"`
	LowestEquityProject     string          `json:"lowest_equity_project"`
	EquityGrowthRate        decimal.Decimal `json:"equity_growth_rate"`
	RiskScore               decimal.Decimal `json:"risk_score"`
	OpportunityScore        decimal.Decimal `json:"opportunity_score"`
}

// GetPortfolioInsights summarizes a holder's position across projects.
// Read-only; cached briefly in redis, invalidated on accept.
func (e *Engine) GetPortfolioInsights(ctx context.Context, userId int) (*PortfolioInsight, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	cacheKey := portfolioCacheKey(businessId, userId)
	var cached PortfolioInsight
	if exists, err := config.GetRedisObject(cacheKey, &cached); err == nil && exists {
		return &cached, nil
	}

	entries, err := models.UserCapTableEntries(e.db, ctx, businessId, userId)
	if err != nil {
		return nil, err
	}

	insight := BuildPortfolioInsight(userId, entries, e.clock.Now())
	if err := config.SetRedisObject(cacheKey, insight, portfolioCacheTTL); err != nil {
		config.LogError(e.logger, "portfolioWorkflow.go", "GetPortfolioInsights", "cache write", cacheKey, err)
	}
	return insight, nil
}

// BuildPortfolioInsight is the pure aggregation over a holder's entries.
// Diversity counts the projects' explicit category field.
func BuildPortfolioInsight(userId int, entries []*models.CapTableEntry, now time.Time) *PortfolioInsight {
	insight := PortfolioInsight{
		UserId:                  userId,
		TotalEquityOwned:        decimal.Zero,
		AverageEquityPerProject: decimal.Zero,
		HighestEquityProject:    "None",
		LowestEquityProject:     "None",
		EquityGrowthRate:        decimal.Zero,
		RiskScore:               decimal.Zero,
		OpportunityScore:        decimal.Zero,
	}
	if len(entries) == 0 {
		return &insight
	}

	categories := map[string]bool{}
	var highest, lowest *models.CapTableEntry
	largest := decimal.Zero

	recentStart, _ := utils.GetLastDaysRange(now, 30)
	priorStart, _ := utils.GetLastDaysRange(recentStart, 30)
	recentTotal := decimal.Zero
	priorTotal := decimal.Zero
	activeProjects := 0

	for _, entry := range entries {
		insight.TotalEquityOwned = insight.TotalEquityOwned.Add(entry.Percentage)

		if entry.Project != nil && entry.Project.Category != "" {
			categories[entry.Project.Category] = true
		}
		if highest == nil || entry.Percentage.GreaterThan(highest.Percentage) {
			highest = entry
		}
		if lowest == nil || entry.Percentage.LessThan(lowest.Percentage) {
			lowest = entry
		}
		if entry.Percentage.GreaterThan(largest) {
			largest = entry.Percentage
		}

		if !entry.CreatedAt.Before(recentStart) {
			recentTotal = recentTotal.Add(entry.Percentage)
		} else if !entry.CreatedAt.Before(priorStart) {
			priorTotal = priorTotal.Add(entry.Percentage)
		}

		if entry.Project != nil && entry.Project.LastActivityAt != nil &&
			entry.Project.LastActivityAt.After(recentStart) {
			activeProjects++
		}
	}

	count := decimal.NewFromInt(int64(len(entries)))
	insight.AverageEquityPerProject = insight.TotalEquityOwned.Div(count)
	insight.PortfolioDiversity = len(categories)
	if highest != nil && highest.Project != nil {
		insight.HighestEquityProject = highest.Project.Name
	}
	if lowest != nil && lowest.Project != nil {
		insight.LowestEquityProject = lowest.Project.Name
	}

	// Percentage change between the last 30 days and the 30 before; zero when
	// the prior window is empty (no divide-by-zero).
	if priorTotal.IsPositive() {
		insight.EquityGrowthRate = recentTotal.Sub(priorTotal).
			Div(priorTotal).Mul(decimal.NewFromInt(100))
	}

	// Concentration ratio, guarded to zero for an empty position.
	if insight.TotalEquityOwned.IsPositive() {
		insight.RiskScore = largest.Div(insight.TotalEquityOwned)
	}

	insight.OpportunityScore = decimal.NewFromInt(int64(activeProjects)).
		Div(count).Mul(decimal.NewFromInt(100))

	return &insight
}

// updateUserPortfolioMetrics persists the denormalized snapshot onto the user
// row. The snapshot is a read cache and may go stale between recomputations;
// the cap table stays the source of truth. Called inside the accept
// transaction.
func (e *Engine) updateUserPortfolioMetrics(tx *gorm.DB, ctx context.Context, businessId string, userId int, now time.Time) error {
	entries, err := models.UserCapTableEntries(tx, ctx, businessId, userId)
	if err != nil {
		return err
	}
	insight := BuildPortfolioInsight(userId, entries, now)

	return tx.Model(&models.User{}).
		Where("id = ? AND business_id = ?", userId, businessId).
		Updates(map[string]interface{}{
			"total_equity_owned":         insight.TotalEquityOwned,
			"average_equity_per_project": insight.AverageEquityPerProject,
			"portfolio_diversity":        insight.PortfolioDiversity,
			"last_equity_earned_at":      now,
		}).Error
}

func portfolioCacheKey(businessId string, userId int) string {
	return fmt.Sprintf("portfolio:%s:%d", businessId, userId)
}

func (e *Engine) invalidatePortfolioCache(businessId string, userId int) {
	if err := config.DeleteRedisKeys(portfolioCacheKey(businessId, userId)); err != nil {
		config.LogError(e.logger, "portfolioWorkflow.go", "invalidatePortfolioCache", "redis del", userId, err)
	}
}
