package commission

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

// ShopCutResolver returns the shop cut percentage that applies to one
// mechanic. settings.Service implements it.
type ShopCutResolver interface {
	ShopCutPercentage(ctx context.Context, mechanicID string) (decimal.Decimal, error)
}

type Calculator struct {
	mechanics store.MechanicStore
	shopCut   ShopCutResolver
}

func NewCalculator(mechanics store.MechanicStore, shopCut ShopCutResolver) *Calculator {
	return &Calculator{mechanics: mechanics, shopCut: shopCut}
}

// Calculate computes each mechanic's commission against the whole job
// revenue with that mechanic's own shop cut. A mechanic whose lookup fails
// is logged and left out; the rest of the batch continues. A mechanic with
// no entry in splits gets the default split for its position.
func (c *Calculator) Calculate(ctx context.Context, mechanicIDs []string, totalRevenue decimal.Decimal, splits []domain.CommissionSplit) []domain.CommissionCalculation {
	byMechanic := make(map[string]decimal.Decimal, len(splits))
	for _, split := range splits {
		byMechanic[split.MechanicID] = split.Percentage
	}
	defaults := DefaultSplits(len(mechanicIDs))

	result := make([]domain.CommissionCalculation, 0, len(mechanicIDs))
	for i, id := range mechanicIDs {
		mechanic, err := c.mechanics.GetMechanic(ctx, id)
		if err != nil {
			log.Printf("[commission] WARN: skip mechanic %s: lookup failed: %v", id, err)
			continue
		}
		shopCut, err := c.shopCut.ShopCutPercentage(ctx, id)
		if err != nil {
			log.Printf("[commission] WARN: skip mechanic %s: shop cut lookup failed: %v", id, err)
			continue
		}
		workPct, ok := byMechanic[id]
		if !ok {
			workPct = decimal.NewFromInt(int64(defaults[i]))
		}
		result = append(result, Compute(*mechanic, totalRevenue, shopCut, workPct))
	}
	return result
}

// Compute is the per-mechanic formula:
// shop cut = revenue * cut/100, share = revenue - shop cut,
// commission = share * work/100.
func Compute(mechanic domain.Mechanic, totalRevenue, shopCutPct, workPct decimal.Decimal) domain.CommissionCalculation {
	shopCutAmount := totalRevenue.Mul(shopCutPct).Div(hundred)
	share := totalRevenue.Sub(shopCutAmount)
	return domain.CommissionCalculation{
		MechanicID:                   mechanic.ID,
		MechanicName:                 mechanic.Name,
		TotalRevenue:                 totalRevenue,
		ShopCutPercentage:            shopCutPct,
		ShopCutAmount:                shopCutAmount,
		MechanicShareAmount:          share,
		MechanicCommissionPercentage: workPct,
		FinalCommissionAmount:        share.Mul(workPct).Div(hundred),
	}
}

// Summarize totals shop cut and commission across calculations. Each shop
// cut is weighted by the mechanic's work percentage, so the total is a
// blended figure when mechanics carry different cuts.
func Summarize(calcs []domain.CommissionCalculation) domain.CommissionSummary {
	summary := domain.CommissionSummary{TotalShopCut: decimal.Zero, TotalCommission: decimal.Zero}
	for _, calc := range calcs {
		summary.TotalShopCut = summary.TotalShopCut.Add(calc.ShopCutAmount.Mul(calc.MechanicCommissionPercentage).Div(hundred))
		summary.TotalCommission = summary.TotalCommission.Add(calc.FinalCommissionAmount)
	}
	return summary
}
