package commission

import (
	"github.com/shopspring/decimal"

	"github.com/eaidavid/sistema-sub001/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// Evaluate applies the commission rules of a house to a single event and
// returns the line items it earns. It is a pure function: no I/O, no
// mutation of the house, identical inputs always yield identical output.
//
// The CPA and RevShare rules are applied independently; a Hybrid house
// can in principle earn both, but the qualifying event-type sets are
// disjoint so a single event never produces more than one item per rule.
func Evaluate(house *models.House, eventType models.EventType, amount decimal.Decimal) []models.CommissionLineItem {
	var items []models.CommissionLineItem

	if cpaApplies(house.CommissionType, eventType) {
		rate := house.CommissionValue
		if house.CommissionType == models.CommissionTypeHybrid {
			rate = resolveRate(house.CPAValue, house.CommissionValue)
		}
		items = append(items, models.CommissionLineItem{
			Kind:  models.CommissionTypeCPA,
			Value: rate,
		})
	}

	if revShareApplies(house.CommissionType, eventType, amount) {
		pct := house.CommissionValue
		if house.CommissionType == models.CommissionTypeHybrid {
			pct = resolveRate(house.RevShareValue, house.CommissionValue)
		}
		value := amount.Mul(pct).Div(oneHundred)
		items = append(items, models.CommissionLineItem{
			Kind:       models.CommissionTypeRevShare,
			Value:      value,
			Percentage: &pct,
		})
	}

	return items
}

// Total sums line-item values without intermediate rounding.
func Total(items []models.CommissionLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Value)
	}
	return total
}

// cpaApplies gates the flat-fee rule: acquisition events only, and only
// for houses that carry a CPA component. Unknown commission types fall
// through to the zero-yield default.
func cpaApplies(ct models.CommissionType, et models.EventType) bool {
	switch et {
	case models.EventTypeRegistration, models.EventTypeFirstDeposit:
	default:
		return false
	}

	switch ct {
	case models.CommissionTypeCPA, models.CommissionTypeHybrid:
		return true
	case models.CommissionTypeRevShare:
		return false
	default:
		return false
	}
}

// revShareApplies gates the percentage rule: monetary events with a
// positive amount, for houses that carry a RevShare component.
func revShareApplies(ct models.CommissionType, et models.EventType, amount decimal.Decimal) bool {
	switch et {
	case models.EventTypeDeposit, models.EventTypeProfit:
	default:
		return false
	}

	if !amount.IsPositive() {
		return false
	}

	switch ct {
	case models.CommissionTypeRevShare, models.CommissionTypeHybrid:
		return true
	case models.CommissionTypeCPA:
		return false
	default:
		return false
	}
}

// resolveRate picks the hybrid sub-model rate: the specific column when
// it is present, the house-level value otherwise. A stored zero is a
// valid rate and is never treated as absent.
func resolveRate(specific decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if specific.Valid {
		return specific.Decimal
	}
	return fallback
}
