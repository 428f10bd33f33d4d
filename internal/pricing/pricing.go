// Package pricing holds the recharge tiers and subscription plan prices for
// every supported currency in a single table.
package pricing

import (
	"fmt"
	"leadwallet/internal/config"
	"leadwallet/internal/model"

	"github.com/shopspring/decimal"
)

type Tier struct {
	Amount   decimal.Decimal `json:"amount"`
	Coins    int64           `json:"coins"`
	Label    string          `json:"label"`
	Featured bool            `json:"featured"`
}

type PlanPrice struct {
	Plan   model.Plan      `json:"plan"`
	Amount decimal.Decimal `json:"amount"`
}

type currencyTable struct {
	tiers         []Tier
	defaultAmount decimal.Decimal
	plans         map[model.Plan]decimal.Decimal
}

type Table struct {
	byCurrency map[model.Currency]*currencyTable
}

var hundred = decimal.NewFromInt(100)

func tier(currency model.Currency, amount, coins int64, featured bool) Tier {
	return Tier{
		Amount:   decimal.NewFromInt(amount),
		Coins:    coins,
		Label:    fmt.Sprintf("%s%d", currency.Symbol(), amount),
		Featured: featured,
	}
}

func NewTable(plans config.Plans) *Table {
	return &Table{
		byCurrency: map[model.Currency]*currencyTable{
			model.CurrencyINR: {
				tiers: []Tier{
					tier(model.CurrencyINR, 100, 200, false),
					tier(model.CurrencyINR, 250, 500, true),
					tier(model.CurrencyINR, 500, 1000, false),
					tier(model.CurrencyINR, 1000, 2000, false),
				},
				defaultAmount: decimal.NewFromInt(250),
				plans: map[model.Plan]decimal.Decimal{
					model.PlanMonthly:   plans.MonthlyINR,
					model.PlanQuarterly: plans.QuarterlyINR,
					model.PlanYearly:    plans.YearlyINR,
				},
			},
			model.CurrencyUSD: {
				tiers: []Tier{
					tier(model.CurrencyUSD, 5, 200, false),
					tier(model.CurrencyUSD, 10, 500, true),
					tier(model.CurrencyUSD, 20, 1000, false),
					tier(model.CurrencyUSD, 50, 2500, false),
				},
				defaultAmount: decimal.NewFromInt(10),
				plans: map[model.Plan]decimal.Decimal{
					model.PlanMonthly:   plans.MonthlyUSD,
					model.PlanQuarterly: plans.QuarterlyUSD,
					model.PlanYearly:    plans.YearlyUSD,
				},
			},
		},
	}
}

func (t *Table) lookup(currency model.Currency) (*currencyTable, error) {
	ct, ok := t.byCurrency[currency]
	if !ok {
		return nil, fmt.Errorf("unsupported currency %q", currency)
	}
	return ct, nil
}

func (t *Table) Tiers(currency model.Currency) ([]Tier, error) {
	ct, err := t.lookup(currency)
	if err != nil {
		return nil, err
	}
	return append([]Tier(nil), ct.tiers...), nil
}

func (t *Table) DefaultAmount(currency model.Currency) (decimal.Decimal, error) {
	ct, err := t.lookup(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return ct.defaultAmount, nil
}

// CoinsFor returns the coins granted by the tier matching amount.
func (t *Table) CoinsFor(currency model.Currency, amount decimal.Decimal) (int64, bool) {
	ct, err := t.lookup(currency)
	if err != nil {
		return 0, false
	}
	for _, tr := range ct.tiers {
		if tr.Amount.Equal(amount) {
			return tr.Coins, true
		}
	}
	return 0, false
}

func (t *Table) PlanPrice(plan model.Plan, currency model.Currency) (decimal.Decimal, error) {
	ct, err := t.lookup(currency)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := ct.plans[plan]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown plan %q", plan)
	}
	return price, nil
}

func (t *Table) Plans(currency model.Currency) ([]PlanPrice, error) {
	ct, err := t.lookup(currency)
	if err != nil {
		return nil, err
	}
	out := make([]PlanPrice, 0, len(ct.plans))
	for _, p := range []model.Plan{model.PlanMonthly, model.PlanQuarterly, model.PlanYearly} {
		if price, ok := ct.plans[p]; ok {
			out = append(out, PlanPrice{Plan: p, Amount: price})
		}
	}
	return out, nil
}

// MinorUnits converts a major-unit amount to paise/cents: 250.00 -> 25000.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
