package pricing

import (
	"leadwallet/internal/config"
	"leadwallet/internal/model"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlans() config.Plans {
	return config.Plans{
		MonthlyINR:   decimal.NewFromInt(399),
		MonthlyUSD:   decimal.NewFromInt(5),
		QuarterlyINR: decimal.NewFromInt(999),
		QuarterlyUSD: decimal.NewFromInt(12),
		YearlyINR:    decimal.NewFromInt(3599),
		YearlyUSD:    decimal.NewFromInt(45),
	}
}

func TestTiersPerCurrency(t *testing.T) {
	table := NewTable(testPlans())

	inr, err := table.Tiers(model.CurrencyINR)
	require.NoError(t, err)
	require.Len(t, inr, 4)
	assert.Equal(t, "₹250", inr[1].Label)
	assert.True(t, inr[1].Featured)

	usd, err := table.Tiers(model.CurrencyUSD)
	require.NoError(t, err)
	assert.Equal(t, "$50", usd[3].Label)
	assert.Equal(t, int64(2500), usd[3].Coins)

	_, err = table.Tiers(model.Currency("EUR"))
	assert.Error(t, err)
}

func TestDefaultAmount(t *testing.T) {
	table := NewTable(testPlans())

	inr, err := table.DefaultAmount(model.CurrencyINR)
	require.NoError(t, err)
	assert.True(t, inr.Equal(decimal.NewFromInt(250)))

	usd, err := table.DefaultAmount(model.CurrencyUSD)
	require.NoError(t, err)
	assert.True(t, usd.Equal(decimal.NewFromInt(10)))
}

func TestCoinsFor(t *testing.T) {
	table := NewTable(testPlans())

	tests := []struct {
		name     string
		currency model.Currency
		amount   decimal.Decimal
		coins    int64
		ok       bool
	}{
		{"inr featured tier", model.CurrencyINR, decimal.NewFromInt(250), 500, true},
		{"inr decimal form", model.CurrencyINR, decimal.RequireFromString("1000.00"), 2000, true},
		{"usd tier", model.CurrencyUSD, decimal.NewFromInt(20), 1000, true},
		{"amount from the other currency", model.CurrencyUSD, decimal.NewFromInt(250), 0, false},
		{"unknown currency", model.Currency("GBP"), decimal.NewFromInt(5), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coins, ok := table.CoinsFor(tt.currency, tt.amount)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.coins, coins)
		})
	}
}

func TestPlanPrice(t *testing.T) {
	table := NewTable(testPlans())

	price, err := table.PlanPrice(model.PlanMonthly, model.CurrencyINR)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(399)))

	_, err = table.PlanPrice(model.Plan("WEEKLY"), model.CurrencyINR)
	assert.Error(t, err)

	plans, err := table.Plans(model.CurrencyUSD)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, model.PlanYearly, plans[2].Plan)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(25000), MinorUnits(decimal.NewFromInt(250)))
	assert.Equal(t, int64(1099), MinorUnits(decimal.RequireFromString("10.99")))
	assert.Equal(t, int64(39900), MinorUnits(decimal.NewFromInt(399)))
}
