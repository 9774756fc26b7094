package domain_test

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iho/playerbank/internal/domain"
)

func TestCurrency_FormatAmount(t *testing.T) {
	currency := domain.Currency{
		ID:           "gems",
		NameSingular: "gem",
		NamePlural:   "gems",
		Format:       "%amount% %name%",
		AllowDecimal: true,
	}

	tests := []struct {
		name   string
		amount decimal.Decimal
		want   string
	}{
		{"plural", decimal.NewFromInt(5), "5 gems"},
		{"singular", decimal.NewFromInt(1), "1 gem"},
		{"decimals truncated to cents", decimal.RequireFromString("3.14159"), "3.14 gems"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, currency.FormatAmount(tt.amount))
		})
	}

	t.Run("whole units when decimals disallowed", func(t *testing.T) {
		whole := currency
		whole.AllowDecimal = false
		assert.Equal(t, "3 gems", whole.FormatAmount(decimal.RequireFromString("3.9")))
	})
}

func TestStorage_WithdrawDeposit(t *testing.T) {
	cell := domain.Currency{ID: "crowns"}.NewStorage()

	assert.True(t, cell.Deposit(decimal.NewFromInt(10)))
	assert.True(t, cell.Withdraw(decimal.NewFromInt(10)))
	assert.False(t, cell.Withdraw(decimal.NewFromInt(1)), "withdraw below zero must fail")
	assert.True(t, cell.Amount().IsZero())
}

func TestData_JoinDestroysSource(t *testing.T) {
	crowns := domain.Currency{ID: "crowns"}
	gems := domain.Currency{ID: "gems"}

	dst := domain.NewData()
	dst.Cell(crowns).Set(decimal.NewFromInt(1))

	src := domain.NewData()
	src.Cell(gems).Set(decimal.NewFromInt(2))

	dst.Join(src)

	assert.True(t, dst.Amount(crowns).Equal(decimal.NewFromInt(1)))
	assert.True(t, dst.Amount(gems).Equal(decimal.NewFromInt(2)))
	assert.True(t, src.Amount(gems).IsZero(), "source must be destroyed after join")
}

func TestData_Destroy(t *testing.T) {
	crowns := domain.Currency{ID: "crowns"}

	data := domain.NewData()
	data.Cell(crowns).Set(decimal.NewFromInt(30))

	data.Destroy()

	assert.Empty(t, data.Snapshot(nil))
	assert.True(t, data.Amount(crowns).IsZero())
}

func TestData_ConcurrentJoin(t *testing.T) {
	dst := domain.NewData()

	var wg sync.WaitGroup
	wg.Add(8)
	for i := range 8 {
		go func() {
			defer wg.Done()
			src := domain.NewData()
			src.Cell(domain.Currency{ID: string(rune('a' + i))}).Set(decimal.NewFromInt(int64(i)))
			dst.Join(src)
		}()
	}
	wg.Wait()

	assert.Len(t, dst.Snapshot(nil), 8)
}

func TestDataFromBalances(t *testing.T) {
	crowns := domain.Currency{ID: "crowns", RemoteID: "sql-main"}
	resolve := func(id string) (domain.Currency, bool) {
		if id == "crowns" {
			return crowns, true
		}
		return domain.Currency{}, false
	}

	data := domain.DataFromBalances(map[string]decimal.Decimal{
		"crowns":  decimal.NewFromInt(7),
		"unknown": decimal.NewFromInt(9),
	}, resolve, nil)

	snapshot := data.Snapshot(nil)
	assert.Len(t, snapshot, 1, "unregistered currencies are skipped")
	assert.True(t, snapshot["crowns"].Equal(decimal.NewFromInt(7)))

	t.Run("keep predicate filters by remote", func(t *testing.T) {
		filtered := domain.DataFromBalances(map[string]decimal.Decimal{
			"crowns": decimal.NewFromInt(7),
		}, resolve, func(c domain.Currency) bool { return c.RemoteID == "other" })
		assert.Empty(t, filtered.Snapshot(nil))
	})
}
