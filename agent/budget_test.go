package agent

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	x402 "github.com/x402rail/facilitator"
)

func TestBudgetMonotonicity(t *testing.T) {
	b, err := NewBudget(SpendingPolicy{}, nil)
	require.NoError(t, err)

	amounts := []int64{1000, 2500, 750}
	total := big.NewInt(0)
	for i, a := range amounts {
		amount := big.NewInt(a)
		total.Add(total, amount)
		b.RecordSpend(amount, "content", "example.com", int64(i))
	}

	require.Equal(t, total, b.TotalSpent())
	require.Len(t, b.History(), len(amounts))
}

func TestBudgetPerRequestLimit(t *testing.T) {
	b, err := NewBudget(SpendingPolicy{MaxPerRequest: "1.00"}, nil)
	require.NoError(t, err)

	xerr := b.AssertSpend(big.NewInt(2_000_000), "example.com")
	require.NotNil(t, xerr)
	require.Equal(t, x402.CodePerRequestLimit, xerr.Code)
}

func TestBudgetDomainNotAllowed(t *testing.T) {
	b, err := NewBudget(SpendingPolicy{AllowedDomains: []string{"good.com"}}, nil)
	require.NoError(t, err)

	xerr := b.AssertSpend(big.NewInt(100), "bad.com")
	require.NotNil(t, xerr)
	require.Equal(t, x402.CodeDomainNotAllowed, xerr.Code)

	require.Nil(t, b.AssertSpend(big.NewInt(100), "good.com"))
}

func TestBudgetWarningFiresOnceOnTransition(t *testing.T) {
	fired := 0
	b, err := NewBudget(SpendingPolicy{MaxTotal: "10.00"}, func(spent, max *big.Int) {
		fired++
	})
	require.NoError(t, err)

	b.RecordSpend(big.NewInt(7_000_000), "c1", "d", 1) // 70% of 10.00
	require.Equal(t, 0, fired)

	b.RecordSpend(big.NewInt(1_000_000), "c2", "d", 2) // 80% crossed
	require.Equal(t, 1, fired)

	b.RecordSpend(big.NewInt(500_000), "c3", "d", 3) // still above 80%
	require.Equal(t, 1, fired, "warning must fire once per crossing")
}

func TestBudgetTotalCapRejectsOverage(t *testing.T) {
	b, err := NewBudget(SpendingPolicy{MaxTotal: "1.00"}, nil)
	require.NoError(t, err)

	b.RecordSpend(big.NewInt(900_000), "c1", "d", 1)
	xerr := b.AssertSpend(big.NewInt(200_000), "d")
	require.NotNil(t, xerr)
	require.Equal(t, x402.CodeBudgetExceeded, xerr.Code)
}
