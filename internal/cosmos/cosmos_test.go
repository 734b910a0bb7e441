package cosmos

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(ts, typ, denom, amount, totalPrice string) map[string]string {
	return map[string]string{
		"timestamp":  ts,
		"type":       typ,
		"denom":      denom,
		"amount":     amount,
		"totalPrice": totalPrice,
	}
}

func TestComputeStakingRewards(t *testing.T) {
	rows := []map[string]string{
		row("2023-03-01 12:00:00", "GetReward", "uatom", "1.5", "18.30"),
		row("2023-04-01 12:00:00", "Delegate", "uatom", "9", "0"),    // wrong type
		row("2023-05-01 12:00:00", "GetReward", "uosmo", "2", "1.2"), // wrong denom
		row("2022-05-01 12:00:00", "GetReward", "uatom", "3", "30"),  // wrong year
		row("2023-06-01 00:00:00", "GetReward", "uatom", "2.25", "25.11"),
	}

	rewards, err := ComputeStakingRewards(rows, 2023)
	require.NoError(t, err)
	require.Len(t, rewards, 2)

	assert.InDelta(t, 1.5, rewards[0].Amount, 1e-9)
	assert.Equal(t, int64(1677672000), rewards[0].Timestamp) // 2023-03-01T12:00:00Z
	assert.True(t, rewards[0].AmountUSD.Equal(decimal.RequireFromString("18.30")))
	assert.InDelta(t, 2.25, rewards[1].Amount, 1e-9)
}

func TestComputeStakingRewardsBadTimestamp(t *testing.T) {
	_, err := ComputeStakingRewards([]map[string]string{
		row("yesterday", "GetReward", "uatom", "1", "1"),
	}, 2023)
	assert.ErrorContains(t, err, "parse timestamp")
}

func TestComputeStakingRewardsBadAmount(t *testing.T) {
	_, err := ComputeStakingRewards([]map[string]string{
		row("2023-03-01 12:00:00", "GetReward", "uatom", "lots", "1"),
	}, 2023)
	assert.ErrorContains(t, err, "parse amount")
}
