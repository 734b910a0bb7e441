// Package cosmos computes Cosmos staking rewards from MintScan CSV
// exports.
package cosmos

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/me/staketax/internal/reward"
)

const timeLayout = "2006-01-02 15:04:05"

// ComputeStakingRewards converts MintScan transaction rows to rewards for
// the given year. Only claimed rewards ("GetReward") denominated in uatom
// count; the exported totalPrice column already carries the USD value.
func ComputeStakingRewards(rows []map[string]string, year int) ([]reward.Reward, error) {
	var out []reward.Reward
	for _, row := range rows {
		ts, err := time.ParseInLocation(timeLayout, row["timestamp"], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("cosmos: parse timestamp %q: %w", row["timestamp"], err)
		}
		if ts.Year() != year {
			continue
		}
		if row["type"] != "GetReward" || row["denom"] != "uatom" {
			continue
		}
		amount, err := strconv.ParseFloat(row["amount"], 64)
		if err != nil {
			return nil, fmt.Errorf("cosmos: parse amount %q: %w", row["amount"], err)
		}
		usd, err := decimal.NewFromString(row["totalPrice"])
		if err != nil {
			return nil, fmt.Errorf("cosmos: parse totalPrice %q: %w", row["totalPrice"], err)
		}
		out = append(out, reward.Reward{
			Amount:    amount,
			Timestamp: ts.Unix(),
			AmountUSD: usd,
		})
	}
	return out, nil
}
