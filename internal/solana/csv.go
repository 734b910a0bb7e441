package solana

import (
	"fmt"
	"strconv"
	"time"

	"github.com/me/staketax/internal/reward"
)

// SolScan reward export column names. "Rewad Type" is not a mistake in
// this file; the upstream export really spells it that way.
const (
	colEffectiveTime = "Effective Time Unix"
	colRewardType    = "Rewad Type"
	colRewardAmount  = "Reward Amount"
)

// ComputeStakingRewards converts SolScan reward export rows to staking
// rewards for the given year.
func ComputeStakingRewards(rows []map[string]string, year int) ([]reward.Reward, error) {
	var out []reward.Reward
	for _, row := range rows {
		ts, err := strconv.ParseInt(row[colEffectiveTime], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("solana: parse effective time %q: %w", row[colEffectiveTime], err)
		}
		if time.Unix(ts, 0).UTC().Year() != year {
			continue
		}
		if row[colRewardType] != "Staking" {
			continue
		}
		amount, err := strconv.ParseFloat(row[colRewardAmount], 64)
		if err != nil {
			return nil, fmt.Errorf("solana: parse reward amount %q: %w", row[colRewardAmount], err)
		}
		out = append(out, reward.Reward{Amount: amount, Timestamp: ts})
	}
	return out, nil
}
