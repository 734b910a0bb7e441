package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/staketax/internal/reward"
)

const (
	// First block of mainnet epoch 100: 2020-10-21 15:42:21 UTC.
	epoch100Start = 1603254141

	// An epoch lasts roughly 2.5 days.
	epochSeconds = 216000

	// Subtracted from the estimated start epoch so clock drift in the
	// estimate cannot skip early-January rewards (~35 days of slack).
	epochEstimateBuffer = 14

	lamportsPerSOL = 1_000_000_000
)

// EpochInfo is the subset of getEpochInfo the client needs.
type EpochInfo struct {
	Epoch        uint64 `json:"epoch"`
	SlotIndex    uint64 `json:"slotIndex"`
	SlotsInEpoch uint64 `json:"slotsInEpoch"`
}

func (c *Client) EpochInfo(ctx context.Context) (*EpochInfo, error) {
	raw, err := c.call(ctx, "getEpochInfo", []any{})
	if err != nil {
		return nil, err
	}
	var info EpochInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("solana: decode epoch info: %w", err)
	}
	return &info, nil
}

// InflationReward is one entry of a getInflationReward response.
type InflationReward struct {
	Epoch         uint64 `json:"epoch"`
	EffectiveSlot uint64 `json:"effectiveSlot"`
	Amount        uint64 `json:"amount"` // lamports
	PostBalance   uint64 `json:"postBalance"`
}

// InflationReward fetches the staking reward paid to address in one
// epoch. A nil result means the account earned nothing that epoch.
func (c *Client) InflationReward(ctx context.Context, address string, epoch uint64) (*InflationReward, error) {
	raw, err := c.call(ctx, "getInflationReward", []any{
		[]string{address},
		map[string]any{"epoch": epoch},
	})
	if err != nil {
		return nil, err
	}
	var entries []*InflationReward
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("solana: decode inflation reward: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// EpochTime estimates the wall-clock start of an epoch from the
// epoch-100 baseline.
func EpochTime(epoch uint64) int64 {
	return epoch100Start + (int64(epoch)-100)*epochSeconds
}

// epochRange estimates the first epoch that may contain rewards for the
// tax year and pairs it with the chain's current epoch.
func (c *Client) epochRange(ctx context.Context, year int) (start, end uint64, err error) {
	info, err := c.EpochInfo(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch epoch info: %w", err)
	}

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	est := (yearStart-epoch100Start)/epochSeconds + 100 - epochEstimateBuffer
	if est < 0 {
		est = 0
	}
	c.logger.Info("estimated epoch range", "start", est, "end", info.Epoch)
	return uint64(est), info.Epoch, nil
}

// StakingRewards fetches the inflation rewards address earned during
// year. One getInflationReward call is issued per candidate epoch; the
// calls fan out concurrently and the batch scheduler paces the actual
// RPC traffic. Reward timestamps are estimated from the epoch baseline,
// and rewards falling outside the year (the candidate range deliberately
// overshoots both ends) are dropped.
func (c *Client) StakingRewards(ctx context.Context, address string, year int) ([]reward.Reward, error) {
	start, end, err := c.epochRange(ctx, year)
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, fmt.Errorf("solana: epoch range [%d, %d] is empty", start, end)
	}

	entries := make([]*InflationReward, end-start+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range entries {
		epoch := start + uint64(i)
		i := i
		g.Go(func() error {
			r, err := c.InflationReward(gctx, address, epoch)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				// Reference behavior: a single bad epoch is logged and
				// skipped, not fatal for the whole range.
				c.logger.Error("fetch inflation reward", "epoch", epoch, "error", err)
				return nil
			}
			entries[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	yearEnd := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	var out []reward.Reward
	for i, e := range entries {
		if e == nil || e.Amount == 0 {
			continue
		}
		ts := EpochTime(start + uint64(i))
		if ts < yearStart || ts >= yearEnd {
			continue
		}
		out = append(out, reward.Reward{
			Amount:    float64(e.Amount) / lamportsPerSOL,
			Timestamp: ts,
		})
	}
	c.logger.Info("fetched staking rewards", "address", address, "rewards", len(out))
	return out, nil
}
