// Package reward holds the staking reward model and the nearest-timestamp
// price matching used to value rewards in USD.
package reward

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Reward is a single staking payout.
type Reward struct {
	// Amount is the payout in native tokens.
	Amount float64

	// Timestamp is the payout time as a Unix timestamp in seconds.
	Timestamp int64

	// AmountUSD is the payout valued in USD at the nearest known price.
	AmountUSD decimal.Decimal
}

// PricePoint is one sample of the token's USD price.
type PricePoint struct {
	Timestamp int64 // Unix seconds
	USD       decimal.Decimal
}

// SortPoints orders points by timestamp ascending, as required by
// NearestPrice.
func SortPoints(points []PricePoint) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp < points[j].Timestamp
	})
}

// NearestPrice returns the point whose timestamp is closest to target.
// points must be sorted ascending; ties go to the earlier point.
// Returns nil when points is empty.
func NearestPrice(points []PricePoint, target int64) *PricePoint {
	if len(points) == 0 {
		return nil
	}
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp >= target
	})
	if idx == 0 {
		return &points[0]
	}
	if idx == len(points) {
		return &points[len(points)-1]
	}
	left, right := &points[idx-1], &points[idx]
	if target-left.Timestamp <= right.Timestamp-target {
		return left
	}
	return right
}

// Price values every reward at the price point nearest to its timestamp.
// The token amount is rounded to two decimals before multiplication.
// Fails when no price exists for a reward.
func Price(rewards []Reward, points []PricePoint) error {
	for i := range rewards {
		p := NearestPrice(points, rewards[i].Timestamp)
		if p == nil {
			return fmt.Errorf("reward: no price found for timestamp %d", rewards[i].Timestamp)
		}
		rewards[i].AmountUSD = p.USD.Mul(decimal.NewFromFloat(rewards[i].Amount).Round(2))
	}
	return nil
}

// Totals sums the token and USD amounts over all rewards.
func Totals(rewards []Reward) (tokens float64, usd decimal.Decimal) {
	for _, r := range rewards {
		tokens += r.Amount
		usd = usd.Add(r.AmountUSD)
	}
	return tokens, usd
}
