package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/staketax/internal/cosmos"
	"github.com/me/staketax/internal/csvutil"
	"github.com/me/staketax/internal/pricing"
	"github.com/me/staketax/internal/protocol"
	"github.com/me/staketax/internal/reward"
	"github.com/me/staketax/internal/solana"
	"github.com/me/staketax/internal/store"
)

func newCalcCmd() *cobra.Command {
	var (
		flagYear       int
		flagProtocol   string
		flagAddress    string
		flagRewardFile string
		flagNoPrices   bool
		flagOut        string
		flagCache      string
	)

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate staking income for a tax year",
		Long: "calc sums the staking rewards earned in a tax year, either by\n" +
			"querying the chain for an address or by reading an exported\n" +
			"reward CSV, and values each payout in USD.",
		RunE: func(cmd *cobra.Command, args []string) error {
			proto, err := protocol.Parse(flagProtocol)
			if err != nil {
				return err
			}
			if flagAddress == "" && flagRewardFile == "" {
				return fmt.Errorf("either --address or --reward-file is required")
			}
			if cmd.Flags().Changed("cache") {
				cfg.CachePath = flagCache
			}

			return runCalc(cmd.Context(), calcParams{
				year:       flagYear,
				protocol:   proto,
				address:    flagAddress,
				rewardFile: flagRewardFile,
				noPrices:   flagNoPrices,
				out:        flagOut,
			})
		},
	}

	cmd.Flags().IntVarP(&flagYear, "year", "y", time.Now().UTC().Year()-1, "Tax year")
	cmd.Flags().StringVarP(&flagProtocol, "protocol", "p", "solana", "Staking protocol (solana, cosmos)")
	cmd.Flags().StringVarP(&flagAddress, "address", "a", "", "Staking account address to query on chain")
	cmd.Flags().StringVarP(&flagRewardFile, "reward-file", "r", "", "Exported reward CSV to read instead of querying the chain")
	cmd.Flags().BoolVar(&flagNoPrices, "no-prices", false, "Skip USD valuation, report token amounts only")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "Write the priced rewards to a CSV file")
	cmd.Flags().StringVar(&flagCache, "cache", "", "SQLite price cache path (overrides config)")

	return cmd
}

type calcParams struct {
	year       int
	protocol   protocol.Protocol
	address    string
	rewardFile string
	noPrices   bool
	out        string
}

func runCalc(ctx context.Context, p calcParams) error {
	rewards, err := loadRewards(ctx, p)
	if err != nil {
		return err
	}
	if len(rewards) == 0 {
		fmt.Printf("No %s staking rewards found for %d.\n", p.protocol, p.year)
		return nil
	}

	priced := false
	if !p.noPrices {
		points, err := fetchPrices(ctx, p.protocol, p.year)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			logger.Warn("no price history available, reporting token amounts only",
				"protocol", p.protocol.String(), "year", p.year)
		} else {
			if err := reward.Price(rewards, points); err != nil {
				return err
			}
			priced = true
		}
	}

	tokens, usd := reward.Totals(rewards)
	fmt.Printf("%s staking income %d: %d rewards, %.9f tokens", p.protocol, p.year, len(rewards), tokens)
	if priced {
		fmt.Printf(", %s USD", usd.StringFixed(2))
	}
	fmt.Println()

	if p.out != "" {
		if err := exportRewards(p.out, rewards, priced); err != nil {
			return err
		}
	}
	return nil
}

// loadRewards reads rewards from the CSV export when one is given,
// otherwise queries the chain for the address.
func loadRewards(ctx context.Context, p calcParams) ([]reward.Reward, error) {
	if p.rewardFile != "" {
		rows, err := csvutil.Load(p.rewardFile, logger)
		if err != nil {
			return nil, err
		}
		switch p.protocol {
		case protocol.Solana:
			return solana.ComputeStakingRewards(rows, p.year)
		case protocol.Cosmos:
			return cosmos.ComputeStakingRewards(rows, p.year)
		}
		return nil, fmt.Errorf("no csv reader for protocol %s", p.protocol)
	}

	if p.protocol != protocol.Solana {
		return nil, fmt.Errorf("on-chain lookup is only supported for solana; use --reward-file for %s", p.protocol)
	}

	client, err := solana.NewClient(solana.Config{
		URL:           cfg.RPCURL,
		BatchSize:     cfg.BatchSize,
		Cooldown:      cfg.Cooldown.Std(),
		HTTPTimeout:   cfg.HTTPTimeout.Std(),
		RetryAttempts: cfg.RetryAttempts,
	}, logger)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.StakingRewards(ctx, p.address, p.year)
}

// fetchPrices returns the year's USD price history, consulting the
// SQLite cache first when one is configured.
func fetchPrices(ctx context.Context, proto protocol.Protocol, year int) ([]reward.PricePoint, error) {
	coin := proto.CoinGeckoID()

	var cache *store.PriceStore
	if cfg.CachePath != "" {
		var err error
		cache, err = store.Open(cfg.CachePath, logger)
		if err != nil {
			return nil, err
		}
		defer cache.Close()

		points, ok, err := cache.Prices(ctx, coin, year)
		if err != nil {
			return nil, err
		}
		if ok {
			return points, nil
		}
	}

	client := pricing.NewClient(pricing.Config{
		BaseURL:       cfg.CoinGeckoURL,
		HTTPTimeout:   cfg.HTTPTimeout.Std(),
		RetryAttempts: cfg.RetryAttempts,
	}, logger)

	points, err := client.MarketRange(ctx, coin, year)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.PutPrices(ctx, coin, year, points); err != nil {
			return nil, err
		}
	}
	return points, nil
}

func exportRewards(path string, rewards []reward.Reward, priced bool) error {
	headers := []string{"timestamp", "date", "amount"}
	if priced {
		headers = append(headers, "amount_usd")
	}

	rows := make([]map[string]string, 0, len(rewards))
	for _, r := range rewards {
		row := map[string]string{
			"timestamp": strconv.FormatInt(r.Timestamp, 10),
			"date":      time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02"),
			"amount":    strconv.FormatFloat(r.Amount, 'f', -1, 64),
		}
		if priced {
			row["amount_usd"] = r.AmountUSD.StringFixed(2)
		}
		rows = append(rows, row)
	}
	return csvutil.Save(path, headers, rows, logger)
}
