package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"cs2-market-watcher/internal/app"
	"cs2-market-watcher/internal/rules"
)

var (
	watchAppID    int64
	watchName     string
	watchURL      string
	watchCurrency int
	watchFloatMin float64
	watchFloatMax float64
	watchSeeds    []int
	watchStickers []string
	watchResale   float64
	watchProfit   float64
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage monitored items",
}

var watchAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleSet := rules.RuleSet{
			SeedWhitelist:     watchSeeds,
			StickerAny:        watchStickers,
			TargetResaleCents: int64(math.Round(watchResale * 100)),
			MinProfitCents:    int64(math.Round(watchProfit * 100)),
		}
		if cmd.Flags().Changed("float-min") {
			ruleSet.FloatMin = &watchFloatMin
		}
		if cmd.Flags().Changed("float-max") {
			ruleSet.FloatMax = &watchFloatMax
		}

		return getApp().WatchAdd(cmd.Context(), app.WatchAddOptions{
			AppID:          watchAppID,
			MarketHashName: watchName,
			URL:            watchURL,
			CurrencyID:     watchCurrency,
			Rules:          ruleSet,
		})
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WatchList(cmd.Context())
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a watch and its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid watch id %q: %w", args[0], err)
		}
		return getApp().WatchRemove(cmd.Context(), id)
	},
}

func init() {
	watchAddCmd.Flags().Int64Var(&watchAppID, "appid", 730, "Steam app id")
	watchAddCmd.Flags().StringVar(&watchName, "name", "", "Market hash name of the item")
	watchAddCmd.Flags().StringVar(&watchURL, "url", "", "Listings page URL (informational)")
	watchAddCmd.Flags().IntVar(&watchCurrency, "currency", 0, "Steam currency id (defaults to config)")
	watchAddCmd.Flags().Float64Var(&watchFloatMin, "float-min", 0, "Minimum wear value (inclusive)")
	watchAddCmd.Flags().Float64Var(&watchFloatMax, "float-max", 0, "Maximum wear value (inclusive)")
	watchAddCmd.Flags().IntSliceVar(&watchSeeds, "seeds", nil, "Accepted paint seeds")
	watchAddCmd.Flags().StringSliceVar(&watchStickers, "stickers", nil, "Alert when any of these stickers is present")
	watchAddCmd.Flags().Float64Var(&watchResale, "resale", 0, "Expected resale price (USD)")
	watchAddCmd.Flags().Float64Var(&watchProfit, "min-profit", 0, "Minimum acceptable profit (USD)")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchRemoveCmd)
}
