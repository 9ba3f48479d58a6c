package cli

import (
	"math"

	"github.com/spf13/cobra"

	"cs2-market-watcher/internal/app"
)

var (
	simulateWatchID  int64
	simulatePrice    float64
	simulateFloat    float64
	simulateSeed     int
	simulateStickers []string
	simulateSend     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "按 watch 规则评估一条假想 listing",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			WatchID:    simulateWatchID,
			PriceCents: int64(math.Round(simulatePrice * 100)),
			Stickers:   simulateStickers,
			Send:       simulateSend,
		}
		if cmd.Flags().Changed("float") {
			opts.FloatValue = &simulateFloat
		}
		if cmd.Flags().Changed("seed") {
			opts.PaintSeed = &simulateSeed
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Int64Var(&simulateWatchID, "watch", 0, "Watch id 作为规则来源")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "假想挂单价格 (美元)")
	simulateCmd.Flags().Float64Var(&simulateFloat, "float", 0, "假想磨损值")
	simulateCmd.Flags().IntVar(&simulateSeed, "seed", 0, "假想 paint seed")
	simulateCmd.Flags().StringSliceVar(&simulateStickers, "stickers", nil, "假想贴纸名称列表")
	simulateCmd.Flags().BoolVar(&simulateSend, "send", false, "合格时真实推送告警")
}
