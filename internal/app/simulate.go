package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cs2-market-watcher/internal/alerting"
	"cs2-market-watcher/internal/rules"
)

// SimulateOptions 描述一次模拟评估的假想 listing。
type SimulateOptions struct {
	WatchID    int64
	PriceCents int64
	FloatValue *float64
	PaintSeed  *int
	Stickers   []string
	Send       bool
}

// SimulateAlert 按指定 watch 的规则评估一条假想 listing, 可选真实推送。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.PriceCents <= 0 {
		return errors.New("--price 必须大于 0")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	watch, err := store.GetWatch(ctx, opts.WatchID)
	if err != nil {
		return err
	}

	var enrichment *rules.Enrichment
	if opts.FloatValue != nil || opts.PaintSeed != nil || len(opts.Stickers) > 0 {
		enrichment = &rules.Enrichment{
			PaintSeed: opts.PaintSeed,
			Stickers:  opts.Stickers,
		}
		if opts.FloatValue != nil {
			enrichment.FloatValue = *opts.FloatValue
		}
	}

	verdict := rules.Evaluate(opts.PriceCents, enrichment, watch.Rules, a.Config.Fees.FeeModel())

	fmt.Fprintf(os.Stdout, "watch: %s (id=%d)\n", watch.MarketHashName, watch.ID)
	fmt.Fprintf(os.Stdout, "price: $%s\n", formatCents(opts.PriceCents))
	fmt.Fprintf(os.Stdout, "profit: $%s\n", formatCents(verdict.ProfitCents))
	if verdict.Eligible {
		fmt.Fprintln(os.Stdout, "verdict: eligible")
	} else {
		fmt.Fprintf(os.Stdout, "verdict: skipped (%s)\n", strings.Join(verdict.Reasons, "; "))
	}

	if !opts.Send || !verdict.Eligible {
		return nil
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	note := alerting.Notification{
		WatchName:   watch.MarketHashName,
		PriceCents:  opts.PriceCents,
		ProfitCents: verdict.ProfitCents,
		FloatValue:  opts.FloatValue,
		PaintSeed:   opts.PaintSeed,
		Stickers:    opts.Stickers,
		ListingURL:  watch.URL,
	}
	return notifier.Notify(ctx, note)
}
