package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cs2-market-watcher/internal/rules"
	"cs2-market-watcher/internal/storage"
)

// WatchAddOptions describe a new monitored item.
type WatchAddOptions struct {
	AppID          int64
	MarketHashName string
	URL            string
	CurrencyID     int
	Rules          rules.RuleSet
}

// WatchAdd registers a new watch.
func (a *App) WatchAdd(ctx context.Context, opts WatchAddOptions) error {
	if opts.MarketHashName == "" {
		return fmt.Errorf("--name is required")
	}
	if opts.AppID <= 0 {
		opts.AppID = 730
	}
	if opts.CurrencyID <= 0 {
		opts.CurrencyID = a.Config.Steam.CurrencyID
	}
	if err := opts.Rules.Validate(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	watch, err := store.CreateWatch(ctx, storage.Watch{
		AppID:          opts.AppID,
		MarketHashName: opts.MarketHashName,
		URL:            opts.URL,
		CurrencyID:     opts.CurrencyID,
		Rules:          opts.Rules,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "watch %d created: %s\n", watch.ID, watch.MarketHashName)
	return nil
}

// WatchList prints all registered watches.
func (a *App) WatchList(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	watches, err := store.ListWatches(ctx)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		fmt.Fprintln(os.Stdout, "no watches configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tItem\tResale\tMin Profit\tRules\tCreated (UTC)")
	for _, watch := range watches {
		fmt.Fprintf(
			writer,
			"%d\t%s\t$%s\t$%s\t%s\t%s\n",
			watch.ID,
			watch.MarketHashName,
			formatCents(watch.Rules.TargetResaleCents),
			formatCents(watch.Rules.MinProfitCents),
			summarizeRules(watch.Rules),
			watch.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()
	return nil
}

// WatchRemove deletes a watch and its history.
func (a *App) WatchRemove(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.DeleteWatch(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "watch %d removed\n", id)
	return nil
}

func summarizeRules(rs rules.RuleSet) string {
	parts := make([]string, 0, 3)
	if rs.FloatMin != nil || rs.FloatMax != nil {
		lo, hi := "0", "1"
		if rs.FloatMin != nil {
			lo = fmt.Sprintf("%.4f", *rs.FloatMin)
		}
		if rs.FloatMax != nil {
			hi = fmt.Sprintf("%.4f", *rs.FloatMax)
		}
		parts = append(parts, fmt.Sprintf("float[%s,%s]", lo, hi))
	}
	if len(rs.SeedWhitelist) > 0 {
		parts = append(parts, fmt.Sprintf("seeds(%d)", len(rs.SeedWhitelist)))
	}
	if len(rs.StickerAny) > 0 {
		parts = append(parts, fmt.Sprintf("stickers(%d)", len(rs.StickerAny)))
	}
	if len(parts) == 0 {
		return "price-only"
	}
	return strings.Join(parts, " ")
}
