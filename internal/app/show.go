package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cs2-market-watcher/internal/storage"
)

// Show prints recent listing snapshots, or recent alerts with --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Alerts {
		return showAlerts(ctx, store, opts.Limit)
	}
	return showSnapshots(ctx, store, opts.Limit)
}

func showSnapshots(ctx context.Context, store *storage.Store, limit int) error {
	snapshots, err := store.ListRecentSnapshots(ctx, limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tWatch\tListing\tPrice\tFloat\tSeed\tAlerted")

	for _, snapshot := range snapshots {
		floatStr, seedStr := "-", "-"
		if snapshot.Enrichment != nil {
			floatStr = fmt.Sprintf("%.6f", snapshot.Enrichment.FloatValue)
			if snapshot.Enrichment.PaintSeed != nil {
				seedStr = fmt.Sprintf("%d", *snapshot.Enrichment.PaintSeed)
			}
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t$%s\t%s\t%s\t%t\n",
			snapshot.FetchedAt.UTC().Format(time.RFC3339),
			snapshot.WatchID,
			snapshot.ListingKey,
			formatCents(snapshot.PriceCents),
			floatStr,
			seedStr,
			snapshot.Alerted,
		)
	}

	writer.Flush()
	return nil
}

func showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tSnapshot\tPayload")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\n",
			alert.SentAt.UTC().Format(time.RFC3339),
			alert.SnapshotID,
			sanitizeInline(string(alert.Payload)),
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
