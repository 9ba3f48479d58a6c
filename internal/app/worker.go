package app

import (
	"context"
	"fmt"
	"os"
)

// WorkerSetEnabled flips the shared pause toggle read by running workers.
func (a *App) WorkerSetEnabled(ctx context.Context, enabled bool) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SetWorkerEnabled(ctx, enabled); err != nil {
		return err
	}
	if enabled {
		fmt.Fprintln(os.Stdout, "worker enabled")
	} else {
		fmt.Fprintln(os.Stdout, "worker disabled")
	}
	return nil
}

// WorkerStatus prints the current pause toggle state.
func (a *App) WorkerStatus(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	enabled, err := store.WorkerEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		fmt.Fprintln(os.Stdout, "worker: enabled")
	} else {
		fmt.Fprintln(os.Stdout, "worker: disabled")
	}
	return nil
}
