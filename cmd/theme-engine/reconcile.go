package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/theme-engine/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark stale in-flight full-text fetches as failed",
	Long: `Reconcile sweeps the store for documents stuck in the fetching state
longer than the configured age (a crashed or killed fetch never finished)
and flips them to failed so the next run retries them cleanly.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().Duration("older-than", 0, "age threshold for stuck fetches (default 10m)")

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	age, _ := cmd.Flags().GetDuration("older-than")
	if age == 0 {
		age = fulltextConfig().StuckFetchAge
	}
	if age == 0 {
		age = 10 * time.Minute
	}

	st, err := store.NewStore(storeConfig())
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ReconcileStuck(context.Background(), time.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Printf("Reconciled %d stuck fetch(es) older than %s\n", n, age)
	return nil
}
