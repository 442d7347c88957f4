package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benyue1978/ragspace/internal/store"
)

var statusCollection string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show embedding status counts",
	RunE:  runStatus,
}

var retryCmd = &cobra.Command{
	Use:   "retry [doc-id]",
	Short: "Queue a failed document for re-embedding",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	statusCmd.Flags().StringVar(&statusCollection, "collection", "", "restrict to one collection")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(retryCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.Status.Summary(ctx, statusCollection)
	if err != nil {
		return err
	}

	total := 0
	for _, status := range []store.Status{store.StatusPending, store.StatusProcessing, store.StatusDone, store.StatusError} {
		fmt.Printf("%-12s %d\n", status, counts[status])
		total += counts[status]
	}
	fmt.Printf("%-12s %d\n", "total", total)

	if counts[store.StatusError] > 0 {
		fmt.Println("\nFailed documents:")
		docs, err := a.Store.ListDocuments(ctx, statusCollection, store.StatusError)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Printf("  %s  %s\n", doc.ID, doc.Title)
		}
	}
	return nil
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Status.Retry(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Document %s queued; run 'ragspace process' to embed it.\n", args[0])
	return nil
}
