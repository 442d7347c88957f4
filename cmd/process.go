package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benyue1978/ragspace/internal/store"
)

var (
	processCollection string
	processAll        bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Embed pending documents",
	Long: `Chunks and embeds every pending document, storing the vectors for
retrieval. With --reprocess, done and failed documents are reset and
embedded again.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processCollection, "collection", "", "restrict to one collection")
	processCmd.Flags().BoolVar(&processAll, "reprocess", false, "re-embed done and failed documents too")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if processAll {
		if processCollection == "" {
			return fmt.Errorf("--reprocess requires --collection")
		}
		n, err := a.Status.MarkForReprocessing(ctx, processCollection)
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d documents for reprocessing\n", n)
	}

	result, err := a.Worker.BatchProcess(ctx, processCollection, []store.Status{store.StatusPending})
	if err != nil {
		return err
	}

	fmt.Printf("Processed: %d, failed: %d, skipped: %d\n",
		result.Processed, result.Failed, result.Skipped)
	if result.Failed > 0 {
		fmt.Println("Inspect failures with 'ragspace status' and retry with 'ragspace retry <doc-id>'.")
	}
	return nil
}
