package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benyue1978/ragspace/internal/app"
	"github.com/benyue1978/ragspace/internal/source"
	"github.com/benyue1978/ragspace/internal/store"
)

var addCollection string

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add local content to a collection",
}

var addFileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Add a single file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddFile,
}

var addDirCmd = &cobra.Command{
	Use:   "dir [path]",
	Short: "Add all supported files under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddDir,
}

func init() {
	addCmd.PersistentFlags().StringVar(&addCollection, "collection", "default", "target collection")
	addCmd.AddCommand(addFileCmd)
	addCmd.AddCommand(addDirCmd)
	rootCmd.AddCommand(addCmd)
}

func runAddFile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.Files.LoadFile(args[0])
	if err != nil {
		return err
	}
	doc, err := storeItem(ctx, a, *item, addCollection, "")
	if err != nil {
		return err
	}
	fmt.Printf("Added %s as document %s (status: pending)\n", item.Title, doc.ID)
	fmt.Println("Run 'ragspace process' to embed it.")
	return nil
}

func runAddDir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Files.LoadDirectory(args[0])
	if err != nil {
		return err
	}

	added := 0
	for _, item := range result.Items {
		if _, err := storeItem(ctx, a, item, addCollection, ""); err != nil {
			return fmt.Errorf("storing %s: %w", item.Title, err)
		}
		added++
	}

	fmt.Printf("Added %d documents to %q (%d skipped, %d failed)\n",
		added, addCollection, result.Skipped, result.Failed)
	if added > 0 {
		fmt.Println("Run 'ragspace process' to embed them.")
	}
	return nil
}

// storeItem persists a loaded item as a pending document.
func storeItem(ctx context.Context, a *app.App, item source.Item, collection, parentID string) (*store.Document, error) {
	doc := &store.Document{
		Collection: collection,
		Title:      item.Title,
		Content:    item.Content,
		SourceType: item.SourceType,
		SourceURL:  item.SourceURL,
		ParentID:   parentID,
	}
	if err := a.Store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
