package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Manage document collections",
}

var collectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections and their document counts",
	RunE:  runCollectionList,
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Reserve a collection name",
	Long: `Collections exist implicitly: adding a document to a name creates it.
This command only validates the name so scripts can fail early.`,
	Args: cobra.ExactArgs(1),
	RunE: runCollectionCreate,
}

func init() {
	collectionCmd.AddCommand(collectionListCmd)
	collectionCmd.AddCommand(collectionCreateCmd)
	rootCmd.AddCommand(collectionCmd)
}

func runCollectionList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.Store.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No collections yet. Add documents with: ragspace add")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%-30s %d documents\n", info.Name, info.Documents)
	}
	return nil
}

func runCollectionCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == "" {
		return fmt.Errorf("collection name must not be empty")
	}
	fmt.Printf("Collection %q is ready; it will be created when the first document is added.\n", name)
	return nil
}
