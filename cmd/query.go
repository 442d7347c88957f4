package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryCollections []string
	queryTopK        int
	askStream        bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve relevant chunks without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed content, with citations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, askCmd} {
		c.Flags().StringSliceVar(&queryCollections, "collection", nil, "collections to search (all when empty)")
		c.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve (configured default when 0)")
	}
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(askCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	chunks, err := a.Retriever.Retrieve(ctx, question, queryCollections, queryTopK)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		fmt.Println("No relevant chunks found.")
		return nil
	}

	for i, c := range chunks {
		preview := c.Content
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		fmt.Printf("%d. %s (chunk %d, distance %.4f)\n   %s\n\n",
			i+1, c.DocumentTitle, c.Index, c.Distance, preview)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	chunks, err := a.Retriever.Retrieve(ctx, question, queryCollections, queryTopK)
	if err != nil {
		return err
	}

	quality := a.Assembler.EvaluateQuality(chunks)
	for _, issue := range quality.Issues {
		fmt.Fprintf(os.Stderr, "note: %s\n", issue)
	}

	contextText, sources := a.Assembler.Assemble(chunks)

	if askStream {
		_, err = a.Generator.GenerateStream(ctx, question, contextText, nil,
			func(ctx context.Context, delta string) error {
				fmt.Print(delta)
				return nil
			})
		fmt.Println()
	} else {
		var text string
		text, err = a.Generator.Generate(ctx, question, contextText, nil)
		if err == nil {
			fmt.Println(text)
		}
	}
	if err != nil {
		return err
	}

	if len(sources) > 0 {
		fmt.Println("\nSources:")
		for i, s := range sources {
			fmt.Printf("  %d. %s (%s)\n", i+1, s.Title, s.Location)
		}
	}
	return nil
}
