package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"promptcanvas/backend/internal/canvas"
)

var (
	gridCount   int
	gridColumns int
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Lay out empty prompt nodes in a grid and print the canvas",
	Args:  cobra.NoArgs,
	RunE:  runGrid,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the image models in the registry",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(gridCmd)
	rootCmd.AddCommand(modelsCmd)

	gridCmd.Flags().IntVar(&gridCount, "count", 6, "Number of prompt nodes besides the root")
	gridCmd.Flags().IntVar(&gridColumns, "columns", 3, "Grid columns")
}

func runGrid(cmd *cobra.Command, args []string) error {
	if gridCount < 0 {
		return fmt.Errorf("count must not be negative")
	}

	s := canvas.NewStore()
	for i := 1; i <= gridCount; i++ {
		s.AddNode(canvas.NewPromptNode(fmt.Sprintf("prompt-%d", i), ""), nil)
	}
	s.AutoLayout(gridColumns)

	return writeJSON(out(cmd), s.Snapshot())
}

func runModels(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	def := registry.DefaultModel().ID
	w := tabwriter.NewWriter(out(cmd), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tRATIOS\tIMAGE INPUT\tDEFAULT")
	for _, m := range registry.Models() {
		marker := ""
		if m.ID == def {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%t\t%s\n", m.ID, m.Provider, m.AspectRatios, m.SupportsImageInput, marker)
	}
	return w.Flush()
}

func out(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}
