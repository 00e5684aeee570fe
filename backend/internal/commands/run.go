package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"promptcanvas/backend/internal/canvas"
	"promptcanvas/backend/internal/flow"
)

var (
	runEnhance   bool
	runGenerate  bool
	runStructure bool
	runAtomize   bool
	runSegment   bool
	runModel     string
	runAspect    string
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run AI actions on a prompt and print the canvas",
	Long: `Put the prompt on the root node, run the selected actions against it in
parallel and print the final canvas.

Examples:
  canvasctl run "a fox at dawn" --enhance
  canvasctl run "a fox at dawn" --generate --model flux-dev --aspect 16:9
  canvasctl run "a fox at dawn" --structure --segment`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runEnhance, "enhance", false, "Enhance the prompt")
	runCmd.Flags().BoolVar(&runGenerate, "generate", false, "Generate an image")
	runCmd.Flags().BoolVar(&runStructure, "structure", false, "Decompose into the standard structure")
	runCmd.Flags().BoolVar(&runAtomize, "atomize", false, "Break into atomic visual elements")
	runCmd.Flags().BoolVar(&runSegment, "segment", false, "Split into labelled segments")
	runCmd.Flags().StringVar(&runModel, "model", "", "Image model id (default: registry default)")
	runCmd.Flags().StringVar(&runAspect, "aspect", "", "Aspect ratio, e.g. 16:9")
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := args[0]

	o, err := newFlow()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	o.Store.UpdateNode(canvas.RootNodeID, canvas.Patch{"text": prompt})

	ctx := context.Background()
	if cmd != nil && cmd.Context() != nil {
		ctx = cmd.Context()
	}

	var actions []func(context.Context) error
	add := func(enabled bool, fn func(context.Context) (*canvas.Node, error)) {
		if enabled {
			actions = append(actions, func(ctx context.Context) error {
				_, err := fn(ctx)
				return err
			})
		}
	}
	add(runEnhance, func(ctx context.Context) (*canvas.Node, error) {
		return o.EnhancePrompt(ctx, canvas.RootNodeID, prompt)
	})
	add(runGenerate, func(ctx context.Context) (*canvas.Node, error) {
		return o.GenerateImage(ctx, canvas.RootNodeID, flow.ImageRequest{Prompt: prompt, Model: runModel, AspectRatio: runAspect})
	})
	add(runStructure, func(ctx context.Context) (*canvas.Node, error) {
		return o.StructurePrompt(ctx, canvas.RootNodeID, prompt)
	})
	add(runAtomize, func(ctx context.Context) (*canvas.Node, error) {
		return o.AtomizePrompt(ctx, canvas.RootNodeID, prompt)
	})
	add(runSegment, func(ctx context.Context) (*canvas.Node, error) {
		return o.SegmentPrompt(ctx, canvas.RootNodeID, prompt)
	})
	if len(actions) == 0 {
		return fmt.Errorf("no action selected (use --enhance, --generate, --structure, --atomize or --segment)")
	}

	// failed actions stay on the canvas as error nodes, so print it either way
	var g errgroup.Group
	for _, action := range actions {
		g.Go(func() error { return action(ctx) })
	}
	runErr := g.Wait()

	if err := writeJSON(out(cmd), o.Store.Snapshot()); err != nil {
		return err
	}
	return runErr
}
