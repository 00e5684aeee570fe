// Package commands implements canvasctl, a one-shot canvas driver.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"promptcanvas/backend/internal/adapter"
	"promptcanvas/backend/internal/flow"
	"promptcanvas/backend/internal/models"
	"promptcanvas/backend/pkg/config"
	"promptcanvas/backend/pkg/logger"
)

var (
	registryFile string
	compact      bool
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "canvasctl",
	Short: "Drive a prompt canvas from the terminal",
	Long: `canvasctl builds a canvas in memory, runs AI actions on it and prints the
resulting canvas as JSON.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Init("production"); err != nil {
			return err
		}
		return logger.SetLevel(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryFile, "registry", "", "Model registry YAML file (default: built-in models)")
	rootCmd.PersistentFlags().BoolVar(&compact, "compact", false, "Print compact JSON even on a terminal")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// Execute runs the root command
func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func loadRegistry() (*models.Registry, error) {
	if registryFile == "" {
		return models.Default(), nil
	}
	return models.LoadFile(registryFile)
}

// newFlow wires an orchestrator from the environment. Tests swap it out.
var newFlow = func() (*flow.Orchestrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	llm := adapter.NewLLMAdapter(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	llm.SetVisionModel(cfg.VisionModelID)
	generator, err := adapter.NewImageGenerator(cfg)
	if err != nil {
		return nil, err
	}

	return flow.New(flow.Deps{
		Registry:  registry,
		Enhancer:  llm,
		Generator: generator,
		Describer: llm,
		Analyzer:  llm,
	}, flow.WithTimeout(cfg.OperationTimeout)), nil
}

// writeJSON indents when out is an interactive terminal
func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	if f, ok := out.(*os.File); ok && !compact && term.IsTerminal(int(f.Fd())) {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
