package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	llm "github.com/lizzyg/llmbridge"
	"github.com/lizzyg/llmbridge/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "llmctl",
	Short:         "Talk to configured Claude and Gemini models",
	Long:          "llmctl lists vendor models, chats with configured model keys and generates images through llmbridge.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: $LLM_CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log requests to stderr")
}

func newRouter(cmd *cobra.Command) (*llm.Router, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var (
		cfg *config.LLMConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return llm.NewRouter(*cfg, llm.WithLogger(logger)), nil
}
