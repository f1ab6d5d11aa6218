package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List models",
	Long:  "Without arguments, list configured model keys. With a provider name, ask that vendor which models it serves.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	router, err := newRouter(cmd)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 0 {
		for _, key := range router.ModelKeys() {
			m, err := router.Model(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, m.ID, m.Type, joinStrings(m.Abilities))
		}
		return nil
	}

	models, err := router.ListModels(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.DisplayName, m.Type)
	}
	return nil
}

func joinStrings[T ~string](xs []T) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = string(x)
	}
	return strings.Join(parts, ",")
}
