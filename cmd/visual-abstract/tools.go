package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joelkehle/visual-abstract/internal/extract"
	"github.com/joelkehle/visual-abstract/internal/pipeline"
	"github.com/joelkehle/visual-abstract/internal/priority"
)

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <summary.txt|->",
		Short: "Print the locally extracted data and seed abstract for a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text []byte
			var err error
			if args[0] == "-" {
				text, err = io.ReadAll(cmd.InOrStdin())
			} else {
				text, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read summary: %w", err)
			}
			processed := extract.Extract(string(text))
			return printJSON(cmd, pipeline.Seed{Processed: processed, Abstract: extract.Seed(processed)})
		},
	}
}

func normalizeCmd() *cobra.Command {
	var current priority.Split
	var key string
	var value int

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Rebalance a priority split after one slider moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := priority.ParseKey(key)
			if err != nil {
				return err
			}
			next, err := priority.Normalize(current, k, value)
			if err != nil {
				return err
			}
			return printJSON(cmd, next)
		},
	}
	addSplitFlags(cmd, &current)
	cmd.Flags().StringVar(&key, "key", "", "Slider that moved (textual, graphical, symbolical)")
	cmd.Flags().IntVar(&value, "value", 0, "New value for the slider")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
