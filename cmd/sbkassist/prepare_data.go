package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sbk2k1/sbk-assistant/internal/trainingdata"
)

func newPrepareDataCmd() *cobra.Command {
	var (
		input        string
		output       string
		format       string
		systemPrompt string
	)
	cmd := &cobra.Command{
		Use:   "prepare-data",
		Short: "convert prompt/response pairs into a fine-tuning dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(input)
			if err != nil {
				return err
			}
			defer in.Close()
			pairs, err := trainingdata.ReadPairs(in)
			if err != nil {
				return err
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			n, err := trainingdata.Write(out, format, pairs, trainingdata.Options{SystemPrompt: systemPrompt})
			if err != nil {
				return err
			}
			if output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d examples to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "data/prompts.json", "JSON array of prompt/response pairs")
	cmd.Flags().StringVar(&output, "output", "data/formatted_data.jsonl", "output file, - for stdout")
	cmd.Flags().StringVar(&format, "format", trainingdata.FormatAlpaca, "dataset format: "+strings.Join(trainingdata.Formats(), ", "))
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "system prompt for the llama3 format")
	return cmd
}
