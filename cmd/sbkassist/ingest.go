package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sbk2k1/sbk-assistant/internal/service"
)

func newIngestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "ingest local files into the vector index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ok := color.New(color.FgGreen, color.Bold).SprintFunc()
			failed := color.New(color.FgRed, color.Bold).SprintFunc()
			var firstErr error
			for _, path := range args {
				res, err := ingestFile(ctx, a.ingest, path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", failed("FAIL"), path, err)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d chunks, index size %d\n", ok("OK"), path, res.Chunks, res.Total)
			}
			return firstErr
		},
	}
}

func ingestFile(ctx context.Context, svc *service.IngestService, path string) (*service.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return svc.Ingest(ctx, service.IngestInput{Name: filepath.Base(path), Reader: f})
}
