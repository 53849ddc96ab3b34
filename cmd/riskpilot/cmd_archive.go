package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/riskpilot/internal/di"
)

var archiveList bool

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload a compressed ledger snapshot to the archive bucket",
	Long: `Snapshot the ledger, upload it gzip-compressed to the S3-compatible
bucket configured by ARCHIVE_* and delete archives older than
ARCHIVE_RETENTION_DAYS (the newest three are always kept).

Examples:
  riskpilot archive
  riskpilot archive --list`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().BoolVar(&archiveList, "list", false, "List existing archives instead of uploading")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled() {
		return errors.New("archiving is disabled: ARCHIVE_BUCKET is not set")
	}

	ctx := context.Background()
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	out := cmd.OutOrStdout()
	if archiveList {
		archives, err := container.Archive.ListArchives(ctx)
		if err != nil {
			return err
		}
		for _, a := range archives {
			fmt.Fprintf(out, "%s  %10d bytes  %6dh old\n", a.Key, a.SizeBytes, a.AgeHours)
		}
		return nil
	}

	result, err := container.Archive.Archive(ctx)
	if err != nil {
		return err
	}
	deleted, err := container.Archive.Rotate(ctx)
	if err != nil {
		return fmt.Errorf("archive uploaded but rotation failed: %w", err)
	}

	fmt.Fprintf(out, "Uploaded %s (%d bytes, sha256 %s), %d old archives deleted\n",
		result.Key, result.SizeBytes, result.Checksum, deleted)
	return nil
}
