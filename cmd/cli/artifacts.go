package main

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lakewatch/thermal-service/internal/storage"
)

var artifactsDate string

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <feature-id>",
	Short: "List stored artifacts of a feature",
	Example: `  thermal-service artifacts Lake_Tahoe
  thermal-service artifacts Lake_Tahoe --date 2024015123456`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifacts,
}

func init() {
	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.Flags().StringVar(&artifactsDate, "date", "", "Only artifacts of this acquisition timestamp (YYYYDDDHHMMSS)")
}

func runArtifacts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := collectArtifacts(ctx, a.Objects, storage.FeaturePrefix(a.Config.Storage.CollectionPrefix, args[0]), artifactsDate)
	if err != nil {
		return err
	}
	renderArtifacts(cmd.OutOrStdout(), infos)
	return nil
}

func collectArtifacts(ctx context.Context, objects storage.Storage, prefix, date string) ([]storage.ObjectInfo, error) {
	keys, err := objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]storage.ObjectInfo, 0, len(keys))
	for _, key := range keys {
		if date != "" && !strings.Contains(key, "_"+date+"_") {
			continue
		}
		info, err := objects.Stat(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func renderArtifacts(w io.Writer, infos []storage.ObjectInfo) {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		sum := info.Checksum
		if len(sum) > 12 {
			sum = sum[:12]
		}
		written := "-"
		if info.Metadata != nil {
			written = formatTime(&info.Metadata.WrittenAt)
		}
		rows = append(rows, []string{info.Key, strconv.FormatInt(info.Size, 10), info.ContentType, sum, written})
	}
	renderTable(w, []string{"KEY", "BYTES", "TYPE", "SHA256", "WRITTEN"}, rows)
}
