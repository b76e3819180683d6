package cmd

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bandcoach/bandcoach/internal/audio"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Validate and publish exercise content",
}

var contentCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the exercise dataset and check that every media file resolves",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			cfg.Content.Dir = dir
		}
		catalog, err := loadCatalog(cfg.Content.Dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		sum := catalog.Summary()
		fmt.Fprintf(out, "Reading:    %d sets, %d questions\n", sum.ReadingSets, sum.ReadingQs)
		fmt.Fprintf(out, "Listening:  %d sets, %d questions\n", sum.ListeningSets, sum.ListeningQs)
		fmt.Fprintf(out, "Speaking:   %d tasks\n", sum.SpeakingTasks)
		fmt.Fprintf(out, "Writing:    %d tasks\n", sum.WritingTasks)

		media, err := audio.NewStorage(cfg.Storage)
		if err != nil {
			return fmt.Errorf("media storage: %w", err)
		}
		var missing []string
		refs := catalog.MediaRefs()
		for _, ref := range refs {
			if _, err := media.Resolve(cmd.Context(), ref); err != nil {
				missing = append(missing, ref)
				fmt.Fprintf(out, "  ✗ %s: %v\n", ref, err)
			}
		}
		fmt.Fprintf(out, "Media:      %d referenced, %d unresolved (%s backend)\n", len(refs), len(missing), cfg.Storage.Backend)
		if len(missing) > 0 {
			return fmt.Errorf("%d media file(s) unresolved", len(missing))
		}
		return nil
	},
}

var contentUploadCmd = &cobra.Command{
	Use:   "upload <media-dir>",
	Short: "Upload every referenced media file from a local directory to the object store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Storage.Backend != "minio" {
			return fmt.Errorf("upload needs storage.backend=minio, got %q", cfg.Storage.Backend)
		}
		catalog, err := loadCatalog(cfg.Content.Dir)
		if err != nil {
			return err
		}
		bucket, err := audio.NewMinioStorage(cfg.Storage)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		local := &audio.LocalStorage{Root: args[0]}
		uploaded := 0
		for _, ref := range catalog.MediaRefs() {
			m, err := local.Resolve(cmd.Context(), ref)
			if err != nil {
				return err
			}
			if m.Path == "" {
				fmt.Fprintf(out, "  skip %s (remote)\n", ref)
				continue
			}
			key := strings.TrimPrefix(filepath.ToSlash(ref), "/")
			if err := bucket.Upload(cmd.Context(), key, m.Path, mime.TypeByExtension(filepath.Ext(ref))); err != nil {
				return err
			}
			fmt.Fprintf(out, "  ✓ %s\n", key)
			uploaded++
		}
		fmt.Fprintf(out, "Uploaded %d file(s) to %s.\n", uploaded, cfg.Storage.Bucket)
		return nil
	},
}

func init() {
	contentCheckCmd.Flags().String("dir", "", "Dataset directory (overrides content.dir)")

	contentCmd.AddCommand(contentCheckCmd)
	contentCmd.AddCommand(contentUploadCmd)
}
