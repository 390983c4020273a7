package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/lumensite/lumen/internal/lumensdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newUploadCmd())
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files to the Lumen server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			resume, _ := cmd.Flags().GetBool("resume")
			checksum, _ := cmd.Flags().GetBool("checksum")
			if name != "" && len(args) > 1 {
				return errors.New("--name can only be used with a single file")
			}

			sdk, cfg, err := newSDK(cmd)
			if err != nil {
				return err
			}
			defer sdk.Close()

			out := cmd.OutOrStdout()
			interactive := isTerminal(out)

			var errs []error
			for _, path := range args {
				params := &lumensdk.UploadParams{
					FilePath:      path,
					FileName:      name,
					ChunkSize:     cfg.ChunkSize,
					MaxConcurrent: cfg.MaxConcurrent,
					Checksum:      checksum,
				}
				if resume {
					params.ResumeDir = cfg.ResumeDir
				}

				artifact, err := uploadFile(cmd, sdk, params, interactive)
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", red.Render("✗"), path, err)
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					if cmd.Context().Err() != nil {
						break
					}
					continue
				}
				fmt.Fprintf(out, "%s %s %s %s\n", green.Render("✓"), path, gray.Render("→"), cyan.Render(artifact.URL))
			}

			if len(errs) > 0 {
				return fmt.Errorf("%d of %d uploads failed: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		},
	}

	cmd.Flags().StringP("name", "n", "", "Name to publish the file under, defaults to the file's base name")
	cmd.Flags().String("chunk-size", "", "Chunk size, e.g. 5MiB (default from config)")
	cmd.Flags().IntP("concurrency", "j", 0, "Chunks in flight at once (default from config)")
	cmd.Flags().Bool("resume", false, "Keep progress on disk so an interrupted upload can be resumed")
	cmd.Flags().Bool("checksum", false, "Send a SHA-256 checksum of the whole file for the server to verify")
	return cmd
}

func uploadFile(cmd *cobra.Command, sdk *lumensdk.LumenSDK, params *lumensdk.UploadParams, interactive bool) (*lumensdk.Artifact, error) {
	task, err := sdk.Uploads.Start(cmd.Context(), params)
	if err != nil {
		return nil, err
	}

	name := params.FileName
	if name == "" {
		name = filepath.Base(params.FilePath)
	}

	if interactive {
		return runUploadTUI(cmd.OutOrStdout(), task, name)
	}
	return runUploadPlain(task, name)
}

// runUploadPlain logs progress lines, for pipes and CI logs
func runUploadPlain(task *lumensdk.UploadTask, name string) (*lumensdk.Artifact, error) {
	last := -1
	for p := range task.Progress() {
		if p.Percent == last {
			continue
		}
		last = p.Percent
		slog.Info("upload progress", "file", name, "percent", p.Percent,
			"chunks", fmt.Sprintf("%d/%d", p.CompletedChunks, p.TotalChunks),
			"sent", humanize.IBytes(uint64(p.BytesSent)), "total", humanize.IBytes(uint64(p.TotalBytes)))
	}
	return task.Wait()
}

func runUploadTUI(out io.Writer, task *lumensdk.UploadTask, name string) (*lumensdk.Artifact, error) {
	final, err := tea.NewProgram(newUploadModel(task, name), tea.WithOutput(out)).Run()
	if err != nil {
		task.Cancel()
		task.Wait()
		return nil, fmt.Errorf("progress ui: %w", err)
	}
	m := final.(uploadModel)
	return m.artifact, m.err
}
