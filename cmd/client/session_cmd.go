package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lumensite/lumen/internal/lumensdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCancelCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show the state of an upload session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, _, err := newSDK(cmd)
			if err != nil {
				return err
			}
			defer sdk.Close()

			sess, err := sdk.Uploads.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(cmd, sess)
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel an upload session and discard its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sdk, _, err := newSDK(cmd)
			if err != nil {
				return err
			}
			defer sdk.Close()

			if err := sdk.Uploads.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s session %s canceled\n", green.Render("✓"), args[0])
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, sess *lumensdk.Session) {
	out := cmd.OutOrStdout()
	row := func(key, value string) {
		fmt.Fprintf(out, "%-10s %s\n", gray.Render(key), value)
	}

	row("session", sess.SessionID)
	row("file", sess.FileName)
	row("status", statusStyle(sess.Status))
	row("size", humanize.IBytes(uint64(sess.FileSize)))
	row("chunks", fmt.Sprintf("%d/%d of %s", sess.ReceivedChunks, sess.TotalChunks, humanize.IBytes(uint64(sess.ChunkSize))))
	if len(sess.MissingIndices) > 0 && sess.Status == lumensdk.StatusOpen {
		row("missing", formatIndices(sess.MissingIndices, 16))
	}
	if sess.Reason != "" {
		row("reason", sess.Reason)
	}
	if sess.Artifact != nil {
		row("url", cyan.Render(sess.Artifact.URL))
	}
	if sess.Status == lumensdk.StatusOpen {
		row("expires", fmt.Sprintf("%s (%s)", sess.ExpiresAt.Local().Format(time.DateTime), humanize.Time(sess.ExpiresAt)))
	}
}

func statusStyle(s lumensdk.SessionStatus) string {
	switch s {
	case lumensdk.StatusComplete:
		return green.Render(string(s))
	case lumensdk.StatusFailed, lumensdk.StatusExpired:
		return red.Render(string(s))
	default:
		return cyan.Render(string(s))
	}
}

// formatIndices lists at most limit indices
func formatIndices(indices []uint32, limit int) string {
	parts := make([]string, 0, min(len(indices), limit)+1)
	for i, idx := range indices {
		if i == limit {
			parts = append(parts, fmt.Sprintf("... %d more", len(indices)-limit))
			break
		}
		parts = append(parts, fmt.Sprint(idx))
	}
	return strings.Join(parts, ", ")
}
