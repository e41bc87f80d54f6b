package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/imgguard/internal/database"
	"github.com/nao1215/imgguard/internal/model"
)

// defaultHistoryLimit is the number of scan log rows shown by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scans",
		Long: `History lists the newest scan log entries. Scans are recorded only when
'imgguard scan' runs with --user (or a configured user).

Examples:
  # Show the last 20 scans
  imgguard history

  # Show every scan by alice as JSON
  imgguard history --user alice --limit 0 --json

  # Show database totals
  imgguard history --stats`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("user", "u", "", "Only show scans by this user")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of scans (0 for all)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().Bool("stats", false, "Show database totals instead of scans")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	userID, err := flags.GetString("user")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	stats, err := flags.GetBool("stats")
	if err != nil {
		return err
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if stats {
		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, st)
		}
		return writeStats(out, st)
	}

	logs, err := store.RecentScanLogs(cmd.Context(), userID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		if logs == nil {
			logs = []model.ScanLogRecord{}
		}
		return writeJSON(out, logs)
	}
	return writeHistoryTable(out, logs)
}

func writeStats(w io.Writer, st database.Stats) error {
	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"Metric", "Count"},
			Rows: [][]string{
				{"Malicious URLs", strconv.Itoa(st.MaliciousURLs)},
				{"Recorded scans", strconv.Itoa(st.ScanLogs)},
				{"Unsafe scans", strconv.Itoa(st.UnsafeScans)},
				{"Users", strconv.Itoa(st.Users)},
			},
		}).
		Build()
}

func writeHistoryTable(w io.Writer, logs []model.ScanLogRecord) error {
	if len(logs) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded.")
		return err
	}

	rows := make([][]string, len(logs))
	for i, l := range logs {
		verdict := "safe"
		if !l.IsSafe {
			verdict = fmt.Sprintf("unsafe (%d)", l.ThreatCount)
		}
		rows[i] = []string{
			l.Timestamp.Local().Format("2006-01-02 15:04:05"),
			l.UserID,
			l.ImageURL,
			verdict,
			strconv.FormatFloat(l.Confidence, 'f', 1, 64),
		}
	}
	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"Time", "User", "Image", "Verdict", "Confidence"},
			Rows:   rows,
		}).
		Build()
}
