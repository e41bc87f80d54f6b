package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/imgguard/internal/database"
	"github.com/nao1215/imgguard/internal/model"
)

// NewBlocklistCmd creates the blocklist command and its subcommands.
func NewBlocklistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocklist",
		Short: "Manage the malicious URL database",
		Long: `Blocklist manages the known-malicious URLs that embedded links are checked against.

A link is malicious when it matches a stored URL exactly, or when its
hostname is the hostname of, or appears in, a stored URL.

Examples:
  # Add a URL
  imgguard blocklist add --severity high https://malware.example/payload

  # Import a feed (one URL per line, optional severity after a space)
  imgguard blocklist import --source urlhaus feed.txt

  # Check whether a URL would be flagged
  imgguard blocklist check https://malware.example/other`,
	}

	cmd.AddCommand(newBlocklistAddCmd())
	cmd.AddCommand(newBlocklistListCmd())
	cmd.AddCommand(newBlocklistImportCmd())
	cmd.AddCommand(newBlocklistCheckCmd())

	return cmd
}

// openStore opens the database selected by the configuration sources.
func openStore(cmd *cobra.Command) (*database.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newBlocklistAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Add known-malicious URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			severityName, err := cmd.Flags().GetString("severity")
			if err != nil {
				return err
			}
			severity, err := model.ParseSeverity(severityName)
			if err != nil {
				return err
			}
			source, err := cmd.Flags().GetString("source")
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, u := range args {
				err := store.AddMaliciousURL(cmd.Context(), model.MaliciousURLRecord{
					URL:      u,
					Severity: severity,
					Source:   source,
				})
				if err != nil {
					return fmt.Errorf("failed to add %s: %w", u, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d URL(s) to %s\n", len(args), store.Path())
			return nil
		},
	}

	cmd.Flags().StringP("severity", "s", model.SeverityHigh.String(), "Severity: low, medium or high")
	cmd.Flags().String("source", "cli", "Source recorded with the URLs")
	return cmd
}

func newBlocklistListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known-malicious URLs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListMaliciousURLs(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return writeBlocklistTable(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

// writeBlocklistTable renders records as a Markdown table.
func writeBlocklistTable(w io.Writer, records []model.MaliciousURLRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No malicious URLs stored.")
		return err
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.URL, r.Hostname, r.Severity.String(), r.Source, r.AddedAt.Format("2006-01-02 15:04:05")}
	}
	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"URL", "Hostname", "Severity", "Source", "Added"},
			Rows:   rows,
		}).
		Build()
}

func newBlocklistImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import known-malicious URLs from a file ('-' for stdin)",
		Long: `Import reads one URL per line. A severity (low, medium, high) may follow the
URL after whitespace; the default is high. Blank lines and lines starting
with '#' are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := cmd.Flags().GetString("source")
			if err != nil {
				return err
			}

			r := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ImportMaliciousURLs(cmd.Context(), r, source)
			if err != nil {
				return fmt.Errorf("import stopped after %d URL(s): %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d URL(s)\n", n)
			return nil
		},
	}

	cmd.Flags().String("source", "import", "Source recorded with the URLs")
	return cmd
}

func newBlocklistCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>...",
		Short: "Report whether URLs match the malicious URL database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			found := false
			for _, u := range args {
				malicious, err := store.IsKnownMalicious(cmd.Context(), u)
				if err != nil {
					return err
				}
				verdict := "clean"
				if malicious {
					verdict = "malicious"
					found = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", verdict, u)
			}
			if found {
				return ErrThreatsFound
			}
			return nil
		},
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

