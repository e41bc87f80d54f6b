package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgguard/internal/config"
	ilog "github.com/nao1215/imgguard/internal/log"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitThreats = 2
)

// ErrThreatsFound is returned by scan when at least one image is unsafe.
// The report has already been written, so Execute exits with exitThreats
// without printing it.
var ErrThreatsFound = errors.New("threats found")

// NewRootCmd creates the root command for imgguard.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imgguard",
		Short: "Detect threats hidden in images",
		Long: `imgguard downloads images and checks them for hidden threats:

- Links to known-malicious URLs in QR codes, metadata and pixel bit planes
- Steganography (LSB distribution, histogram anomalies, embedded files)
- Script and executable content hidden in image text

Known-malicious URLs are kept in a local SQLite database managed with
'imgguard blocklist'. Scans attributed with --user are recorded and can be
reviewed with 'imgguard history'.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .imgguard.yaml in current, XDG config or home directory)")
	cmd.PersistentFlags().String("db-dir", "",
		"Directory of the imgguard database (default: XDG data directory)")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewBlocklistCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, ErrThreatsFound):
		return exitThreats
	default:
		fmt.Fprintln(stderr, err)
		return exitError
	}
}

// newLogger builds the secure logger selected by the global flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose") //nolint:errcheck // persistent flag always exists
	logJSON, _ := cmd.Flags().GetBool("log-json") //nolint:errcheck // persistent flag always exists

	if logJSON {
		return ilog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	}
	return ilog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
}

// loadConfig resolves configuration from defaults, the .env file, the
// configuration file, IMGGUARD_* variables and the global flags.
// If the user explicitly names a config file that does not exist, it fails.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("db-dir") {
		if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose")  //nolint:errcheck // persistent flag always exists
	cfg.LogJSON, _ = cmd.Flags().GetBool("log-json") //nolint:errcheck // persistent flag always exists

	return cfg, nil
}
