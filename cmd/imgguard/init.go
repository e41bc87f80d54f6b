package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/imgguard/internal/config"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new imgguard configuration file",
		Long: `Initialize creates a new .imgguard.yaml configuration file in the current directory.

The generated file documents every option with its default value:
- Download and analysis timeouts, batch size and maximum image size
- Scan categories
- Blocklist entries added to the database before each scan

Examples:
  # Create .imgguard.yaml in current directory
  imgguard init

  # Create config file at a specific path
  imgguard init -o ~/.config/imgguard/config.yaml

  # Force overwrite existing file
  imgguard init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if err := config.WriteTemplate(outputPath, force); err != nil {
		return fmt.Errorf("%w (use -f to overwrite)", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure settings such as:")
	fmt.Fprintln(out, "  - Timeouts and concurrency")
	fmt.Fprintln(out, "  - Which scan categories run")
	fmt.Fprintln(out, "  - Known-malicious URLs to block")

	return nil
}
