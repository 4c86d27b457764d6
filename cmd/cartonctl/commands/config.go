package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartonfs/carton/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage carton configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective carton configuration as YAML, with defaults
applied and environment overrides resolved.

Examples:
  # Show effective config from the default location
  cartonctl config show

  # Show a specific config file
  cartonctl config show --config /etc/carton/config.yaml`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	out, err := config.Dump(cfg)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(cfgFile); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
