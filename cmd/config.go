package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/spiffcs/devexport/config"
)

// NewCmdConfig creates the config command with subcommands.
func NewCmdConfig() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		Long: `Show or manage configuration.

When run without arguments, shows the current merged configuration.
Credentials are never read from config files: set GITHUB_TOKEN, and
JIRA_EMAIL plus JIRA_API_TOKEN for a tracker, in the environment or .env.

Subcommands:
  init      Create a minimal config file
  path      Show config file locations
  defaults  Show all default values
  show      Show current merged config (same as bare 'devexport config')`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout(), outputFormat)
		},
	}

	addConfigFormatFlag(cmd, &outputFormat)

	cmd.AddCommand(NewCmdConfigInit())
	cmd.AddCommand(NewCmdConfigPath())
	cmd.AddCommand(NewCmdConfigDefaults())
	cmd.AddCommand(NewCmdConfigShow())

	return cmd
}

func addConfigFormatFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "output", "o", "yaml", "Output format (yaml, toml, json)")
}

// NewCmdConfigInit creates the config init subcommand.
func NewCmdConfigInit() *cobra.Command {
	var global, local bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a minimal config file",
		Long: `Create a minimal config file with starter settings.

Use --global to create the user config file (applies everywhere)
Use --local to create ./.devexport.yaml (applies only in this directory)
Without flags, you'll be prompted to choose.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := chooseConfigTarget(global, local, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return writeStarterConfig(target, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "Create the global config file")
	cmd.Flags().BoolVar(&local, "local", false, "Create the local config file (./.devexport.yaml)")

	return cmd
}

// NewCmdConfigPath creates the config path subcommand.
func NewCmdConfigPath() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file locations",
		Long:  `Show the paths to global and local config files and indicate which exist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printConfigPaths(cmd.OutOrStdout(), config.GetConfigPaths())
			return nil
		},
	}
}

// NewCmdConfigDefaults creates the config defaults subcommand.
func NewCmdConfigDefaults() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show all default configuration values",
		Long: `Show a complete configuration with all default values.

This can be redirected to create a config file with all defaults:
  devexport config defaults > .devexport.yaml
  devexport config defaults -o toml > .devexport.toml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printConfig(cmd.OutOrStdout(), config.DefaultConfig(), outputFormat)
		},
	}

	addConfigFormatFlag(cmd, &outputFormat)
	return cmd
}

// NewCmdConfigShow creates the config show subcommand.
func NewCmdConfigShow() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current merged configuration",
		Long:  `Show the current configuration after merging defaults, global, and local configs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd.OutOrStdout(), outputFormat)
		},
	}

	addConfigFormatFlag(cmd, &outputFormat)
	return cmd
}

type configTarget struct {
	path     string
	location string
}

// chooseConfigTarget resolves --global/--local, prompting on in when
// neither is given.
func chooseConfigTarget(global, local bool, in io.Reader, out io.Writer) (configTarget, error) {
	if global && local {
		return configTarget{}, fmt.Errorf("cannot specify both --global and --local")
	}

	paths := config.GetConfigPaths()
	switch {
	case global:
		return configTarget{paths.GlobalPath, "global"}, nil
	case local:
		return configTarget{paths.LocalPath, "local"}, nil
	}

	fmt.Fprintln(out, "Where would you like to create the config file?")
	fmt.Fprintf(out, "  [1] Global (%s) - applies everywhere\n", paths.GlobalPath)
	fmt.Fprintf(out, "  [2] Local (%s) - applies only in this directory\n", paths.LocalPath)
	fmt.Fprint(out, "Choose [1/2]: ")

	choice, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && choice == "" {
		return configTarget{}, fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprintln(out)

	switch strings.TrimSpace(choice) {
	case "1":
		return configTarget{paths.GlobalPath, "global"}, nil
	case "2":
		return configTarget{paths.LocalPath, "local"}, nil
	default:
		return configTarget{}, fmt.Errorf("invalid choice: %s (must be 1 or 2)", strings.TrimSpace(choice))
	}
}

func writeStarterConfig(target configTarget, out io.Writer) error {
	if _, err := os.Stat(target.path); err == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'devexport config show' to view current config", target.path)
	}

	if err := config.SaveTo(target.path, config.MinimalConfig()); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created %s config file: %s\n\n", target.location, target.path)
	fmt.Fprintln(out, "Edit this file to set the owners and since filter to export.")
	fmt.Fprintln(out, "Run 'devexport config defaults' to see all available options.")
	return nil
}

func printConfigPaths(out io.Writer, paths config.ConfigPathInfo) {
	status := func(exists bool) string {
		if exists {
			return "exists"
		}
		return "not found"
	}

	fmt.Fprintln(out, "Configuration file locations:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Global: %s (%s)\n", paths.GlobalPath, status(paths.GlobalExists))
	fmt.Fprintf(out, "  Local:  %s (%s)\n", paths.LocalPath, status(paths.LocalExists))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Load order: .env -> defaults -> global -> local (local overrides global)")
	fmt.Fprintf(out, "Local files: %s\n", strings.Join(config.LocalConfigPaths(), ", then "))
}

func runConfigShow(out io.Writer, format string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return printConfig(out, cfg, format)
}

func printConfig(out io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "yaml":
		yamlStr, err := cfg.ToYAML()
		if err != nil {
			return err
		}
		fmt.Fprint(out, yamlStr)
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Fprint(out, string(data))
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
	default:
		return fmt.Errorf("invalid format: %s (must be yaml, toml or json)", format)
	}
	return nil
}
