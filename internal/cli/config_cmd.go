package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codemcp/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(a.newConfigPrintCmd())
	cmd.AddCommand(a.newConfigInitCmd())
	cmd.AddCommand(a.newConfigPathCmd())
	return cmd
}

func (a *app) newConfigPrintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print effective config as YAML (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// print even when the API key is not set yet
			cfg, err := a.loadConfig(cmd, nil, true)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
}

func (a *app) newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config.toml with the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			source := path
			if _, err := os.Stat(path); err == nil && !force {
				return exitWith(ExitGenericError, fmt.Errorf("%s already exists (use --force to overwrite)", path))
			} else if errors.Is(err, os.ErrNotExist) {
				source = ""
			} else if err != nil {
				return err
			}

			cfg, err := a.loadConfigFrom(cmd, source, nil, true)
			if err != nil {
				return err
			}
			if err := config.Save(path, *cfg); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintln(a.stdout, "Wrote", path)
			fmt.Fprintln(a.stdout, "Set MISTRAL_API_KEY in your environment or a .env file before running 'codemcp serve'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func (a *app) newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
}

func (a *app) configPath() (string, error) {
	if a.flags.ConfigPath != "" {
		return a.flags.ConfigPath, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", exitWith(ExitConfigInvalid, fmt.Errorf("cannot locate user config dir: %w", err))
	}
	return path, nil
}
