package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry/configs"
	"github.com/quarrylabs/quarry/internal/errors"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated default config to quarry.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := defaultConfigFile
			if configPath != "" {
				path = configPath
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf(errors.ErrCodeInvalidInput,
					"%s already exists, pass --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(configs.DefaultConfigTemplate), 0o644); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
