package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"portal-relay/internal/cli"
	"portal-relay/internal/config"
	"portal-relay/internal/credentials"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove saved credentials from the OS keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cli.NewOutput(opts.noColor, opts.quiet)

		v := viper.New()
		if opts.configFile != "" {
			v.SetConfigFile(opts.configFile)
		}
		cfg, err := config.Load(v, opts.envFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		store, err := credentials.OpenStore(storeConfig(cfg.Keyring))
		if err != nil {
			return err
		}
		if err := store.Delete(); err != nil {
			return err
		}

		out.PrintSuccess("Saved credentials removed")
		return nil
	},
}
