package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/gate"
)

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long:  "Loads the config file and environment and checks that the hub credentials are set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := f.Config()
		if err != nil {
			log.Error().Err(err).Msgf("%s Configuration is invalid.", redCross)
			return err
		}
		if err := cfg.RequireHub(); err != nil {
			log.Error().Err(err).Msgf("%s Configuration is invalid.", redCross)
			return err
		}
		for _, rule := range cfg.Security.Allowlist() {
			if !gate.ValidRule(rule) {
				log.Warn().Str("rule", rule).Msg("ip allowlist entry is malformed and will never match")
			}
		}
		log.Info().Msgf("%s Configuration is valid.", greenCheck)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
