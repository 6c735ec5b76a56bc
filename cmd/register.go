package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/api"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this satellite with the hub",
	Long: `Announces the satellite to the hub. Without --force the call is skipped while
the last registration is younger than a day and the configuration did not change.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		test, _ := cmd.Flags().GetBool("test")
		defer f.Close()

		if f.Remote() {
			return remoteCommand(cmd, api.CommandRegister, nil)
		}

		sat, err := f.Satellite(cmd.Context())
		if err != nil {
			return err
		}

		d := sat.Registration.Descriptor()
		fmt.Println(bold("\n── Registration ──"))
		fmt.Printf("  %s:     %s\n", faint("Name"), d.Name)
		fmt.Printf("  %s:     %s\n", faint("Type"), d.Type)
		fmt.Printf("  %s:      %s\n", faint("URL"), d.URL)
		fmt.Printf("  %s:      %s\n", faint("Hub"), sat.Config.Hub.URL)
		fmt.Printf("  %s: %s\n", faint("Instance"), d.InstanceID)
		fmt.Println()

		if test {
			log.Info().Msgf("%s configuration is valid, nothing was sent (--test)", greenCheck)
			return nil
		}

		should, err := sat.Registration.ShouldRegister(cmd.Context(), force)
		if err != nil {
			return err
		}
		if !should {
			log.Info().Msgf("%s registration is still valid, use --force to register again", greenCheck)
			return nil
		}

		res, err := sat.Registration.Register(cmd.Context())
		if err != nil {
			log.Error().Err(err).Msgf("%s registration failed", redCross)
			return err
		}
		log.Info().Msgf("%s registered as %s", greenCheck, bold(res.SatelliteID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().Bool("force", false, "register even when the last registration is still valid")
	registerCmd.Flags().Bool("test", false, "validate the configuration without contacting the hub")
}
