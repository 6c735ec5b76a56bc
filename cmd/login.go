package cmd

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/cliconfig"
	"github.com/darmiel/satellite/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save the API key of a remote satellite",
	Long: `Checks the key against the satellite given by --server and stores it,
so later remote commands do not need --api-key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server := f.remoteAddr()
		if server == "" {
			return fmt.Errorf("server address not configured (use --server)")
		}
		if f.RemoteAPIKey == "" {
			return fmt.Errorf("no key given (use --api-key)")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}
		info, correlation, err := cli.Info(cmd.Context())
		if err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				return logError(err, correlation, "the satellite rejected the key")
			}
			return logError(err, correlation, "failed to reach satellite")
		}

		saved, err := loadCredentials()
		if err != nil {
			return err
		}
		if err := saved.SetCredential(server, &cliconfig.Credential{APIKey: f.RemoteAPIKey}); err != nil {
			return err
		}
		if err := saved.Save(); err != nil {
			return err
		}
		log.Info().Msgf("%s logged in to %s (%s)", greenCheck, bold(info.Satellite.Name), server)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved API key of a remote satellite",
	RunE: func(cmd *cobra.Command, args []string) error {
		server := f.remoteAddr()
		if server == "" {
			return fmt.Errorf("server address not configured (use --server)")
		}
		saved, err := loadCredentials()
		if err != nil {
			return err
		}
		removed, err := saved.RemoveCredential(server)
		if err != nil {
			return err
		}
		if !removed {
			log.Info().Msgf("no saved key for %s", server)
			return nil
		}
		if err := saved.Save(); err != nil {
			return err
		}
		log.Info().Msgf("%s removed saved key for %s", greenCheck, server)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
