package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darmiel/satellite/internal/buildinfo"
	"github.com/darmiel/satellite/internal/logging"
)

// global flags
var (
	cfgFile string
	f       = NewFactory()
)

const (
	LogLevelKey   = "log.level"
	LogFormatKey  = "log.format"
	LogNoColorKey = "log.no_color"

	RemoteAddrKey   = "remote.addr"
	RemoteAPIKeyKey = "remote.api_key"
)

var rootCmd = &cobra.Command{
	Use:   "satellite",
	Short: fmt.Sprintf("UnicyHub satellite (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `Satellite runs next to an application and keeps it connected to the central hub.
	It registers the node, pushes datasets and metrics on a schedule and serves
	an authenticated API the hub uses to query and command the node.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		noColor := viper.GetBool(LogNoColorKey)
		if noColor {
			color.NoColor = true
		}
		logging.Init(logging.Options{
			Level:   viper.GetString(LogLevelKey),
			Format:  viper.GetString(LogFormatKey),
			NoColor: noColor,
		})
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Satellite configuration file (default is ./satellite.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(LogNoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	f.bindRemoteFlags(rootCmd.PersistentFlags())

	viper.SetEnvPrefix("SATELLITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// search order: current dir, XDG config
		viper.AddConfigPath(".")

		config, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(config + "/satellite")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("satellite")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
