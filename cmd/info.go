package cmd

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/darmiel/satellite/internal/buildinfo"
	"github.com/darmiel/satellite/internal/registration"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the satellite installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !f.Remote() {
			return infoLocally(cmd, args)
		}
		return infoRemote(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func infoRemote(cmd *cobra.Command, _ []string) error {
	cli, err := f.GetClient()
	if err != nil {
		return err
	}
	log.Info().Msg("Fetching info from satellite...")
	info, correlation, err := cli.Info(cmd.Context())
	if err != nil {
		return logError(err, correlation, "failed to get info from satellite")
	}
	printInfo(&info.Build)
	fmt.Println(bold("\n── Satellite ──"))
	fmt.Printf("  %s:     %s (%s)\n", faint("Name"), info.Satellite.Name, info.Satellite.Type)
	fmt.Printf("  %s: %s\n", faint("Instance"), info.InstanceID)
	fmt.Printf("  %s:   %v/%v\n", faint("Server"), info.Server["os"], info.Server["arch"])
	printCapabilities(info.Capabilities)
	return nil
}

func infoLocally(_ *cobra.Command, _ []string) error {
	log.Info().Msg("Showing local build info...")
	info := buildinfo.GetBuildInfo()
	printInfo(&info)
	if cfg, err := f.Config(); err == nil {
		fmt.Println(bold("\n── Satellite ──"))
		fmt.Printf("  %s:     %s (%s)\n", faint("Name"), cfg.Satellite.Name, cfg.Satellite.Type)
		printCapabilities(registration.Capabilities(cfg))
	}
	return nil
}

func printInfo(info *buildinfo.Info) {
	fmt.Println(bold("\n── Satellite Build Information ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
	fmt.Printf("  %s:         %s\n", faint("Go"), info.GoVersion)
}

func printCapabilities(caps map[string]bool) {
	names := make([]string, 0, len(caps))
	for n := range caps {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Println(bold("\n── Capabilities ──"))
	for _, n := range names {
		icon := redCross
		if caps[n] {
			icon = greenCheck
		}
		fmt.Printf("  %s %s\n", icon, n)
	}
	fmt.Println()
}
