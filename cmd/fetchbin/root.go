package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "fetchbin",
	Short: "Install prebuilt binaries for registry packages",
	Long: `fetchbin resolves a package's registry metadata, races every
candidate prebuilt-artifact URL, and installs the winner's binaries
without building from source.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		versionCmd,
		installCmd,
	)
}
