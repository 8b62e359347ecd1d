package commands

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// overridden at build time via -ldflags "-X ...commands.Version=v1.2.3"
var Version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the build version.",
	Run: func(cmd *cobra.Command, args []string) {
		version := Version
		if version == "dev" {
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
				version = info.Main.Version
			}
		}
		fmt.Printf("serp-forge %s\n", version)
	},
}
