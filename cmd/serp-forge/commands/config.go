package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"serpforge"

	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configShowCmd, configSaveCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the configuration.",
}

// redacted copy for display, the api key never reaches a terminal
func displayConfig(cfg serpforge.Config) serpforge.Config {
	if cfg.Serper.APIKey != "" {
		cfg.Serper.APIKey = "********"
	}
	return cfg
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Prints the effective configuration after defaults and env overrides.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("failed to load config", err)
		}
		err = writeJSON(os.Stdout, displayConfig(cfg))
		if err != nil {
			fatal("failed to print config", err)
		}
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Writes the default configuration to a file as a starting point.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, err := json.MarshalIndent(serpforge.Default(), "", "  ")
		if err != nil {
			fatal("failed to marshal config", err)
		}
		err = os.WriteFile(args[0], append(out, '\n'), 0644)
		if err != nil {
			fatal("failed to write config", err)
		}
		fmt.Printf("wrote default configuration to %s\n", args[0])
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Checks that the configuration file is usable.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("configuration is invalid", err)
		}
		if cfg.Serper.APIKey == "" {
			fmt.Println("configuration is valid, but no api key is set (SERPER_API_KEY)")
			return
		}
		fmt.Println("configuration is valid")
	},
}
