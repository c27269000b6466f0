package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openchami/tokengate/pkg/logging"
	"github.com/openchami/tokengate/pkg/tokenservice"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "TokenGate - JWT issuance and claims-based authorization",
	Long: `TokenGate issues HMAC-signed JWTs carrying roles, permissions and assurance claims,
and guards the cache service API with them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureFromEnv()
	},
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Generate a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		config := tokenservice.DefaultFileConfig()
		if err := tokenservice.SaveFileConfig(config, configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Generated configuration file at: %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateConfigCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file; a missing file is ignored")
}

// loadConfig resolves defaults, the config file, the dotenv file and the environment
func loadConfig() (*tokenservice.Config, error) {
	config, err := tokenservice.LoadConfig(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return config, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
