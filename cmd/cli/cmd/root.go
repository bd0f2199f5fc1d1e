// Package cmd provides the CLI commands for shop-pricing.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shop-pricing/core/output"
	"shop-pricing/internal/config"
	"shop-pricing/internal/logging"
)

// Version is stamped at build time with -ldflags "-X shop-pricing/cmd/cli/cmd.Version=..."
var Version = "0.1.0"

// formats resolves every --format flag
var formats = output.DefaultRegistry()

const formatUsage = "output format (cli, json, markdown)"

var (
	cfgFile string
	envFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shop-pricing",
	Short: "Dynamic service pricing for vehicle-service shops",
	Long: `shop-pricing prices vehicle services from a tenant's versioned rate
catalog, applying urgency multipliers and stacked discounts, and keeps a
replayable audit trail of every recorded calculation and settings change.

Examples:
  shop-pricing serve --config config.yaml
  shop-pricing quote --tenant shop-1 --service oil_change:1 --urgency emergency
  shop-pricing settings update --tenant shop-1 --parts-markup 1.20 --reason "supplier costs"
  shop-pricing catalog validate seed.hcl`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, JSON or YAML (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before SHOP_PRICING_* overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.LoadEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading environment: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	// Initialize logging
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shop-pricing version %s\n", Version)
	},
}

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *config.Get()
		if cfg.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = "********"
		}
		if cfg.Store.DSN != "" {
			cfg.Store.DSN = "********"
		}
		return printJSON(cmd, cfg)
	},
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
