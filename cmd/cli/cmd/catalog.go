// Package cmd - catalog commands
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shop-pricing/adapters/catalogfile"
	"shop-pricing/core/catalog"
	"shop-pricing/core/output"
)

var catalogFormat string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect rate catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file.hcl>",
	Short: "Validate an HCL catalog seed file",
	Long: `Parse and validate an HCL catalog seed file, then print it.

The file can be used as pricing.default_catalog_file: tenants that never
saved settings are priced against it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := formats.Get(catalogFormat)
		if err != nil {
			return err
		}
		cat, err := catalogfile.NewLoader().LoadFile(args[0])
		if err != nil {
			return err
		}
		if f.Format() != output.FormatJSON {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n\n", args[0])
		}
		return f.Catalog(cmd.OutOrStdout(), cat)
	},
}

var catalogDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Print the built-in default catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := formats.Get(catalogFormat)
		if err != nil {
			return err
		}
		return f.Catalog(cmd.OutOrStdout(), catalog.Default(""))
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogDefaultCmd)
	catalogCmd.PersistentFlags().StringVarP(&catalogFormat, "format", "f", "cli", formatUsage)
}
