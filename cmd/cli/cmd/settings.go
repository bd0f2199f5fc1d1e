// Package cmd - settings commands
package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/core/settings"
	"shop-pricing/db"
	"shop-pricing/internal/errors"
)

var (
	settingsFormat       string
	settingsAt           string
	settingsServiceRates []string
	settingsRemove       []string
	settingsLaborRate    string
	settingsPartsMarkup  string
	settingsUrgency      []string
	settingsDiscounts    string
	settingsReason       string
	settingsLimit        int
	settingsOffset       int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and administer tenant pricing settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the catalog in effect (now or --at a past instant)",
	RunE:  runSettingsShow,
}

var settingsUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change settings as one new catalog version",
	Long: `Change settings as one new catalog version.

Only the fields that actually change are written to the pricing log.

Examples:
  shop-pricing settings update -t shop-1 --parts-markup 1.20 --reason "supplier costs"
  shop-pricing settings update -t shop-1 --service oil_change=54.99 --urgency emergency=1.6
  shop-pricing settings update -t shop-1 --discounts discounts.json`,
	RunE: runSettingsUpdate,
}

var settingsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored catalog versions, newest first",
	RunE:  runSettingsHistory,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsUpdateCmd, settingsHistoryCmd)
	for _, c := range []*cobra.Command{settingsShowCmd, settingsUpdateCmd, settingsHistoryCmd} {
		addTenantFlags(c)
		c.Flags().StringVarP(&settingsFormat, "format", "f", "cli", formatUsage)
	}

	settingsShowCmd.Flags().StringVar(&settingsAt, "at", "", "instant to reconstruct, RFC 3339")

	f := settingsUpdateCmd.Flags()
	f.StringArrayVar(&settingsServiceRates, "service", nil, "set a service base rate key=rate (repeatable)")
	f.StringArrayVar(&settingsRemove, "remove-service", nil, "remove a service (repeatable)")
	f.StringVar(&settingsLaborRate, "labor-rate", "", "labor rate per hour")
	f.StringVar(&settingsPartsMarkup, "parts-markup", "", "parts markup multiplier, e.g. 1.15")
	f.StringArrayVar(&settingsUrgency, "urgency", nil, "set an urgency multiplier tier=multiplier (repeatable)")
	f.StringVar(&settingsDiscounts, "discounts", "", "JSON file with the complete ordered discount rule list")
	f.StringVar(&settingsReason, "reason", "", "reason recorded with every log entry")

	settingsHistoryCmd.Flags().IntVar(&settingsLimit, "limit", db.DefaultPageLimit, "page size")
	settingsHistoryCmd.Flags().IntVar(&settingsOffset, "offset", 0, "page offset")
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	f, err := formats.Get(settingsFormat)
	if err != nil {
		return err
	}
	p, err := actingPrincipal()
	if err != nil {
		return err
	}
	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var cat *catalog.RateCatalog
	if settingsAt != "" {
		at, perr := time.Parse(time.RFC3339, settingsAt)
		if perr != nil {
			return errors.Validationf("--at must be RFC 3339: %v", perr)
		}
		cat, err = eng.Settings().SettingsAt(ctx, p, tenantID, at)
	} else {
		cat, err = eng.CurrentSettings(ctx, p, tenantID)
	}
	if err != nil {
		return err
	}

	return f.Catalog(cmd.OutOrStdout(), cat)
}

func runSettingsUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	f, err := formats.Get(settingsFormat)
	if err != nil {
		return err
	}
	u, err := buildSettingsUpdate()
	if err != nil {
		return err
	}
	p, err := actingPrincipal()
	if err != nil {
		return err
	}
	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	change, err := eng.UpdateSettings(ctx, p, tenantID, u)
	if err != nil {
		return err
	}

	return f.Change(cmd.OutOrStdout(), change)
}

func runSettingsHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	f, err := formats.Get(settingsFormat)
	if err != nil {
		return err
	}
	p, err := actingPrincipal()
	if err != nil {
		return err
	}
	eng, store, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	versions, err := eng.SettingsHistory(ctx, p, tenantID, db.Page{Limit: settingsLimit, Offset: settingsOffset})
	if err != nil {
		return err
	}
	return f.History(cmd.OutOrStdout(), versions)
}

func buildSettingsUpdate() (settings.Update, error) {
	u := settings.Update{Reason: settingsReason, RemoveServices: settingsRemove}

	if len(settingsServiceRates) > 0 {
		u.ServiceRates = make(map[string]decimal.Decimal, len(settingsServiceRates))
		for _, kv := range settingsServiceRates {
			key, val, err := splitAssignment(kv)
			if err != nil {
				return u, err
			}
			u.ServiceRates[key] = val
		}
	}
	if len(settingsUrgency) > 0 {
		u.UrgencyMultipliers = make(map[catalog.UrgencyTier]decimal.Decimal, len(settingsUrgency))
		for _, kv := range settingsUrgency {
			key, val, err := splitAssignment(kv)
			if err != nil {
				return u, err
			}
			u.UrgencyMultipliers[catalog.UrgencyTier(key)] = val
		}
	}
	if settingsLaborRate != "" {
		d, err := decimal.NewFromString(settingsLaborRate)
		if err != nil {
			return u, errors.Validationf("--labor-rate: %v", err)
		}
		u.LaborRate = &d
	}
	if settingsPartsMarkup != "" {
		d, err := decimal.NewFromString(settingsPartsMarkup)
		if err != nil {
			return u, errors.Validationf("--parts-markup: %v", err)
		}
		u.PartsMarkup = &d
	}
	if settingsDiscounts != "" {
		data, err := os.ReadFile(settingsDiscounts)
		if err != nil {
			return u, errors.Config("failed to read discounts file", err)
		}
		var rules discount.Set
		if err := json.Unmarshal(data, &rules); err != nil {
			return u, errors.Validationf("discounts file: %v", err)
		}
		if rules == nil {
			rules = discount.Set{}
		}
		u.Discounts = rules
	}
	return u, nil
}

// splitAssignment parses key=decimal
func splitAssignment(kv string) (string, decimal.Decimal, error) {
	key, val, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return "", decimal.Decimal{}, errors.Validationf("%q must be key=value", kv)
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return "", decimal.Decimal{}, errors.Validationf("%q: %v", kv, err)
	}
	return key, d, nil
}
