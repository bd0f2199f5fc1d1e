// Package cmd - quote command
package cmd

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"shop-pricing/core/audit"
	"shop-pricing/core/catalog"
	"shop-pricing/core/discount"
	"shop-pricing/core/engine"
	"shop-pricing/core/pricing"
	"shop-pricing/internal/errors"
)

var (
	quoteServices     []string
	quoteUrgency      string
	quotePrior        int
	quoteInBooking    int
	quoteAt           string
	quoteRecord       bool
	quoteRLNamespace  string
	quoteRLPayload    string
	quoteOutputFormat string
)

// quoteCmd prices a selection against the tenant's current catalog
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a service selection",
	Long: `Price a service selection against the tenant's current catalog.

Each --service is key:quantity[:laborHours[:partsCost]].

Examples:
  shop-pricing quote -t shop-1 --service oil_change:1 --urgency emergency
  shop-pricing quote -t shop-1 --service brake_pads:1:1.5:80 --service tire_rotation:1 --prior 4
  shop-pricing quote -t shop-1 --service diagnostics:1 --record --rl-namespace her.v1 --rl-payload '{"score":0.8}'`,
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	addTenantFlags(quoteCmd)
	quoteCmd.Flags().StringArrayVarP(&quoteServices, "service", "s", nil, "service line key:qty[:laborHours[:partsCost]] (repeatable) [REQUIRED]")
	quoteCmd.Flags().StringVarP(&quoteUrgency, "urgency", "u", string(catalog.UrgencyStandard), "urgency tier")
	quoteCmd.Flags().IntVar(&quotePrior, "prior", 0, "customer's prior completed services")
	quoteCmd.Flags().IntVar(&quoteInBooking, "in-booking", 0, "services in the booking (default: number of --service lines)")
	quoteCmd.Flags().StringVar(&quoteAt, "at", "", "booking time, RFC 3339 (default: now)")
	quoteCmd.Flags().BoolVar(&quoteRecord, "record", false, "record the calculation steps")
	quoteCmd.Flags().StringVar(&quoteRLNamespace, "rl-namespace", "", "namespace of the RL metadata attached when recording")
	quoteCmd.Flags().StringVar(&quoteRLPayload, "rl-payload", "", "RL metadata JSON attached to the final step when recording")
	quoteCmd.Flags().StringVarP(&quoteOutputFormat, "format", "f", "cli", formatUsage)
	quoteCmd.MarkFlagRequired("service")
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	f, err := formats.Get(quoteOutputFormat)
	if err != nil {
		return err
	}
	req, err := buildQuoteRequest()
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

	q, err := eng.Quote(ctx, p, tenantID, req)
	if err != nil {
		return err
	}

	return f.Quote(cmd.OutOrStdout(), q)
}

func buildQuoteRequest() (engine.QuoteRequest, error) {
	selection := make([]pricing.ServiceSelection, 0, len(quoteServices))
	for _, s := range quoteServices {
		sel, err := parseServiceLine(s)
		if err != nil {
			return engine.QuoteRequest{}, err
		}
		selection = append(selection, sel)
	}

	booking := discount.BookingContext{PriorServiceCount: quotePrior, ServicesInBooking: quoteInBooking}
	if quoteAt != "" {
		at, err := time.Parse(time.RFC3339, quoteAt)
		if err != nil {
			return engine.QuoteRequest{}, errors.Validationf("--at must be RFC 3339: %v", err)
		}
		booking.Now = at
	}

	req := engine.QuoteRequest{
		Request: pricing.Request{
			Selection: selection,
			Urgency:   catalog.UrgencyTier(quoteUrgency),
			Booking:   booking,
		},
		Record: quoteRecord,
	}
	if quoteRLNamespace != "" || quoteRLPayload != "" {
		payload := json.RawMessage(quoteRLPayload)
		if quoteRLPayload == "" {
			payload = json.RawMessage("{}")
		}
		if !json.Valid(payload) {
			return engine.QuoteRequest{}, errors.Validation("--rl-payload must be valid JSON")
		}
		req.RLData = &audit.RLData{Namespace: quoteRLNamespace, Payload: payload}
	}
	return req, nil
}

// parseServiceLine parses key:qty[:laborHours[:partsCost]]
func parseServiceLine(s string) (pricing.ServiceSelection, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 4 || parts[0] == "" {
		return pricing.ServiceSelection{}, errors.Validationf("service %q must be key:qty[:laborHours[:partsCost]]", s)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return pricing.ServiceSelection{}, errors.Validationf("service %q: quantity must be an integer", s)
	}
	sel := pricing.ServiceSelection{ServiceKey: parts[0], Quantity: qty}
	if len(parts) > 2 {
		if sel.LaborHours, err = decimal.NewFromString(parts[2]); err != nil {
			return pricing.ServiceSelection{}, errors.Validationf("service %q: labor hours: %v", s, err)
		}
	}
	if len(parts) > 3 {
		if sel.PartsCost, err = decimal.NewFromString(parts[3]); err != nil {
			return pricing.ServiceSelection{}, errors.Validationf("service %q: parts cost: %v", s, err)
		}
	}
	return sel, nil
}
