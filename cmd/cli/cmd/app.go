package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shop-pricing/adapters/catalogfile"
	"shop-pricing/core/catalog"
	"shop-pricing/core/engine"
	"shop-pricing/core/principal"
	"shop-pricing/core/settings"
	"shop-pricing/db"
	"shop-pricing/db/memory"
	"shop-pricing/db/postgres"
	"shop-pricing/internal/config"
	"shop-pricing/internal/errors"
	"shop-pricing/internal/logging"
)

// Flags shared by every tenant-scoped command
var (
	tenantID  string
	actorID   string
	actorRole string
	token     string
)

func addTenantFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant id [REQUIRED]")
	cmd.Flags().StringVar(&actorID, "user", "", "acting user id (default: the system principal; ignored with --token)")
	cmd.Flags().StringVar(&actorRole, "role", string(principal.RoleAdmin), "acting role: owner, admin, manager, staff (ignored with --token)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token to act as instead of --user/--role")
	cmd.MarkFlagRequired("tenant")
}

// openStore opens the configured backend
func openStore(ctx context.Context, cfg *config.Config) (db.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return postgres.Open(ctx, cfg.Store.DSN, cfg.Store.MaxOpenConns)
	case config.BackendMemory, "":
		return memory.New(), nil
	default:
		return nil, errors.Config(fmt.Sprintf("unknown store backend %q", cfg.Store.Backend), nil)
	}
}

// fallbackFor builds the catalog used before a tenant's first save: the HCL
// seed when configured, otherwise the built-in default in the configured
// currency.
func fallbackFor(cfg *config.Config) (settings.Fallback, error) {
	if path := cfg.Pricing.DefaultCatalogFile; path != "" {
		seed, err := catalogfile.NewLoader().LoadFile(path)
		if err != nil {
			return nil, err
		}
		logging.Info("loaded default catalog seed")
		return catalogfile.Fallback(seed), nil
	}
	currency := strings.ToUpper(cfg.Pricing.Currency)
	return func(tenantID string) *catalog.RateCatalog {
		cat := catalog.Default(tenantID)
		if currency != "" {
			cat.Currency = currency
		}
		return cat
	}, nil
}

// openEngine wires store, fallback and engine from the global config.
// The caller must Close the returned store.
func openEngine(ctx context.Context) (*engine.Engine, db.Store, error) {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	fallback, err := fallbackFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Backend != config.BackendPostgres {
		logging.Warn("using the in-memory store; nothing is persisted after this command exits")
	}
	return engine.New(store, engine.Config{Fallback: fallback}), store, nil
}

// actingPrincipal resolves --token, or builds a principal from --user and
// --role scoped to --tenant. Without either it acts as the system principal.
func actingPrincipal() (principal.Principal, error) {
	if token != "" {
		cfg := config.Get()
		auth, err := principal.NewTokenAuthority(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return principal.Principal{}, err
		}
		return auth.Resolve(token)
	}
	if actorID == "" {
		return principal.System(tenantID), nil
	}
	role := principal.Role(actorRole)
	switch role {
	case principal.RoleOwner, principal.RoleAdmin, principal.RoleManager, principal.RoleStaff:
	default:
		return principal.Principal{}, errors.Validationf("unknown role %q", actorRole)
	}
	return principal.Principal{UserID: actorID, TenantID: tenantID, Role: role}, nil
}
