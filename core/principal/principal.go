// Package principal identifies the caller of a pricing operation and decides
// what it may do. Authorization is checked before any store is touched.
package principal

import (
	"context"
	"fmt"
	"slices"

	"shop-pricing/internal/errors"
)

// Role is a coarse tenant role
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Fine-grained permissions that grant access regardless of role
const (
	PermissionRead  = "pricing:read"
	PermissionWrite = "pricing:write"
)

// Principal is an authenticated user acting within one tenant
type Principal struct {
	UserID      string   `json:"userId"`
	TenantID    string   `json:"tenantId"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// System is the principal used by trusted in-process callers such as the CLI
func System(tenantID string) Principal {
	return Principal{UserID: "system", TenantID: tenantID, Role: RoleOwner}
}

// HasPermission reports whether p was granted perm explicitly
func (p Principal) HasPermission(perm string) bool {
	return slices.Contains(p.Permissions, perm)
}

// CanWrite reports whether p may change pricing settings of tenantID
func (p Principal) CanWrite(tenantID string) bool {
	if p.UserID == "" || p.TenantID != tenantID {
		return false
	}
	switch p.Role {
	case RoleOwner, RoleAdmin:
		return true
	}
	return p.HasPermission(PermissionWrite)
}

// CanRead reports whether p may read pricing settings and logs of tenantID
func (p Principal) CanRead(tenantID string) bool {
	if p.UserID == "" || p.TenantID != tenantID {
		return false
	}
	switch p.Role {
	case RoleOwner, RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return p.HasPermission(PermissionRead) || p.HasPermission(PermissionWrite)
}

// RequireWrite returns an authorization error unless p may write tenantID
func (p Principal) RequireWrite(tenantID string) error {
	if !p.CanWrite(tenantID) {
		return errors.Unauthorized(fmt.Sprintf("user %q may not update pricing settings", p.UserID)).
			WithContext("tenant_id", tenantID)
	}
	return nil
}

// RequireRead returns an authorization error unless p may read tenantID
func (p Principal) RequireRead(tenantID string) error {
	if !p.CanRead(tenantID) {
		return errors.Unauthorized(fmt.Sprintf("user %q may not read pricing data", p.UserID)).
			WithContext("tenant_id", tenantID)
	}
	return nil
}

type contextKey struct{}

// NewContext returns ctx carrying p
func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored in ctx, if any
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
