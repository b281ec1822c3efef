package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role constants recognized by the admin API.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEngineer = "engineer"
	RoleReadonly = "readonly"
	// RoleOperator is a cross-tenant role: it bypasses per-tenant schema
	// scoping but must have an audit record written before any query it
	// triggers executes (see internal/tenant.OperatorMiddleware).
	RoleOperator = "operator"
)

// Authentication method constants, recorded for audit trails.
const (
	MethodOIDC = "oidc"
	MethodDev  = "dev"
)

var validRoles = map[string]bool{
	RoleAdmin:    true,
	RoleManager:  true,
	RoleEngineer: true,
	RoleReadonly: true,
	RoleOperator: true,
}

// IsValidRole reports whether role is one of the recognized role constants.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Subject    string
	Email      string
	Role       string
	TenantSlug string
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	APIKeyID   *uuid.UUID
	Method     string
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores an Identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the Identity from the context, or nil if absent.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
