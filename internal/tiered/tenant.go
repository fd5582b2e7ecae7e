package tiered

import (
	"context"
	"strings"

	"cache-service/internal/common/errors"
	"cache-service/internal/common/logging"
)

// DefaultTenant is used when the context carries no tenant.
const DefaultTenant = "default"

// reservedChars separate key segments or are glob metacharacters in SCAN
// patterns. Tenant IDs and cache names may not contain them.
const reservedChars = ":*?[]\\"

// WithTenant scopes cache keys derived from ctx to tenantID. The tenant also
// shows up in log lines written with logging.WithContext.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return logging.ContextWithTenant(ctx, tenantID)
}

// TenantFromContext returns the tenant of ctx, or DefaultTenant.
func TenantFromContext(ctx context.Context) string {
	if tenantID, ok := logging.TenantFromContext(ctx); ok {
		return tenantID
	}
	return DefaultTenant
}

// ValidateTenant rejects tenant IDs that could address another tenant's keys.
func ValidateTenant(tenantID string) error {
	if tenantID == "" || strings.ContainsAny(tenantID, reservedChars) {
		return errors.ValidationError("tenant id must be non-empty and may not contain " + reservedChars).
			WithContext("tenant", tenantID)
	}
	return nil
}

// ValidateName rejects cache names that could address another cache's keys.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, reservedChars) {
		return errors.ValidationError("cache name must be non-empty and may not contain " + reservedChars).
			WithContext("cache", name)
	}
	return nil
}
