package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type tenantDataKey struct{}

// TenantData carries the resolved tenant id for the lifetime of a request.
// Tenant resolution itself (subdomain/path routing) is out of scope for
// this module; callers attach the resolved id before invoking the kernel.
type TenantData struct {
	TenantID string
}

func WithTenantData(ctx context.Context, td *TenantData) context.Context {
	return context.WithValue(ctx, tenantDataKey{}, td)
}

func GetTenantData(ctx context.Context) *TenantData {
	val := ctx.Value(tenantDataKey{})
	if td, ok := val.(*TenantData); ok {
		return td
	}
	return nil
}
