package accountcontext

import "context"

type contextKey string

const (
	accountIDKey contextKey = "account_id"
	accountRole  contextKey = "account_role"
)

// WithAccountID stores the authenticated account ID in the context.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountIDFromContext returns the authenticated account ID, if any.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	accountID, ok := ctx.Value(accountIDKey).(int64)
	return accountID, ok
}

// WithRole stores the authenticated account role in the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, accountRole, role)
}

// RoleFromContext returns the authenticated account role, if any.
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(accountRole).(string)
	return role, ok
}
