package tabAuth

import "context"

type managerContextKey struct{}

// WithManager attaches m to ctx so request handlers and the bearer transport
// can reach the tab's session without globals.
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerContextKey{}, m)
}

// ManagerFromContext returns the Manager attached by [WithManager].
func ManagerFromContext(ctx context.Context) (*Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	m, ok := ctx.Value(managerContextKey{}).(*Manager)
	return m, ok && m != nil
}
