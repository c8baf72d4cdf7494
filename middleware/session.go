package middleware

import (
	"net/http"

	tabAuth "github.com/quillpress/tabAuth"
	"github.com/quillpress/tabAuth/bridge"
)

// AttachSession makes m reachable through tabAuth.ManagerFromContext and lets a
// bridge.ResponseBridge write Set-Cookie on this response. Before calling next
// it re-syncs the marker so renewals since the last request reach the browser.
func AttachSession(m *tabAuth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := tabAuth.WithManager(r.Context(), m)
			ctx = bridge.WithResponseWriter(ctx, w)
			// The Manager logs and counts bridge failures; the request goes on.
			_ = m.SyncMarker(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
