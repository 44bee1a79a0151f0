package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

type routeKey struct{}

// WithRoute pins the route label used for logs, spans and metrics.
func WithRoute(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey{}, pattern)
}

// Route returns the pinned route label, or the pattern chi matched for the request. Chi fills
// its pattern while routing, so callers wrapping the router read it after the handler returns.
func Route(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if pattern, ok := ctx.Value(routeKey{}).(string); ok && pattern != "" {
		return pattern
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
