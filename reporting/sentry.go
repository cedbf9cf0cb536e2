// Package reporting forwards panics recovered by the query registries to
// Sentry.
package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/IvanBrykalov/querycache/query"
)

// PanicReporter returns a query.Config.OnPanic hook that captures every
// recovered panic as a Sentry exception. The hub attached to ctx wins over
// hub; with neither, panics are only logged.
func PanicReporter(hub *sentry.Hub, logger *slog.Logger) func(context.Context, *query.PanicError) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, pe *query.PanicError) {
		h := sentry.GetHubFromContext(ctx)
		if h == nil {
			h = hub
		}
		if h == nil {
			logger.Warn("No Sentry hub for recovered panic", slog.String("error", pe.Error()))
			return
		}

		logger.Error("Reporting panic to Sentry",
			slog.String("capability", pe.Capability),
			slog.String("error", pe.Error()),
		)

		h.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("capability", pe.Capability)
			scope.SetExtra("panic", fmt.Sprint(pe.Value))
			scope.SetExtra("stack", string(pe.Stack))
			scope.SetFingerprint([]string{"query-panic", pe.Capability})
			h.CaptureException(pe)
		})
	}
}
