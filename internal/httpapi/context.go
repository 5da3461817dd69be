package httpapi

import (
	"context"
	"net/http"
)

// serverBaseCtx ends when the process starts shutting down.
var serverBaseCtx = context.Background()

// SetBaseContext installs the shutdown context. nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// generateContext scopes one /generate call. It is canceled when the client
// disconnects, when the server shuts down, or once generateTimeout elapses.
func generateContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(serverBaseCtx, cancel)
	if generateTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, generateTimeout)
		return ctx, func() {
			tcancel()
			stop()
			cancel()
		}
	}
	return ctx, func() {
		stop()
		cancel()
	}
}

// clientGone reports whether nobody is left to read an error response.
func clientGone(r *http.Request) bool {
	return r.Context().Err() != nil || serverBaseCtx.Err() != nil
}
