// Package gateway exposes the Trellis store over HTTP: REST endpoints for
// conversations, messages, the intake flag, and diagnosis lookups, plus a
// websocket endpoint that streams committed message inserts per
// conversation. The `trellis chat` client and the mobile app speak to this
// surface.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verdia/trellis/internal/cache"
	"github.com/verdia/trellis/internal/store"
)

// DefaultPort is the gateway listen port when none is configured.
const DefaultPort = 8795

// StartOpts holds configuration for the gateway server.
type StartOpts struct {
	Store    *store.Store
	Broker   *store.Broker
	Cache    cache.Store   // optional; enables read-path caching
	CacheTTL time.Duration // optional; zero means no expiry
	Port     int
	Out      io.Writer
}

// Start launches the gateway HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil {
		return fmt.Errorf("gateway: store is required")
	}
	if opts.Broker == nil {
		return fmt.Errorf("gateway: broker is required")
	}
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, routeDeps{
		store:    opts.Store,
		broker:   opts.Broker,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
	})

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Gateway listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
