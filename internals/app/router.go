package app

import (
	"time"

	middle "pulsewatch/internals/middleware"
	"pulsewatch/internals/modules/ingest"
	"pulsewatch/internals/modules/notify"
	"pulsewatch/internals/modules/status"
	"pulsewatch/internals/modules/target"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func RegisterRoutes(c *Container) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middle.Logger(c.Logger))
	r.Use(middleware.Timeout(5 * time.Second))

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.With(c.authMW.Handle).
			Mount("/targets", target.Routes(c.targetHandler))

		v1.With(c.authMW.Handle).
			Mount("/channels", notify.Routes(c.notifyHandler))
	})

	// public status page data, keyed by opaque token
	r.Mount("/status", status.Routes(c.statusHandler))

	// regional worker callback, guarded by the shared path secret
	r.Mount("/ingest", ingest.Routes(c.ingestHandler))

	return r
}
