// Package dashboard is the operator surface: JSON APIs and the
// embedded single-page UI over the correlation store. Unlike the
// disguise routes, everything here may surface errors normally.
package dashboard

import (
	"github.com/go-chi/chi/v5"

	"github.com/MonilMehta/fyp/internal/stats"
	"github.com/MonilMehta/fyp/internal/tracking"
)

// Dashboard serves the operator UI and its JSON API.
type Dashboard struct {
	store  *tracking.Store
	engine *stats.Engine
	feed   *Feed
}

// New creates a Dashboard.
func New(store *tracking.Store, engine *stats.Engine, feed *Feed) *Dashboard {
	return &Dashboard{store: store, engine: engine, feed: feed}
}

// LiveFeed returns the live event feed so the ingest pipeline can
// publish into it.
func (d *Dashboard) LiveFeed() *Feed { return d.feed }

// RegisterRoutes mounts all dashboard routes onto the given router.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", d.ServeIndex)
	r.Get("/dashboard/api/overview", d.handleOverview)
	r.Get("/dashboard/live", d.handleLive)

	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", d.handleQueryEvents)
		r.Get("/{id}", d.handleEventDetail)
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", d.handleListDocuments)
		r.Post("/", d.handleRegisterDocument)
		r.Get("/{id}", d.handleDocumentDetail)
	})
}
