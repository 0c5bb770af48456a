// Package stats computes read-side aggregations over the event log.
// Results are derived views, recomputable at any time; nothing here is
// a second source of truth.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MonilMehta/fyp/internal/tracking"
)

// Engine answers dashboard queries from the correlation store's query
// surface. It holds no state and never caches.
type Engine struct {
	store *tracking.Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(store *tracking.Store) *Engine {
	return &Engine{store: store}
}

// HourCount is one fixed UTC hour bucket.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// HourlyActivity partitions events from the trailing windowHours into
// one-hour UTC buckets (bucket boundary = occurred_at floored to the
// hour). Every hour in range appears, empty hours included, ordered
// oldest to newest.
func (e *Engine) HourlyActivity(ctx context.Context, windowHours int) ([]HourCount, error) {
	if windowHours <= 0 {
		windowHours = 24
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(windowHours) * time.Hour)

	events, err := e.store.QueryEvents(ctx, tracking.Filter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("querying events for hourly activity: %w", err)
	}

	counts := make(map[time.Time]int)
	for _, ev := range events {
		counts[ev.OccurredAt.UTC().Truncate(time.Hour)]++
	}

	var out []HourCount
	for h := since.Truncate(time.Hour); !h.After(now); h = h.Add(time.Hour) {
		out = append(out, HourCount{Hour: h, Count: counts[h]})
	}
	return out, nil
}

// GroupByEndpoint returns total event counts per endpoint category,
// optionally restricted to a time range. Every defined category is
// present, zero counts included.
func (e *Engine) GroupByEndpoint(ctx context.Context, since, until *time.Time) (map[tracking.EndpointCategory]int, error) {
	events, err := e.store.QueryEvents(ctx, tracking.Filter{Since: since, Until: until})
	if err != nil {
		return nil, fmt.Errorf("querying events for endpoint grouping: %w", err)
	}

	out := make(map[tracking.EndpointCategory]int, len(tracking.Categories))
	for _, c := range tracking.Categories {
		out[c] = 0
	}
	for _, ev := range events {
		out[ev.Category]++
	}
	return out, nil
}

// DeviceStats is the desktop/mobile/office split of observed clients.
type DeviceStats struct {
	Desktop int `json:"desktop"`
	Mobile  int `json:"mobile"`
	Office  int `json:"office"`
}

// Overview is the dashboard landing-page aggregate.
type Overview struct {
	TotalDocuments int `json:"total_documents"`
	TotalEvents    int `json:"total_events"`
	Events24h      int `json:"events_24h"`
	Events7d       int `json:"events_7d"`
	UniqueIPs      int `json:"unique_ips"`
	UniqueIPs24h   int `json:"unique_ips_24h"`
	FirstAccesses  int `json:"first_accesses"`

	TopDocuments []tracking.DocumentSummary `json:"top_documents"`
	ByCountry    []tracking.NameCount       `json:"by_country"`
	ByClient     []tracking.NameCount       `json:"by_client"`
	ByISP        []tracking.NameCount       `json:"by_isp"`
	ByPath       []tracking.NameCount       `json:"by_path"`
	Device       DeviceStats                `json:"device"`
	Hourly       []HourCount                `json:"hourly"`
}

// Overview gathers the dashboard statistics in one pass.
func (e *Engine) Overview(ctx context.Context) (*Overview, error) {
	now := time.Now().UTC()
	last24h := now.Add(-24 * time.Hour)
	last7d := now.Add(-7 * 24 * time.Hour)

	var (
		ov  Overview
		err error
	)

	if ov.TotalDocuments, err = e.store.CountDocuments(ctx); err != nil {
		return nil, err
	}
	if ov.TotalEvents, err = e.store.CountEvents(ctx, tracking.Filter{}); err != nil {
		return nil, err
	}
	if ov.Events24h, err = e.store.CountEvents(ctx, tracking.Filter{Since: &last24h}); err != nil {
		return nil, err
	}
	if ov.Events7d, err = e.store.CountEvents(ctx, tracking.Filter{Since: &last7d}); err != nil {
		return nil, err
	}
	if ov.FirstAccesses, err = e.store.CountEvents(ctx, tracking.Filter{FirstOnly: true}); err != nil {
		return nil, err
	}
	if ov.UniqueIPs, err = e.store.UniqueIPs(ctx, nil); err != nil {
		return nil, err
	}
	if ov.UniqueIPs24h, err = e.store.UniqueIPs(ctx, &last24h); err != nil {
		return nil, err
	}

	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) > 10 {
		docs = docs[:10]
	}
	ov.TopDocuments = docs

	if ov.ByCountry, err = e.store.CountByCountry(ctx, 10); err != nil {
		return nil, err
	}
	if ov.ByClient, err = e.store.CountByClientApp(ctx, 10); err != nil {
		return nil, err
	}
	if ov.ByISP, err = e.store.CountByISP(ctx, 5); err != nil {
		return nil, err
	}
	if ov.ByPath, err = e.store.CountByPath(ctx, 10); err != nil {
		return nil, err
	}
	if ov.Device, err = e.deviceSplit(ctx); err != nil {
		return nil, err
	}
	if ov.Hourly, err = e.HourlyActivity(ctx, 24); err != nil {
		return nil, err
	}

	return &ov, nil
}

var mobileMarkers = []string{"Android", "iPhone", "iPad", "Mobile"}

// deviceSplit classifies every event's client into office, mobile or
// desktop, mirroring how an operator reads the access log.
func (e *Engine) deviceSplit(ctx context.Context) (DeviceStats, error) {
	events, err := e.store.QueryEvents(ctx, tracking.Filter{})
	if err != nil {
		return DeviceStats{}, fmt.Errorf("querying events for device split: %w", err)
	}

	var stats DeviceStats
	for _, ev := range events {
		switch {
		case strings.Contains(ev.ClientApp, "Office") ||
			strings.Contains(ev.ClientApp, "Word") ||
			strings.Contains(ev.ClientApp, "Excel") ||
			strings.Contains(ev.ClientApp, "PowerPoint"):
			stats.Office++
		case containsAny(ev.UserAgent, mobileMarkers):
			stats.Mobile++
		default:
			stats.Desktop++
		}
	}
	return stats, nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
