// Package ingest turns disguised inbound requests into access events.
// The pipeline never fails outward: any internal error is absorbed and
// logged so the disguise response is never delayed or altered by the
// tracking path.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MonilMehta/fyp/internal/fingerprint"
	"github.com/MonilMehta/fyp/internal/tracking"
)

// Sink receives every persisted event, best-effort. Used for the live
// dashboard feed.
type Sink interface {
	Publish(ev tracking.Event)
}

// Pipeline wires fingerprint extraction, identity resolution and the
// correlation store into one ingestion path.
type Pipeline struct {
	store    *tracking.Store
	resolver fingerprint.Resolver
	log      zerolog.Logger
	sink     Sink
}

// NewPipeline creates a Pipeline. resolver may be nil, in which case
// geo/ASN/proxy fields stay unknown.
func NewPipeline(store *tracking.Store, resolver fingerprint.Resolver, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: store, resolver: resolver, log: log}
}

// SetSink attaches a live event sink.
func (p *Pipeline) SetSink(s Sink) { p.sink = s }

// Request is the raw material of one ingestion.
type Request struct {
	Category   tracking.EndpointCategory
	Method     string
	Path       string
	RawQuery   string
	Body       []byte
	Headers    http.Header
	RemoteAddr string

	// CID overrides query-parameter attribution (beacon tokens).
	CID string
	// OccurredAt defaults to now when zero.
	OccurredAt time.Time
}

// telemetryBody is the recognized-but-not-required shape of telemetry
// payloads. Anything else is stored opaque.
type telemetryBody struct {
	Client string `json:"client"`
	Build  string `json:"build"`
}

// Ingest records one access event and returns it. It never returns an
// error: a failed lookup degrades fields to unknown, a missing cid
// stores the event unattributed, and a persistence failure yields the
// constructed (unsaved) event while the failure goes to the diagnostic
// log.
func (p *Pipeline) Ingest(ctx context.Context, req Request) tracking.Event {
	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	ip := fingerprint.ClientIP(req.Headers, req.RemoteAddr)
	fp := fingerprint.Extract(req.Headers, ip, p.resolver)
	identity := fingerprint.IdentityKey(ip, fp)

	params := tracking.ParamsFromRawQuery(req.RawQuery)
	cid := req.CID
	if cid == "" {
		cid = tracking.Param(params, "cid")
	}
	if cid == "" {
		cid = tracking.Param(params, "c")
	}

	// Telemetry payloads may carry client identification the UA
	// string lacks.
	if req.Category == tracking.CategoryTelemetry && len(req.Body) > 0 {
		var body telemetryBody
		if err := json.Unmarshal(req.Body, &body); err == nil {
			if body.Client != "" && fp.ClientApp == fingerprint.Unknown {
				fp.ClientApp = body.Client
			}
			if body.Build != "" && fp.ClientBuild == fingerprint.Unknown {
				fp.ClientBuild = body.Build
			}
		}
	}

	ev := tracking.Event{
		CID:            cid,
		IdentityKey:    identity,
		Category:       req.Category,
		Method:         req.Method,
		Path:           req.Path,
		QueryParams:    params,
		BodyRaw:        req.Body,
		Headers:        req.Headers,
		IPAddress:      ip,
		UserAgent:      req.Headers.Get("User-Agent"),
		AcceptHeaders:  req.Headers.Get("Accept"),
		AcceptLanguage: req.Headers.Get("Accept-Language"),
		OSName:         fp.OSName,
		OSVersion:      fp.OSVersion,
		BrowserName:    fp.BrowserName,
		BrowserVersion: fp.BrowserVersion,
		ClientApp:      fp.ClientApp,
		ClientBuild:    fp.ClientBuild,
		IsProxy:        fp.IsProxy,
		IsTor:          fp.IsTor,
		Country:        fp.Country,
		City:           fp.City,
		ASN:            fp.ASN,
		ISP:            fp.ISP,
		OccurredAt:     occurred,
	}

	if cid != "" {
		doc, err := p.store.ResolveDocument(ctx, cid)
		if err != nil {
			p.log.Error().Err(err).Str("cid", cid).Msg("document resolution failed, storing unattributed")
		} else {
			ev.DocumentID = doc.ID
		}
	}

	saved, err := p.store.RecordEvent(ctx, ev)
	if err != nil {
		p.log.Error().Err(err).Str("path", req.Path).Str("ip", ip).Msg("event persistence failed")
		return ev
	}

	p.log.Debug().
		Str("event_id", saved.ID).
		Str("cid", saved.CID).
		Str("category", string(saved.Category)).
		Bool("first_access", saved.IsFirstAccess).
		Msg("access event recorded")

	if p.sink != nil {
		p.sink.Publish(saved)
	}
	return saved
}
