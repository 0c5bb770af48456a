// Package tracking owns the persisted entities of the correlation
// engine: tracked documents, access events and sessions. The Store is
// the only writer; everything else reads through its query surface.
package tracking

import (
	"net/url"
	"strings"
	"time"
)

// EndpointCategory tags which disguise surface captured an event.
type EndpointCategory string

const (
	CategoryAsset     EndpointCategory = "asset"
	CategoryConfig    EndpointCategory = "config"
	CategoryTelemetry EndpointCategory = "telemetry"
	CategoryFont      EndpointCategory = "font"
	CategoryTheme     EndpointCategory = "theme"
	CategoryHealth    EndpointCategory = "health"
)

// Categories lists all endpoint categories in display order.
var Categories = []EndpointCategory{
	CategoryAsset, CategoryConfig, CategoryTelemetry,
	CategoryFont, CategoryTheme, CategoryHealth,
}

// Document is a tracked artifact, identified by the cid token embedded
// in the distributed file. Created lazily on the first event that
// references an unseen cid; the cid is immutable afterwards.
type Document struct {
	ID          string            `json:"id"`
	CID         string            `json:"cid"`
	Label       string            `json:"label,omitempty"`
	FilePath    string            `json:"file_path,omitempty"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DocumentSummary is a Document plus its aggregate access figures.
type DocumentSummary struct {
	Document
	EventCount  int        `json:"event_count"`
	FirstAccess *time.Time `json:"first_access,omitempty"`
	LastAccess  *time.Time `json:"last_access,omitempty"`
}

// QueryParam is one query-string pair. Order and duplicates from the
// raw query are preserved.
type QueryParam struct {
	Key   string `json:"k"`
	Value string `json:"v"`
}

// ParamsFromRawQuery parses a raw query string into ordered pairs.
// url.Values would collapse ordering across keys, so the string is
// walked directly. Malformed escapes keep their literal text.
func ParamsFromRawQuery(raw string) []QueryParam {
	if raw == "" {
		return nil
	}
	var params []QueryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = append(params, QueryParam{Key: key, Value: value})
	}
	return params
}

// Param returns the first value for key, or "".
func Param(params []QueryParam, key string) string {
	for _, p := range params {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Event is one captured access. Append-only: immutable once recorded.
type Event struct {
	ID          string              `json:"id"`
	DocumentID  string              `json:"document_id,omitempty"`
	CID         string              `json:"cid,omitempty"`
	SessionID   string              `json:"session_id,omitempty"`
	IdentityKey string              `json:"identity_key"`
	Category    EndpointCategory    `json:"category"`
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryParams []QueryParam        `json:"query_params,omitempty"`
	BodyRaw     []byte              `json:"body_raw,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`

	IPAddress      string `json:"ip_address"`
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptHeaders  string `json:"accept_headers,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`

	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	BrowserName    string `json:"browser_name"`
	BrowserVersion string `json:"browser_version"`
	ClientApp      string `json:"client_app"`
	ClientBuild    string `json:"client_build"`
	IsProxy        bool   `json:"is_proxy"`
	IsTor          bool   `json:"is_tor"`
	Country        string `json:"country"`
	City           string `json:"city"`
	ASN            string `json:"asn"`
	ISP            string `json:"isp"`

	OccurredAt    time.Time `json:"occurred_at"`
	IsFirstAccess bool      `json:"is_first_access"`
}

// Attributed reports whether the event resolved to a tracked document.
func (e Event) Attributed() bool { return e.DocumentID != "" }

// Session groups temporally adjacent events that share an identity key
// and a document. Sessions are never explicitly closed; closure is
// inferred from window expiry at read time.
type Session struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id,omitempty"`
	IdentityKey string    `json:"identity_key"`
	StartedAt   time.Time `json:"started_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	EventCount  int       `json:"event_count"`
}
