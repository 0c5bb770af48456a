package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/MonilMehta/fyp/internal/db"
	"github.com/MonilMehta/fyp/internal/stats"
	"github.com/MonilMehta/fyp/internal/tracking"
)

func setupDashboard(t *testing.T) (chi.Router, *tracking.Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := tracking.NewStore(database, 0)
	d := New(store, stats.NewEngine(store), NewFeed(zerolog.Nop()))

	r := chi.NewRouter()
	d.RegisterRoutes(r)
	return r, store
}

func recordEvent(t *testing.T, store *tracking.Store, doc *tracking.Document, identity, ip, country string, at time.Time) tracking.Event {
	t.Helper()
	ev, err := store.RecordEvent(context.Background(), tracking.Event{
		DocumentID:  doc.ID,
		CID:         doc.CID,
		IdentityKey: identity,
		Category:    tracking.CategoryAsset,
		Method:      "GET",
		Path:        "/assets/media/logo.png",
		IPAddress:   ip,
		Country:     country,
		OccurredAt:  at,
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	return ev
}

func TestRegisterDocument(t *testing.T) {
	r, store := setupDashboard(t)

	body := `{"uuid":"doc-reg","document_name":"Quarterly Report","file_path":"/tmp/q3.docx","metadata":{"team":"finance"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" || resp["cid"] != "doc-reg" {
		t.Errorf("response = %v", resp)
	}

	doc, err := store.GetDocumentByCID(context.Background(), "doc-reg")
	if err != nil {
		t.Fatalf("GetDocumentByCID: %v", err)
	}
	if doc.Label != "Quarterly Report" {
		t.Errorf("Label = %q", doc.Label)
	}
	if doc.Metadata["team"] != "finance" {
		t.Errorf("Metadata = %v", doc.Metadata)
	}
}

func TestRegisterDocumentCIDFallback(t *testing.T) {
	r, _ := setupDashboard(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"cid":"doc-alt"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegisterDocumentMissingCID(t *testing.T) {
	r, _ := setupDashboard(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{"document_name":"x"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] != "uuid is required" {
		t.Errorf("error = %q", resp["error"])
	}
}

func TestRegisterDocumentInvalidJSON(t *testing.T) {
	r, _ := setupDashboard(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestQueryEventsFiltersAndPagination(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	doc, err := store.ResolveDocument(ctx, "doc-q")
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		country := "Germany"
		if i%2 == 1 {
			country = "France"
		}
		recordEvent(t, store, doc, "identity-a", "1.2.3.4", country, base.Add(time.Duration(i)*time.Minute))
	}

	// Country filter.
	req := httptest.NewRequest(http.MethodGet, "/api/events?country=France", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp eventsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Events) != 2 {
		t.Errorf("france: total = %d, events = %d, want 2/2", resp.Total, len(resp.Events))
	}

	// Pagination: 2 per page, 5 events -> 3 pages.
	req = httptest.NewRequest(http.MethodGet, "/api/events?cid=doc-q&limit=2&page=3", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 5 || resp.Pages != 3 || resp.Page != 3 {
		t.Errorf("pagination: total = %d, pages = %d, page = %d", resp.Total, resp.Pages, resp.Page)
	}
	if len(resp.Events) != 1 {
		t.Errorf("last page events = %d, want 1", len(resp.Events))
	}

	// Listings are newest first.
	req = httptest.NewRequest(http.MethodGet, "/api/events?cid=doc-q", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 5 {
		t.Fatalf("events = %d, want 5", len(resp.Events))
	}
	if !resp.Events[0].OccurredAt.After(resp.Events[4].OccurredAt) {
		t.Error("events not ordered newest first")
	}
}

func TestQueryEventsFirstAccessFilter(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	doc, err := store.ResolveDocument(ctx, "doc-fa")
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	base := time.Now().UTC()
	recordEvent(t, store, doc, "identity-a", "1.2.3.4", "", base)
	recordEvent(t, store, doc, "identity-a", "1.2.3.4", "", base.Add(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/events?first_access=true", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp eventsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("first-access total = %d, want 1", resp.Total)
	}
}

func TestEventDetailWithRelated(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	doc, err := store.ResolveDocument(ctx, "doc-rel")
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	base := time.Now().UTC()
	target := recordEvent(t, store, doc, "identity-a", "1.2.3.4", "", base)
	recordEvent(t, store, doc, "identity-a", "1.2.3.4", "", base.Add(time.Minute))
	recordEvent(t, store, doc, "identity-b", "5.6.7.8", "", base.Add(2*time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/events/"+target.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp eventDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Event.ID != target.ID {
		t.Errorf("Event.ID = %q, want %q", resp.Event.ID, target.ID)
	}
	if len(resp.RelatedByCID) != 2 {
		t.Errorf("RelatedByCID = %d, want 2", len(resp.RelatedByCID))
	}
	if len(resp.RelatedByIP) != 1 {
		t.Errorf("RelatedByIP = %d, want 1", len(resp.RelatedByIP))
	}
	for _, ev := range resp.RelatedByCID {
		if ev.ID == target.ID {
			t.Error("related list contains the event itself")
		}
	}
}

func TestEventDetailNotFound(t *testing.T) {
	r, _ := setupDashboard(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDocumentDetail(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	doc, err := store.UpsertDocument(ctx, "doc-det", "Detail Doc", "", nil)
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	base := time.Now().UTC()
	recordEvent(t, store, doc, "identity-a", "1.2.3.4", "", base)
	recordEvent(t, store, doc, "identity-b", "5.6.7.8", "", base.Add(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/api/documents/"+doc.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp documentDetailResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Document.CID != "doc-det" {
		t.Errorf("CID = %q", resp.Document.CID)
	}
	if len(resp.Events) != 2 {
		t.Errorf("events = %d, want 2", len(resp.Events))
	}
	if len(resp.Sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(resp.Sessions))
	}
	if resp.UniqueIdentities != 2 {
		t.Errorf("unique identities = %d, want 2", resp.UniqueIdentities)
	}
}

func TestListDocuments(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	if _, err := store.UpsertDocument(ctx, "doc-1", "One", "", nil); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if _, err := store.UpsertDocument(ctx, "doc-2", "Two", "", nil); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var docs []tracking.DocumentSummary
	if err := json.NewDecoder(rec.Body).Decode(&docs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("documents = %d, want 2", len(docs))
	}
}

func TestOverviewEndpoint(t *testing.T) {
	r, store := setupDashboard(t)
	ctx := context.Background()

	doc, err := store.ResolveDocument(ctx, "doc-ov")
	if err != nil {
		t.Fatalf("ResolveDocument: %v", err)
	}
	recordEvent(t, store, doc, "identity-a", "1.2.3.4", "Germany", time.Now().UTC())

	req := httptest.NewRequest(http.MethodGet, "/dashboard/api/overview", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ov stats.Overview
	if err := json.NewDecoder(rec.Body).Decode(&ov); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ov.TotalEvents != 1 || ov.TotalDocuments != 1 {
		t.Errorf("overview = %d events / %d documents, want 1/1", ov.TotalEvents, ov.TotalDocuments)
	}
}

func TestServeIndex(t *testing.T) {
	r, _ := setupDashboard(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q, want html", ct)
	}
	if !strings.Contains(rec.Body.String(), "<html") {
		t.Error("index payload missing html")
	}
}

func TestFeedPublishNonBlocking(t *testing.T) {
	feed := NewFeed(zerolog.Nop())

	ch := feed.subscribe()
	defer feed.unsubscribe(ch)

	// Fill the subscriber buffer and keep publishing: a slow consumer
	// must never block the pipeline.
	for i := 0; i < 100; i++ {
		feed.Publish(tracking.Event{ID: "ev"})
	}

	select {
	case ev := <-ch:
		if ev.ID != "ev" {
			t.Errorf("ID = %q", ev.ID)
		}
	default:
		t.Error("subscriber received nothing")
	}
}
