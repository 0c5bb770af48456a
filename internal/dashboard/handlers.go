package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MonilMehta/fyp/internal/tracking"
)

const defaultPageSize = 50

func (d *Dashboard) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := d.engine.Overview(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// eventsResponse is the paginated event listing.
type eventsResponse struct {
	Events []tracking.Event `json:"events"`
	Total  int              `json:"total"`
	Page   int              `json:"page"`
	Pages  int              `json:"pages"`
}

func filterFromQuery(r *http.Request) (tracking.Filter, int) {
	q := r.URL.Query()

	filter := tracking.Filter{
		CID:        q.Get("cid"),
		IPAddress:  q.Get("ip"),
		Country:    q.Get("country"),
		ClientApp:  q.Get("client"),
		FirstOnly:  q.Get("first_access") == "true",
		Descending: true,
		Limit:      defaultPageSize,
	}
	if v := q.Get("category"); v != "" {
		filter.Category = tracking.EndpointCategory(v)
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = &t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	page := 1
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	filter.Offset = (page - 1) * filter.Limit

	return filter, page
}

func (d *Dashboard) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, page := filterFromQuery(r)

	total, err := d.store.CountEvents(ctx, tracking.Filter{
		CID: filter.CID, Category: filter.Category, IPAddress: filter.IPAddress,
		Country: filter.Country, ClientApp: filter.ClientApp,
		FirstOnly: filter.FirstOnly, Since: filter.Since, Until: filter.Until,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	events, err := d.store.QueryEvents(ctx, filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []tracking.Event{}
	}

	pages := (total + filter.Limit - 1) / filter.Limit
	writeJSON(w, http.StatusOK, eventsResponse{
		Events: events,
		Total:  total,
		Page:   page,
		Pages:  pages,
	})
}

// eventDetailResponse includes events related by cid and by address.
type eventDetailResponse struct {
	Event        tracking.Event   `json:"event"`
	RelatedByCID []tracking.Event `json:"related_by_cid"`
	RelatedByIP  []tracking.Event `json:"related_by_ip"`
}

func (d *Dashboard) handleEventDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	ev, err := d.store.GetEvent(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	resp := eventDetailResponse{
		Event:        *ev,
		RelatedByCID: []tracking.Event{},
		RelatedByIP:  []tracking.Event{},
	}

	if ev.CID != "" {
		related, err := d.store.QueryEvents(ctx, tracking.Filter{
			CID: ev.CID, Descending: true, Limit: 11,
		})
		if err == nil {
			resp.RelatedByCID = dropEvent(related, id, 10)
		}
	}
	if ev.IPAddress != "" {
		related, err := d.store.QueryEvents(ctx, tracking.Filter{
			IPAddress: ev.IPAddress, Descending: true, Limit: 11,
		})
		if err == nil {
			resp.RelatedByIP = dropEvent(related, id, 10)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// dropEvent removes the event itself from its related list.
func dropEvent(events []tracking.Event, id string, limit int) []tracking.Event {
	out := make([]tracking.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID == id {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (d *Dashboard) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := d.store.ListDocuments(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []tracking.DocumentSummary{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// registerRequest is the document registration payload. "uuid" is the
// historical field name for the cid used by the document stamper.
type registerRequest struct {
	UUID     string            `json:"uuid"`
	CID      string            `json:"cid"`
	Name     string            `json:"document_name"`
	FilePath string            `json:"file_path"`
	Metadata map[string]string `json:"metadata"`
}

func (d *Dashboard) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	cid := req.UUID
	if cid == "" {
		cid = req.CID
	}
	if cid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "uuid is required"})
		return
	}

	doc, err := d.store.UpsertDocument(r.Context(), cid, req.Name, req.FilePath, req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "cid": doc.CID})
}

// documentDetailResponse bundles a document with its activity.
type documentDetailResponse struct {
	Document         tracking.Document  `json:"document"`
	Events           []tracking.Event   `json:"events"`
	Sessions         []tracking.Session `json:"sessions"`
	UniqueIdentities int                `json:"unique_identities"`
}

func (d *Dashboard) handleDocumentDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := d.store.GetDocument(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	events, err := d.store.QueryEvents(ctx, tracking.Filter{
		DocumentID: doc.ID, Descending: true, Limit: 50,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if events == nil {
		events = []tracking.Event{}
	}

	sessions, err := d.store.SessionsForDocument(ctx, doc.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []tracking.Session{}
	}

	identities := make(map[string]struct{})
	for _, s := range sessions {
		identities[s.IdentityKey] = struct{}{}
	}

	writeJSON(w, http.StatusOK, documentDetailResponse{
		Document:         *doc,
		Events:           events,
		Sessions:         sessions,
		UniqueIdentities: len(identities),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
