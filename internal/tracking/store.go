package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MonilMehta/fyp/internal/db"
)

// DefaultSessionWindow is the maximum gap between consecutive events
// still considered one continuous visit.
const DefaultSessionWindow = 30 * time.Minute

const (
	recordAttempts = 3
	retryBackoff   = 25 * time.Millisecond
)

// Store is the single writer for documents, sessions and access
// events. Readers tolerate a recent-but-not-latest snapshot; the only
// strict guarantee is first-access atomicity inside RecordEvent.
type Store struct {
	db     *db.DB
	window time.Duration
}

// NewStore creates a Store backed by the given database. A
// non-positive window falls back to DefaultSessionWindow.
func NewStore(database *db.DB, window time.Duration) *Store {
	if window <= 0 {
		window = DefaultSessionWindow
	}
	return &Store{db: database, window: window}
}

// SessionWindow returns the configured session window.
func (s *Store) SessionWindow() time.Duration { return s.window }

// ResolveDocument returns the document for cid, creating it if the cid
// has never been seen. Idempotent; a previously unseen cid always
// succeeds.
func (s *Store) ResolveDocument(ctx context.Context, cid string) (*Document, error) {
	if cid == "" {
		return nil, fmt.Errorf("cid is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, cid, first_seen_at) VALUES (?, ?, ?)
		ON CONFLICT(cid) DO NOTHING`,
		uuid.New().String(), cid, formatTime(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	return s.GetDocumentByCID(ctx, cid)
}

// UpsertDocument registers or updates a document's label, file path
// and metadata. The cid itself is immutable.
func (s *Store) UpsertDocument(ctx context.Context, cid, label, filePath string, metadata map[string]string) (*Document, error) {
	if cid == "" {
		return nil, fmt.Errorf("cid is required")
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling metadata: %w", err)
	}
	if metadata == nil {
		meta = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, cid, label, file_path, first_seen_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cid) DO UPDATE SET
			label = excluded.label,
			file_path = excluded.file_path,
			metadata = excluded.metadata`,
		uuid.New().String(), cid, label, filePath, formatTime(time.Now()), string(meta),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting document: %w", err)
	}

	return s.GetDocumentByCID(ctx, cid)
}

// GetDocumentByCID retrieves a document by its cid.
func (s *Store) GetDocumentByCID(ctx context.Context, cid string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cid, label, file_path, first_seen_at, metadata
		FROM documents WHERE cid = ?`, cid)
	return scanDocument(row)
}

// GetDocument retrieves a document by its id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, cid, label, file_path, first_seen_at, metadata
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// CountDocuments returns the number of tracked documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// ListDocuments returns all documents with their aggregate access
// figures, most accessed first.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.cid, d.label, d.file_path, d.first_seen_at, d.metadata,
		       COUNT(e.id), MIN(e.occurred_at), MAX(e.occurred_at)
		FROM documents d
		LEFT JOIN access_events e ON e.document_id = d.id
		GROUP BY d.id
		ORDER BY COUNT(e.id) DESC, d.first_seen_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var (
			sum         DocumentSummary
			firstSeen   string
			meta        string
			first, last sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.CID, &sum.Label, &sum.FilePath, &firstSeen, &meta,
			&sum.EventCount, &first, &last); err != nil {
			return nil, fmt.Errorf("scanning document summary: %w", err)
		}
		sum.FirstSeenAt = parseTime(firstSeen)
		if err := json.Unmarshal([]byte(meta), &sum.Metadata); err != nil {
			sum.Metadata = nil
		}
		if first.Valid {
			t := parseTime(first.String)
			sum.FirstAccess = &t
		}
		if last.Valid {
			t := parseTime(last.String)
			sum.LastAccess = &t
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// RecordEvent persists one access event: it resolves or creates the
// session for (document, identity), determines first access atomically
// and appends the event, all in a single transaction. Write contention
// is retried with bounded backoff; when retries exhaust, the event is
// still stored with first access conservatively false so a duplicate
// first access is never fabricated.
func (s *Store) RecordEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.Category == "" {
		return Event{}, fmt.Errorf("endpoint category is required")
	}

	var lastErr error
	for attempt := 0; attempt < recordAttempts; attempt++ {
		out, err := s.recordOnce(ctx, ev)
		if err == nil {
			return out, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * retryBackoff):
		}
	}

	// Contention exhausted. Append without session binding and with
	// first_access=false rather than dropping the event.
	ev.SessionID = ""
	ev.IsFirstAccess = false
	if err := s.insertEvent(ctx, s.db.DB, ev, false); err != nil {
		return Event{}, fmt.Errorf("recording event after %d attempts: %w (first failure: %v)",
			recordAttempts, err, lastErr)
	}
	return ev, nil
}

// execer is implemented by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) recordOnce(ctx context.Context, ev Event) (Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Session binding: join the most recent session for this
	// (document, identity) when the gap is inside the window,
	// otherwise open a new one.
	var (
		sessionID string
		lastSeen  string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, last_seen_at FROM sessions
		WHERE document_id = ? AND identity_key = ?
		ORDER BY last_seen_at DESC LIMIT 1`,
		ev.DocumentID, ev.IdentityKey,
	).Scan(&sessionID, &lastSeen)

	switch {
	case errors.Is(err, sql.ErrNoRows) || (err == nil && ev.OccurredAt.Sub(parseTime(lastSeen)) > s.window):
		sessionID = uuid.New().String()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, document_id, identity_key, started_at, last_seen_at, event_count)
			VALUES (?, ?, ?, ?, ?, 1)`,
			sessionID, ev.DocumentID, ev.IdentityKey,
			formatTime(ev.OccurredAt), formatTime(ev.OccurredAt),
		); err != nil {
			return Event{}, fmt.Errorf("creating session: %w", err)
		}
	case err != nil:
		return Event{}, fmt.Errorf("resolving session: %w", err)
	default:
		// MAX keeps last_seen_at monotonic when events arrive out of
		// order (datetime strings compare lexicographically).
		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET last_seen_at = MAX(last_seen_at, ?), event_count = event_count + 1
			WHERE id = ?`,
			formatTime(ev.OccurredAt), sessionID,
		); err != nil {
			return Event{}, fmt.Errorf("extending session: %w", err)
		}
	}
	ev.SessionID = sessionID

	// First-access detection happens inside the insert statement so
	// the existence check and the append are one atomic step: two
	// concurrent first requests cannot both see an empty history.
	if err := s.insertEvent(ctx, tx, ev, true); err != nil {
		return Event{}, err
	}

	var first bool
	if err := tx.QueryRowContext(ctx,
		`SELECT is_first_access FROM access_events WHERE id = ?`, ev.ID,
	).Scan(&first); err != nil {
		return Event{}, fmt.Errorf("reading first-access flag: %w", err)
	}
	ev.IsFirstAccess = first

	if err := tx.Commit(); err != nil {
		return Event{}, fmt.Errorf("committing event: %w", err)
	}
	return ev, nil
}

// insertEvent appends the event row. With computeFirst, the
// is_first_access column is derived in SQL from the absence of any
// prior event for the (document, identity) pair; unattributed events
// never claim first access.
func (s *Store) insertEvent(ctx context.Context, ex execer, ev Event, computeFirst bool) error {
	params, err := json.Marshal(ev.QueryParams)
	if err != nil {
		return fmt.Errorf("marshalling query params: %w", err)
	}
	if ev.QueryParams == nil {
		params = []byte("[]")
	}
	headers, err := json.Marshal(ev.Headers)
	if err != nil {
		return fmt.Errorf("marshalling headers: %w", err)
	}
	if ev.Headers == nil {
		headers = []byte("{}")
	}

	firstExpr := "?"
	args := []any{
		ev.ID, ev.DocumentID, ev.CID, ev.SessionID, ev.IdentityKey,
		string(ev.Category), ev.Method, ev.Path, string(params), ev.BodyRaw, string(headers),
		ev.IPAddress, ev.UserAgent, ev.AcceptHeaders, ev.AcceptLanguage,
		ev.OSName, ev.OSVersion, ev.BrowserName, ev.BrowserVersion,
		ev.ClientApp, ev.ClientBuild,
		ev.IsProxy, ev.IsTor, ev.Country, ev.City, ev.ASN, ev.ISP,
		formatTime(ev.OccurredAt),
	}
	if computeFirst {
		firstExpr = `CASE WHEN ? = ''
			THEN 0
			ELSE NOT EXISTS (SELECT 1 FROM access_events WHERE document_id = ? AND identity_key = ?)
		END`
		args = append(args, ev.DocumentID, ev.DocumentID, ev.IdentityKey)
	} else {
		args = append(args, false)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO access_events (
			id, document_id, cid, session_id, identity_key,
			category, method, path, query_params, body_raw, headers,
			ip_address, user_agent, accept_headers, accept_language,
			os_name, os_version, browser_name, browser_version,
			client_app, client_build,
			is_proxy, is_tor, country, city, asn, isp,
			occurred_at, is_first_access
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, `+firstExpr+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// Filter controls which events are returned by QueryEvents and
// CountEvents. Zero values match everything.
type Filter struct {
	CID         string
	DocumentID  string
	IdentityKey string
	Category    EndpointCategory
	IPAddress   string
	Country     string
	ClientApp   string
	FirstOnly   bool
	Since       *time.Time
	Until       *time.Time
	Descending  bool
	Limit       int
	Offset      int
}

func buildWhere(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.CID != "" {
		clauses = append(clauses, "cid = ?")
		args = append(args, f.CID)
	}
	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}
	if f.IdentityKey != "" {
		clauses = append(clauses, "identity_key = ?")
		args = append(args, f.IdentityKey)
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.IPAddress != "" {
		clauses = append(clauses, "ip_address = ?")
		args = append(args, f.IPAddress)
	}
	if f.Country != "" {
		clauses = append(clauses, "country = ?")
		args = append(args, f.Country)
	}
	if f.ClientApp != "" {
		clauses = append(clauses, "client_app = ?")
		args = append(args, f.ClientApp)
	}
	if f.FirstOnly {
		clauses = append(clauses, "is_first_access = 1")
	}
	if f.Since != nil {
		clauses = append(clauses, "occurred_at >= ?")
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		clauses = append(clauses, "occurred_at <= ?")
		args = append(args, formatTime(*f.Until))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryEvents returns events matching the filter, ordered by
// occurred_at ascending (descending when f.Descending). Calling it
// twice with identical filters and no intervening writes yields
// identical results: the secondary sort on id makes ordering total.
func (s *Store) QueryEvents(ctx context.Context, f Filter) ([]Event, error) {
	where, args := buildWhere(f)

	order := " ORDER BY occurred_at ASC, id ASC"
	if f.Descending {
		order = " ORDER BY occurred_at DESC, id DESC"
	}

	query := "SELECT " + eventColumns + " FROM access_events" + where + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		if f.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events matching the filter.
func (s *Store) CountEvents(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_events"+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// GetEvent retrieves a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM access_events WHERE id = ?", id)
	return scanEvent(row)
}

// UniqueIPs counts distinct source addresses, optionally since a
// point in time.
func (s *Store) UniqueIPs(ctx context.Context, since *time.Time) (int, error) {
	query := "SELECT COUNT(DISTINCT ip_address) FROM access_events"
	var args []any
	if since != nil {
		query += " WHERE occurred_at >= ?"
		args = append(args, formatTime(*since))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unique addresses: %w", err)
	}
	return n, nil
}

// NameCount is a grouped count row for dashboard breakdowns.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// groupCount aggregates event counts over one column. The column name
// is always a compile-time constant from the public wrappers below.
func (s *Store) groupCount(ctx context.Context, column string, excludeUnknown bool, limit int) ([]NameCount, error) {
	query := "SELECT " + column + ", COUNT(*) FROM access_events"
	if excludeUnknown {
		query += " WHERE " + column + " NOT IN ('', 'unknown')"
	}
	query += " GROUP BY " + column + " ORDER BY COUNT(*) DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("grouping by %s: %w", column, err)
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

// CountByCountry returns per-country event counts, unknowns excluded.
func (s *Store) CountByCountry(ctx context.Context, limit int) ([]NameCount, error) {
	return s.groupCount(ctx, "country", true, limit)
}

// CountByClientApp returns per-client-application event counts.
func (s *Store) CountByClientApp(ctx context.Context, limit int) ([]NameCount, error) {
	return s.groupCount(ctx, "client_app", true, limit)
}

// CountByISP returns per-ISP event counts, unknowns excluded.
func (s *Store) CountByISP(ctx context.Context, limit int) ([]NameCount, error) {
	return s.groupCount(ctx, "isp", true, limit)
}

// CountByPath returns per-path event counts.
func (s *Store) CountByPath(ctx context.Context, limit int) ([]NameCount, error) {
	return s.groupCount(ctx, "path", false, limit)
}

// SessionsForDocument lists sessions for a document, newest first.
func (s *Store) SessionsForDocument(ctx context.Context, documentID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, identity_key, started_at, last_seen_at, event_count
		FROM sessions WHERE document_id = ?
		ORDER BY last_seen_at DESC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess              Session
			started, lastSeen string
		)
		if err := rows.Scan(&sess.ID, &sess.DocumentID, &sess.IdentityKey,
			&started, &lastSeen, &sess.EventCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.StartedAt = parseTime(started)
		sess.LastSeenAt = parseTime(lastSeen)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession retrieves one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var (
		sess              Session
		started, lastSeen string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, identity_key, started_at, last_seen_at, event_count
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.DocumentID, &sess.IdentityKey, &started, &lastSeen, &sess.EventCount)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	sess.StartedAt = parseTime(started)
	sess.LastSeenAt = parseTime(lastSeen)
	return &sess, nil
}

// --- scanning helpers ---

const eventColumns = `id, document_id, cid, session_id, identity_key,
	category, method, path, query_params, body_raw, headers,
	ip_address, user_agent, accept_headers, accept_language,
	os_name, os_version, browser_name, browser_version,
	client_app, client_build,
	is_proxy, is_tor, country, city, asn, isp,
	occurred_at, is_first_access`

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*Event, error) {
	var (
		ev                  Event
		category            string
		paramsJSON, hdrJSON string
		occurred            string
	)
	err := sc.Scan(
		&ev.ID, &ev.DocumentID, &ev.CID, &ev.SessionID, &ev.IdentityKey,
		&category, &ev.Method, &ev.Path, &paramsJSON, &ev.BodyRaw, &hdrJSON,
		&ev.IPAddress, &ev.UserAgent, &ev.AcceptHeaders, &ev.AcceptLanguage,
		&ev.OSName, &ev.OSVersion, &ev.BrowserName, &ev.BrowserVersion,
		&ev.ClientApp, &ev.ClientBuild,
		&ev.IsProxy, &ev.IsTor, &ev.Country, &ev.City, &ev.ASN, &ev.ISP,
		&occurred, &ev.IsFirstAccess,
	)
	if err != nil {
		return nil, err
	}

	ev.Category = EndpointCategory(category)
	ev.OccurredAt = parseTime(occurred)
	if err := json.Unmarshal([]byte(paramsJSON), &ev.QueryParams); err != nil {
		ev.QueryParams = nil
	}
	if err := json.Unmarshal([]byte(hdrJSON), &ev.Headers); err != nil {
		ev.Headers = nil
	}
	return &ev, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var (
		doc       Document
		firstSeen string
		meta      string
	)
	err := row.Scan(&doc.ID, &doc.CID, &doc.Label, &doc.FilePath, &firstSeen, &meta)
	if err != nil {
		return nil, err
	}
	doc.FirstSeenAt = parseTime(firstSeen)
	if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
		doc.Metadata = nil
	}
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
