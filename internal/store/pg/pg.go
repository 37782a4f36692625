// Package pg is the Postgres-backed implementation of store.Store.
// Grounded on the teacher's internal/store/store.go (shared *sql.DB,
// jackc/pgx/v5/stdlib driver, sqlc-dev/pqtype.NullRawMessage for
// nullable JSON columns, struct-building from scanned rows). The
// teacher's sqlc-generated internal/db package was not present in the
// retrieved pack, so queries here are hand-written parameterized SQL
// against the same driver and null-handling idioms rather than
// sqlc-generated methods.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"github.com/google/uuid"

	"webmonitor/internal/model"
	"webmonitor/internal/store"
)

// Store wraps a shared *sql.DB. Safe for concurrent use; the pool
// itself manages connection lifecycles.
type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an already-open *sql.DB, matching the teacher's New(database
// *sql.DB) constructor shape.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func nullJSON(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

func unmarshalJSON(raw pqtype.NullRawMessage, dst any) error {
	if !raw.Valid || len(raw.RawMessage) == 0 {
		return nil
	}
	return json.Unmarshal(raw.RawMessage, dst)
}

// --- Sites ---------------------------------------------------------

func (s *Store) CreateSite(ctx context.Context, site model.Site) (model.Site, error) {
	if site.ID == uuid.Nil {
		site.ID = uuid.New()
	}
	now := time.Now().UTC()
	site.CreatedAt, site.UpdatedAt = now, now
	if site.Status == "" {
		site.Status = model.SiteActive
	}

	discovery, err := nullJSON(site.Discovery)
	if err != nil {
		return model.Site{}, err
	}
	extraction, err := nullJSON(site.Extraction)
	if err != nil {
		return model.Site{}, err
	}
	scheduling, err := nullJSON(site.Scheduling)
	if err != nil {
		return model.Site{}, err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sites (id, owner_id, name, root_url, discovery_method, discovery_settings,
		                    extraction_settings, scheduling_settings, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		site.ID, site.OwnerID, site.Name, site.RootURL, site.Discovery.Method,
		discovery, extraction, scheduling, site.Status, site.CreatedAt, site.UpdatedAt,
	)
	if err != nil {
		return model.Site{}, fmt.Errorf("insert site: %w", err)
	}
	return site, nil
}

func (s *Store) GetSite(ctx context.Context, id uuid.UUID) (model.Site, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, owner_id, name, root_url, discovery_method, discovery_settings,
		       extraction_settings, scheduling_settings, total_pages, new_pages,
		       changed_pages, removed_pages, status, next_scan, archived_at, created_at, updated_at
		FROM sites WHERE id = $1`, id)
	return scanSite(row)
}

func (s *Store) ListSites(ctx context.Context, ownerID *uuid.UUID, status *model.SiteStatus) ([]model.Site, error) {
	query := `SELECT id, owner_id, name, root_url, discovery_method, discovery_settings,
	                 extraction_settings, scheduling_settings, total_pages, new_pages,
	                 changed_pages, removed_pages, status, next_scan, archived_at, created_at, updated_at
	          FROM sites WHERE ($1::uuid IS NULL OR owner_id = $1) AND ($2::text IS NULL OR status = $2)
	          ORDER BY created_at DESC`

	var ownerArg any
	if ownerID != nil {
		ownerArg = *ownerID
	}
	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}

	rows, err := s.DB.QueryContext(ctx, query, ownerArg, statusArg)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []model.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, site)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (model.Site, error) {
	var site model.Site
	var discoveryMethod string
	var discovery, extraction, scheduling pqtype.NullRawMessage
	var nextScan, archivedAt sql.NullTime

	err := row.Scan(&site.ID, &site.OwnerID, &site.Name, &site.RootURL, &discoveryMethod,
		&discovery, &extraction, &scheduling, &site.TotalPages, &site.NewPages,
		&site.ChangedPages, &site.RemovedPages, &site.Status, &nextScan, &archivedAt,
		&site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		return model.Site{}, err
	}

	if err := unmarshalJSON(discovery, &site.Discovery); err != nil {
		return model.Site{}, err
	}
	if err := unmarshalJSON(extraction, &site.Extraction); err != nil {
		return model.Site{}, err
	}
	if err := unmarshalJSON(scheduling, &site.Scheduling); err != nil {
		return model.Site{}, err
	}
	site.Discovery.Method = model.DiscoveryMethod(discoveryMethod)
	if nextScan.Valid {
		site.NextScan = &nextScan.Time
	}
	if archivedAt.Valid {
		site.ArchivedAt = &archivedAt.Time
	}
	return site, nil
}

func (s *Store) UpdateSiteCounters(ctx context.Context, siteID uuid.UUID, total, added, changed, removed int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sites SET total_pages = $2, new_pages = $3, changed_pages = $4,
		                 removed_pages = $5, updated_at = now()
		WHERE id = $1`, siteID, total, added, changed, removed)
	return err
}

func (s *Store) UpdateSiteStatus(ctx context.Context, siteID uuid.UUID, status model.SiteStatus) error {
	var archivedAt any
	if status == model.SiteArchived {
		archivedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sites SET status = $2, archived_at = COALESCE($3, archived_at), updated_at = now()
		WHERE id = $1`, siteID, status, archivedAt)
	return err
}

func (s *Store) DeleteArchivedSites(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM sites WHERE status = $1 AND archived_at IS NOT NULL AND archived_at < $2`,
		model.SiteArchived, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- Scans -----------------------------------------------------------

func (s *Store) CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error) {
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	if scan.StartedAt.IsZero() {
		scan.StartedAt = time.Now().UTC()
	}
	if scan.Status == "" {
		scan.Status = model.ScanRunning
	}

	scannedURLs, err := nullJSON(scan.ScannedURLs)
	if err != nil {
		return model.Scan{}, err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO scans (id, site_id, discovery_method, settings, status, started_at, scanned_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		scan.ID, scan.SiteID, scan.Method, []byte(scan.Settings), scan.Status, scan.StartedAt, scannedURLs)
	if err != nil {
		return model.Scan{}, fmt.Errorf("insert scan: %w", err)
	}
	return scan, nil
}

func (s *Store) UpdateScan(ctx context.Context, scan model.Scan) error {
	scannedURLs, err := nullJSON(scan.ScannedURLs)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		UPDATE scans SET status = $2, completed_at = $3, total_pages = $4, new_pages = $5,
		                 changed_pages = $6, removed_pages = $7, error_pages = $8, scanned_urls = $9
		WHERE id = $1`,
		scan.ID, scan.Status, scan.CompletedAt, scan.TotalPages, scan.NewPages,
		scan.ChangedPages, scan.RemovedPages, scan.ErrorPages, scannedURLs)
	return err
}

func (s *Store) GetScan(ctx context.Context, id uuid.UUID) (model.Scan, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, site_id, discovery_method, settings, status, started_at, completed_at,
		       total_pages, new_pages, changed_pages, removed_pages, error_pages, scanned_urls
		FROM scans WHERE id = $1`, id)
	return scanScan(row)
}

func (s *Store) PreviousCompletedScan(ctx context.Context, siteID uuid.UUID, before uuid.UUID) (model.Scan, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, site_id, discovery_method, settings, status, started_at, completed_at,
		       total_pages, new_pages, changed_pages, removed_pages, error_pages, scanned_urls
		FROM scans
		WHERE site_id = $1 AND status = $2 AND started_at < (SELECT started_at FROM scans WHERE id = $3)
		ORDER BY started_at DESC LIMIT 1`, siteID, model.ScanCompleted, before)
	scan, err := scanScan(row)
	if err == sql.ErrNoRows {
		return model.Scan{}, false, nil
	}
	if err != nil {
		return model.Scan{}, false, err
	}
	return scan, true, nil
}

func scanScan(row rowScanner) (model.Scan, error) {
	var sc model.Scan
	var completedAt sql.NullTime
	var settings []byte
	var scannedURLs pqtype.NullRawMessage

	err := row.Scan(&sc.ID, &sc.SiteID, &sc.Method, &settings, &sc.Status, &sc.StartedAt,
		&completedAt, &sc.TotalPages, &sc.NewPages, &sc.ChangedPages, &sc.RemovedPages,
		&sc.ErrorPages, &scannedURLs)
	if err != nil {
		return model.Scan{}, err
	}
	sc.Settings = settings
	if completedAt.Valid {
		sc.CompletedAt = &completedAt.Time
	}
	if err := unmarshalJSON(scannedURLs, &sc.ScannedURLs); err != nil {
		return model.Scan{}, err
	}
	return sc, nil
}

// --- Pages and snapshots ---------------------------------------------

func (s *Store) UpsertPage(ctx context.Context, siteID uuid.UUID, page model.Page) (uuid.UUID, error) {
	if page.ID == uuid.Nil {
		page.ID = uuid.New()
	}
	now := time.Now().UTC()

	var id uuid.UUID
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO pages (id, site_id, url, status, content_hash, title, meta_description,
		                    canonical, response_code, load_time_ms, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (site_id, url) DO UPDATE SET
			status = EXCLUDED.status,
			content_hash = EXCLUDED.content_hash,
			title = EXCLUDED.title,
			meta_description = EXCLUDED.meta_description,
			canonical = EXCLUDED.canonical,
			response_code = EXCLUDED.response_code,
			load_time_ms = EXCLUDED.load_time_ms,
			last_seen = EXCLUDED.last_seen
		RETURNING id`,
		page.ID, siteID, page.URL, page.Status, page.ContentHash, page.Title,
		page.Meta, page.Canonical, page.ResponseCode, page.LoadTimeMs, now,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert page: %w", err)
	}
	return id, nil
}

func (s *Store) MarkPagesRemoved(ctx context.Context, siteID uuid.UUID, seenURLs []string, scanID uuid.UUID) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE pages SET status = $2
		WHERE site_id = $1 AND status != $2 AND NOT (url = ANY($3::text[]))`,
		siteID, model.PageRemoved, pqStringArray(seenURLs))
	if err != nil {
		return 0, fmt.Errorf("mark pages removed: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) InsertSnapshots(ctx context.Context, snapshots []model.PageSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, snap := range snapshots {
		if snap.ID == uuid.Nil {
			snap.ID = uuid.New()
		}
		breadcrumbs, err := nullJSON(snap.Breadcrumbs)
		if err != nil {
			return err
		}
		headings, err := nullJSON(snap.Headings)
		if err != nil {
			return err
		}
		customData, err := nullJSON(snap.CustomData)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO page_snapshots (id, scan_id, page_id, url, title, meta_description, canonical,
			                             breadcrumbs, headings, custom_data, content_hash, response_code,
			                             load_time_ms, extraction_config_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (scan_id, page_id) DO NOTHING`,
			snap.ID, snap.ScanID, snap.PageID, snap.URL, snap.Title, snap.MetaDescription,
			snap.Canonical, breadcrumbs, headings, customData, snap.ContentHash,
			snap.ResponseCode, snap.LoadTimeMs, snap.ExtractionConfigID)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListSnapshotsForScan(ctx context.Context, scanID uuid.UUID) ([]model.PageSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, scan_id, page_id, url, title, meta_description, canonical, breadcrumbs,
		       headings, custom_data, content_hash, response_code, load_time_ms, extraction_config_id
		FROM page_snapshots WHERE scan_id = $1`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PageSnapshot
	for rows.Next() {
		var snap model.PageSnapshot
		var breadcrumbs, headings, customData pqtype.NullRawMessage

		if err := rows.Scan(&snap.ID, &snap.ScanID, &snap.PageID, &snap.URL, &snap.Title,
			&snap.MetaDescription, &snap.Canonical, &breadcrumbs, &headings, &customData,
			&snap.ContentHash, &snap.ResponseCode, &snap.LoadTimeMs, &snap.ExtractionConfigID); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(breadcrumbs, &snap.Breadcrumbs); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(headings, &snap.Headings); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(customData, &snap.CustomData); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// pqStringArray renders a Go string slice as a Postgres array literal
// for use with ANY($n); pgx/v5's stdlib driver does not automatically
// convert []string, so the literal is built by hand.
func pqStringArray(values []string) string {
	out := "{"
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += `"` + escapePG(v) + `"`
	}
	return out + "}"
}

func escapePG(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b = append(b, '\\')
		}
		b = append(b, s[i])
	}
	return string(b)
}
