package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"comingsoon/internal/model"
	"comingsoon/migrations"
)

// timeLayout keeps millisecond precision so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000Z"

const documentColumns = `id, doc_id, captured_at, email, source, ip, country, city, region, timezone,
	latitude, longitude, host, path, referer, user_agent, accept_language, ray_id, visitor_flags`

// documentFields lists the field columns in the order they appear in documentColumns.
var documentFields = []string{
	model.FieldEmail, model.FieldSource,
	model.FieldIP, model.FieldCountry, model.FieldCity, model.FieldRegion, model.FieldTimezone,
	model.FieldLatitude, model.FieldLongitude,
	model.FieldHost, model.FieldPath, model.FieldReferer, model.FieldUserAgent, model.FieldAcceptLanguage,
	model.FieldRayID, model.FieldVisitorFlags,
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewSQLiteFromDB(db), nil
}

// NewSQLiteFromDB wraps an already opened and migrated database.
func NewSQLiteFromDB(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AppendSubscriber inserts a new subscriber row under a fresh document ID.
func (s *SQLite) AppendSubscriber(ctx context.Context, rec model.SubscriberRecord) (string, error) {
	docID := uuid.NewString()
	captured := rec.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (doc_id, captured_at, email, source, ip, country, city, region, timezone,
			latitude, longitude, host, path, referer, user_agent, accept_language, ray_id, visitor_flags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		docID, captured.UTC().Format(timeLayout), rec.Email, rec.Source,
		rec.Network.IP, rec.Network.Country, rec.Network.City, rec.Network.Region, rec.Network.Timezone,
		rec.Network.Latitude, rec.Network.Longitude,
		rec.Request.Host, rec.Request.Path, rec.Request.Referer, rec.Request.UserAgent, rec.Request.AcceptLanguage,
		rec.EdgeMeta.RayID, rec.EdgeMeta.VisitorFlags,
	)
	if err != nil {
		return "", fmt.Errorf("insert subscriber: %w", err)
	}
	return docID, nil
}

// ListDocuments returns all subscriber documents ordered by capture time, newest first.
// Rows with the same or an undecodable capture time keep insertion order, newest first.
func (s *SQLite) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM subscribers ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CapturedAt.After(docs[j].CapturedAt)
	})
	return docs, nil
}

// GetDocument returns a single subscriber document by its document ID.
func (s *SQLite) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM subscribers WHERE doc_id = ?`, id,
	)
	return scanDocument(row)
}

// Revision returns the row count and highest row ID of the subscriber table.
func (s *SQLite) Revision(ctx context.Context) (model.Revision, error) {
	var rev model.Revision
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(id), 0) FROM subscribers`,
	).Scan(&rev.Count, &rev.LastID)
	if err != nil {
		return model.Revision{}, fmt.Errorf("query revision: %w", err)
	}
	return rev, nil
}

// GetAdminByEmail returns the admin account registered under email.
func (s *SQLite) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var a model.Admin
	var created any
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM admins WHERE email = ?`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan admin: %w", err)
	}
	a.CreatedAt, err = decodeTimestamp(created)
	if err != nil {
		return nil, fmt.Errorf("decode admin %s created_at: %w", email, err)
	}
	return &a, nil
}

// UpsertAdmin creates the admin or replaces the password hash of an existing one.
// It populates ID and CreatedAt.
func (s *SQLite) UpsertAdmin(ctx context.Context, admin *model.Admin) error {
	now := s.now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (email, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash`,
		admin.Email, admin.PasswordHash, now,
	)
	if err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	stored, err := s.GetAdminByEmail(ctx, admin.Email)
	if err != nil {
		return err
	}
	admin.ID = stored.ID
	admin.CreatedAt = stored.CreatedAt
	return nil
}

// RevokeSession records a session as signed out until it would have expired.
// Revocations that are already past their expiry are pruned on the way.
func (s *SQLite) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= ?`, now); err != nil {
		return fmt.Errorf("prune revoked sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO revoked_sessions (session_id, expires_at) VALUES (?, ?)`,
		sessionID, expiresAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return tx.Commit()
}

// IsSessionRevoked reports whether a session was signed out.
func (s *SQLite) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_sessions WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return count > 0, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var captured any
	values := make([]sql.NullString, len(documentFields))

	dest := make([]any, 0, 3+len(values))
	dest = append(dest, &d.Seq, &d.ID, &captured)
	for i := range values {
		dest = append(dest, &values[i])
	}

	err := row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}

	d.Fields = make(map[string]string, len(values))
	for i, v := range values {
		if v.Valid && v.String != "" {
			d.Fields[documentFields[i]] = v.String
		}
	}

	ts, err := decodeTimestamp(captured)
	if err != nil {
		d.Issues = append(d.Issues, fmt.Sprintf("captured_at: %v", err))
	}
	d.CapturedAt = ts
	return &d, nil
}
