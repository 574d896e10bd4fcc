package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/pbaille/braindump/internal/domain"
)

//go:embed schema.sql
var schema string

// Supported database/sql driver names
const (
	DriverCGO    = "sqlite3" // mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a row addressed by id does not exist for the owner
var ErrNotFound = errors.New("not found")

// Store handles database operations for fragments, organized items and the archive
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dbPath with the given driver
func Open(driver, dbPath string) (*Store, error) {
	if driver == "" {
		driver = DriverCGO
	}
	if driver != DriverCGO && driver != DriverPureGo {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY between our own goroutines
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(tsLayout)
}

func parseStamp(v string) time.Time {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, v)
	}
	return t
}

// AddFragment captures a new raw fragment for ownerID
func (s *Store) AddFragment(ctx context.Context, ownerID, content string) (*domain.RawFragment, error) {
	id := uuid.New().String()
	now := s.stamp()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO fragments (id, owner_id, content, created_at) VALUES (?, ?, ?, ?)",
		id, ownerID, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert fragment: %w", err)
	}

	return &domain.RawFragment{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		CreatedAt: parseStamp(now),
	}, nil
}

// PendingFragments returns the owner's unprocessed fragments, oldest first
func (s *Store) PendingFragments(ctx context.Context, ownerID string) ([]domain.RawFragment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, owner_id, content, created_at FROM fragments WHERE owner_id = ? ORDER BY created_at, id",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}
	defer rows.Close()

	var frags []domain.RawFragment
	for rows.Next() {
		var f domain.RawFragment
		var created string
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Content, &created); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		f.CreatedAt = parseStamp(created)
		frags = append(frags, f)
	}

	return frags, rows.Err()
}

// DeleteFragment removes one pending fragment
func (s *Store) DeleteFragment(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM fragments WHERE owner_id = ? AND id = ?", ownerID, id)
	if err != nil {
		return fmt.Errorf("delete fragment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fragment %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeFragments deletes consumed fragments. With no ids every fragment of the owner
// is deleted.
func (s *Store) PurgeFragments(ctx context.Context, ownerID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	if len(ids) == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE owner_id = ?", ownerID); err != nil {
			return fmt.Errorf("purge fragments: %w", err)
		}
		return tx.Commit()
	}

	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := min(start+chunk, len(ids))
		part := ids[start:end]

		args := make([]any, 0, len(part)+1)
		args = append(args, ownerID)
		for _, id := range part {
			args = append(args, id)
		}
		query := "DELETE FROM fragments WHERE owner_id = ? AND id IN (" + placeholders(len(part)) + ")"
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("purge fragments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purge: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const itemColumns = "id, owner_id, source_fragment_id, category, content, recurrence, date, day_of_week, time, completed, replay_key, created_at, updated_at"

// OpenItems returns the owner's organized items that are not completed
func (s *Store) OpenItems(ctx context.Context, ownerID string) ([]domain.OrganizedItem, error) {
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM organized_items WHERE owner_id = ? AND completed = 0 ORDER BY created_at, id",
		ownerID,
	)
}

// ListOrganized returns the owner's organized items, optionally including completed ones
func (s *Store) ListOrganized(ctx context.Context, ownerID string, includeCompleted bool) ([]domain.OrganizedItem, error) {
	if !includeCompleted {
		return s.OpenItems(ctx, ownerID)
	}
	return s.queryItems(ctx,
		"SELECT "+itemColumns+" FROM organized_items WHERE owner_id = ? ORDER BY created_at, id",
		ownerID,
	)
}

// FindItem resolves an item by id or unique id prefix
func (s *Store) FindItem(ctx context.Context, ownerID, idPrefix string) (*domain.OrganizedItem, error) {
	if strings.TrimSpace(idPrefix) == "" {
		return nil, errors.New("item id prefix is empty")
	}
	items, err := s.queryItems(ctx,
		"SELECT "+itemColumns+` FROM organized_items WHERE owner_id = ? AND id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`,
		ownerID, escapeLike(idPrefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("item %s: %w", idPrefix, ErrNotFound)
	case 1:
		return &items[0], nil
	}
	return nil, fmt.Errorf("item prefix %s is ambiguous", idPrefix)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike quotes LIKE wildcards so s matches literally under ESCAPE '\'
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]domain.OrganizedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list organized items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrganizedItem
	for rows.Next() {
		var (
			it                                domain.OrganizedItem
			source, recurrence, date, day, tm sql.NullString
			category, created, updated        string
			completed                         int
		)
		if err := rows.Scan(&it.ID, &it.OwnerID, &source, &category, &it.Content, &recurrence,
			&date, &day, &tm, &completed, &it.ReplayKey, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan organized item: %w", err)
		}
		it.SourceFragmentID = stringPtr(source)
		it.Category = domain.Category(category)
		it.Recurrence = domain.ParseRecurrence(recurrence.String)
		it.Date = stringPtr(date)
		it.DayOfWeek = stringPtr(day)
		it.Time = stringPtr(tm)
		it.Completed = completed != 0
		it.CreatedAt = parseStamp(created)
		it.UpdatedAt = parseStamp(updated)
		items = append(items, it)
	}

	return items, rows.Err()
}

// InsertOrganized commits a merge batch in one transaction. Rows whose id already
// exists are enriched; other rows are inserted, and a row whose replay key already
// exists (a replayed pass) is enriched instead of duplicated. Enrichment never
// replaces a stored value with NULL.
//
// On success items[i].ID holds the id of the row that was written, which differs
// from the given id when a replay key matched an earlier row.
func (s *Store) InsertOrganized(ctx context.Context, items []domain.OrganizedItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	stored := make([]string, len(items))
	for i, it := range items {
		if !it.Category.Valid() {
			return fmt.Errorf("insert organized item %q: invalid category %q", it.Content, it.Category)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE organized_items SET
				date = COALESCE(?, date),
				day_of_week = COALESCE(?, day_of_week),
				time = COALESCE(?, time),
				updated_at = ?
			WHERE id = ? AND owner_id = ?`,
			nullable(it.Date), nullable(it.DayOfWeek), nullable(it.Time), now, it.ID, it.OwnerID,
		)
		if err != nil {
			return fmt.Errorf("enrich organized item: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored[i] = it.ID
			continue
		}

		created := now
		if !it.CreatedAt.IsZero() {
			created = it.CreatedAt.UTC().Format(tsLayout)
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO organized_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(replay_key) DO UPDATE SET
				date = COALESCE(excluded.date, organized_items.date),
				day_of_week = COALESCE(excluded.day_of_week, organized_items.day_of_week),
				time = COALESCE(excluded.time, organized_items.time),
				updated_at = excluded.updated_at
			RETURNING id`,
			it.ID, it.OwnerID, nullable(it.SourceFragmentID), string(it.Category), it.Content,
			nullableRecurrence(it.Recurrence), nullable(it.Date), nullable(it.DayOfWeek), nullable(it.Time),
			boolInt(it.Completed), it.ReplayKey, created, now,
		).Scan(&stored[i])
		if err != nil {
			return fmt.Errorf("insert organized item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	for i := range items {
		items[i].ID = stored[i]
	}
	return nil
}

// SetCompleted toggles an item's completion flag
func (s *Store) SetCompleted(ctx context.Context, ownerID, id string, completed bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE organized_items SET completed = ?, updated_at = ? WHERE owner_id = ? AND id = ?",
		boolInt(completed), s.stamp(), ownerID, id,
	)
	if err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// Archive appends a copy of each item to the archive
func (s *Store) Archive(ctx context.Context, items []domain.OrganizedItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	for _, it := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO archived_items (item_id, owner_id, source_fragment_id, category, content,
				recurrence, date, day_of_week, time, completed, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.OwnerID, nullable(it.SourceFragmentID), string(it.Category), it.Content,
			nullableRecurrence(it.Recurrence), nullable(it.Date), nullable(it.DayOfWeek), nullable(it.Time),
			boolInt(it.Completed), now,
		)
		if err != nil {
			return fmt.Errorf("archive item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	return nil
}

// ListArchive returns the owner's archived copies, newest first
func (s *Store) ListArchive(ctx context.Context, ownerID string, limit int) ([]domain.OrganizedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, owner_id, source_fragment_id, category, content, recurrence, date,
			day_of_week, time, completed, archived_at
		FROM archived_items WHERE owner_id = ? ORDER BY seq DESC LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var items []domain.OrganizedItem
	for rows.Next() {
		var (
			it                                domain.OrganizedItem
			source, recurrence, date, day, tm sql.NullString
			category, archived                string
			completed                         int
		)
		if err := rows.Scan(&it.ID, &it.OwnerID, &source, &category, &it.Content, &recurrence,
			&date, &day, &tm, &completed, &archived); err != nil {
			return nil, fmt.Errorf("scan archived item: %w", err)
		}
		it.SourceFragmentID = stringPtr(source)
		it.Category = domain.Category(category)
		it.Recurrence = domain.ParseRecurrence(recurrence.String)
		it.Date = stringPtr(date)
		it.DayOfWeek = stringPtr(day)
		it.Time = stringPtr(tm)
		it.Completed = completed != 0
		it.CreatedAt = parseStamp(archived)
		items = append(items, it)
	}

	return items, rows.Err()
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableRecurrence(r domain.Recurrence) any {
	if r == domain.RecurNone {
		return nil
	}
	return string(r)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
