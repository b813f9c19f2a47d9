package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reckon/internal/entity"
	"reckon/internal/kgstore"
)

//go:embed schema.sql
var schemaSQL string

// Entry is one indexed projection of a stored entity.
type Entry struct {
	Path         string
	Name         string
	Category     string
	Tier         string
	Aliases      []string
	EmailDomains []string
}

// Index is a SQLite-backed read cache over the knowledge store. It is never
// authoritative: staleness between rebuilds is tolerated, and callers rebuild
// after a batch of writes before the next research phase.
type Index struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the index database.
func Open(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create index schema: %w", err)
	}

	return &Index{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}

// Rebuild replaces the index content from a full scan of the store.
// It is idempotent and total: prior content never survives a rebuild.
func (ix *Index) Rebuild(ctx context.Context, store kgstore.Store) (int, error) {
	paths, err := store.ListEntities(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("scan store: %w", err)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rebuild tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"entry_domains", "entry_aliases", "entries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	count := 0
	for _, path := range paths {
		fields, err := store.ReadEntity(ctx, path)
		if err != nil {
			if errors.Is(err, kgstore.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("read %s: %w", path, err)
		}
		if err := insertEntry(ctx, tx, entryFromFields(path, fields)); err != nil {
			return 0, err
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rebuild: %w", err)
	}
	return count, nil
}

// Upsert refreshes a single entry after a write, keeping the index warm
// within a session without a full rebuild.
func (ix *Index) Upsert(ctx context.Context, path string, fields kgstore.Fields) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteEntry(ctx, tx, path); err != nil {
		return err
	}
	if err := insertEntry(ctx, tx, entryFromFields(path, fields)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Remove drops an entry from the index.
func (ix *Index) Remove(ctx context.Context, path string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := deleteEntry(ctx, tx, path); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

// Get fetches one entry by path.
func (ix *Index) Get(ctx context.Context, path string) (*Entry, error) {
	row := ix.db.QueryRowContext(ctx,
		"SELECT path, name, category, tier FROM entries WHERE path = ?", path)
	return ix.scanEntry(ctx, row)
}

// FindByAlias returns the entry whose alias set contains the case-normalized
// key, or nil when absent.
func (ix *Index) FindByAlias(ctx context.Context, alias string) (*Entry, error) {
	key := entity.NormalizeAlias(alias)
	if key == "" {
		return nil, nil
	}
	row := ix.db.QueryRowContext(ctx, `
        SELECT e.path, e.name, e.category, e.tier
        FROM entries e JOIN entry_aliases a ON a.path = e.path
        WHERE a.alias = ?
        ORDER BY e.path LIMIT 1`, key)
	return ix.scanEntry(ctx, row)
}

// FindByEmailDomain returns all entries sharing an email domain.
func (ix *Index) FindByEmailDomain(ctx context.Context, domain string) ([]Entry, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, nil
	}
	rows, err := ix.db.QueryContext(ctx, `
        SELECT e.path, e.name, e.category, e.tier
        FROM entries e JOIN entry_domains d ON d.path = e.path
        WHERE d.domain = ?
        ORDER BY e.path`, domain)
	if err != nil {
		return nil, fmt.Errorf("query by domain: %w", err)
	}
	defer rows.Close()
	return ix.collectEntries(ctx, rows)
}

// Search returns entries whose name or alias contains the normalized query.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	key := entity.NormalizeAlias(query)
	if key == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(key) + "%"
	rows, err := ix.db.QueryContext(ctx, `
        SELECT DISTINCT e.path, e.name, e.category, e.tier
        FROM entries e LEFT JOIN entry_aliases a ON a.path = e.path
        WHERE lower(e.name) LIKE ? ESCAPE '\' OR a.alias LIKE ? ESCAPE '\'
        ORDER BY e.name LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	defer rows.Close()
	return ix.collectEntries(ctx, rows)
}

// ListAll returns every entry, ordered by path.
func (ix *Index) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := ix.db.QueryContext(ctx,
		"SELECT path, name, category, tier FROM entries ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list index entries: %w", err)
	}
	defer rows.Close()
	return ix.collectEntries(ctx, rows)
}

// Count returns the number of indexed entries.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var count int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func entryFromFields(path string, fields kgstore.Fields) Entry {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	entry := Entry{
		Path:         path,
		Name:         fields.Name,
		Tier:         fields.Tier,
		Aliases:      fields.AliasSet(),
		EmailDomains: fields.EmailDomains(),
	}
	if fields.Type != "" {
		entry.Category = fields.Type
	} else if len(parts) > 1 {
		entry.Category = parts[0]
	}
	if entry.Tier == "" && len(parts) == 3 {
		entry.Tier = parts[1]
	}
	return entry
}

func insertEntry(ctx context.Context, tx *sql.Tx, entry Entry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO entries (path, name, category, tier, updated_at) VALUES (?, ?, ?, ?, ?)",
		entry.Path, entry.Name, nullableString(entry.Category), nullableString(entry.Tier), now,
	); err != nil {
		return fmt.Errorf("insert entry %s: %w", entry.Path, err)
	}
	for _, alias := range entry.Aliases {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entry_aliases (alias, path) VALUES (?, ?)",
			alias, entry.Path,
		); err != nil {
			return fmt.Errorf("insert alias for %s: %w", entry.Path, err)
		}
	}
	for _, domain := range entry.EmailDomains {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO entry_domains (domain, path) VALUES (?, ?)",
			domain, entry.Path,
		); err != nil {
			return fmt.Errorf("insert domain for %s: %w", entry.Path, err)
		}
	}
	return nil
}

func deleteEntry(ctx context.Context, tx *sql.Tx, path string) error {
	for _, stmt := range []string{
		"DELETE FROM entry_domains WHERE path = ?",
		"DELETE FROM entry_aliases WHERE path = ?",
		"DELETE FROM entries WHERE path = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, path); err != nil {
			return fmt.Errorf("delete entry %s: %w", path, err)
		}
	}
	return nil
}

func (ix *Index) scanEntry(ctx context.Context, row *sql.Row) (*Entry, error) {
	var (
		entry    Entry
		category sql.NullString
		tier     sql.NullString
	)
	if err := row.Scan(&entry.Path, &entry.Name, &category, &tier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	entry.Category = category.String
	entry.Tier = tier.String
	if err := ix.loadDetails(ctx, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (ix *Index) collectEntries(ctx context.Context, rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			category sql.NullString
			tier     sql.NullString
		)
		if err := rows.Scan(&entry.Path, &entry.Name, &category, &tier); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Category = category.String
		entry.Tier = tier.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		if err := ix.loadDetails(ctx, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (ix *Index) loadDetails(ctx context.Context, entry *Entry) error {
	aliasRows, err := ix.db.QueryContext(ctx,
		"SELECT alias FROM entry_aliases WHERE path = ? ORDER BY alias", entry.Path)
	if err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var alias string
		if err := aliasRows.Scan(&alias); err != nil {
			return err
		}
		entry.Aliases = append(entry.Aliases, alias)
	}
	if err := aliasRows.Err(); err != nil {
		return err
	}

	domainRows, err := ix.db.QueryContext(ctx,
		"SELECT domain FROM entry_domains WHERE path = ? ORDER BY domain", entry.Path)
	if err != nil {
		return fmt.Errorf("load domains: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var domain string
		if err := domainRows.Scan(&domain); err != nil {
			return err
		}
		entry.EmailDomains = append(entry.EmailDomains, domain)
	}
	return domainRows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
