package records

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Catalog is a SQL-backed stand-in for the host's record storage. It answers
// record lookups, live id resolution and breadcrumbs for tracked documents.
type Catalog struct {
	db            *sql.DB
	dialect       dialect
	fileListRoute string
}

var (
	_ opendocs.RecordLookup      = &Catalog{}
	_ opendocs.LiveIDResolver    = &Catalog{}
	_ opendocs.BreadcrumbBuilder = &Catalog{}
)

type CatalogOption func(*Catalog) error

const DefaultFileListRoute = "/typo3/module/file/list"

func WithFileListRoute(route string) CatalogOption {
	return func(c *Catalog) error {
		if route == "" {
			return errors.New("record catalog: empty file list route")
		}
		c.fileListRoute = route
		return nil
	}
}

// Open accepts postgres:// DSNs, sqlite://<path>, sqlite://:memory: or a bare
// sqlite DSN.
func Open(dsn string, opts ...CatalogOption) (*Catalog, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("record catalog: empty dsn")
	}
	driver, source, d := "sqlite3", dsn, dialectSQLite
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, d = "postgres", dialectPostgres
	case strings.HasPrefix(dsn, "sqlite://"):
		source = strings.TrimPrefix(dsn, "sqlite://")
		if source != ":memory:" {
			source = "file:" + source + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
		}
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, errors.Wrap(err, "record catalog: open")
	}
	if d == dialectSQLite && strings.Contains(source, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	c := &Catalog{db: db, dialect: d, fileListRoute: DefaultFileListRoute}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	idType := "INTEGER"
	if c.dialect == dialectPostgres {
		idType = "BIGINT"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog_records (
			table_name TEXT NOT NULL,
			uid ` + idType + ` NOT NULL,
			live_uid ` + idType + ` NOT NULL DEFAULT 0,
			pid ` + idType + ` NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			overlay TEXT NOT NULL DEFAULT '',
			file_uid ` + idType + ` NOT NULL DEFAULT 0,
			identifier TEXT NOT NULL DEFAULT '',
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (table_name, uid)
		)`,
		`CREATE INDEX IF NOT EXISTS catalog_records_by_live_uid
			ON catalog_records(table_name, live_uid)`,
	}
	for _, st := range stmts {
		if _, err := c.db.Exec(st); err != nil {
			return errors.Wrap(err, "record catalog: migrate")
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (c *Catalog) rebind(query string) string {
	if c.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Upsert inserts or replaces a record.
func (c *Catalog) Upsert(ctx context.Context, rec opendocs.Record) error {
	if strings.TrimSpace(rec.Table) == "" || rec.UID <= 0 {
		return errors.Errorf("record catalog: invalid record %s", opendocs.Identifier(rec.Table, rec.UID))
	}
	deleted := 0
	if rec.Deleted {
		deleted = 1
	}
	_, err := c.db.ExecContext(ctx, c.rebind(`
		INSERT INTO catalog_records (
			table_name, uid, live_uid, pid, title, icon, overlay, file_uid, identifier, deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name, uid) DO UPDATE SET
			live_uid = excluded.live_uid,
			pid = excluded.pid,
			title = excluded.title,
			icon = excluded.icon,
			overlay = excluded.overlay,
			file_uid = excluded.file_uid,
			identifier = excluded.identifier,
			deleted = excluded.deleted
	`), rec.Table, rec.UID, rec.LiveUID, rec.PID, rec.Title, rec.Icon, rec.Overlay, rec.File, rec.Identifier, deleted)
	if err != nil {
		return errors.Wrapf(err, "record catalog: upsert %s", opendocs.Identifier(rec.Table, rec.UID))
	}
	return nil
}

func (c *Catalog) hasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, c.rebind(`
		SELECT COUNT(1) FROM catalog_records WHERE table_name = ?
	`), table).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "record catalog: table lookup")
	}
	return n > 0, nil
}

const recordColumns = `table_name, uid, live_uid, pid, title, icon, overlay, file_uid, identifier, deleted`

func scanRecord(row interface{ Scan(...any) error }) (opendocs.Record, error) {
	var (
		rec     opendocs.Record
		deleted int
	)
	err := row.Scan(&rec.Table, &rec.UID, &rec.LiveUID, &rec.PID, &rec.Title, &rec.Icon, &rec.Overlay, &rec.File, &rec.Identifier, &deleted)
	rec.Deleted = deleted != 0
	return rec, err
}

// LookupRecord returns the live record, or its workspace overlay when one
// exists. Deleted records count as missing.
func (c *Catalog) LookupRecord(ctx context.Context, table string, uid int64) (opendocs.Record, error) {
	ok, err := c.hasTable(ctx, table)
	if err != nil {
		return opendocs.Record{}, err
	}
	if !ok {
		return opendocs.Record{}, errors.Wrapf(opendocs.ErrTableNotFound, "record catalog: %s", table)
	}
	rec, err := scanRecord(c.db.QueryRowContext(ctx, c.rebind(`
		SELECT `+recordColumns+`
		FROM catalog_records
		WHERE table_name = ? AND (uid = ? OR live_uid = ?) AND deleted = 0
		ORDER BY CASE WHEN live_uid = ? THEN 0 ELSE 1 END, uid
		LIMIT 1
	`), table, uid, uid, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return opendocs.Record{}, errors.Wrapf(opendocs.ErrRecordNotFound, "record catalog: %s", opendocs.Identifier(table, uid))
	}
	if err != nil {
		return opendocs.Record{}, errors.Wrap(err, "record catalog: lookup")
	}
	return rec, nil
}

// ResolveLiveID maps an overlay uid to the uid of its live record.
func (c *Catalog) ResolveLiveID(ctx context.Context, table string, id int64) (int64, bool, error) {
	var live int64
	err := c.db.QueryRowContext(ctx, c.rebind(`
		SELECT live_uid FROM catalog_records WHERE table_name = ? AND uid = ?
	`), table, id).Scan(&live)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "record catalog: resolve live id")
	}
	if live <= 0 {
		return 0, false, nil
	}
	return live, true, nil
}

func (c *Catalog) get(ctx context.Context, table string, uid int64) (opendocs.Record, bool, error) {
	rec, err := scanRecord(c.db.QueryRowContext(ctx, c.rebind(`
		SELECT `+recordColumns+` FROM catalog_records WHERE table_name = ? AND uid = ? AND deleted = 0
	`), table, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return opendocs.Record{}, false, nil
	}
	if err != nil {
		return opendocs.Record{}, false, errors.Wrap(err, "record catalog: get")
	}
	return rec, true, nil
}
