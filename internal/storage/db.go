package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"zilazol/internal"
	"zilazol/internal/entity"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS chains (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  dialect TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subchains (
  id TEXT,
  chain_id TEXT,
  name TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_subchains ON subchains(IFNULL(chain_id, ''), IFNULL(id, ''));

CREATE TABLE IF NOT EXISTS stores (
  id TEXT,
  chain_id TEXT,
  subchain_id TEXT,
  bikoret_number TEXT,
  type TEXT,
  name TEXT,
  address TEXT,
  city TEXT,
  zip_code TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_stores ON stores(IFNULL(chain_id, ''), IFNULL(subchain_id, ''), IFNULL(id, ''));

CREATE TABLE IF NOT EXISTS items (
  chain_id TEXT,
  subchain_id TEXT,
  store_id TEXT,
  code TEXT,
  name TEXT,
  type TEXT,
  manufacturer_name TEXT,
  manufacture_country TEXT,
  description TEXT,
  unit_of_quantity TEXT,
  quantity REAL,
  is_weighted INTEGER,
  unit_of_measure TEXT,
  unit_of_measure_price REAL,
  quantity_in_package REAL,
  price REAL,
  allow_discount INTEGER,
  status TEXT,
  update_date TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_items ON items(IFNULL(chain_id, ''), IFNULL(subchain_id, ''), IFNULL(store_id, ''), IFNULL(code, ''));
CREATE INDEX IF NOT EXISTS idx_items_code ON items(code);

CREATE TABLE IF NOT EXISTS promotions (
  chain_id TEXT,
  subchain_id TEXT,
  store_id TEXT,
  id TEXT,
  description TEXT,
  update_date TEXT,
  start_at TEXT,
  end_at TEXT,
  min_quantity REAL,
  reward_type TEXT,
  discounted_price REAL,
  min_items_offered REAL,
  items TEXT,
  additional_restrictions TEXT,
  club_id TEXT,
  allow_multiple_discounts INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_promotions ON promotions(IFNULL(chain_id, ''), IFNULL(subchain_id, ''), IFNULL(store_id, ''), IFNULL(id, ''));

CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chain TEXT NOT NULL,
  chainId TEXT NOT NULL,
  dialect TEXT NOT NULL,
  category TEXT NOT NULL,
  name TEXT NOT NULL,
  hash TEXT NOT NULL,
  rawRef TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  error TEXT,
  fetchedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(chainId, category, name)
);

CREATE TABLE IF NOT EXISTS canonical_names (
  code TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  variants INTEGER NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  fileId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(fileId) REFERENCES files(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

var tables = map[internal.EntityKind]string{
	internal.KindItem:      "items",
	internal.KindPromotion: "promotions",
	internal.KindStore:     "stores",
	internal.KindSubchain:  "subchains",
}

func insertStatement(kind internal.EntityKind) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("no table for entity kind %q", kind)
	}
	cols := entity.Columns(kind)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks), nil
}

func (d *DB) UpsertChains(chains []internal.Chain) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO chains (id, name, dialect) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  dialect=excluded.dialect,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chains {
		if _, err := stmt.Exec(c.ID, c.Name, string(c.Dialect)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListChains() ([]internal.Chain, error) {
	rows, err := d.conn.Query(`SELECT id, name, dialect FROM chains ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Chain
	for rows.Next() {
		var c internal.Chain
		var dialect string
		if err := rows.Scan(&c.ID, &c.Name, &dialect); err != nil {
			return nil, err
		}
		c.Dialect = internal.Dialect(dialect)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertEntities writes entities in one transaction, replacing rows that
// collide on the table's natural key.
func (d *DB) InsertEntities(ctx context.Context, entities []entity.Entity) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmts := map[internal.EntityKind]*sql.Stmt{}
	defer func() {
		for _, s := range stmts {
			_ = s.Close()
		}
	}()

	for _, e := range entities {
		stmt, ok := stmts[e.Kind()]
		if !ok {
			query, err := insertStatement(e.Kind())
			if err != nil {
				return 0, err
			}
			if stmt, err = tx.PrepareContext(ctx, query); err != nil {
				return 0, err
			}
			stmts[e.Kind()] = stmt
		}
		if _, err := stmt.ExecContext(ctx, e.Values()...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", e.Kind(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entities), nil
}

func (d *DB) CountEntities(kind internal.EntityKind) (int, error) {
	table, ok := tables[kind]
	if !ok {
		return 0, fmt.Errorf("no table for entity kind %q", kind)
	}
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
	return n, err
}

// UpsertFile records a downloaded file. Refetching a file whose content did
// not change keeps its current status, so it is not processed twice.
func (d *DB) UpsertFile(row internal.FileRow) (internal.FileRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO files (chain, chainId, dialect, category, name, hash, rawRef, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chainId, category, name) DO UPDATE SET
  chain=excluded.chain,
  dialect=excluded.dialect,
  rawRef=excluded.rawRef,
  status=CASE WHEN files.hash = excluded.hash THEN files.status ELSE excluded.status END,
  hash=excluded.hash,
  updatedAt=CURRENT_TIMESTAMP
`, row.Chain, row.ChainID, string(row.Dialect), string(row.Category), row.Name, row.Hash, row.RawRef, string(row.Status))
	if err != nil {
		return internal.FileRow{}, err
	}

	out, err := d.getFile(`chainId = ? AND category = ? AND name = ?`, row.ChainID, string(row.Category), row.Name)
	if err != nil {
		return internal.FileRow{}, err
	}
	if out == nil {
		return internal.FileRow{}, errors.New("failed to upsert file")
	}
	return *out, nil
}

const fileColumns = `id, chain, chainId, dialect, category, name, hash, rawRef, status, fetchedAt`

func scanFile(scan func(...any) error) (internal.FileRow, error) {
	var row internal.FileRow
	var dialect, category, status string
	err := scan(&row.ID, &row.Chain, &row.ChainID, &dialect, &category, &row.Name, &row.Hash, &row.RawRef, &status, &row.FetchedAt)
	row.Dialect = internal.Dialect(dialect)
	row.Category = internal.Category(category)
	row.Status = internal.FileStatus(status)
	return row, err
}

func (d *DB) getFile(where string, args ...any) (*internal.FileRow, error) {
	row, err := scanFile(d.conn.QueryRow(`SELECT `+fileColumns+` FROM files WHERE `+where, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetFileByID(id int) (*internal.FileRow, error) {
	return d.getFile(`id = ?`, id)
}

func (d *DB) ListFilesByStatus(status internal.FileStatus, limit int) ([]internal.FileRow, error) {
	rows, err := d.conn.Query(`SELECT `+fileColumns+` FROM files WHERE status = ? ORDER BY id ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.FileRow
	for rows.Next() {
		row, err := scanFile(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateFileStatus(fileID int, status internal.FileStatus, reason string) error {
	var errText *string
	if strings.TrimSpace(reason) != "" {
		errText = &reason
	}
	_, err := d.conn.Exec(`UPDATE files SET status = ?, error = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), errText, fileID)
	return err
}

// ItemNameGroups maps every item code to the names stores published for it,
// one entry per row. Codes with fewer than minVariants rows are left out.
func (d *DB) ItemNameGroups(ctx context.Context, minVariants int) (map[string][]string, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT code, name FROM items
WHERE code IS NOT NULL AND TRIM(COALESCE(name, '')) != ''
ORDER BY code, chain_id, store_id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := map[string][]string{}
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, err
		}
		groups[code] = append(groups[code], name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for code, names := range groups {
		if len(names) < minVariants {
			delete(groups, code)
		}
	}
	return groups, nil
}

func (d *DB) UpsertCanonicalNames(ctx context.Context, names []internal.CanonicalNameRow) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO canonical_names (code, name, variants) VALUES (?, ?, ?)
ON CONFLICT(code) DO UPDATE SET
  name=excluded.name,
  variants=excluded.variants,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range names {
		if _, err := stmt.ExecContext(ctx, n.Code, n.Name, n.Variants); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListCanonicalNames(ctx context.Context) ([]internal.CanonicalNameRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT code, name, variants, updatedAt FROM canonical_names ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CanonicalNameRow
	for rows.Next() {
		var row internal.CanonicalNameRow
		if err := rows.Scan(&row.Code, &row.Name, &row.Variants, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) ListStores() ([]internal.StoreRow, error) {
	rows, err := d.conn.Query(`
SELECT s.chain_id, s.id, s.subchain_id, sc.name, s.type, s.name, s.address, s.city, s.zip_code
FROM stores s
LEFT JOIN subchains sc ON sc.chain_id = s.chain_id AND sc.id = s.subchain_id
ORDER BY s.chain_id, s.subchain_id, CAST(s.id AS INTEGER)
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.StoreRow
	for rows.Next() {
		var row internal.StoreRow
		var chainID, storeType sql.NullString
		if err := rows.Scan(&chainID, &row.StoreID, &row.SubchainID, &row.SubchainName, &storeType, &row.Name, &row.Address, &row.City, &row.ZipCode); err != nil {
			return nil, err
		}
		row.ChainID = chainID.String
		row.Type = storeType.String
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID string, fileID int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	var file *int
	if fileID > 0 {
		file = &fileID
	}
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, fileId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, file, string(timingsJSON), string(countsJSON))
	return err
}

type RunRow struct {
	ID      int
	TraceID string
	FileID  *int
	Timings map[string]float64
	Counts  map[string]int
}

func (d *DB) ListRuns(limit int) ([]RunRow, error) {
	rows, err := d.conn.Query(`SELECT id, traceId, fileId, timingsJson, countsJson FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&row.ID, &row.TraceID, &row.FileID, &timingsJSON, &countsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
