package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/parcabul/broker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	phone      TEXT NOT NULL UNIQUE,
	city       TEXT,
	conditions TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS requests (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id     TEXT NOT NULL UNIQUE,
	customer_name  TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	criteria       TEXT NOT NULL,
	filters        TEXT NOT NULL,
	match_count    INTEGER NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS matches (
	id             TEXT PRIMARY KEY,
	request_id     TEXT NOT NULL REFERENCES requests(request_id),
	position       INTEGER NOT NULL,
	supplier_name  TEXT NOT NULL,
	supplier_phone TEXT NOT NULL,
	city           TEXT,
	condition      TEXT NOT NULL,
	price          REAL,
	currency       TEXT NOT NULL,
	part_name      TEXT,
	stock_code     TEXT,
	supplier_known INTEGER NOT NULL DEFAULT 0,
	supplier_id    INTEGER,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (request_id, position)
);

CREATE INDEX IF NOT EXISTS idx_vendors_city ON vendors(city);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
CREATE INDEX IF NOT EXISTS idx_matches_request ON matches(request_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Vendors ---

func (s *SQLiteStore) CreateVendor(ctx context.Context, v model.SupplierRecord) (*model.SupplierRecord, error) {
	now := time.Now().UTC()
	conds, err := marshalConditions(v.Conditions)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vendors (name, phone, city, conditions, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		v.Name, v.Phone, nullString(v.City), conds, now, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "sqlite: vendor phone %s", v.Phone)
		}
		return nil, eris.Wrap(err, "sqlite: insert vendor")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: vendor last insert id")
	}

	v.ID = id
	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Conditions == nil {
		v.Conditions = []string{}
	}
	return &v, nil
}

func (s *SQLiteStore) UpdateVendor(ctx context.Context, id int64, u model.SupplierUpdate) error {
	var sets []string
	var args []any
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *u.Phone)
	}
	if u.City != nil {
		sets = append(sets, "city = ?")
		args = append(args, nullString(*u.City))
	}
	if u.Conditions != nil {
		conds, err := marshalConditions(u.Conditions)
		if err != nil {
			return err
		}
		sets = append(sets, "conditions = ?")
		args = append(args, conds)
	}
	if len(sets) == 0 {
		return eris.New("sqlite: update vendor: no fields")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE vendors SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: update vendor %d", id)
		}
		return eris.Wrapf(err, "sqlite: update vendor %d", id)
	}
	return checkRowsAffected(res, "vendor", id)
}

func (s *SQLiteStore) DeleteVendor(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vendors WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete vendor %d", id)
	}
	return checkRowsAffected(res, "vendor", id)
}

func (s *SQLiteStore) GetVendor(ctx context.Context, id int64) (*model.SupplierRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, city, conditions, created_at, updated_at FROM vendors WHERE id = ?`, id)
	v, err := scanSQLiteVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: vendor %d", id)
	}
	return v, err
}

func (s *SQLiteStore) ListVendors(ctx context.Context, filter VendorFilter) ([]model.SupplierRecord, error) {
	query := `SELECT id, name, phone, city, conditions, created_at, updated_at FROM vendors`
	var args []any
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + q + "%"
		query += ` WHERE name LIKE ? OR phone LIKE ? OR city LIKE ?`
		args = append(args, pattern, pattern, pattern)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, vendorLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendors")
	}
	defer rows.Close()
	return collectSQLiteVendors(rows)
}

func (s *SQLiteStore) FindVendorsByPhones(ctx context.Context, phones []string) ([]model.SupplierRecord, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	args := make([]any, len(phones))
	for i, p := range phones {
		args[i] = p
	}
	query := `SELECT id, name, phone, city, conditions, created_at, updated_at FROM vendors WHERE phone IN (` +
		placeholders(len(phones)) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find vendors by phones")
	}
	defer rows.Close()
	return collectSQLiteVendors(rows)
}

// --- Requests ---

func (s *SQLiteStore) InsertRequest(ctx context.Context, r model.RequestRecord) error {
	return insertSQLiteRequest(ctx, s.db, r)
}

// InsertMatches writes all rows in one transaction.
func (s *SQLiteStore) InsertMatches(ctx context.Context, requestID string, matches []model.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin matches tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertSQLiteMatches(ctx, tx, requestID, matches); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit matches")
}

// RecordRequest writes the header and its rows in one transaction, so a
// failed row leaves no header behind.
func (s *SQLiteStore) RecordRequest(ctx context.Context, r model.RequestRecord, matches []model.MatchRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertSQLiteRequest(ctx, tx, r); err != nil {
		return err
	}
	if err := insertSQLiteMatches(ctx, tx, r.RequestID, matches); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit request %s", r.RequestID)
}

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLiteRequest(ctx context.Context, ex sqliteExecer, r model.RequestRecord) error {
	criteriaJSON, err := json.Marshal(r.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal criteria")
	}
	filtersJSON, err := json.Marshal(r.Filters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal filters")
	}

	_, err = ex.ExecContext(ctx,
		`INSERT INTO requests (request_id, customer_name, customer_phone, criteria, filters, match_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.CustomerName, r.CustomerPhone, string(criteriaJSON), string(filtersJSON), r.MatchCount, r.CreatedAt.UTC(),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return eris.Wrapf(ErrDuplicate, "sqlite: request %s", r.RequestID)
		}
		return eris.Wrapf(err, "sqlite: insert request %s", r.RequestID)
	}
	return nil
}

func insertSQLiteMatches(ctx context.Context, tx *sql.Tx, requestID string, matches []model.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (id, request_id, position, supplier_name, supplier_phone, city, condition, price,
		   currency, part_name, stock_code, supplier_known, supplier_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare match insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range matches {
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		created := m.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx,
			id, requestID, m.Position, m.SupplierName, m.SupplierPhone, nullString(m.City), m.Condition,
			m.Price, m.Currency, nullString(m.PartName), nullString(m.StockCode), m.SupplierKnown, m.SupplierID, created.UTC(),
		); err != nil {
			if isSQLiteUnique(err) {
				return eris.Wrapf(ErrDuplicate, "sqlite: match %s#%d", requestID, m.Position)
			}
			return eris.Wrapf(err, "sqlite: insert match %s#%d", requestID, m.Position)
		}
	}
	return nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (*model.RequestRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT request_id, customer_name, customer_phone, criteria, filters, match_count, created_at
		 FROM requests WHERE request_id = ?`, requestID)
	r, err := scanSQLiteRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: request %s", requestID)
	}
	return r, err
}

// ListMatches returns rows by ascending price, missing prices last, then by
// stored rank position.
func (s *SQLiteStore) ListMatches(ctx context.Context, requestID string) ([]model.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, position, supplier_name, supplier_phone, city, condition, price, currency,
		        part_name, stock_code, supplier_known, supplier_id, created_at
		 FROM matches WHERE request_id = ?
		 ORDER BY price IS NULL, price ASC, position ASC`, requestID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list matches %s", requestID)
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var city, partName, stockCode sql.NullString
		var price sql.NullFloat64
		var supplierID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.RequestID, &m.Position, &m.SupplierName, &m.SupplierPhone, &city,
			&m.Condition, &price, &m.Currency, &partName, &stockCode, &m.SupplierKnown, &supplierID, &m.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match")
		}
		m.City = city.String
		m.PartName = partName.String
		m.StockCode = stockCode.String
		if price.Valid {
			p := price.Float64
			m.Price = &p
		}
		if supplierID.Valid {
			id := supplierID.Int64
			m.SupplierID = &id
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list matches iterate")
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.RequestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, customer_name, customer_phone, criteria, filters, match_count, created_at
		 FROM requests ORDER BY seq DESC LIMIT ?`, requestLimit(filter.Limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close()

	var out []model.RequestRecord
	for rows.Next() {
		r, err := scanSQLiteRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteVendor(row scannable) (*model.SupplierRecord, error) {
	var v model.SupplierRecord
	var city sql.NullString
	var conds string
	if err := row.Scan(&v.ID, &v.Name, &v.Phone, &city, &conds, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan vendor")
	}
	v.City = city.String
	c, err := unmarshalConditions([]byte(conds))
	if err != nil {
		return nil, err
	}
	v.Conditions = c
	return &v, nil
}

func collectSQLiteVendors(rows *sql.Rows) ([]model.SupplierRecord, error) {
	var out []model.SupplierRecord
	for rows.Next() {
		v, err := scanSQLiteVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: vendors iterate")
}

func scanSQLiteRequest(row scannable) (*model.RequestRecord, error) {
	var r model.RequestRecord
	var criteriaJSON, filtersJSON string
	if err := row.Scan(&r.RequestID, &r.CustomerName, &r.CustomerPhone, &criteriaJSON, &filtersJSON,
		&r.MatchCount, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan request")
	}
	if err := json.Unmarshal([]byte(criteriaJSON), &r.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
	}
	if err := json.Unmarshal([]byte(filtersJSON), &r.Filters); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal filters")
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalConditions(c []string) (string, error) {
	if c == nil {
		c = []string{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal conditions")
	}
	return string(b), nil
}

func unmarshalConditions(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal conditions")
	}
	return out, nil
}
