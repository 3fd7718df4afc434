package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parcabul/broker/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock's pool
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	phone      TEXT NOT NULL UNIQUE,
	city       TEXT,
	conditions JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS requests (
	seq            BIGSERIAL PRIMARY KEY,
	request_id     TEXT NOT NULL UNIQUE,
	customer_name  TEXT NOT NULL,
	customer_phone TEXT NOT NULL,
	criteria       JSONB NOT NULL,
	filters        JSONB NOT NULL,
	match_count    INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS matches (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request_id     TEXT NOT NULL REFERENCES requests(request_id),
	position       INTEGER NOT NULL,
	supplier_name  TEXT NOT NULL,
	supplier_phone TEXT NOT NULL,
	city           TEXT,
	condition      TEXT NOT NULL,
	price          DOUBLE PRECISION,
	currency       TEXT NOT NULL,
	part_name      TEXT,
	stock_code     TEXT,
	supplier_known BOOLEAN NOT NULL DEFAULT false,
	supplier_id    BIGINT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (request_id, position)
);

CREATE INDEX IF NOT EXISTS idx_vendors_city ON vendors(city);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
CREATE INDEX IF NOT EXISTS idx_matches_request ON matches(request_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Vendors ---

const vendorColumns = `id, name, phone, city, conditions, created_at, updated_at`

func (s *PostgresStore) CreateVendor(ctx context.Context, v model.SupplierRecord) (*model.SupplierRecord, error) {
	now := time.Now().UTC()
	conds, err := marshalConditions(v.Conditions)
	if err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO vendors (name, phone, city, conditions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		v.Name, v.Phone, nullableText(v.City), conds, now, now,
	).Scan(&v.ID)
	if err != nil {
		if isPgUnique(err) {
			return nil, eris.Wrapf(ErrDuplicate, "postgres: vendor phone %s", v.Phone)
		}
		return nil, eris.Wrap(err, "postgres: insert vendor")
	}

	v.CreatedAt = now
	v.UpdatedAt = now
	if v.Conditions == nil {
		v.Conditions = []string{}
	}
	return &v, nil
}

func (s *PostgresStore) UpdateVendor(ctx context.Context, id int64, u model.SupplierUpdate) error {
	var sets []string
	var args []any
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.City != nil {
		add("city", nullableText(*u.City))
	}
	if u.Conditions != nil {
		conds, err := marshalConditions(u.Conditions)
		if err != nil {
			return err
		}
		add("conditions", conds)
	}
	if len(sets) == 0 {
		return eris.New("postgres: update vendor: no fields")
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE vendors SET `+strings.Join(sets, ", ")+` WHERE id = $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		if isPgUnique(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: update vendor %d", id)
		}
		return eris.Wrapf(err, "postgres: update vendor %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: vendor %d", id)
	}
	return nil
}

func (s *PostgresStore) DeleteVendor(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete vendor %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: vendor %d", id)
	}
	return nil
}

func (s *PostgresStore) GetVendor(ctx context.Context, id int64) (*model.SupplierRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id)
	v, err := scanPgVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: vendor %d", id)
	}
	return v, err
}

func (s *PostgresStore) ListVendors(ctx context.Context, filter VendorFilter) ([]model.SupplierRecord, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors`
	var args []any
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		query += ` WHERE name ILIKE $1 OR phone LIKE $1 OR city ILIKE $1`
	}
	args = append(args, vendorLimit(filter.Limit))
	query += ` ORDER BY id DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendors")
	}
	defer rows.Close()
	return collectPgVendors(rows)
}

func (s *PostgresStore) FindVendorsByPhones(ctx context.Context, phones []string) ([]model.SupplierRecord, error) {
	if len(phones) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE phone = ANY($1)`, phones)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find vendors by phones")
	}
	defer rows.Close()
	return collectPgVendors(rows)
}

// --- Requests ---

func (s *PostgresStore) InsertRequest(ctx context.Context, r model.RequestRecord) error {
	return insertPgRequest(ctx, s.pool, r)
}

// InsertMatches writes all rows in one transaction.
func (s *PostgresStore) InsertMatches(ctx context.Context, requestID string, matches []model.MatchRecord) error {
	if len(matches) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin matches tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertPgMatches(ctx, tx, requestID, matches); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit matches")
}

// RecordRequest writes the header and its rows in one transaction, so a
// failed row leaves no header behind.
func (s *PostgresStore) RecordRequest(ctx context.Context, r model.RequestRecord, matches []model.MatchRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := insertPgRequest(ctx, tx, r); err != nil {
		return err
	}
	if err := insertPgMatches(ctx, tx, r.RequestID, matches); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit request %s", r.RequestID)
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertPgRequest(ctx context.Context, ex pgExecer, r model.RequestRecord) error {
	criteriaJSON, err := json.Marshal(r.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}
	filtersJSON, err := json.Marshal(r.Filters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal filters")
	}

	_, err = ex.Exec(ctx,
		`INSERT INTO requests (request_id, customer_name, customer_phone, criteria, filters, match_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.RequestID, r.CustomerName, r.CustomerPhone, criteriaJSON, filtersJSON, r.MatchCount, r.CreatedAt.UTC(),
	)
	if err != nil {
		if isPgUnique(err) {
			return eris.Wrapf(ErrDuplicate, "postgres: request %s", r.RequestID)
		}
		return eris.Wrapf(err, "postgres: insert request %s", r.RequestID)
	}
	return nil
}

func insertPgMatches(ctx context.Context, ex pgExecer, requestID string, matches []model.MatchRecord) error {
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
		if _, err := ex.Exec(ctx,
			`INSERT INTO matches (id, request_id, position, supplier_name, supplier_phone, city, condition, price,
			   currency, part_name, stock_code, supplier_known, supplier_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			id, requestID, m.Position, m.SupplierName, m.SupplierPhone, nullableText(m.City), m.Condition,
			m.Price, m.Currency, nullableText(m.PartName), nullableText(m.StockCode), m.SupplierKnown, m.SupplierID, created.UTC(),
		); err != nil {
			if isPgUnique(err) {
				return eris.Wrapf(ErrDuplicate, "postgres: match %s#%d", requestID, m.Position)
			}
			return eris.Wrapf(err, "postgres: insert match %s#%d", requestID, m.Position)
		}
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (*model.RequestRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT request_id, customer_name, customer_phone, criteria, filters, match_count, created_at
		 FROM requests WHERE request_id = $1`, requestID)
	r, err := scanPgRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get request %s", requestID)
	}
	return r, err
}

func (s *PostgresStore) ListMatches(ctx context.Context, requestID string) ([]model.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, request_id, position, supplier_name, supplier_phone, city, condition, price, currency,
		        part_name, stock_code, supplier_known, supplier_id, created_at
		 FROM matches WHERE request_id = $1
		 ORDER BY price ASC NULLS LAST, position ASC`, requestID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list matches %s", requestID)
	}
	defer rows.Close()

	var out []model.MatchRecord
	for rows.Next() {
		var m model.MatchRecord
		var city, partName, stockCode *string
		if err := rows.Scan(&m.ID, &m.RequestID, &m.Position, &m.SupplierName, &m.SupplierPhone, &city,
			&m.Condition, &m.Price, &m.Currency, &partName, &stockCode, &m.SupplierKnown, &m.SupplierID, &m.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan match")
		}
		m.City = deref(city)
		m.PartName = deref(partName)
		m.StockCode = deref(stockCode)
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list matches iterate")
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.RequestRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT request_id, customer_name, customer_phone, criteria, filters, match_count, created_at
		 FROM requests ORDER BY seq DESC LIMIT $1`, requestLimit(filter.Limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
	}
	defer rows.Close()

	var out []model.RequestRecord
	for rows.Next() {
		r, err := scanPgRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

// helpers

func scanPgVendor(row pgx.Row) (*model.SupplierRecord, error) {
	var v model.SupplierRecord
	var city *string
	var conds []byte
	if err := row.Scan(&v.ID, &v.Name, &v.Phone, &city, &conds, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan vendor")
	}
	v.City = deref(city)
	c, err := unmarshalConditions(conds)
	if err != nil {
		return nil, err
	}
	v.Conditions = c
	return &v, nil
}

func collectPgVendors(rows pgx.Rows) ([]model.SupplierRecord, error) {
	var out []model.SupplierRecord
	for rows.Next() {
		v, err := scanPgVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: vendors iterate")
}

func scanPgRequest(row pgx.Row) (*model.RequestRecord, error) {
	var r model.RequestRecord
	var criteriaJSON, filtersJSON []byte
	if err := row.Scan(&r.RequestID, &r.CustomerName, &r.CustomerPhone, &criteriaJSON, &filtersJSON,
		&r.MatchCount, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan request")
	}
	if err := json.Unmarshal(criteriaJSON, &r.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	if err := json.Unmarshal(filtersJSON, &r.Filters); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal filters")
	}
	return &r, nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
