package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/getmockd/restwire/internal/id"
	"github.com/getmockd/restwire/pkg/logging"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EntityOptions configures an EntityManager.
type EntityOptions struct {
	// Driver is DriverSQLite or DriverPostgres.
	Driver string
	// DSN is passed to sql.Open.
	DSN string
	// Entities maps entity class names to table names. Unmapped classes are
	// used as table names directly.
	Entities map[string]string
	// Migrations are executed in order after the connection is opened.
	Migrations []string
	Logger     *slog.Logger
}

// EntityManager is the relational ObjectManager.
type EntityManager struct {
	db       *sql.DB
	driver   string
	entities map[string]string
	log      *slog.Logger
}

var _ ObjectManager = (*EntityManager)(nil)

// OpenEntityManager opens the database and runs the configured migrations.
func OpenEntityManager(ctx context.Context, opts EntityOptions) (*EntityManager, error) {
	switch opts.Driver {
	case DriverSQLite, DriverPostgres:
	case "":
		opts.Driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported driver %q (want %s or %s)", opts.Driver, DriverSQLite, DriverPostgres)
	}
	if opts.DSN == "" {
		return nil, errors.New("dsn is required")
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", opts.Driver, err)
	}
	if opts.Driver == DriverSQLite {
		// An in-memory database lives and dies with its connection.
		db.SetMaxOpenConns(1)
	}

	em, err := NewEntityManager(db, opts.Driver, opts.Entities, opts.Logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	for i, stmt := range opts.Migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migration %d: %w", i, err)
		}
	}
	return em, nil
}

// NewEntityManager wraps an existing handle.
func NewEntityManager(db *sql.DB, driver string, entities map[string]string, logger *slog.Logger) (*EntityManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	mapped := make(map[string]string, len(entities))
	for class, table := range entities {
		if !identifierRe.MatchString(table) {
			return nil, fmt.Errorf("entity %q maps to invalid table name %q", class, table)
		}
		mapped[class] = table
	}
	return &EntityManager{
		db:       db,
		driver:   driver,
		entities: mapped,
		log:      logging.OrNop(logger),
	}, nil
}

// DB returns the underlying handle.
func (m *EntityManager) DB() *sql.DB { return m.db }

// Driver returns the database/sql driver name.
func (m *EntityManager) Driver() string { return m.driver }

// Close closes the database handle.
func (m *EntityManager) Close() error { return m.db.Close() }

// Table resolves an entity class to its table name.
func (m *EntityManager) Table(entity string) (string, error) {
	table := entity
	if mapped, ok := m.entities[entity]; ok {
		table = mapped
	}
	if !identifierRe.MatchString(table) {
		return "", fmt.Errorf("entity %q has no valid table name; map it under entities", entity)
	}
	return table, nil
}

// CreateQueryBuilder starts a new SQL query.
func (m *EntityManager) CreateQueryBuilder() *SQLBuilder {
	return &SQLBuilder{em: m}
}

// Persist inserts record into the entity's table.
func (m *EntityManager) Persist(ctx context.Context, entity, idField string, record Record) (string, error) {
	table, err := m.Table(entity)
	if err != nil {
		return "", err
	}
	if !identifierRe.MatchString(idField) {
		return "", fmt.Errorf("invalid identifier field %q", idField)
	}

	row := make(Record, len(record)+1)
	for k, v := range record {
		row[k] = v
	}
	if v, ok := row[idField]; !ok || v == nil || v == "" {
		row[idField] = id.UUID()
	}

	cols := make([]string, 0, len(row))
	for k := range row {
		if !identifierRe.MatchString(k) {
			return "", fmt.Errorf("invalid column name %q", k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = m.placeholder(i + 1)
		args[i], err = sqlValue(row[c])
		if err != nil {
			return "", fmt.Errorf("encoding column %q: %w", c, err)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
	m.log.Debug("persist", "entity", entity, "sql", query)

	if _, err := m.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("inserting into %s: %w", table, err)
	}
	return fmt.Sprint(row[idField]), nil
}

// Find loads one row by identifier.
func (m *EntityManager) Find(ctx context.Context, entity, idField string, id any) (Record, error) {
	records, err := m.CreateQueryBuilder().
		Select("row").
		From(entity, "row").
		Where(idField, id).
		Limit(1).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
	}
	return records[0], nil
}

// Remove deletes one row by identifier.
func (m *EntityManager) Remove(ctx context.Context, entity, idField string, id any) error {
	table, err := m.Table(entity)
	if err != nil {
		return err
	}
	if !identifierRe.MatchString(idField) {
		return fmt.Errorf("invalid identifier field %q", idField)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", quoteIdent(table), quoteIdent(idField), m.placeholder(1))
	m.log.Debug("remove", "entity", entity, "sql", query)

	res, err := m.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
	}
	return nil
}

func (m *EntityManager) placeholder(n int) string {
	if m.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

// sqlValue stores nested values as JSON text.
func sqlValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
