package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type condition struct {
	field string
	value any
}

type ordering struct {
	field string
	order string
}

// SQLBuilder composes a parameterised SELECT over one entity table.
//
//	em.CreateQueryBuilder().Select("row").From("widgets", "row").
//		Where("owner", sub).OrderBy("name", "asc").Limit(10)
type SQLBuilder struct {
	em     *EntityManager
	alias  string
	entity string
	table  string
	wheres []condition
	orders []ordering
	limit  int
	offset int
	err    error
}

var _ QueryBuilder = (*SQLBuilder)(nil)

// Select sets the selected alias. Only whole-row selection is supported.
func (b *SQLBuilder) Select(alias string) *SQLBuilder {
	if b.alias != "" && b.alias != alias {
		b.fail(fmt.Errorf("select alias %q does not match %q", alias, b.alias))
	}
	b.alias = alias
	return b
}

// From sets the entity and its alias.
func (b *SQLBuilder) From(entity, alias string) *SQLBuilder {
	table, err := b.em.Table(entity)
	if err != nil {
		b.fail(err)
	}
	if !identifierRe.MatchString(alias) {
		b.fail(fmt.Errorf("invalid alias %q", alias))
	}
	if b.alias != "" && b.alias != alias {
		b.fail(fmt.Errorf("select alias %q does not match from alias %q", b.alias, alias))
	}
	b.entity = entity
	b.table = table
	b.alias = alias
	return b
}

// Where adds an equality condition. Conditions are joined with AND.
func (b *SQLBuilder) Where(field string, value any) QueryBuilder {
	if !identifierRe.MatchString(field) {
		b.fail(fmt.Errorf("invalid column name %q", field))
	}
	b.wheres = append(b.wheres, condition{field: field, value: value})
	return b
}

// OrderBy adds a sort key; order is "asc" or "desc".
func (b *SQLBuilder) OrderBy(field, order string) QueryBuilder {
	if !identifierRe.MatchString(field) {
		b.fail(fmt.Errorf("invalid column name %q", field))
	}
	b.orders = append(b.orders, ordering{field: field, order: normalizeOrder(order)})
	return b
}

// Limit caps the number of rows; zero means no limit.
func (b *SQLBuilder) Limit(n int) QueryBuilder {
	if n < 0 {
		n = 0
	}
	b.limit = n
	return b
}

// Offset skips the first n rows.
func (b *SQLBuilder) Offset(n int) QueryBuilder {
	if n < 0 {
		n = 0
	}
	b.offset = n
	return b
}

// Entity returns the entity class the builder reads from.
func (b *SQLBuilder) Entity() string { return b.entity }

// Alias returns the row alias.
func (b *SQLBuilder) Alias() string { return b.alias }

// Conditions returns the equality conditions keyed by field.
func (b *SQLBuilder) Conditions() map[string]any {
	out := make(map[string]any, len(b.wheres))
	for _, w := range b.wheres {
		out[w.field] = w.value
	}
	return out
}

// SQL renders the SELECT statement and its arguments.
func (b *SQLBuilder) SQL() (string, []any, error) {
	where, args, err := b.whereClause()
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s.* FROM %s AS %s", b.alias, quoteIdent(b.table), b.alias)
	sb.WriteString(where)

	if len(b.orders) > 0 {
		parts := make([]string, len(b.orders))
		for i, o := range b.orders {
			parts[i] = fmt.Sprintf("%s.%s %s", b.alias, quoteIdent(o.field), strings.ToUpper(o.order))
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	switch {
	case b.limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", b.limit)
	case b.offset > 0 && b.em.driver == DriverSQLite:
		// SQLite only accepts OFFSET after a LIMIT.
		sb.WriteString(" LIMIT -1")
	}
	if b.offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", b.offset)
	}
	return sb.String(), args, nil
}

// Fetch runs the query.
func (b *SQLBuilder) Fetch(ctx context.Context) ([]Record, error) {
	query, args, err := b.SQL()
	if err != nil {
		return nil, err
	}
	b.em.log.Debug("fetch", "entity", b.entity, "sql", query)

	rows, err := b.em.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", b.table, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", b.table, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Count returns the number of matching rows ignoring Limit and Offset.
func (b *SQLBuilder) Count(ctx context.Context) (int, error) {
	where, args, err := b.whereClause()
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s AS %s%s", quoteIdent(b.table), b.alias, where)

	var n int
	if err := b.em.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", b.table, err)
	}
	return n, nil
}

// String renders the query in entity terms, e.g. "select row from widgets row".
func (b *SQLBuilder) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "select %s from %s %s", b.alias, b.entity, b.alias)
	for i, w := range b.wheres {
		if i == 0 {
			sb.WriteString(" where ")
		} else {
			sb.WriteString(" and ")
		}
		fmt.Fprintf(&sb, "%s.%s = :%s", b.alias, w.field, w.field)
	}
	for i, o := range b.orders {
		if i == 0 {
			sb.WriteString(" order by ")
		} else {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s.%s %s", b.alias, o.field, o.order)
	}
	return sb.String()
}

func (b *SQLBuilder) whereClause() (string, []any, error) {
	if b.err != nil {
		return "", nil, b.err
	}
	if b.table == "" {
		return "", nil, errors.New("query has no FROM entity")
	}

	if len(b.wheres) == 0 {
		return "", nil, nil
	}
	parts := make([]string, len(b.wheres))
	args := make([]any, len(b.wheres))
	for i, w := range b.wheres {
		parts[i] = fmt.Sprintf("%s.%s = %s", b.alias, quoteIdent(w.field), b.em.placeholder(i+1))
		v, err := sqlValue(w.value)
		if err != nil {
			return "", nil, err
		}
		args[i] = v
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (b *SQLBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
