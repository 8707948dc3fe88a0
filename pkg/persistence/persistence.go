// Package persistence provides the object managers a connected resource
// reads from and writes to.
//
// Two variants exist. EntityManager is relational: entities map to tables in a
// database/sql handle (sqlite3 or pgx). DocumentManager is document-oriented:
// entities map to in-memory collections of schemaless records. Both implement
// ObjectManager and hand out QueryBuilders for collection reads.
package persistence

import (
	"context"
	"fmt"
)

// Record is one persisted row or document.
type Record = map[string]any

// ObjectManager is the persistence session shared by every component of an
// assembled resource.
type ObjectManager interface {
	// Persist stores record in entity and returns its identifier. When the
	// record carries no value for idField one is generated.
	Persist(ctx context.Context, entity, idField string, record Record) (string, error)
	// Find returns the record whose idField equals id.
	Find(ctx context.Context, entity, idField string, id any) (Record, error)
	// Remove deletes the record whose idField equals id.
	Remove(ctx context.Context, entity, idField string, id any) error
	// Close releases the underlying resources.
	Close() error
}

// QueryBuilder narrows and executes a collection read. Builders accumulate
// the first error they encounter and report it from Fetch and Count.
type QueryBuilder interface {
	Where(field string, value any) QueryBuilder
	OrderBy(field, order string) QueryBuilder
	Limit(n int) QueryBuilder
	Offset(n int) QueryBuilder
	// Fetch runs the query and returns the matching page.
	Fetch(ctx context.Context) ([]Record, error)
	// Count returns the number of matches ignoring Limit and Offset.
	Count(ctx context.Context) (int, error)
	// String renders the query for diagnostics.
	String() string
}

// NotFoundError is returned when a lookup by identifier finds nothing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *NotFoundError) Hint() string {
	return fmt.Sprintf("Check that a record with identifier %q exists in %s.", e.ID, e.Entity)
}

// ConflictError is returned when persisting a record whose identifier is
// already taken.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}

// Hint returns a user-friendly suggestion for resolving this error.
func (e *ConflictError) Hint() string {
	return fmt.Sprintf("Record %q already exists in %s. Omit the identifier to have one generated.", e.ID, e.Entity)
}

func normalizeOrder(order string) string {
	if order == "desc" || order == "DESC" {
		return "desc"
	}
	return "asc"
}
