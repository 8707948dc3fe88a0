package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/getmockd/restwire/internal/id"
	"github.com/getmockd/restwire/pkg/logging"
)

// Timestamp fields maintained on every document.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is one stored record plus its system fields.
type Document struct {
	ID        string
	Data      Record
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ToRecord flattens the document, placing the identifier under idField and
// under every alias the document data does not already define.
func (d *Document) ToRecord(idField string, aliases ...string) Record {
	out := make(Record, len(d.Data)+3+len(aliases))
	for k, v := range d.Data {
		out[k] = v
	}
	out[idField] = d.ID
	for _, a := range aliases {
		if _, ok := out[a]; !ok {
			out[a] = d.ID
		}
	}
	out[FieldCreatedAt] = d.CreatedAt.Format(time.RFC3339)
	out[FieldUpdatedAt] = d.UpdatedAt.Format(time.RFC3339)
	return out
}

func documentFromRecord(rec Record, idField string) *Document {
	doc := &Document{Data: make(Record, len(rec))}
	if v, ok := rec[idField]; ok && v != nil {
		doc.ID = fmt.Sprint(v)
	}
	for k, v := range rec {
		if k == idField || k == FieldCreatedAt || k == FieldUpdatedAt {
			continue
		}
		doc.Data[k] = v
	}
	return doc
}

// CollectionConfig declares a collection and its seed documents.
type CollectionConfig struct {
	IDField string   `mapstructure:"id_field"`
	Seed    []Record `mapstructure:"seed"`
}

type collection struct {
	mu      sync.RWMutex
	name    string
	idField string
	// aliases are identifier fields callers persisted under that differ
	// from idField.
	aliases []string
	docs    map[string]*Document
}

// addAlias records field as an identifier alias. Callers hold c.mu.
func (c *collection) addAlias(field string) {
	if field == "" || field == c.idField || slices.Contains(c.aliases, field) {
		return
	}
	c.aliases = append(c.aliases, field)
}

// DocumentManager is the document-oriented ObjectManager. Collections are
// created on first use; configured collections start with their seed data.
type DocumentManager struct {
	mu          sync.RWMutex
	collections map[string]*collection
	configs     map[string]CollectionConfig
	log         *slog.Logger
	now         func() time.Time
}

var _ ObjectManager = (*DocumentManager)(nil)

// NewDocumentManager creates a manager and loads seed data.
func NewDocumentManager(configs map[string]CollectionConfig, logger *slog.Logger) (*DocumentManager, error) {
	m := &DocumentManager{
		collections: make(map[string]*collection),
		configs:     make(map[string]CollectionConfig, len(configs)),
		log:         logging.OrNop(logger),
		now:         time.Now,
	}
	for name, cfg := range configs {
		m.configs[name] = cfg
	}
	if err := m.Reset(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reset restores every configured collection to its seed data and drops
// collections created at runtime.
func (m *DocumentManager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.collections = make(map[string]*collection, len(m.configs))
	for name, cfg := range m.configs {
		c := newCollection(name, cfg.IDField)
		now := m.now()
		for i, rec := range cfg.Seed {
			doc := documentFromRecord(rec, c.idField)
			if doc.ID == "" {
				doc.ID = id.UUID()
			}
			if _, exists := c.docs[doc.ID]; exists {
				return fmt.Errorf("duplicate ID %q in seed data for %q at index %d", doc.ID, name, i)
			}
			doc.CreatedAt = now
			doc.UpdatedAt = now
			c.docs[doc.ID] = doc
		}
		m.collections[name] = c
	}
	return nil
}

func newCollection(name, idField string) *collection {
	if idField == "" {
		idField = "id"
	}
	return &collection{name: name, idField: idField, docs: make(map[string]*Document)}
}

// Collections returns the collection names in sorted order.
func (m *DocumentManager) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of documents in a collection.
func (m *DocumentManager) Count(name string) int {
	c := m.lookup(name)
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (m *DocumentManager) lookup(name string) *collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collections[name]
}

func (m *DocumentManager) collection(name, idField string) *collection {
	if c := m.lookup(name); c != nil {
		return c
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return c
	}
	c := newCollection(name, idField)
	m.collections[name] = c
	return c
}

// Persist inserts a document.
func (m *DocumentManager) Persist(_ context.Context, entity, idField string, record Record) (string, error) {
	c := m.collection(entity, idField)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addAlias(idField)

	doc := documentFromRecord(record, idField)
	if doc.ID == "" {
		doc.ID = id.UUID()
	}
	if _, exists := c.docs[doc.ID]; exists {
		return "", &ConflictError{Entity: entity, ID: doc.ID}
	}
	now := m.now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	c.docs[doc.ID] = doc

	m.log.Debug("persist", "collection", entity, "id", doc.ID)
	return doc.ID, nil
}

// Find returns one document.
func (m *DocumentManager) Find(_ context.Context, entity, idField string, id any) (Record, error) {
	key := fmt.Sprint(id)
	c := m.lookup(entity)
	if c == nil {
		return nil, &NotFoundError{Entity: entity, ID: key}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[key]
	if !ok {
		return nil, &NotFoundError{Entity: entity, ID: key}
	}
	return doc.ToRecord(idField), nil
}

// Remove deletes one document.
func (m *DocumentManager) Remove(_ context.Context, entity, _ string, id any) error {
	key := fmt.Sprint(id)
	c := m.lookup(entity)
	if c == nil {
		return &NotFoundError{Entity: entity, ID: key}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[key]; !ok {
		return &NotFoundError{Entity: entity, ID: key}
	}
	delete(c.docs, key)
	return nil
}

// Close is a no-op; documents live in memory.
func (m *DocumentManager) Close() error { return nil }

// CreateQueryBuilder starts a query over a collection. Querying a collection
// that does not exist yields no documents.
func (m *DocumentManager) CreateQueryBuilder(collection string) *DocumentQuery {
	return &DocumentQuery{dm: m, collection: collection, filters: make(map[string]string)}
}

// DocumentQuery filters, sorts and pages one collection.
type DocumentQuery struct {
	dm         *DocumentManager
	collection string
	filters    map[string]string
	sortField  string
	order      string
	limit      int
	offset     int
}

var _ QueryBuilder = (*DocumentQuery)(nil)

// Where adds an equality filter. Values are compared in their %v form.
func (q *DocumentQuery) Where(field string, value any) QueryBuilder {
	q.filters[field] = fmt.Sprint(value)
	return q
}

// OrderBy sets the sort key. Only one key is kept; later calls replace it.
func (q *DocumentQuery) OrderBy(field, order string) QueryBuilder {
	q.sortField = field
	q.order = normalizeOrder(order)
	return q
}

// Limit caps the page size; zero means no limit.
func (q *DocumentQuery) Limit(n int) QueryBuilder {
	q.limit = n
	return q
}

// Offset skips the first n documents.
func (q *DocumentQuery) Offset(n int) QueryBuilder {
	q.offset = n
	return q
}

// Collection returns the queried collection.
func (q *DocumentQuery) Collection() string { return q.collection }

// Filters returns a copy of the equality filters.
func (q *DocumentQuery) Filters() map[string]string {
	out := make(map[string]string, len(q.filters))
	for k, v := range q.filters {
		out[k] = v
	}
	return out
}

// matches returns the filtered documents and the collection's identifier
// fields, primary first.
func (q *DocumentQuery) matches(ctx context.Context) ([]*Document, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	c := q.dm.lookup(q.collection)
	if c == nil {
		return nil, []string{"id"}, nil
	}

	c.mu.RLock()
	docs := make([]*Document, 0, len(c.docs))
	for _, d := range c.docs {
		docs = append(docs, d)
	}
	idFields := append([]string{c.idField}, c.aliases...)
	c.mu.RUnlock()

	return ApplyFilters(docs, q.filters, idFields[0], idFields[1:]...), idFields, nil
}

// Fetch returns the matching page.
func (q *DocumentQuery) Fetch(ctx context.Context) ([]Record, error) {
	docs, idFields, err := q.matches(ctx)
	if err != nil {
		return nil, err
	}
	SortDocuments(docs, q.sortField, q.order, idFields[0])
	page, _ := Paginate(docs, q.offset, q.limit)

	out := make([]Record, len(page))
	for i, d := range page {
		out[i] = d.ToRecord(idFields[0], idFields[1:]...)
	}
	return out, nil
}

// Count returns the number of matching documents.
func (q *DocumentQuery) Count(ctx context.Context) (int, error) {
	docs, _, err := q.matches(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// String renders the query in a find() form.
func (q *DocumentQuery) String() string {
	keys := make([]string, 0, len(q.filters))
	for k := range q.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := fmt.Sprintf("db.%s.find({", q.collection)
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %q", k, q.filters[k])
	}
	s += "})"
	if q.sortField != "" {
		dir := 1
		if q.order == "desc" {
			dir = -1
		}
		s += fmt.Sprintf(".sort({%s: %d})", q.sortField, dir)
	}
	return s
}
