package persistence

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// ApplyFilters keeps the documents whose fields equal every filter value.
// A filter on idField matches the document identifier. Filters on the alias
// fields match the document's own value for that field, or its identifier
// when the document has none.
func ApplyFilters(docs []*Document, filters map[string]string, idField string, aliases ...string) []*Document {
	result := make([]*Document, 0, len(docs))

	for _, doc := range docs {
		matched := true
		for field, value := range filters {
			v, ok := doc.Data[field]
			if field == idField || (!ok && slices.Contains(aliases, field)) {
				v = doc.ID
			}
			if fmt.Sprintf("%v", v) != value {
				matched = false
				break
			}
		}
		if matched {
			result = append(result, doc)
		}
	}

	return result
}

// SortDocuments orders documents by field. An empty field sorts by creation
// time and then by identifier so the order is deterministic.
func SortDocuments(docs []*Document, field, order, idField string) {
	desc := order == "desc"

	sort.SliceStable(docs, func(i, j int) bool {
		var vi, vj any
		switch field {
		case "":
			if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
				vi, vj = docs[i].CreatedAt, docs[j].CreatedAt
			} else {
				vi, vj = docs[i].ID, docs[j].ID
			}
		case idField:
			vi, vj = docs[i].ID, docs[j].ID
		case FieldCreatedAt:
			vi, vj = docs[i].CreatedAt, docs[j].CreatedAt
		case FieldUpdatedAt:
			vi, vj = docs[i].UpdatedAt, docs[j].UpdatedAt
		default:
			vi, vj = docs[i].Data[field], docs[j].Data[field]
		}

		if desc {
			return CompareValues(vj, vi)
		}
		return CompareValues(vi, vj)
	})
}

// CompareValues reports whether a sorts before b.
// Handles string, int, int64, float64 and time.Time; anything else is
// compared in its %v form.
func CompareValues(a, b any) bool {
	switch va := a.(type) {
	case string:
		if vb, ok := b.(string); ok {
			return va < vb
		}
	case int:
		if vb, ok := b.(int); ok {
			return va < vb
		}
	case int64:
		if vb, ok := b.(int64); ok {
			return va < vb
		}
	case float64:
		if vb, ok := b.(float64); ok {
			return va < vb
		}
	case time.Time:
		if vb, ok := b.(time.Time); ok {
			return va.Before(vb)
		}
	}

	return fmt.Sprintf("%v", a) < fmt.Sprintf("%v", b)
}

// Paginate applies offset and limit. A non-positive limit returns everything
// after offset. The second result is the count before pagination.
func Paginate(docs []*Document, offset, limit int) ([]*Document, int) {
	total := len(docs)

	start := offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}

	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}

	return docs[start:end], total
}
