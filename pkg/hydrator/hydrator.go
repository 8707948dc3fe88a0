// Package hydrator converts between persisted records and the payloads a
// resource exposes.
package hydrator

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Hydrator maps records in both directions.
type Hydrator interface {
	// Extract turns a stored record into an outgoing payload.
	Extract(record map[string]any) (map[string]any, error)
	// Hydrate turns an incoming payload into a record to store.
	Hydrate(data map[string]any) (map[string]any, error)
}

// FieldHydrator renames and drops fields.
type FieldHydrator struct {
	// rename maps stored field names to payload field names.
	rename  map[string]string
	reverse map[string]string
	exclude map[string]bool
}

var _ Hydrator = (*FieldHydrator)(nil)

// NewFieldHydrator creates a FieldHydrator. rename maps stored names to
// payload names; excluded stored fields never leave Extract and are stripped
// by Hydrate.
func NewFieldHydrator(rename map[string]string, exclude []string) (*FieldHydrator, error) {
	h := &FieldHydrator{
		rename:  make(map[string]string, len(rename)),
		reverse: make(map[string]string, len(rename)),
		exclude: make(map[string]bool, len(exclude)),
	}
	for stored, payload := range rename {
		if prev, dup := h.reverse[payload]; dup {
			return nil, fmt.Errorf("fields %q and %q both rename to %q", prev, stored, payload)
		}
		h.rename[stored] = payload
		h.reverse[payload] = stored
	}
	for _, f := range exclude {
		h.exclude[f] = true
	}
	return h, nil
}

// Extract applies renames and exclusions to a stored record.
func (h *FieldHydrator) Extract(record map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if h.exclude[k] {
			continue
		}
		if renamed, ok := h.rename[k]; ok {
			k = renamed
		}
		out[k] = v
	}
	return out, nil
}

// Hydrate reverses the renames and strips excluded fields.
func (h *FieldHydrator) Hydrate(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if stored, ok := h.reverse[k]; ok {
			k = stored
		}
		if h.exclude[k] {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// StructHydrator round-trips records through T so payloads are shaped and
// type checked by T's mapstructure tags. Unknown payload fields are errors.
type StructHydrator[T any] struct{}

var _ Hydrator = StructHydrator[struct{}]{}

// Extract decodes record into T and back, dropping fields T does not declare.
func (StructHydrator[T]) Extract(record map[string]any) (map[string]any, error) {
	var v T
	if err := decode(record, &v, false); err != nil {
		return nil, fmt.Errorf("extracting %T: %w", v, err)
	}
	return toMap(v)
}

// Hydrate decodes data into T, rejecting unknown fields, and flattens it.
func (StructHydrator[T]) Hydrate(data map[string]any) (map[string]any, error) {
	var v T
	if err := decode(data, &v, true); err != nil {
		return nil, fmt.Errorf("hydrating %T: %w", v, err)
	}
	return toMap(v)
}

func decode(in map[string]any, out any, strict bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func toMap(v any) (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, err
	}
	return out, nil
}
