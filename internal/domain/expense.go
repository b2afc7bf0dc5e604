package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
)

// IDField is the JSON key that carries an expense's identifier.
const IDField = "id"

// Expense is a stored expense record. Apart from the store-assigned ID the
// record is schema-free: amount, category, date and anything else the
// caller supplies live in Fields.
type Expense struct {
	ID     int64
	Fields map[string]any
}

// ExpenseRepository defines persistence operations for expenses.
type ExpenseRepository interface {
	List(ctx context.Context) ([]Expense, error)
	GetByID(ctx context.Context, id int64) (*Expense, error)
	Create(ctx context.Context, expense *Expense) error
	ReplaceAll(ctx context.Context, expenses []Expense) error
	Update(ctx context.Context, id int64, patch map[string]any) error
	Delete(ctx context.Context, id int64) error
}

// Merge shallow-copies patch onto the record's fields. Matching keys are
// overwritten, all other fields are kept. An id key in patch is ignored so
// a merge can never re-key a record.
func (e *Expense) Merge(patch map[string]any) {
	if e.Fields == nil {
		e.Fields = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if k == IDField {
			continue
		}
		e.Fields[k] = v
	}
}

// MarshalJSON encodes the expense as one flat object with the id alongside
// the other fields. A zero ID is omitted.
func (e Expense) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+1)
	maps.Copy(out, e.Fields)
	delete(out, IDField)
	if e.ID != 0 {
		out[IDField] = e.ID
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat object, lifting the id key into ID.
func (e *Expense) UnmarshalJSON(data []byte) error {
	fields, err := DecodeFields(data)
	if err != nil {
		return err
	}

	var id int64
	if raw, ok := fields[IDField]; ok {
		switch v := raw.(type) {
		case nil:
		case int64:
			id = v
		default:
			return fmt.Errorf("%w: id must be an integer, got %v", ErrInvalidInput, raw)
		}
		delete(fields, IDField)
	}

	e.ID = id
	e.Fields = fields
	return nil
}

// EncodeFields serializes the non-id fields of a record for storage.
func EncodeFields(fields map[string]any) ([]byte, error) {
	stored := make(map[string]any, len(fields))
	maps.Copy(stored, fields)
	delete(stored, IDField)
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// DecodeFields parses a stored or user-supplied JSON object. Integral
// numbers decode as int64 and all other numbers as float64.
func DecodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode fields: unexpected data after object")
	}
	if fields == nil {
		fields = map[string]any{}
	}
	for k, v := range fields {
		fields[k] = normalizeNumber(v)
	}
	return fields, nil
}

func normalizeNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, inner := range x {
			x[k] = normalizeNumber(inner)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeNumber(x[i])
		}
		return x
	default:
		return v
	}
}
