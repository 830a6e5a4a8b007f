package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the shape held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "null"
	}
}

type scalarFlavor uint8

const (
	flavorString scalarFlavor = iota
	flavorNumber
	flavorBool
)

// Value is a loosely shaped answer value: a scalar, an ordered list, or an
// ordered key/value mapping. Answer keys and student submissions are stored
// as JSON documents whose shape varies per question, so both decode into Value.
//
// The zero Value is null.
type Value struct {
	kind   Kind
	flavor scalarFlavor
	text   string
	items  []Value
	keys   []string
	fields map[string]Value
}

// Entry is one key/value pair of a mapping, used to build Values in order.
type Entry struct {
	Key   string
	Value Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a text scalar.
func String(s string) Value {
	return Value{kind: KindScalar, flavor: flavorString, text: s}
}

// Number returns a numeric scalar.
func Number(f float64) Value {
	return Value{kind: KindScalar, flavor: flavorNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Bool returns a boolean scalar whose text form is "true" or "false".
func Bool(b bool) Value {
	return Value{kind: KindScalar, flavor: flavorBool, text: strconv.FormatBool(b)}
}

// Seq returns an ordered sequence of values.
func Seq(items ...Value) Value {
	return Value{kind: KindSequence, items: append([]Value{}, items...)}
}

// Strings returns a sequence of text scalars.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return Value{kind: KindSequence, items: items}
}

// Map returns a mapping preserving the order of entries. A repeated key
// keeps its first position and its last value.
func Map(entries ...Entry) Value {
	v := Value{kind: KindMapping, fields: make(map[string]Value, len(entries))}
	for _, e := range entries {
		v.set(e.Key, e.Value)
	}
	return v
}

// E is shorthand for building an Entry.
func E(key string, v Value) Entry { return Entry{Key: key, Value: v} }

func (v *Value) set(key string, val Value) {
	if _, ok := v.fields[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.fields[key] = val
}

// Kind reports the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsZero lets encoding/json omit null Values tagged with omitzero.
func (v Value) IsZero() bool { return v.kind == KindNull }

// IsNumber reports whether v is a scalar that was decoded from a JSON number.
func (v Value) IsNumber() bool { return v.kind == KindScalar && v.flavor == flavorNumber }

// Scalar returns the text form of a scalar and whether v is a scalar.
func (v Value) Scalar() (string, bool) {
	if v.kind != KindScalar {
		return "", false
	}
	return v.text, true
}

// Len returns the number of items of a sequence or keys of a mapping.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.keys)
	default:
		return 0
	}
}

// Items returns the elements of a sequence, or nil.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.items
}

// Keys returns mapping keys in insertion order, or nil.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	return v.keys
}

// SortedKeys returns mapping keys in lexical order.
func (v Value) SortedKeys() []string {
	keys := append([]string(nil), v.Keys()...)
	sort.Strings(keys)
	return keys
}

// Get looks up a key in a mapping.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	f, ok := v.fields[key]
	return f, ok
}

// Has reports whether a mapping contains key.
func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Float converts a scalar the way a strict float parse would: JSON numbers,
// numeric strings (surrounding spaces allowed) and booleans (1/0).
func (v Value) Float() (float64, bool) {
	if v.kind != KindScalar {
		return 0, false
	}
	if v.flavor == flavorBool {
		if v.text == "true" {
			return 1, true
		}
		return 0, true
	}
	f, err := strconv.ParseFloat(trimSpace(v.text), 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// Text returns the scalar text, or for composites the space-joined text of
// their leaves (mapping values in sorted key order). Null yields "".
func (v Value) Text() string {
	switch v.kind {
	case KindScalar:
		return v.text
	case KindSequence:
		var buf bytes.Buffer
		for _, it := range v.items {
			appendText(&buf, it)
		}
		return buf.String()
	case KindMapping:
		var buf bytes.Buffer
		for _, k := range v.SortedKeys() {
			appendText(&buf, v.fields[k])
		}
		return buf.String()
	default:
		return ""
	}
}

func appendText(buf *bytes.Buffer, v Value) {
	t := trimSpace(v.Text())
	if t == "" {
		return
	}
	if buf.Len() > 0 {
		buf.WriteByte(' ')
	}
	buf.WriteString(t)
}

func trimSpace(s string) string { return strings.TrimSpace(s) }

// Equal reports structural equality, including mapping key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.flavor == o.flavor && v.text == o.text
	case KindSequence:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for i, k := range v.keys {
			if o.keys[i] != k || !v.fields[k].Equal(o.fields[k]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// MarshalJSON encodes v, keeping mapping keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindScalar:
		switch {
		case v.flavor == flavorBool, v.flavor == flavorNumber && json.Valid([]byte(v.text)):
			buf.WriteString(v.text)
		default:
			b, err := json.Marshal(v.text)
			if err != nil {
				return err
			}
			buf.Write(b)
		}
	case KindSequence:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// UnmarshalJSON decodes any JSON document into v, preserving object key order
// and the literal text of numbers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("value: trailing data after JSON document")
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Value{kind: KindScalar, flavor: flavorNumber, text: t.String()}, nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			seq := Value{kind: KindSequence, items: []Value{}}
			for dec.More() {
				it, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				seq.items = append(seq.items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return seq, nil
		case '{':
			m := Value{kind: KindMapping, fields: map[string]Value{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("value: object key %v is not a string", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return m, nil
		}
	}
	return Value{}, fmt.Errorf("value: unexpected token %v", tok)
}

// ParseValue decodes a JSON document. An empty input yields null.
func ParseValue(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Null(), nil
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

// LooseString is a string field that also accepts JSON numbers and null,
// for identifiers authored by hand or by an extraction pipeline.
type LooseString string

// UnmarshalJSON accepts a string, number, boolean or null.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	if v.Kind() != KindScalar && !v.IsNull() {
		return fmt.Errorf("expected a string identifier, got %s", v.Kind())
	}
	*s = LooseString(v.text)
	return nil
}
