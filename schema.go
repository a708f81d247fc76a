package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FieldKind identifies the primitive kind of a schema field.
type FieldKind int

const (
	FieldVarint  FieldKind = iota // unsigned variable-length integer
	FieldInt64                    // fixed 8-byte little-endian integer
	FieldString                   // length-delimited UTF-8 string
	FieldMessage                  // length-delimited nested message
)

func (k FieldKind) String() string {
	switch k {
	case FieldVarint:
		return "varint"
	case FieldInt64:
		return "int64"
	case FieldString:
		return "string"
	case FieldMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Wire types on the tag byte, protobuf-compatible.
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// Field describes one field of a message schema.
type Field struct {
	Number   uint32    // wire field number
	Name     string    // key in the decoded Record
	Kind     FieldKind // primitive kind
	Repeated bool      // accumulate into a slice instead of last-wins
	Message  string    // schema name for FieldMessage kinds

	schema *Schema // resolved at registry construction
}

// Schema is an ordered set of fields for one message type.
type Schema struct {
	Name   string
	Fields []Field

	byNumber map[uint32]*Field
}

// Record is a decoded message. Values are typed by field kind:
// string fields map to string, varint to uint64, int64 to int64 and
// message to Record. Repeated fields map to a slice of the same.
type Record map[string]any

// String returns the named string field, or "" when absent.
func (r Record) String(name string) string {
	v, _ := r[name].(string)
	return v
}

// Uint returns the named varint field, or 0 when absent.
func (r Record) Uint(name string) uint64 {
	v, _ := r[name].(uint64)
	return v
}

// Int64 returns the named int64 field, or 0 when absent.
func (r Record) Int64(name string) int64 {
	v, _ := r[name].(int64)
	return v
}

// Bool reports whether the named varint field is present and non-zero.
func (r Record) Bool(name string) bool {
	return r.Uint(name) != 0
}

// Record returns the named nested message, or nil when absent.
func (r Record) Record(name string) Record {
	v, _ := r[name].(Record)
	return v
}

// Records returns the named repeated nested message field.
func (r Record) Records(name string) []Record {
	v, _ := r[name].([]Record)
	return v
}

// Has reports whether the field was present on the wire.
func (r Record) Has(name string) bool {
	_, ok := r[name]
	return ok
}

// Decode errors.
var (
	ErrUnknownSchema = errors.New("unknown schema")
	ErrShortBuffer   = errors.New("short buffer")
	ErrInvalidTag    = errors.New("invalid tag")
)

// SchemaRegistry resolves message-type names to decoders. All nested
// message references are resolved once at construction; decoding does
// no name lookups.
type SchemaRegistry struct {
	schemas map[string]*Schema
}

// NewSchemaRegistry builds a registry from the given schemas and
// resolves every nested message reference. It fails on duplicate
// schema names, duplicate field numbers and dangling references.
func NewSchemaRegistry(schemas ...Schema) (*SchemaRegistry, error) {
	r := &SchemaRegistry{schemas: make(map[string]*Schema, len(schemas))}

	for i := range schemas {
		s := schemas[i]
		if _, ok := r.schemas[s.Name]; ok {
			return nil, fmt.Errorf("duplicate schema %q", s.Name)
		}
		sc := &Schema{Name: s.Name, Fields: append([]Field(nil), s.Fields...), byNumber: make(map[uint32]*Field, len(s.Fields))}
		r.schemas[s.Name] = sc
	}

	for _, sc := range r.schemas {
		for i := range sc.Fields {
			f := &sc.Fields[i]
			if _, ok := sc.byNumber[f.Number]; ok {
				return nil, fmt.Errorf("schema %q: duplicate field number %d", sc.Name, f.Number)
			}
			if f.Kind == FieldMessage {
				sub, ok := r.schemas[f.Message]
				if !ok {
					return nil, fmt.Errorf("schema %q field %q: %w %q", sc.Name, f.Name, ErrUnknownSchema, f.Message)
				}
				f.schema = sub
			}
			sc.byNumber[f.Number] = f
		}
	}

	return r, nil
}

// Schema returns the named schema, or nil.
func (r *SchemaRegistry) Schema(name string) *Schema {
	return r.schemas[name]
}

// Decode decodes buf as the named message type. Unknown field numbers
// are skipped; a malformed buffer returns an error and no partial
// record. Decoding is stateless over its input.
func (r *SchemaRegistry) Decode(name string, buf []byte) (Record, error) {
	sc, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchema, name)
	}
	return decodeMessage(sc, buf)
}

func decodeMessage(sc *Schema, buf []byte) (Record, error) {
	rec := make(Record)
	off := 0

	for off < len(buf) {
		tag, n := binary.Uvarint(buf[off:])
		if n <= 0 {
			return nil, fmt.Errorf("%s at offset %d: %w", sc.Name, off, ErrInvalidTag)
		}
		off += n

		num := uint32(tag >> 3)
		wt := int(tag & 0x7)

		f := sc.byNumber[num]
		if f == nil {
			skipped, err := skipField(buf[off:], wt)
			if err != nil {
				return nil, fmt.Errorf("%s field %d: %w", sc.Name, num, err)
			}
			off += skipped
			continue
		}

		val, consumed, err := decodeField(f, buf[off:], wt)
		if err != nil {
			return nil, fmt.Errorf("%s field %q: %w", sc.Name, f.Name, err)
		}
		off += consumed

		if f.Repeated {
			appendRepeated(rec, f, val)
		} else {
			rec[f.Name] = val
		}
	}

	return rec, nil
}

func decodeField(f *Field, buf []byte, wt int) (any, int, error) {
	switch f.Kind {
	case FieldVarint:
		if wt != wireVarint {
			return nil, 0, fmt.Errorf("wire type %d for varint: %w", wt, ErrInvalidTag)
		}
		v, n := binary.Uvarint(buf)
		if n <= 0 {
			return nil, 0, ErrShortBuffer
		}
		return v, n, nil

	case FieldInt64:
		if wt != wireFixed64 {
			return nil, 0, fmt.Errorf("wire type %d for int64: %w", wt, ErrInvalidTag)
		}
		if len(buf) < 8 {
			return nil, 0, ErrShortBuffer
		}
		return int64(binary.LittleEndian.Uint64(buf)), 8, nil

	case FieldString, FieldMessage:
		if wt != wireBytes {
			return nil, 0, fmt.Errorf("wire type %d for %s: %w", wt, f.Kind, ErrInvalidTag)
		}
		ln, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf)-n) < ln {
			return nil, 0, ErrShortBuffer
		}
		body := buf[n : n+int(ln)]
		if f.Kind == FieldString {
			return string(body), n + int(ln), nil
		}
		sub, err := decodeMessage(f.schema, body)
		if err != nil {
			return nil, 0, err
		}
		return sub, n + int(ln), nil

	default:
		return nil, 0, fmt.Errorf("field kind %d: %w", f.Kind, ErrInvalidTag)
	}
}

// skipField consumes an unmatched field without interpreting it so
// unknown fields never abort decoding.
func skipField(buf []byte, wt int) (int, error) {
	switch wt {
	case wireVarint:
		_, n := binary.Uvarint(buf)
		if n <= 0 {
			return 0, ErrShortBuffer
		}
		return n, nil
	case wireFixed64:
		if len(buf) < 8 {
			return 0, ErrShortBuffer
		}
		return 8, nil
	case wireFixed32:
		if len(buf) < 4 {
			return 0, ErrShortBuffer
		}
		return 4, nil
	case wireBytes:
		ln, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf)-n) < ln {
			return 0, ErrShortBuffer
		}
		return n + int(ln), nil
	default:
		return 0, fmt.Errorf("wire type %d: %w", wt, ErrInvalidTag)
	}
}

func appendRepeated(rec Record, f *Field, val any) {
	switch f.Kind {
	case FieldMessage:
		cur, _ := rec[f.Name].([]Record)
		rec[f.Name] = append(cur, val.(Record))
	case FieldString:
		cur, _ := rec[f.Name].([]string)
		rec[f.Name] = append(cur, val.(string))
	case FieldInt64:
		cur, _ := rec[f.Name].([]int64)
		rec[f.Name] = append(cur, val.(int64))
	default:
		cur, _ := rec[f.Name].([]uint64)
		rec[f.Name] = append(cur, val.(uint64))
	}
}

// Encode encodes rec according to the named schema. It is the inverse
// of Decode for records that only contain schema fields, and exists so
// synthetic transports and tests can produce valid buffers.
func (r *SchemaRegistry) Encode(name string, rec Record) ([]byte, error) {
	sc, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSchema, name)
	}
	return encodeMessage(sc, rec)
}

func encodeMessage(sc *Schema, rec Record) ([]byte, error) {
	var out []byte

	for i := range sc.Fields {
		f := &sc.Fields[i]
		v, ok := rec[f.Name]
		if !ok {
			continue
		}

		if !f.Repeated {
			enc, err := encodeField(f, v)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
			continue
		}

		for _, item := range repeatedItems(f, v) {
			enc, err := encodeField(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
	}

	return out, nil
}

func repeatedItems(f *Field, v any) []any {
	var items []any
	switch f.Kind {
	case FieldMessage:
		for _, it := range v.([]Record) {
			items = append(items, it)
		}
	case FieldString:
		for _, it := range v.([]string) {
			items = append(items, it)
		}
	case FieldInt64:
		for _, it := range v.([]int64) {
			items = append(items, it)
		}
	default:
		for _, it := range v.([]uint64) {
			items = append(items, it)
		}
	}
	return items
}

func encodeField(f *Field, v any) ([]byte, error) {
	var out []byte
	switch f.Kind {
	case FieldVarint:
		u, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("field %q: expected uint64, got %T", f.Name, v)
		}
		out = binary.AppendUvarint(out, uint64(f.Number)<<3|wireVarint)
		out = binary.AppendUvarint(out, u)

	case FieldInt64:
		i, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("field %q: expected int64, got %T", f.Name, v)
		}
		out = binary.AppendUvarint(out, uint64(f.Number)<<3|wireFixed64)
		out = binary.LittleEndian.AppendUint64(out, uint64(i))

	case FieldString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: expected string, got %T", f.Name, v)
		}
		out = binary.AppendUvarint(out, uint64(f.Number)<<3|wireBytes)
		out = binary.AppendUvarint(out, uint64(len(s)))
		out = append(out, s...)

	case FieldMessage:
		sub, ok := v.(Record)
		if !ok {
			return nil, fmt.Errorf("field %q: expected Record, got %T", f.Name, v)
		}
		body, err := encodeMessage(f.schema, sub)
		if err != nil {
			return nil, err
		}
		out = binary.AppendUvarint(out, uint64(f.Number)<<3|wireBytes)
		out = binary.AppendUvarint(out, uint64(len(body)))
		out = append(out, body...)
	}
	return out, nil
}
