// Package binrecord describes fixed-width binary record layouts and reads
// and writes fields of those layouts against an owned or borrowed byte
// buffer — the row format of PublisherSequenceRecord, stored either as a
// flat file or as a Master record payload.
package binrecord

import (
	"fmt"

	"github.com/veldra/mdcore/pkg/errs"
)

// Kind identifies how a Field's bytes are interpreted.
type Kind int

const (
	// Text is a fixed-width, right-NUL-padded text field.
	Text Kind = iota
	// Decimal is a zero-padded decimal number with an optional fixed count
	// of fractional digits, stored as ASCII text.
	Decimal
	// Binary is a fixed-width little-endian binary integer, of width
	// 1, 2, 4, or 8 bytes.
	Binary
)

// Field describes one column of a RecordLayout.
type Field struct {
	Name    string
	Kind    Kind
	Length  int // byte length within the record
	Offset  int // byte offset within the record; assigned by Finalize
	Decimal int // fractional-digit count; Decimal kind only
	Key     bool
}

// Layout is an ordered sequence of fields plus their derived offsets and
// total record size. Build one by repeated calls to AddField, then call
// Finalize exactly once. After Finalize the layout must not be mutated
// further: any BinaryRecord already borrowing a buffer sized against it
// would be invalidated by a later append.
type Layout struct {
	fields    []Field
	byName    map[string]int
	size      int
	finalized bool
}

// NewLayout returns an empty layout ready for AddField calls.
func NewLayout() *Layout {
	return &Layout{byName: make(map[string]int)}
}

// AddField appends a field descriptor and records its name→index entry.
// Offset is not valid until Finalize runs. Returns InvalidParameter if the name is
// empty, already used, or length/decimal are out of range for the kind.
func (l *Layout) AddField(f Field) error {
	if l.finalized {
		return fmt.Errorf("layout already finalized: %w", errs.InvalidParameter)
	}

	if f.Name == "" {
		return fmt.Errorf("field name is empty: %w", errs.InvalidParameter)
	}

	if _, exists := l.byName[f.Name]; exists {
		return fmt.Errorf("duplicate field name %q: %w", f.Name, errs.InvalidParameter)
	}

	if f.Length <= 0 {
		return fmt.Errorf("field %q: length must be > 0: %w", f.Name, errs.InvalidParameter)
	}

	switch f.Kind {
	case Text:
		if f.Decimal != 0 {
			return fmt.Errorf("field %q: text fields carry no decimal digits: %w", f.Name, errs.InvalidParameter)
		}
	case Decimal:
		if f.Decimal < 0 {
			return fmt.Errorf("field %q: decimal digit count must be >= 0: %w", f.Name, errs.InvalidParameter)
		}
	case Binary:
		switch f.Length {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("field %q: binary width must be 1, 2, 4 or 8, got %d: %w", f.Name, f.Length, errs.InvalidParameter)
		}

		if f.Decimal != 0 {
			return fmt.Errorf("field %q: binary fields carry no decimal digits: %w", f.Name, errs.InvalidParameter)
		}
	default:
		return fmt.Errorf("field %q: unknown kind %d: %w", f.Name, f.Kind, errs.InvalidParameter)
	}

	idx := len(l.fields)
	l.fields = append(l.fields, f)
	l.byName[f.Name] = idx

	return nil
}

// Finalize assigns offsets left-to-right with no alignment padding and
// fixes the record size. Safe to
// call once; a second call is a no-op.
func (l *Layout) Finalize() {
	if l.finalized {
		return
	}

	offset := 0

	for i := range l.fields {
		l.fields[i].Offset = offset
		offset += l.fields[i].Length
	}

	l.size = offset
	l.finalized = true
}

// Size returns the record size in bytes. Only meaningful after Finalize.
func (l *Layout) Size() int {
	return l.size
}

// FieldByName returns the field descriptor for name.
func (l *Layout) FieldByName(name string) (Field, bool) {
	idx, ok := l.byName[name]
	if !ok {
		return Field{}, false
	}

	return l.fields[idx], true
}

// Fields returns the layout's fields in declaration order. The returned
// slice must not be mutated.
func (l *Layout) Fields() []Field {
	return l.fields
}
