package binrecord

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/veldra/mdcore/pkg/errs"
)

// Record reads and writes fields of a Layout against a byte buffer. The
// buffer is either owned (allocated by New) or borrowed (attached with
// Attach, e.g. a slot inside a memory-mapped Master). A borrowing Record
// must not outlive the provider of its buffer.
type Record struct {
	layout *Layout
	buf    []byte
}

// New allocates an owned, zero-filled buffer sized to layout.Size() and
// returns a Record over it. layout must already be finalized.
func New(layout *Layout) *Record {
	return &Record{layout: layout, buf: make([]byte, layout.Size())}
}

// Attach returns a Record borrowing buf, which must have length exactly
// layout.Size(). Returns InvalidParameter otherwise.
func Attach(layout *Layout, buf []byte) (*Record, error) {
	if len(buf) != layout.Size() {
		return nil, fmt.Errorf("buffer length %d != record size %d: %w", len(buf), layout.Size(), errs.InvalidParameter)
	}

	return &Record{layout: layout, buf: buf}, nil
}

// Bytes returns the record's underlying buffer. Mutating it bypasses field
// validation.
func (r *Record) Bytes() []byte {
	return r.buf
}

func (r *Record) field(name string) (Field, []byte, error) {
	if r.buf == nil {
		return Field{}, nil, fmt.Errorf("record has no buffer: %w", errs.InvalidParameter)
	}

	f, ok := r.layout.FieldByName(name)
	if !ok {
		return Field{}, nil, fmt.Errorf("field %q: %w", name, errs.NotFound)
	}

	return f, r.buf[f.Offset : f.Offset+f.Length], nil
}

// SetText writes a value into a field.
//
// Text fields: copies up to Length bytes of s, padding the remainder with
// NUL; longer input truncates on the right.
//
// Decimal fields: renders s as a number with Decimal fractional digits,
// zero-padded on the left to Length bytes (a leading '-' consumes one byte
// of width); values too large to fit truncate from the high-order end.
//
// Binary fields: parses s as a decimal integer and writes it little-endian.
func (r *Record) SetText(name, s string) error {
	f, dst, err := r.field(name)
	if err != nil {
		return err
	}

	switch f.Kind {
	case Text:
		setTextField(dst, s)
		return nil
	case Decimal:
		setDecimalField(dst, s, f.Decimal)
		return nil
	case Binary:
		v, parseErr := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if parseErr != nil {
			return fmt.Errorf("field %q: parse %q as integer: %w", name, s, errs.InvalidParameter)
		}

		setBinaryField(dst, uint64(v))
		return nil
	default:
		return fmt.Errorf("field %q: unknown kind: %w", name, errs.IntegrityError)
	}
}

// GetText reads a field back as a string.
//
// Text fields: bytes up to the first NUL, or the full field if none found.
//
// Decimal fields: the raw digits trimmed of leading zeros, keeping one
// zero before the decimal point.
//
// Binary fields: the canonical decimal string of the stored value.
func (r *Record) GetText(name string) (string, error) {
	f, src, err := r.field(name)
	if err != nil {
		return "", err
	}

	switch f.Kind {
	case Text:
		return getTextField(src), nil
	case Decimal:
		return getDecimalField(src, f.Decimal), nil
	case Binary:
		return strconv.FormatUint(getBinaryField(src), 10), nil
	default:
		return "", fmt.Errorf("field %q: unknown kind: %w", name, errs.IntegrityError)
	}
}

// SetUint writes v little-endian into a Binary field. Returns
// InvalidParameter for any other kind.
func (r *Record) SetUint(name string, v uint64) error {
	f, dst, err := r.field(name)
	if err != nil {
		return err
	}

	if f.Kind != Binary {
		return fmt.Errorf("field %q is not a binary field: %w", name, errs.InvalidParameter)
	}

	setBinaryField(dst, v)

	return nil
}

// GetUint reads a Binary field's little-endian value. Returns
// InvalidParameter for any other kind.
func (r *Record) GetUint(name string) (uint64, error) {
	f, src, err := r.field(name)
	if err != nil {
		return 0, err
	}

	if f.Kind != Binary {
		return 0, fmt.Errorf("field %q is not a binary field: %w", name, errs.InvalidParameter)
	}

	return getBinaryField(src), nil
}

// InitText fills a Text field with fill, repeated across the whole field.
// Returns InvalidParameter if the field is not a Text field; any fill byte,
// including 0x00, is accepted.
func (r *Record) InitText(name string, fill byte) error {
	f, dst, err := r.field(name)
	if err != nil {
		return err
	}

	if f.Kind != Text {
		return fmt.Errorf("field %q is not a text field: %w", name, errs.InvalidParameter)
	}

	for i := range dst {
		dst[i] = fill
	}

	return nil
}

// InitNumeric fills a Decimal or Binary field with fill. For Decimal
// fields fill is repeated as an ASCII byte (typically '0'); for Binary
// fields every byte of the integer is set to fill.
func (r *Record) InitNumeric(name string, fill byte) error {
	f, dst, err := r.field(name)
	if err != nil {
		return err
	}

	switch f.Kind {
	case Decimal, Binary:
		for i := range dst {
			dst[i] = fill
		}
		return nil
	default:
		return fmt.Errorf("field %q is not a numeric field: %w", name, errs.InvalidParameter)
	}
}

func setTextField(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getTextField(src []byte) string {
	n := len(src)
	for i, b := range src {
		if b == 0 {
			n = i
			break
		}
	}

	return string(src[:n])
}

// setDecimalField renders s (a decimal string, optionally with a '.' and a
// leading '-') into dst as digits-only ASCII of len(dst) bytes, with the
// fractional part zero-padded or cut to exactly decimal digits,
// zero-padding left and truncating high-order digits if the result
// overflows dst.
func setDecimalField(dst []byte, s string, decimal int) {
	neg := strings.HasPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(strings.TrimPrefix(s, "-"), ".")

	if len(fracPart) > decimal {
		fracPart = fracPart[:decimal]
	} else {
		fracPart += strings.Repeat("0", decimal-len(fracPart))
	}

	digits := intPart + fracPart

	width := len(dst)
	if neg {
		width--
	}

	if len(digits) > width {
		digits = digits[len(digits)-width:] // truncate from the high-order end
	}

	padded := strings.Repeat("0", width-len(digits)) + digits

	if neg {
		copy(dst, "-"+padded)
	} else {
		copy(dst, padded)
	}
}

func getDecimalField(src []byte, decimal int) string {
	s := string(src)

	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	digits = strings.TrimLeft(digits, "0")

	if digits == "" {
		digits = "0"
	}

	if decimal > 0 && len(digits) <= decimal {
		digits = strings.Repeat("0", decimal-len(digits)+1) + digits
	}

	if decimal > 0 {
		split := len(digits) - decimal
		digits = digits[:split] + "." + digits[split:]
	}

	if neg {
		return "-" + digits
	}

	return digits
}

func setBinaryField(dst []byte, v uint64) {
	switch len(dst) {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	}
}

func getBinaryField(src []byte) uint64 {
	switch len(src) {
	case 1:
		return uint64(src[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(src))
	case 4:
		return uint64(binary.LittleEndian.Uint32(src))
	case 8:
		return binary.LittleEndian.Uint64(src)
	default:
		return 0
	}
}
