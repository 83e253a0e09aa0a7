package models

import (
	"bytes"
	"fmt"
	"strings"
)

// Flag is the ODS validity flag carried with every value.
type Flag int16

const (
	FlagBitValid      Flag = 1
	FlagBitVisible    Flag = 2
	FlagBitUnmodified Flag = 4
	FlagBitDefined    Flag = 8

	// FlagInvalid marks a value that must not be interpreted.
	FlagInvalid Flag = 0
	// FlagValid marks a fully valid value.
	FlagValid = FlagBitValid | FlagBitVisible | FlagBitUnmodified | FlagBitDefined
)

// IsValid reports whether the VALID bit is set.
func (f Flag) IsValid() bool { return f&FlagBitValid != 0 }

// Value is a tagged attribute value. Exactly one payload slice is used,
// selected by Type.Family(). A scalar holds one element (one stride).
type Value struct {
	Type  DataType
	Flag  Flag
	Unit  string
	Int   []int64
	Float []float64
	Str   []string
	Bytes [][]byte
	// SeqFlags optionally carries one flag per sequence element.
	SeqFlags []Flag
}

// NameValue pairs an attribute name with a value.
type NameValue struct {
	Name  string
	Value Value
}

// InvalidValue returns an empty value of type t flagged invalid.
func InvalidValue(t DataType) Value {
	return Value{Type: t, Flag: FlagInvalid}
}

func StringValue(s string) Value {
	return Value{Type: DTString, Flag: FlagValid, Str: []string{s}}
}

func DateValue(s string) Value {
	return Value{Type: DTDate, Flag: FlagValid, Str: []string{s}}
}

func ShortValue(v int16) Value {
	return Value{Type: DTShort, Flag: FlagValid, Int: []int64{int64(v)}}
}

func ByteValue(v int8) Value {
	return Value{Type: DTByte, Flag: FlagValid, Int: []int64{int64(v)}}
}

func LongValue(v int32) Value {
	return Value{Type: DTLong, Flag: FlagValid, Int: []int64{int64(v)}}
}

func LongLongValue(v int64) Value {
	return Value{Type: DTLongLong, Flag: FlagValid, Int: []int64{v}}
}

func IDValue(v int64) Value {
	return Value{Type: DTID, Flag: FlagValid, Int: []int64{v}}
}

func EnumValue(code int32) Value {
	return Value{Type: DTEnum, Flag: FlagValid, Int: []int64{int64(code)}}
}

func BooleanValue(b bool) Value {
	var i int64
	if b {
		i = 1
	}
	return Value{Type: DTBoolean, Flag: FlagValid, Int: []int64{i}}
}

func FloatValue(v float32) Value {
	return Value{Type: DTFloat, Flag: FlagValid, Float: []float64{float64(v)}}
}

func DoubleValue(v float64) Value {
	return Value{Type: DTDouble, Flag: FlagValid, Float: []float64{v}}
}

func ByteStrValue(b []byte) Value {
	return Value{Type: DTByteStr, Flag: FlagValid, Bytes: [][]byte{b}}
}

func ExternalReferenceValue(description, mimeType, location string) Value {
	return Value{Type: DTExternalReference, Flag: FlagValid, Str: []string{description, mimeType, location}}
}

func StringSeq(s ...string) Value {
	return Value{Type: DSString, Flag: FlagValid, Str: s}
}

func LongSeq(v ...int64) Value {
	return Value{Type: DSLong, Flag: FlagValid, Int: v}
}

func LongLongSeq(v ...int64) Value {
	return Value{Type: DSLongLong, Flag: FlagValid, Int: v}
}

func DoubleSeq(v ...float64) Value {
	return Value{Type: DSDouble, Flag: FlagValid, Float: v}
}

// WithUnit returns a copy of v carrying unit.
func (v Value) WithUnit(unit string) Value {
	v.Unit = unit
	return v
}

// IsValid reports whether the value is flagged valid.
func (v Value) IsValid() bool { return v.Flag.IsValid() }

// Len returns the number of logical elements in the value.
func (v Value) Len() int {
	stride := v.Type.Stride()
	switch v.Type.Family() {
	case FamilyInt:
		return len(v.Int) / stride
	case FamilyFloat:
		return len(v.Float) / stride
	case FamilyString:
		return len(v.Str) / stride
	case FamilyBytes:
		return len(v.Bytes)
	case FamilyNone:
		return 0
	}
	return 0
}

// Element returns element i of a sequence value as a scalar value. The
// element is flagged invalid when SeqFlags marks it so or i is out of range.
func (v Value) Element(i int) Value {
	scalar := v.Type.Scalar()
	if i < 0 || i >= v.Len() {
		return InvalidValue(scalar)
	}
	out := Value{Type: scalar, Flag: v.Flag, Unit: v.Unit}
	if i < len(v.SeqFlags) {
		out.Flag = v.SeqFlags[i]
	}
	stride := v.Type.Stride()
	switch v.Type.Family() {
	case FamilyInt:
		out.Int = append([]int64(nil), v.Int[i*stride:(i+1)*stride]...)
	case FamilyFloat:
		out.Float = append([]float64(nil), v.Float[i*stride:(i+1)*stride]...)
	case FamilyString:
		out.Str = append([]string(nil), v.Str[i*stride:(i+1)*stride]...)
	case FamilyBytes:
		out.Bytes = [][]byte{v.Bytes[i]}
	case FamilyNone:
	}
	return out
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := v
	out.Int = append([]int64(nil), v.Int...)
	out.Float = append([]float64(nil), v.Float...)
	out.Str = append([]string(nil), v.Str...)
	out.SeqFlags = append([]Flag(nil), v.SeqFlags...)
	if v.Bytes != nil {
		out.Bytes = make([][]byte, len(v.Bytes))
		for i, b := range v.Bytes {
			out.Bytes[i] = append([]byte(nil), b...)
		}
	}
	return out
}

// Equal compares type, flag, unit and payload.
func (v Value) Equal(o Value) bool {
	if v.Type != o.Type || v.Flag != o.Flag || v.Unit != o.Unit {
		return false
	}
	if len(v.Int) != len(o.Int) || len(v.Float) != len(o.Float) ||
		len(v.Str) != len(o.Str) || len(v.Bytes) != len(o.Bytes) {
		return false
	}
	for i := range v.Int {
		if v.Int[i] != o.Int[i] {
			return false
		}
	}
	for i := range v.Float {
		if v.Float[i] != o.Float[i] {
			return false
		}
	}
	for i := range v.Str {
		if v.Str[i] != o.Str[i] {
			return false
		}
	}
	for i := range v.Bytes {
		if !bytes.Equal(v.Bytes[i], o.Bytes[i]) {
			return false
		}
	}
	return true
}

// AsString returns the first string payload, or "".
func (v Value) AsString() string {
	if len(v.Str) == 0 {
		return ""
	}
	return v.Str[0]
}

// AsInt returns the first integer payload.
func (v Value) AsInt() (int64, bool) {
	if len(v.Int) == 0 {
		return 0, false
	}
	return v.Int[0], true
}

// AsFloat returns the first numeric payload as float64, converting integers.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type.Family() {
	case FamilyFloat:
		if len(v.Float) > 0 {
			return v.Float[0], true
		}
	case FamilyInt:
		if len(v.Int) > 0 {
			return float64(v.Int[0]), true
		}
	case FamilyString, FamilyBytes, FamilyNone:
	}
	return 0, false
}

func (v Value) String() string {
	if !v.IsValid() {
		return fmt.Sprintf("%s(invalid)", v.Type)
	}
	var body string
	switch v.Type.Family() {
	case FamilyInt:
		body = fmt.Sprint(v.Int)
	case FamilyFloat:
		body = fmt.Sprint(v.Float)
	case FamilyString:
		body = "[" + strings.Join(v.Str, ",") + "]"
	case FamilyBytes:
		body = fmt.Sprintf("[%d byte strings]", len(v.Bytes))
	case FamilyNone:
		body = "[]"
	}
	if v.Unit != "" {
		return fmt.Sprintf("%s%s %s", v.Type, body, v.Unit)
	}
	return v.Type.String() + body
}
