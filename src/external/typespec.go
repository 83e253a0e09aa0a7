package external

import (
	"fmt"

	"odscore/src/models"
)

// ValueType is the on-disk encoding tag of an external component. Codes
// follow the typespec_enum of the base model.
type ValueType int32

const (
	TypeBoolean ValueType = iota
	TypeByte
	TypeShort
	TypeLong
	TypeLongLong
	TypeFloat32
	TypeFloat64
	TypeShortBE
	TypeLongBE
	TypeLongLongBE
	TypeFloat32BE
	TypeFloat64BE
	TypeString
	TypeByteStr
	TypeBlob
	TypeBooleanFlagsBE
	TypeByteFlagsBE
	TypeStringFlagsBE
	TypeByteStrBE
	TypeSByte
	TypeSByteFlagsBE
	TypeUShort
	TypeUShortBE
	TypeULong
	TypeULongBE
	TypeStringUTF8
	TypeStringUTF8BE
	TypeBitInt
	TypeBitIntBE
	TypeBitUInt
	TypeBitUIntBE
	TypeBitFloat
	TypeBitFloatBE
)

var valueTypeNames = [...]string{
	TypeBoolean:        "dt_boolean",
	TypeByte:           "dt_byte",
	TypeShort:          "dt_short",
	TypeLong:           "dt_long",
	TypeLongLong:       "dt_longlong",
	TypeFloat32:        "ieeefloat4",
	TypeFloat64:        "ieeefloat8",
	TypeShortBE:        "dt_short_beo",
	TypeLongBE:         "dt_long_beo",
	TypeLongLongBE:     "dt_longlong_beo",
	TypeFloat32BE:      "ieeefloat4_beo",
	TypeFloat64BE:      "ieeefloat8_beo",
	TypeString:         "dt_string",
	TypeByteStr:        "dt_bytestr",
	TypeBlob:           "dt_blob",
	TypeBooleanFlagsBE: "dt_boolean_flags_beo",
	TypeByteFlagsBE:    "dt_byte_flags_beo",
	TypeStringFlagsBE:  "dt_string_flags_beo",
	TypeByteStrBE:      "dt_bytestr_beo",
	TypeSByte:          "dt_sbyte",
	TypeSByteFlagsBE:   "dt_sbyte_flags_beo",
	TypeUShort:         "dt_ushort",
	TypeUShortBE:       "dt_ushort_beo",
	TypeULong:          "dt_ulong",
	TypeULongBE:        "dt_ulong_beo",
	TypeStringUTF8:     "dt_string_utf8",
	TypeStringUTF8BE:   "dt_string_utf8_beo",
	TypeBitInt:         "dt_bit_int",
	TypeBitIntBE:       "dt_bit_int_beo",
	TypeBitUInt:        "dt_bit_uint",
	TypeBitUIntBE:      "dt_bit_uint_beo",
	TypeBitFloat:       "dt_bit_ieeefloat",
	TypeBitFloatBE:     "dt_bit_ieeefloat_beo",
}

func (t ValueType) String() string {
	if t >= 0 && int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("typespec(%d)", int32(t))
}

type encodingKind uint8

const (
	kindSigned encodingKind = iota
	kindUnsigned
	kindBool
	kindFloat
	kindString
	kindBytes
	kindBitSigned
	kindBitUnsigned
	kindBitFloat
)

// encoding describes how one tag is laid out and what it decodes to.
// Bit-packed and text tags size their elements per descriptor.
type encoding struct {
	kind      encodingKind
	width     int
	bigEndian bool
	out       models.DataType
}

// Single-byte tags carry no byte order, so the _beo variants of them
// decode exactly like their plain counterparts.
var encodings = map[ValueType]encoding{
	TypeBoolean:        {kind: kindBool, width: 1, out: models.DSBoolean},
	TypeBooleanFlagsBE: {kind: kindBool, width: 1, out: models.DSBoolean},
	TypeSByte:          {kind: kindSigned, width: 1, out: models.DSByte},
	TypeSByteFlagsBE:   {kind: kindSigned, width: 1, out: models.DSByte},
	TypeByte:           {kind: kindUnsigned, width: 1, out: models.DSShort},
	TypeByteFlagsBE:    {kind: kindUnsigned, width: 1, out: models.DSShort},
	TypeShort:          {kind: kindSigned, width: 2, out: models.DSShort},
	TypeShortBE:        {kind: kindSigned, width: 2, bigEndian: true, out: models.DSShort},
	TypeUShort:         {kind: kindUnsigned, width: 2, out: models.DSLong},
	TypeUShortBE:       {kind: kindUnsigned, width: 2, bigEndian: true, out: models.DSLong},
	TypeLong:           {kind: kindSigned, width: 4, out: models.DSLong},
	TypeLongBE:         {kind: kindSigned, width: 4, bigEndian: true, out: models.DSLong},
	TypeULong:          {kind: kindUnsigned, width: 4, out: models.DSLongLong},
	TypeULongBE:        {kind: kindUnsigned, width: 4, bigEndian: true, out: models.DSLongLong},
	TypeLongLong:       {kind: kindSigned, width: 8, out: models.DSLongLong},
	TypeLongLongBE:     {kind: kindSigned, width: 8, bigEndian: true, out: models.DSLongLong},
	TypeFloat32:        {kind: kindFloat, width: 4, out: models.DSFloat},
	TypeFloat32BE:      {kind: kindFloat, width: 4, bigEndian: true, out: models.DSFloat},
	TypeFloat64:        {kind: kindFloat, width: 8, out: models.DSDouble},
	TypeFloat64BE:      {kind: kindFloat, width: 8, bigEndian: true, out: models.DSDouble},
	TypeString:         {kind: kindString, out: models.DSString},
	TypeStringFlagsBE:  {kind: kindString, out: models.DSString},
	TypeStringUTF8:     {kind: kindString, out: models.DSString},
	TypeStringUTF8BE:   {kind: kindString, out: models.DSString},
	TypeByteStr:        {kind: kindBytes, out: models.DSByteStr},
	TypeByteStrBE:      {kind: kindBytes, out: models.DSByteStr},
	TypeBlob:           {kind: kindBytes, out: models.DSByteStr},
	TypeBitInt:         {kind: kindBitSigned},
	TypeBitIntBE:       {kind: kindBitSigned, bigEndian: true},
	TypeBitUInt:        {kind: kindBitUnsigned},
	TypeBitUIntBE:      {kind: kindBitUnsigned, bigEndian: true},
	TypeBitFloat:       {kind: kindBitFloat},
	TypeBitFloatBE:     {kind: kindBitFloat, bigEndian: true},
}

// resolve returns the encoding of d with per-descriptor sizes filled in.
func resolve(d *Descriptor) (encoding, error) {
	enc, ok := encodings[d.ValueType]
	if !ok {
		return encoding{}, models.UnsupportedEncodingf("value type %s is not supported", d.ValueType)
	}

	switch enc.kind {
	case kindString, kindBytes:
		// fixed-length slots: a block holds ValuesPerBlock equal slots
		if d.ValuesPerBlock < 1 || d.BlockSize < d.ValuesPerBlock {
			return encoding{}, models.UnsupportedEncodingf("%s needs block_size >= valuesperblock, got %d/%d",
				d.ValueType, d.BlockSize, d.ValuesPerBlock)
		}
		enc.width = int(d.BlockSize / d.ValuesPerBlock)
		if enc.width < 1 {
			return encoding{}, models.UnsupportedEncodingf("%s slot width below one byte", d.ValueType)
		}
	case kindBitSigned, kindBitUnsigned, kindBitFloat:
		if d.BitCount < 1 || d.BitOffset < 0 || d.BitOffset+d.BitCount > 64 {
			return encoding{}, models.UnsupportedEncodingf("%s with %d bits at offset %d does not fit a 64 bit word",
				d.ValueType, d.BitCount, d.BitOffset)
		}
		enc.width = (d.BitCount + 7) / 8
		switch enc.kind {
		case kindBitSigned:
			enc.out = signedFor(d.BitCount)
		case kindBitUnsigned:
			if d.BitCount == 64 {
				return encoding{}, models.UnsupportedEncodingf("%s with 64 bits has no wider signed type", d.ValueType)
			}
			enc.out = signedFor(d.BitCount + 1)
		case kindBitFloat:
			switch d.BitCount {
			case 32:
				enc.out = models.DSFloat
			case 64:
				enc.out = models.DSDouble
			default:
				return encoding{}, models.UnsupportedEncodingf("%s needs 32 or 64 bits, got %d", d.ValueType, d.BitCount)
			}
		}
	}
	return enc, nil
}

// signedFor returns the narrowest signed sequence type holding bits bits.
func signedFor(bits int) models.DataType {
	switch {
	case bits <= 8:
		return models.DSByte
	case bits <= 16:
		return models.DSShort
	case bits <= 32:
		return models.DSLong
	default:
		return models.DSLongLong
	}
}

// window is the number of bytes a bit-packed field spans at its position.
func (d *Descriptor) window() int {
	return (d.BitOffset + d.BitCount + 7) / 8
}
