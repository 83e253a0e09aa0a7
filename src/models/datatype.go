package models

import (
	"fmt"
	"strings"
)

// DataType is the ODS data type of an attribute or value.
// The set is closed; switches over it are expected to be exhaustive.
type DataType uint8

const (
	DTUnknown DataType = iota
	DTString
	DTShort
	DTFloat
	DTBoolean
	DTByte
	DTLong
	DTDouble
	DTLongLong
	DTID
	DTDate
	DTByteStr
	DTBlob
	DTComplex
	DTDComplex
	DTExternalReference
	DTEnum
	DSString
	DSShort
	DSFloat
	DSBoolean
	DSByte
	DSLong
	DSDouble
	DSLongLong
	DSID
	DSDate
	DSByteStr
	DSComplex
	DSDComplex
	DSExternalReference
	DSEnum
)

// Family groups data types by the payload slice that carries their values.
type Family uint8

const (
	FamilyNone Family = iota
	// FamilyInt values live in Value.Int.
	FamilyInt
	// FamilyFloat values live in Value.Float. Complex types store
	// interleaved real and imaginary parts.
	FamilyFloat
	// FamilyString values live in Value.Str. External references store
	// triples of description, mime type and location.
	FamilyString
	// FamilyBytes values live in Value.Bytes.
	FamilyBytes
)

var dataTypeNames = [...]string{
	DTUnknown:           "DT_UNKNOWN",
	DTString:            "DT_STRING",
	DTShort:             "DT_SHORT",
	DTFloat:             "DT_FLOAT",
	DTBoolean:           "DT_BOOLEAN",
	DTByte:              "DT_BYTE",
	DTLong:              "DT_LONG",
	DTDouble:            "DT_DOUBLE",
	DTLongLong:          "DT_LONGLONG",
	DTID:                "DT_ID",
	DTDate:              "DT_DATE",
	DTByteStr:           "DT_BYTESTR",
	DTBlob:              "DT_BLOB",
	DTComplex:           "DT_COMPLEX",
	DTDComplex:          "DT_DCOMPLEX",
	DTExternalReference: "DT_EXTERNALREFERENCE",
	DTEnum:              "DT_ENUM",
	DSString:            "DS_STRING",
	DSShort:             "DS_SHORT",
	DSFloat:             "DS_FLOAT",
	DSBoolean:           "DS_BOOLEAN",
	DSByte:              "DS_BYTE",
	DSLong:              "DS_LONG",
	DSDouble:            "DS_DOUBLE",
	DSLongLong:          "DS_LONGLONG",
	DSID:                "DS_ID",
	DSDate:              "DS_DATE",
	DSByteStr:           "DS_BYTESTR",
	DSComplex:           "DS_COMPLEX",
	DSDComplex:          "DS_DCOMPLEX",
	DSExternalReference: "DS_EXTERNALREFERENCE",
	DSEnum:              "DS_ENUM",
}

func (t DataType) String() string {
	if int(t) < len(dataTypeNames) {
		return dataTypeNames[t]
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// ParseDataType accepts names like "DT_LONG", "ds_double" or "LONG".
func ParseDataType(s string) (DataType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "DT_") && !strings.HasPrefix(name, "DS_") {
		name = "DT_" + name
	}
	for i, n := range dataTypeNames {
		if n == name {
			return DataType(i), nil
		}
	}
	return DTUnknown, fmt.Errorf("unknown data type %q", s)
}

// MarshalYAML implements yaml.Marshaler.
func (t DataType) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *DataType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsSequence reports whether t is one of the DS_ types.
func (t DataType) IsSequence() bool {
	return t >= DSString && t <= DSEnum
}

// Scalar returns the DT_ counterpart of a sequence type.
func (t DataType) Scalar() DataType {
	switch t {
	case DSString:
		return DTString
	case DSShort:
		return DTShort
	case DSFloat:
		return DTFloat
	case DSBoolean:
		return DTBoolean
	case DSByte:
		return DTByte
	case DSLong:
		return DTLong
	case DSDouble:
		return DTDouble
	case DSLongLong:
		return DTLongLong
	case DSID:
		return DTID
	case DSDate:
		return DTDate
	case DSByteStr:
		return DTByteStr
	case DSComplex:
		return DTComplex
	case DSDComplex:
		return DTDComplex
	case DSExternalReference:
		return DTExternalReference
	case DSEnum:
		return DTEnum
	}
	return t
}

// Sequence returns the DS_ counterpart of a scalar type. DT_BLOB and
// DT_UNKNOWN have no sequence form and are returned unchanged.
func (t DataType) Sequence() DataType {
	switch t {
	case DTString:
		return DSString
	case DTShort:
		return DSShort
	case DTFloat:
		return DSFloat
	case DTBoolean:
		return DSBoolean
	case DTByte:
		return DSByte
	case DTLong:
		return DSLong
	case DTDouble:
		return DSDouble
	case DTLongLong:
		return DSLongLong
	case DTID:
		return DSID
	case DTDate:
		return DSDate
	case DTByteStr:
		return DSByteStr
	case DTComplex:
		return DSComplex
	case DTDComplex:
		return DSDComplex
	case DTExternalReference:
		return DSExternalReference
	case DTEnum:
		return DSEnum
	}
	return t
}

// Family returns the payload family for t.
func (t DataType) Family() Family {
	switch t.Scalar() {
	case DTShort, DTBoolean, DTByte, DTLong, DTLongLong, DTID, DTEnum:
		return FamilyInt
	case DTFloat, DTDouble, DTComplex, DTDComplex:
		return FamilyFloat
	case DTString, DTDate, DTExternalReference:
		return FamilyString
	case DTByteStr, DTBlob:
		return FamilyBytes
	case DTUnknown:
		return FamilyNone
	}
	return FamilyNone
}

// Stride is the number of payload slots one logical element occupies.
func (t DataType) Stride() int {
	switch t.Scalar() {
	case DTComplex, DTDComplex:
		return 2
	case DTExternalReference:
		return 3
	}
	return 1
}

// Compatible reports whether a value of type v may be stored in an
// attribute of type attr. DT_ID and DT_LONGLONG share a representation.
func Compatible(attr, v DataType) bool {
	if attr == v {
		return true
	}
	norm := func(t DataType) DataType {
		switch t {
		case DTID:
			return DTLongLong
		case DSID:
			return DSLongLong
		}
		return t
	}
	return norm(attr) == norm(v)
}
