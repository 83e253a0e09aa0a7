package hashindex

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"odscore/src/models"
)

// encodeValue encodes a value into a byte slice optimized for hash indexing.
// The first byte is the data type tag, so equal payloads of different
// types never collide. Compatible types (DT_ID and DT_LONGLONG) share a tag.
func encodeValue(v models.Value, field IndexField) []byte {
	var buffer bytes.Buffer

	t := v.Type
	switch t {
	case models.DTID:
		t = models.DTLongLong
	case models.DSID:
		t = models.DSLongLong
	}
	buffer.WriteByte(byte(t))

	switch v.Type.Family() {
	case models.FamilyInt:
		for _, i := range v.Int {
			binary.Write(&buffer, binary.LittleEndian, i)
		}

	case models.FamilyFloat:
		for _, f := range v.Float {
			// all NaNs hash alike
			if math.IsNaN(f) {
				f = math.NaN()
			}
			binary.Write(&buffer, binary.LittleEndian, math.Float64bits(f))
		}

	case models.FamilyString:
		for _, s := range v.Str {
			if field.Collation == CollationCaseInsensitive {
				s = strings.ToLower(s)
			}
			// length prefix keeps ["ab","c"] apart from ["a","bc"]
			binary.Write(&buffer, binary.LittleEndian, uint32(len(s)))
			buffer.WriteString(s)
		}

	case models.FamilyBytes:
		for _, b := range v.Bytes {
			binary.Write(&buffer, binary.LittleEndian, uint32(len(b)))
			buffer.Write(b)
		}

	case models.FamilyNone:
	}

	return buffer.Bytes()
}
