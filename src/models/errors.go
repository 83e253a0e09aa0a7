package models

import (
	"github.com/cockroachdb/errors"
)

// Error categories. Every error returned by this module is marked with
// exactly one of these, so callers test with errors.Is.
var (
	ErrSchemaViolation     = errors.New("schema violation")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("not found")
	ErrAmbiguousRelation   = errors.New("ambiguous relation")
	ErrQueryTooComplex     = errors.New("query too complex")
	ErrIOFailure           = errors.New("i/o failure")
	ErrRange               = errors.New("range error")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

func SchemaViolationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrSchemaViolation)
}

func ConstraintViolationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConstraintViolation)
}

func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func AmbiguousRelationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrAmbiguousRelation)
}

func QueryTooComplexf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrQueryTooComplex)
}

func Rangef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrRange)
}

func UnsupportedEncodingf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupportedEncoding)
}

// WrapIOFailure wraps an operating system error as an I/O failure.
func WrapIOFailure(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIOFailure)
}
