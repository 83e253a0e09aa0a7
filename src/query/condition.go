package query

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"odscore/src/models"
)

// Operator is the comparison a Condition applies.
type Operator uint8

const (
	OpEQ Operator = iota
	OpNEQ
	OpLT
	OpGT
	OpLTE
	OpGTE
	// OpLike matches ODS patterns: '*' is any run of characters, '?' is one.
	OpLike
	OpNotLike
	OpCIEQ
	OpCINEQ
	OpCILike
	OpInSet
	OpNotInSet
	// OpBetween takes a two element operand, both bounds inclusive.
	OpBetween
	OpIsNull
	OpIsNotNull
)

var operatorNames = [...]string{
	"EQ", "NEQ", "LT", "GT", "LTE", "GTE", "LIKE", "NOTLIKE",
	"CI_EQ", "CI_NEQ", "CI_LIKE", "INSET", "NOTINSET", "BETWEEN", "IS_NULL", "IS_NOT_NULL",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", uint8(o))
}

// ParseOperator accepts the operator names and the usual symbols.
func ParseOperator(s string) (Operator, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	switch name {
	case "=", "==":
		return OpEQ, nil
	case "!=", "<>":
		return OpNEQ, nil
	case "<":
		return OpLT, nil
	case ">":
		return OpGT, nil
	case "<=":
		return OpLTE, nil
	case ">=":
		return OpGTE, nil
	case "IN":
		return OpInSet, nil
	}
	for i, n := range operatorNames {
		if n == name {
			return Operator(i), nil
		}
	}
	return 0, models.SchemaViolationf("unknown operator %q", s)
}

// Condition compares one attribute of an element against an operand.
type Condition struct {
	Aid       int64
	Attribute string
	Op        Operator
	// Operand is a scalar for the comparison operators, a sequence for
	// INSET/NOTINSET and a two element sequence for BETWEEN. IS_NULL and
	// IS_NOT_NULL ignore it.
	Operand models.Value

	like *regexp.Regexp
}

// Compile returns c with its LIKE pattern compiled, so repeated matches
// reuse it. Leaf and ParseWhere compile their conditions.
func (c Condition) Compile() Condition {
	switch c.Op {
	case OpLike, OpNotLike, OpCILike:
		c.like = likePattern(c.Operand.AsString(), c.Op == OpCILike)
	}
	return c
}

func (c Condition) String() string {
	switch c.Op {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%d.%s %s", c.Aid, c.Attribute, c.Op)
	}
	return fmt.Sprintf("%d.%s %s %s", c.Aid, c.Attribute, c.Op, c.Operand)
}

// Match reports whether value v satisfies the condition. A sequence matches
// when any of its valid elements does. Invalid values only satisfy IS_NULL.
func (c Condition) Match(v models.Value) bool {
	switch c.Op {
	case OpIsNull:
		return !v.IsValid() || v.Len() == 0
	case OpIsNotNull:
		return v.IsValid() && v.Len() > 0
	}
	if !v.IsValid() {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		el := v.Element(i)
		if !el.IsValid() {
			continue
		}
		if c.matchScalar(el) {
			return true
		}
	}
	return false
}

func (c Condition) matchScalar(el models.Value) bool {
	switch c.Op {
	case OpEQ, OpNEQ, OpLT, OpGT, OpLTE, OpGTE:
		cmp, ok := compareScalars(el, c.Operand.Element(0))
		if !ok {
			return c.Op == OpNEQ
		}
		return orderHolds(c.Op, cmp)
	case OpCIEQ:
		return strings.EqualFold(el.AsString(), c.Operand.AsString())
	case OpCINEQ:
		return !strings.EqualFold(el.AsString(), c.Operand.AsString())
	case OpLike, OpNotLike, OpCILike:
		re := c.like
		if re == nil {
			re = likePattern(c.Operand.AsString(), c.Op == OpCILike)
		}
		ok := re != nil && re.MatchString(el.AsString())
		return ok != (c.Op == OpNotLike)
	case OpInSet, OpNotInSet:
		in := false
		for i := 0; i < c.Operand.Len(); i++ {
			if cmp, ok := compareScalars(el, c.Operand.Element(i)); ok && cmp == 0 {
				in = true
				break
			}
		}
		return in == (c.Op == OpInSet)
	case OpBetween:
		lo, ok1 := compareScalars(el, c.Operand.Element(0))
		hi, ok2 := compareScalars(el, c.Operand.Element(1))
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case OpIsNull, OpIsNotNull:
	}
	return false
}

func orderHolds(op Operator, cmp int) bool {
	switch op {
	case OpEQ:
		return cmp == 0
	case OpNEQ:
		return cmp != 0
	case OpLT:
		return cmp < 0
	case OpGT:
		return cmp > 0
	case OpLTE:
		return cmp <= 0
	case OpGTE:
		return cmp >= 0
	}
	return false
}

// compareScalars orders two scalar values. Integers and floats compare
// numerically with each other; other families only with themselves.
func compareScalars(a, b models.Value) (int, bool) {
	fa, fb := a.Type.Family(), b.Type.Family()
	switch {
	case fa == models.FamilyInt && fb == models.FamilyInt:
		return compareInts(a.Int, b.Int), true
	case fa == models.FamilyFloat && fb == models.FamilyFloat:
		return compareFloats(a.Float, b.Float), true
	case isNumeric(fa) && isNumeric(fb):
		x, _ := a.AsFloat()
		y, _ := b.AsFloat()
		return compareFloats([]float64{x}, []float64{y}), true
	case fa == models.FamilyString && fb == models.FamilyString:
		for i := 0; i < len(a.Str) && i < len(b.Str); i++ {
			if c := strings.Compare(a.Str[i], b.Str[i]); c != 0 {
				return c, true
			}
		}
		return len(a.Str) - len(b.Str), true
	case fa == models.FamilyBytes && fb == models.FamilyBytes:
		if len(a.Bytes) == 0 || len(b.Bytes) == 0 {
			return len(a.Bytes) - len(b.Bytes), true
		}
		return bytes.Compare(a.Bytes[0], b.Bytes[0]), true
	}
	return 0, false
}

func isNumeric(f models.Family) bool {
	return f == models.FamilyInt || f == models.FamilyFloat
}

func compareInts(a, b []int64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}

func compareFloats(a, b []float64) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return len(a) - len(b)
}

// likePattern translates an ODS pattern into an anchored regexp. A
// backslash escapes the next pattern character.
func likePattern(pattern string, fold bool) *regexp.Regexp {
	var re strings.Builder
	if fold {
		re.WriteString("(?is)^")
	} else {
		re.WriteString("(?s)^")
	}
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			re.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '*':
			re.WriteString(".*")
		case r == '?':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	re.WriteString("$")
	compiled, err := regexp.Compile(re.String())
	if err != nil {
		return nil
	}
	return compiled
}
