package query

import (
	"strconv"
	"strings"

	"odscore/src/helpers"
	"odscore/src/models"
	"odscore/src/schema"
)

/*
	WHERE clauses are written as

		mea.typ == "OCT,GES" AND NOT (tag.Code IN (1, 2) OR Name LIKE "run*")

	A field without an element prefix belongs to the root element. Literals
	are converted to the data type of the attribute they are compared with,
	so enum attributes also accept item names.

	Grammar, loosest binding first:

		expr    := and { OR and }
		and     := unary { AND unary }
		unary   := NOT unary | "(" expr ")" | clause
		clause  := field op literal
		         | field [NOT] IN "(" literal { "," literal } ")"
		         | field BETWEEN literal AND literal
		         | field IS [NOT] NULL
*/

// tokenizeWhereClause breaks a WHERE clause into tokens. Quoted strings keep
// their quotes; parentheses, commas and runs of comparison characters are
// tokens of their own.
func tokenizeWhereClause(whereClause string) ([]string, error) {
	var tokens []string
	var currentToken strings.Builder

	flush := func() {
		if currentToken.Len() > 0 {
			tokens = append(tokens, currentToken.String())
			currentToken.Reset()
		}
	}

	for i := 0; i < len(whereClause); i++ {
		ch := whereClause[i]

		switch {
		case ch == '"' || ch == '\'':
			flush()
			end := i + 1
			for end < len(whereClause) && whereClause[end] != ch {
				if whereClause[end] == '\\' && end+1 < len(whereClause) {
					end++
				}
				end++
			}
			if end >= len(whereClause) {
				return nil, models.SchemaViolationf("unterminated string starting at %d", i)
			}
			tokens = append(tokens, whereClause[i:end+1])
			i = end
		case ch == '(' || ch == ')' || ch == ',':
			flush()
			tokens = append(tokens, string(ch))
		case strings.IndexByte("=!<>", ch) >= 0:
			flush()
			end := i
			for end < len(whereClause) && strings.IndexByte("=!<>", whereClause[end]) >= 0 {
				end++
			}
			tokens = append(tokens, whereClause[i:end])
			i = end - 1
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			currentToken.WriteByte(ch)
		}
	}
	flush()

	return tokens, nil
}

type whereParser struct {
	catalog *schema.Catalog
	root    *models.Element
	tokens  []string
	pos     int
}

// ParseWhere parses a WHERE clause for queries rooted at element rootAid.
func ParseWhere(cat *schema.Catalog, rootAid int64, whereClause string) (*Where, error) {
	root, err := cat.Element(rootAid)
	if err != nil {
		return nil, err
	}
	whereClause = strings.TrimSpace(whereClause)
	if len(whereClause) >= 5 && strings.EqualFold(whereClause[:5], "WHERE") {
		whereClause = strings.TrimSpace(whereClause[5:])
	}
	tokens, err := tokenizeWhereClause(whereClause)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	p := &whereParser{catalog: cat, root: root, tokens: tokens}
	w, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, models.SchemaViolationf("unexpected tokens after parsing: %v", p.tokens[p.pos:])
	}
	return w, nil
}

func (p *whereParser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *whereParser) next() (string, error) {
	if p.pos >= len(p.tokens) {
		return "", models.SchemaViolationf("unexpected end of WHERE clause")
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, nil
}

func (p *whereParser) keyword(kw string) bool {
	if strings.EqualFold(p.peek(), kw) {
		p.pos++
		return true
	}
	return false
}

func (p *whereParser) expect(tok string) error {
	got, err := p.next()
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, tok) {
		return models.SchemaViolationf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *whereParser) expr() (*Where, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	terms := []*Where{left}
	for p.keyword("OR") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return Or(terms...), nil
}

func (p *whereParser) and() (*Where, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	terms := []*Where{left}
	for p.keyword("AND") {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return And(terms...), nil
}

func (p *whereParser) unary() (*Where, error) {
	if p.keyword("NOT") {
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	}
	if p.peek() == "(" {
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.clause()
}

func (p *whereParser) clause() (*Where, error) {
	field, err := p.next()
	if err != nil {
		return nil, err
	}
	e, a, err := p.resolveField(field)
	if err != nil {
		return nil, err
	}
	cond := Condition{Aid: e.Aid, Attribute: a.Name}

	switch {
	case p.keyword("IS"):
		cond.Op = OpIsNull
		if p.keyword("NOT") {
			cond.Op = OpIsNotNull
		}
		if err := p.expect("NULL"); err != nil {
			return nil, err
		}
		return Leaf(cond), nil
	case p.keyword("BETWEEN"):
		lo, err := p.literal(a)
		if err != nil {
			return nil, err
		}
		if err := p.expect("AND"); err != nil {
			return nil, err
		}
		hi, err := p.literal(a)
		if err != nil {
			return nil, err
		}
		cond.Op = OpBetween
		cond.Operand = sequenceOf(a.DataType.Scalar(), lo, hi)
		return Leaf(cond), nil
	case strings.EqualFold(p.peek(), "NOT"):
		p.pos++
		switch {
		case p.keyword("IN"):
			cond.Op = OpNotInSet
		case p.keyword("LIKE"):
			cond.Op = OpNotLike
		default:
			return nil, models.SchemaViolationf("expected IN or LIKE after NOT, got %q", p.peek())
		}
	default:
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if cond.Op, err = ParseOperator(tok); err != nil {
			return nil, err
		}
	}

	switch cond.Op {
	case OpInSet, OpNotInSet:
		items, err := p.list(a)
		if err != nil {
			return nil, err
		}
		cond.Operand = sequenceOf(a.DataType.Scalar(), items...)
	case OpIsNull, OpIsNotNull:
	case OpBetween:
		return nil, models.SchemaViolationf("BETWEEN must be written as BETWEEN low AND high")
	default:
		v, err := p.literal(a)
		if err != nil {
			return nil, err
		}
		if isTextOp(cond.Op) {
			v = models.StringValue(v.AsString())
		}
		cond.Operand = v
	}
	return Leaf(cond), nil
}

func isTextOp(op Operator) bool {
	switch op {
	case OpLike, OpNotLike, OpCILike, OpCIEQ, OpCINEQ:
		return true
	}
	return false
}

func (p *whereParser) list(a *models.Attribute) ([]models.Value, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	var items []models.Value
	for {
		v, err := p.literal(a)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		if p.peek() == "," {
			p.pos++
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// resolveField splits elem.attr, defaulting to the root element.
func (p *whereParser) resolveField(field string) (*models.Element, *models.Attribute, error) {
	e := p.root
	name := field
	if dot := strings.LastIndexByte(field, '.'); dot > 0 {
		var err error
		if e, err = p.catalog.ElementByName(field[:dot]); err != nil {
			return nil, nil, err
		}
		name = field[dot+1:]
	}
	a, _ := e.Attribute(name)
	if a == nil {
		return nil, nil, models.NotFoundf("element %s has no attribute %q", e.Name, name)
	}
	return e, a, nil
}

// literal reads the next token and converts it to the scalar type of a.
func (p *whereParser) literal(a *models.Attribute) (models.Value, error) {
	tok, err := p.next()
	if err != nil {
		return models.Value{}, err
	}
	text, _ := helpers.UnquoteLiteral(tok)

	scalar := a.DataType.Scalar()
	v := models.Value{Type: scalar, Flag: models.FlagValid}
	switch scalar.Family() {
	case models.FamilyInt:
		switch {
		case scalar == models.DTBoolean && (strings.EqualFold(text, "true") || strings.EqualFold(text, "false")):
			v.Int = []int64{0}
			if strings.EqualFold(text, "true") {
				v.Int[0] = 1
			}
		case scalar == models.DTEnum && !isInteger(text):
			enum, err := p.catalog.Enumeration(a.EnumName)
			if err != nil {
				return v, err
			}
			code, err := enum.ItemCode(text)
			if err != nil {
				return v, err
			}
			v.Int = []int64{int64(code)}
		default:
			n, err := strconv.ParseInt(text, 10, 64)
			if err != nil {
				return v, models.SchemaViolationf("%s expects an integer, got %s", a.Name, tok)
			}
			v.Int = []int64{n}
		}
	case models.FamilyFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return v, models.SchemaViolationf("%s expects a number, got %s", a.Name, tok)
		}
		v.Float = []float64{f}
		if scalar.Stride() == 2 {
			v.Float = append(v.Float, 0)
		}
	case models.FamilyString:
		v.Type = models.DTString
		v.Str = []string{text}
	case models.FamilyBytes:
		v.Bytes = [][]byte{[]byte(text)}
	case models.FamilyNone:
		return v, models.SchemaViolationf("attribute %s cannot be compared", a.Name)
	}
	return v, nil
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// sequenceOf packs scalars of type t into one sequence value.
func sequenceOf(t models.DataType, items ...models.Value) models.Value {
	out := models.Value{Type: t.Sequence(), Flag: models.FlagValid}
	if t.Family() == models.FamilyString {
		out.Type = models.DSString
	}
	for _, v := range items {
		out.Int = append(out.Int, v.Int...)
		out.Float = append(out.Float, v.Float...)
		out.Str = append(out.Str, v.Str...)
		out.Bytes = append(out.Bytes, v.Bytes...)
	}
	return out
}
