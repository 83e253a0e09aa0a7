package query

import (
	"odscore/src/models"
)

// KeyColumn holds the iid of one element per row.
type KeyColumn struct {
	Aid  int64
	Iids []int64
}

// Column is a named attribute column. Values carry their own validity flag.
type Column struct {
	Aid     int64
	Element string
	Name    string
	Type    models.DataType
	Values  []models.Value
}

// ResultSet is a column oriented table. Every row identifies one instance
// per key column; a plain selection has a single key column, a join result
// one per joined element.
type ResultSet struct {
	Keys    []KeyColumn
	Columns []Column
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if len(r.Keys) == 0 {
		return 0
	}
	return len(r.Keys[0].Iids)
}

// Key returns the iid column of element aid, or nil.
func (r *ResultSet) Key(aid int64) []int64 {
	for _, k := range r.Keys {
		if k.Aid == aid {
			return k.Iids
		}
	}
	return nil
}

// Column returns the column of attribute name on element aid, or nil.
func (r *ResultSet) Column(aid int64, name string) *Column {
	for i := range r.Columns {
		if r.Columns[i].Aid == aid && r.Columns[i].Name == name {
			return &r.Columns[i]
		}
	}
	return nil
}

// Value returns the value at row of a column. Rows the column does not
// cover read as invalid.
func (c *Column) Value(row int) models.Value {
	if row < 0 || row >= len(c.Values) {
		return models.InvalidValue(c.Type)
	}
	return c.Values[row]
}

// Select builds a result set of element aid with one row per iid and one
// column per named attribute.
func (q *Engine) Select(aid int64, iids []int64, attributes []string) (*ResultSet, error) {
	e, err := q.catalog.Element(aid)
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Keys: []KeyColumn{{Aid: aid, Iids: append([]int64{}, iids...)}}}
	for _, name := range attributes {
		a, _ := e.Attribute(name)
		if a == nil {
			return nil, models.NotFoundf("element %s has no attribute %q", e.Name, name)
		}
		col := Column{Aid: aid, Element: e.Name, Name: a.Name, Type: a.DataType, Values: make([]models.Value, len(iids))}
		for row, iid := range iids {
			v, err := q.store.GetAttributeValue(aid, iid, a.Name)
			if err != nil {
				return nil, err
			}
			col.Values[row] = v
		}
		rs.Columns = append(rs.Columns, col)
	}
	return rs, nil
}

// project returns a copy of r whose row k is row rows[k] of r.
func (r *ResultSet) project(rows []int) *ResultSet {
	out := &ResultSet{
		Keys:    make([]KeyColumn, len(r.Keys)),
		Columns: make([]Column, len(r.Columns)),
	}
	for i, k := range r.Keys {
		iids := make([]int64, len(rows))
		for j, row := range rows {
			iids[j] = k.Iids[row]
		}
		out.Keys[i] = KeyColumn{Aid: k.Aid, Iids: iids}
	}
	for i := range r.Columns {
		c := &r.Columns[i]
		values := make([]models.Value, len(rows))
		for j, row := range rows {
			values[j] = c.Value(row).Clone()
		}
		out.Columns[i] = Column{Aid: c.Aid, Element: c.Element, Name: c.Name, Type: c.Type, Values: values}
	}
	return out
}

// Limit truncates the result set to at most n rows.
func (r *ResultSet) Limit(n int) {
	if n < 0 || n >= r.Len() {
		return
	}
	for i := range r.Keys {
		r.Keys[i].Iids = r.Keys[i].Iids[:n]
	}
	for i := range r.Columns {
		if len(r.Columns[i].Values) > n {
			r.Columns[i].Values = r.Columns[i].Values[:n]
		}
	}
}
