package query

import (
	"odscore/src/models"
)

// Edge links row A of the left result set to row B of the right one.
type Edge struct {
	A int
	B int
}

// JoinResult holds the edges of a join and both sides re-projected onto
// them: row k of A and row k of B belong to edge k.
type JoinResult struct {
	Relation *models.Relation
	Edges    []Edge
	A        *ResultSet
	B        *ResultSet
}

// Join expands the links of rel between the instances keyed in a (element1
// of rel) and b (element2 of rel) into an edge list. Instances without
// related partners in b produce no edges. Links to instances b does not
// contain are skipped, links stored more than once give one edge each.
func (q *Engine) Join(a, b *ResultSet, rel *models.Relation) (*JoinResult, error) {
	aKeys := a.Key(rel.Elem1)
	if aKeys == nil {
		return nil, models.SchemaViolationf("left side has no %s column for relation %s", q.elementName(rel.Elem1), rel.Name)
	}
	bKeys := b.Key(rel.Elem2)
	if bKeys == nil {
		return nil, models.SchemaViolationf("right side has no %s column for relation %s", q.elementName(rel.Elem2), rel.Name)
	}

	bRows := make(map[int64][]int, len(bKeys))
	for row, iid := range bKeys {
		bRows[iid] = append(bRows[iid], row)
	}

	var edges []Edge
	if rel.Range.Max == 1 {
		// at most one partner per left row: a filtered match
		for row, iid := range aKeys {
			related := q.store.Related(rel, iid)
			if len(related) == 0 {
				continue
			}
			for _, br := range bRows[related[0]] {
				edges = append(edges, Edge{A: row, B: br})
			}
		}
	} else {
		for row, iid := range aKeys {
			for _, t := range q.store.Related(rel, iid) {
				for _, br := range bRows[t] {
					edges = append(edges, Edge{A: row, B: br})
				}
			}
		}
	}

	aRows := make([]int, len(edges))
	bRowsOut := make([]int, len(edges))
	for k, e := range edges {
		aRows[k] = e.A
		bRowsOut[k] = e.B
	}
	q.logger.Debugf("join over %s: %d left rows, %d right rows, %d edges", rel.Name, a.Len(), b.Len(), len(edges))
	return &JoinResult{
		Relation: rel,
		Edges:    edges,
		A:        a.project(aRows),
		B:        b.project(bRowsOut),
	}, nil
}

// Merge combines both edge aligned sides into one result set.
func (j *JoinResult) Merge() (*ResultSet, error) {
	return Merge(j.A, j.B)
}

// Merge combines two result sets with the same number of rows column by
// column. Key columns present on both sides must agree.
func Merge(a, b *ResultSet) (*ResultSet, error) {
	if a.Len() != b.Len() {
		return nil, models.SchemaViolationf("cannot merge result sets of %d and %d rows", a.Len(), b.Len())
	}
	out := &ResultSet{
		Keys:    append([]KeyColumn{}, a.Keys...),
		Columns: append([]Column{}, a.Columns...),
	}
	for _, k := range b.Keys {
		if existing := a.Key(k.Aid); existing != nil {
			for row := range existing {
				if existing[row] != k.Iids[row] {
					return nil, models.SchemaViolationf("result sets disagree on element %d at row %d", k.Aid, row)
				}
			}
			continue
		}
		out.Keys = append(out.Keys, k)
	}
	for _, c := range b.Columns {
		if a.Column(c.Aid, c.Name) != nil {
			continue
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}
