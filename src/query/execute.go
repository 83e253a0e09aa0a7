package query

import (
	"odscore/src/models"
)

// Selector names one attribute of the result. An empty Element means the
// root element.
type Selector struct {
	Element   string
	Attribute string
}

// JoinDef adds element To to the result through a relation from element
// From, which must already be part of it. Without a Relation name the
// relevant relation is identified from the schema.
type JoinDef struct {
	From     string
	To       string
	Relation string
}

// Query is an ad-hoc select over one root element.
type Query struct {
	Root   string
	Select []Selector
	// Where filters root instances. WhereText is parsed when Where is nil.
	Where     *Where
	WhereText string
	Joins     []JoinDef
	// Limit caps the number of rows; zero or less means no limit.
	Limit int
}

// Execute runs a query. Root rows come in iid order, joined rows follow the
// order of the left rows and, per left row, the order of the relation set.
func (q *Engine) Execute(query Query) (*ResultSet, error) {
	root, err := q.catalog.ElementByName(query.Root)
	if err != nil {
		return nil, err
	}

	where := query.Where
	if where == nil && query.WhereText != "" {
		if where, err = ParseWhere(q.catalog, root.Aid, query.WhereText); err != nil {
			return nil, err
		}
	}

	selected := make(map[int64][]string)
	joined := map[int64]bool{root.Aid: true}
	targets := make(map[int64]bool)
	for _, j := range query.Joins {
		to, err := q.catalog.ElementByName(j.To)
		if err != nil {
			return nil, err
		}
		targets[to.Aid] = true
	}
	for _, s := range query.Select {
		aid := root.Aid
		if s.Element != "" {
			e, err := q.catalog.ElementByName(s.Element)
			if err != nil {
				return nil, err
			}
			aid = e.Aid
		}
		if aid != root.Aid && !targets[aid] {
			return nil, models.SchemaViolationf("selected element %s is neither the root nor joined", s.Element)
		}
		selected[aid] = append(selected[aid], s.Attribute)
	}

	all, err := q.store.AllInstances(root.Aid)
	if err != nil {
		return nil, err
	}
	var iids []int64
	for _, iid := range all {
		ok, err := q.Evaluate(where, root.Aid, iid)
		if err != nil {
			return nil, err
		}
		if ok {
			iids = append(iids, iid)
		}
	}

	rs, err := q.Select(root.Aid, iids, selected[root.Aid])
	if err != nil {
		return nil, err
	}

	for _, j := range query.Joins {
		from := root
		if j.From != "" {
			if from, err = q.catalog.ElementByName(j.From); err != nil {
				return nil, err
			}
		}
		to, err := q.catalog.ElementByName(j.To)
		if err != nil {
			return nil, err
		}
		if !joined[from.Aid] {
			return nil, models.SchemaViolationf("join from %s before it is part of the result", from.Name)
		}
		if joined[to.Aid] {
			return nil, models.SchemaViolationf("element %s is joined twice", to.Name)
		}
		rel, err := q.RelevantRelation(from.Aid, to.Aid, j.Relation)
		if err != nil {
			return nil, err
		}

		right, err := q.Select(to.Aid, q.reach(rel, rs.Key(from.Aid)), selected[to.Aid])
		if err != nil {
			return nil, err
		}
		jr, err := q.Join(rs, right, rel)
		if err != nil {
			return nil, err
		}
		if rs, err = jr.Merge(); err != nil {
			return nil, err
		}
		joined[to.Aid] = true
	}

	if query.Limit > 0 {
		rs.Limit(query.Limit)
	}
	return rs, nil
}
