package query

import (
	"fmt"
	"strings"

	"odscore/src/engine"
	"odscore/src/models"
	"odscore/src/schema"

	"go.uber.org/zap"
)

// DefaultMaxHops bounds relation path searches when no limit is configured.
const DefaultMaxHops = 3

// Options configures an Engine.
type Options struct {
	// MaxHops is the longest relation path FindRelationPath will search.
	MaxHops int
	Logger  *zap.SugaredLogger
}

// Engine evaluates conditions and joins over an instance store. It keeps no
// state of its own and may be shared by concurrent readers as long as no
// writer mutates the store at the same time.
type Engine struct {
	store   *engine.Store
	catalog *schema.Catalog
	maxHops int
	logger  *zap.SugaredLogger
}

// NewEngine creates a query engine over store.
func NewEngine(store *engine.Store, opts Options) *Engine {
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		store:   store,
		catalog: store.Catalog(),
		maxHops: opts.MaxHops,
		logger:  opts.Logger,
	}
}

// Store returns the store the engine reads from.
func (q *Engine) Store() *engine.Store {
	return q.store
}

// IdentifyRelevantRelation picks the relation a join or path hop goes
// through. An explicit name wins. Otherwise a single candidate is taken as
// is; with several, exactly one base-bound relation, or failing that exactly
// one FATHER_CHILD relation, must exist. No candidates yields nil.
func IdentifyRelevantRelation(candidates []*models.Relation, explicit string) (*models.Relation, error) {
	if explicit != "" {
		for _, r := range candidates {
			if r.Name == explicit {
				return r, nil
			}
		}
		return nil, models.NotFoundf("no relation named %q between the elements", explicit)
	}
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}

	var base, fatherChild []*models.Relation
	for _, r := range candidates {
		if r.IsBaseRelation() {
			base = append(base, r)
		}
		if r.Type == models.TypeFatherChild {
			fatherChild = append(fatherChild, r)
		}
	}
	if len(base) == 1 {
		return base[0], nil
	}
	if len(fatherChild) == 1 {
		return fatherChild[0], nil
	}
	return nil, models.AmbiguousRelationf("cannot choose between relations %s", relationNames(candidates))
}

func relationNames(rels []*models.Relation) string {
	names := make([]string, len(rels))
	for i, r := range rels {
		names[i] = r.Name
	}
	return strings.Join(names, ", ")
}

// RelevantRelation resolves the relation from element from to element to,
// by name when relationName is set.
func (q *Engine) RelevantRelation(from, to int64, relationName string) (*models.Relation, error) {
	rel, err := IdentifyRelevantRelation(q.catalog.RelationsBetween(from, to), relationName)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, models.NotFoundf("no relation from %s to %s", q.elementName(from), q.elementName(to))
	}
	return rel, nil
}

func (q *Engine) elementName(aid int64) string {
	if e, err := q.catalog.Element(aid); err == nil {
		return e.Name
	}
	return fmt.Sprintf("element %d", aid)
}

// FindRelationPath returns the relations leading from element fromAid to
// element toAid along the first shortest path. The path is empty when both
// are the same element. A search that would need more than the configured
// number of hops fails with QueryTooComplex.
func (q *Engine) FindRelationPath(fromAid, toAid int64) ([]*models.Relation, error) {
	if _, err := q.catalog.Element(fromAid); err != nil {
		return nil, err
	}
	if _, err := q.catalog.Element(toAid); err != nil {
		return nil, err
	}
	if fromAid == toAid {
		return []*models.Relation{}, nil
	}

	if direct := q.catalog.RelationsBetween(fromAid, toAid); len(direct) > 0 {
		rel, err := IdentifyRelevantRelation(direct, "")
		if err != nil {
			return nil, err
		}
		return []*models.Relation{rel}, nil
	}

	// breadth first over elements; parent records how each was reached
	parent := map[int64]int64{fromAid: fromAid}
	frontier := []int64{fromAid}
	for hop := 0; hop < q.maxHops && len(frontier) > 0; hop++ {
		var next []int64
		for _, aid := range frontier {
			for _, r := range q.catalog.Relations(aid) {
				if r.Elem2 == r.Elem1 {
					continue
				}
				if _, seen := parent[r.Elem2]; seen {
					continue
				}
				parent[r.Elem2] = aid
				if r.Elem2 == toAid {
					return q.tracePath(parent, fromAid, toAid)
				}
				next = append(next, r.Elem2)
			}
		}
		frontier = next
	}

	if len(frontier) > 0 {
		return nil, models.QueryTooComplexf("no path from %s to %s within %d hops",
			q.elementName(fromAid), q.elementName(toAid), q.maxHops)
	}
	return nil, models.NotFoundf("%s is not connected to %s", q.elementName(fromAid), q.elementName(toAid))
}

func (q *Engine) tracePath(parent map[int64]int64, fromAid, toAid int64) ([]*models.Relation, error) {
	var chain []int64
	for aid := toAid; aid != fromAid; aid = parent[aid] {
		chain = append(chain, aid)
	}
	chain = append(chain, fromAid)

	path := make([]*models.Relation, 0, len(chain)-1)
	for i := len(chain) - 1; i > 0; i-- {
		rel, err := IdentifyRelevantRelation(q.catalog.RelationsBetween(chain[i], chain[i-1]), "")
		if err != nil {
			return nil, err
		}
		path = append(path, rel)
	}
	q.logger.Debugf("relation path %s -> %s: %s", q.elementName(fromAid), q.elementName(toAid), relationNames(path))
	return path, nil
}
