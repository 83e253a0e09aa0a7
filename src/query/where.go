package query

import (
	"fmt"
	"strings"

	"odscore/src/models"
)

// LogicOp combines the children of a Where node.
type LogicOp uint8

const (
	LogicLeaf LogicOp = iota
	LogicAnd
	LogicOr
	LogicNot
)

// Where is a condition tree. Leaves carry a Condition, inner nodes combine
// their children with AND, OR or NOT.
type Where struct {
	Op       LogicOp
	Cond     Condition
	Children []*Where
}

// Leaf wraps a single, compiled condition.
func Leaf(c Condition) *Where {
	return &Where{Op: LogicLeaf, Cond: c.Compile()}
}

func And(children ...*Where) *Where {
	return &Where{Op: LogicAnd, Children: children}
}

func Or(children ...*Where) *Where {
	return &Where{Op: LogicOr, Children: children}
}

func Not(child *Where) *Where {
	return &Where{Op: LogicNot, Children: []*Where{child}}
}

func (w *Where) String() string {
	switch w.Op {
	case LogicLeaf:
		return w.Cond.String()
	case LogicNot:
		return fmt.Sprintf("NOT (%s)", w.Children[0])
	case LogicAnd, LogicOr:
		sep := " AND "
		if w.Op == LogicOr {
			sep = " OR "
		}
		parts := make([]string, len(w.Children))
		for i, c := range w.Children {
			parts[i] = "(" + c.String() + ")"
		}
		return strings.Join(parts, sep)
	}
	return "?"
}

// Evaluate decides the condition tree for instance iid of the root element.
// Leaves on other elements are decided over the related instances reached
// from iid. NOT negates the result of its subtree, so NOT over a remote leaf
// means that no reachable instance matches.
func (q *Engine) Evaluate(w *Where, rootAid, iid int64) (bool, error) {
	if w == nil {
		return true, nil
	}
	switch w.Op {
	case LogicLeaf:
		return q.CheckConditionOnRelatedInstances(rootAid, iid, w.Cond)
	case LogicNot:
		if len(w.Children) != 1 {
			return false, models.SchemaViolationf("NOT takes one operand, got %d", len(w.Children))
		}
		ok, err := q.Evaluate(w.Children[0], rootAid, iid)
		return !ok, err
	case LogicAnd:
		for _, c := range w.Children {
			ok, err := q.Evaluate(c, rootAid, iid)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case LogicOr:
		for _, c := range w.Children {
			ok, err := q.Evaluate(c, rootAid, iid)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, models.SchemaViolationf("unknown logic operator %d", w.Op)
}

// CheckConditionOnRelatedInstances reports whether at least one instance of
// the condition's element reachable from (rootAid, rootIid) satisfies it.
// The relation path is walked breadth first, replacing the instance set at
// each hop with the union of the related instances. A condition on the root
// element itself is checked against the root instance.
func (q *Engine) CheckConditionOnRelatedInstances(rootAid, rootIid int64, cond Condition) (bool, error) {
	if !q.store.HasInstance(rootAid, rootIid) {
		return false, models.NotFoundf("instance %d of %s does not exist", rootIid, q.elementName(rootAid))
	}
	e, err := q.catalog.Element(cond.Aid)
	if err != nil {
		return false, err
	}
	if a, _ := e.Attribute(cond.Attribute); a == nil {
		return false, models.NotFoundf("element %s has no attribute %q", e.Name, cond.Attribute)
	}
	if cond.like == nil {
		cond = cond.Compile()
	}

	path, err := q.FindRelationPath(rootAid, cond.Aid)
	if err != nil {
		return false, err
	}
	current := []int64{rootIid}
	for _, rel := range path {
		current = q.reach(rel, current)
		if len(current) == 0 {
			return false, nil
		}
	}

	for _, iid := range current {
		v, err := q.store.GetAttributeValue(cond.Aid, iid, cond.Attribute)
		if err != nil {
			return false, err
		}
		if cond.Match(v) {
			return true, nil
		}
	}
	return false, nil
}

// reach returns the distinct instances related to any of iids through rel,
// in first-seen order.
func (q *Engine) reach(rel *models.Relation, iids []int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, iid := range iids {
		for _, t := range q.store.Related(rel, iid) {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}
