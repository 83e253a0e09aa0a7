package engine

import (
	"fmt"
	"strings"

	"odscore/src/models"
)

// LinkMode selects how SetRelatedInstances changes a relation set.
type LinkMode uint8

const (
	// ModeInsert adds links that do not exist yet.
	ModeInsert LinkMode = iota
	// ModeRemove deletes every link to the given targets.
	ModeRemove
	// ModeReplace makes the given targets the whole relation set.
	ModeReplace
	// ModeAppend adds links without checking for existing ones. Used for
	// bulk many-to-many loads.
	ModeAppend
)

var linkModeNames = [...]string{"INSERT", "REMOVE", "REPLACE", "APPEND"}

func (m LinkMode) String() string {
	if int(m) < len(linkModeNames) {
		return linkModeNames[m]
	}
	return fmt.Sprintf("LinkMode(%d)", uint8(m))
}

// ParseLinkMode parses INSERT, REMOVE, REPLACE or APPEND.
func ParseLinkMode(s string) (LinkMode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range linkModeNames {
		if n == name {
			return LinkMode(i), nil
		}
	}
	return 0, models.SchemaViolationf("unknown link mode %q", s)
}

// SetRelatedInstances changes the relation set of (aid, iid) for the named
// relation and mirrors every change on the inverse side. Cardinalities are
// checked on both sides before anything is modified.
func (s *Store) SetRelatedInstances(aid, iid int64, relationName string, targets []int64, mode LinkMode) error {
	e, src, err := s.lookup(aid, iid)
	if err != nil {
		return err
	}
	rel, err := s.catalog.RelationByName(aid, relationName)
	if err != nil {
		return err
	}
	inv := s.catalog.Inverse(rel)
	te, err := s.catalog.Element(rel.Elem2)
	if err != nil {
		return err
	}
	ta := s.arenas[rel.Elem2]
	targetInst := make(map[int64]*Instance, len(targets))
	for _, t := range targets {
		var inst *Instance
		if ta != nil {
			inst = ta.get(t)
		}
		if inst == nil {
			return models.NotFoundf("relation %s.%s: target instance %d of %s does not exist", e.Name, rel.Name, t, te.Name)
		}
		targetInst[t] = inst
	}

	old := src.links[rel.ID]
	var next, added []int64
	removed := make(map[int64]bool)

	switch mode {
	case ModeInsert:
		next = append([]int64(nil), old...)
		present := iidSet(old)
		for _, t := range targets {
			if !present[t] {
				present[t] = true
				next = append(next, t)
				added = append(added, t)
			}
		}

	case ModeRemove:
		drop := iidSet(targets)
		for _, t := range old {
			if drop[t] {
				removed[t] = true
			} else {
				next = append(next, t)
			}
		}

	case ModeReplace:
		// Targets whose link count changes are unlinked completely and
		// linked again once, so APPEND duplicates collapse on both sides.
		next = uniqueIids(targets)
		oldCount, newSet := iidCount(old), iidSet(next)
		for t := range oldCount {
			if !newSet[t] || oldCount[t] > 1 {
				removed[t] = true
			}
		}
		for _, t := range next {
			if oldCount[t] != 1 {
				added = append(added, t)
			}
		}

	case ModeAppend:
		next = append(append([]int64(nil), old...), targets...)
		added = targets

	default:
		return models.SchemaViolationf("unknown link mode %d", mode)
	}

	if !rel.Range.AllowsAtMost(len(next)) {
		return models.ConstraintViolationf("relation %s.%s of instance %d allows at most %d links, got %d",
			e.Name, rel.Name, iid, rel.Range.Max, len(next))
	}

	staged := make(map[int64][]int64)
	current := func(t int64) []int64 {
		if l, ok := staged[t]; ok {
			return l
		}
		return targetInst[t].links[inv.ID]
	}
	for t := range removed {
		if _, ok := targetInst[t]; !ok {
			inst := ta.get(t)
			if inst == nil {
				continue
			}
			targetInst[t] = inst
		}
		staged[t] = removeAll(current(t), iid)
	}
	for _, t := range added {
		l := current(t)
		staged[t] = append(append([]int64(nil), l...), iid)
	}
	for t, l := range staged {
		if !inv.Range.AllowsAtMost(len(l)) {
			return models.ConstraintViolationf("relation %s.%s of instance %d allows at most %d links",
				te.Name, inv.Name, t, inv.Range.Max)
		}
	}

	setLinks(src, rel.ID, next)
	for t, l := range staged {
		setLinks(targetInst[t], inv.ID, l)
	}
	s.record("LINK", e, "iid=%d relation=%s mode=%s targets=%v", iid, rel.Name, mode, targets)
	return nil
}

// GetRelatedInstanceIds returns the relation set of (aid, iid) for the
// named relation in link order.
func (s *Store) GetRelatedInstanceIds(aid, iid int64, relationName string) ([]int64, error) {
	_, inst, err := s.lookup(aid, iid)
	if err != nil {
		return nil, err
	}
	rel, err := s.catalog.RelationByName(aid, relationName)
	if err != nil {
		return nil, err
	}
	return append([]int64{}, inst.links[rel.ID]...), nil
}

// Related returns the relation set of instance iid of rel.Elem1. The slice
// is owned by the store and must not be modified. Unknown instances have
// no related instances.
func (s *Store) Related(rel *models.Relation, iid int64) []int64 {
	a, ok := s.arenas[rel.Elem1]
	if !ok {
		return nil
	}
	inst := a.get(iid)
	if inst == nil {
		return nil
	}
	return inst.links[rel.ID]
}

func setLinks(inst *Instance, id models.RelationID, l []int64) {
	if len(l) == 0 {
		delete(inst.links, id)
		return
	}
	inst.links[id] = l
}

func iidSet(iids []int64) map[int64]bool {
	set := make(map[int64]bool, len(iids))
	for _, iid := range iids {
		set[iid] = true
	}
	return set
}

func iidCount(iids []int64) map[int64]int {
	count := make(map[int64]int, len(iids))
	for _, iid := range iids {
		count[iid]++
	}
	return count
}

// uniqueIids drops repeated iids, keeping the first occurrence.
func uniqueIids(iids []int64) []int64 {
	seen := make(map[int64]bool, len(iids))
	out := make([]int64, 0, len(iids))
	for _, iid := range iids {
		if !seen[iid] {
			seen[iid] = true
			out = append(out, iid)
		}
	}
	return out
}

func removeAll(iids []int64, victim int64) []int64 {
	out := make([]int64, 0, len(iids))
	for _, iid := range iids {
		if iid != victim {
			out = append(out, iid)
		}
	}
	return out
}
