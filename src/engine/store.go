package engine

import (
	"fmt"
	"sort"

	"odscore/src/models"
	"odscore/src/schema"

	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

/*

The instance store keeps one arena per element. An arena is a btree of
instances ordered by iid, so full scans come out in iid order without a
sort. Declared attribute values live in a slice aligned with the element's
attribute order; schema-free instance attributes are kept apart. Relation
links are plain iid lists keyed by relation id on both sides of a pair.

The store is not synchronized. A data set holds the lock.

*/

const arenaDegree = 32

// Instance is one row of an element.
type Instance struct {
	Aid int64
	Iid int64

	values    []models.Value
	instAttrs []models.NameValue
	links     map[models.RelationID][]int64
}

// Less orders instances by iid inside an arena.
func (i *Instance) Less(than btree.Item) bool {
	return i.Iid < than.(*Instance).Iid
}

func newInstance(aid, iid int64, nattrs int) *Instance {
	return &Instance{
		Aid:    aid,
		Iid:    iid,
		values: make([]models.Value, nattrs),
		links:  make(map[models.RelationID][]int64),
	}
}

func (i *Instance) value(idx int, a *models.Attribute) models.Value {
	if idx >= len(i.values) || i.values[idx].Type == models.DTUnknown {
		return models.InvalidValue(a.DataType)
	}
	return i.values[idx]
}

func (i *Instance) setValue(idx int, v models.Value) {
	for len(i.values) <= idx {
		i.values = append(i.values, models.Value{})
	}
	i.values[idx] = v
}

type arena struct {
	tree    *btree.BTree
	nextIid int64
}

func newArena() *arena {
	return &arena{tree: btree.New(arenaDegree), nextIid: 1}
}

func (a *arena) get(iid int64) *Instance {
	item := a.tree.Get(&Instance{Iid: iid})
	if item == nil {
		return nil
	}
	return item.(*Instance)
}

// Store is the in-memory instance graph of one data set.
type Store struct {
	catalog *schema.Catalog
	arenas  map[int64]*arena
	unique  *uniqueIndex
	journal *Journal
	logger  *zap.SugaredLogger
}

// NewStore creates an empty store over catalog.
func NewStore(catalog *schema.Catalog, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		catalog: catalog,
		arenas:  make(map[int64]*arena),
		unique:  newUniqueIndex(),
		logger:  logger,
	}
}

// Catalog returns the schema the store conforms to.
func (s *Store) Catalog() *schema.Catalog {
	return s.catalog
}

// SetJournal attaches a mutation journal. A nil journal disables journaling.
func (s *Store) SetJournal(j *Journal) {
	s.journal = j
}

func (s *Store) record(command string, e *models.Element, format string, args ...interface{}) {
	if s.journal == nil {
		return
	}
	if err := s.journal.AddEntry(command, e.Name, fmt.Sprintf(format, args...)); err != nil {
		s.logger.Errorf("failed to journal %s on %s: %v", command, e.Name, err)
	}
}

func (s *Store) arena(aid int64) *arena {
	a, ok := s.arenas[aid]
	if !ok {
		a = newArena()
		s.arenas[aid] = a
	}
	return a
}

func (s *Store) lookup(aid, iid int64) (*models.Element, *Instance, error) {
	e, err := s.catalog.Element(aid)
	if err != nil {
		return nil, nil, err
	}
	a, ok := s.arenas[aid]
	if !ok {
		return e, nil, models.NotFoundf("instance %d of %s does not exist", iid, e.Name)
	}
	inst := a.get(iid)
	if inst == nil {
		return e, nil, models.NotFoundf("instance %d of %s does not exist", iid, e.Name)
	}
	return e, inst, nil
}

// checkValue validates v against attribute a and returns it normalized to
// the attribute's data type.
func (s *Store) checkValue(e *models.Element, a *models.Attribute, v models.Value) (models.Value, error) {
	if !v.IsValid() {
		out := v.Clone()
		out.Type = a.DataType
		return out, nil
	}
	if !models.Compatible(a.DataType, v.Type) {
		return v, models.SchemaViolationf("attribute %s.%s is %s, got %s", e.Name, a.Name, a.DataType, v.Type)
	}
	if !a.DataType.IsSequence() && v.Len() != 1 {
		return v, models.SchemaViolationf("attribute %s.%s takes a single value, got %d", e.Name, a.Name, v.Len())
	}
	if a.DataType.Scalar() == models.DTEnum {
		enum, err := s.catalog.Enumeration(a.EnumName)
		if err != nil {
			return v, errors.Mark(err, models.ErrSchemaViolation)
		}
		for _, code := range v.Int {
			if !enum.HasCode(int32(code)) {
				return v, models.SchemaViolationf("attribute %s.%s: %d is not an item of %s", e.Name, a.Name, code, enum.Name)
			}
		}
	}
	out := v.Clone()
	out.Type = a.DataType
	return out, nil
}

// CreateInstance creates an instance of element aid and returns its iid.
// A valid value for the id attribute becomes the iid; otherwise the next
// free iid is assigned and written to the id attribute.
func (s *Store) CreateInstance(aid int64, values []models.NameValue) (int64, error) {
	e, err := s.catalog.Element(aid)
	if err != nil {
		return 0, err
	}
	ar := s.arena(aid)

	staged := make(map[int]models.Value, len(values))
	var violations error
	for _, nv := range values {
		a, idx := e.Attribute(nv.Name)
		if a == nil {
			return 0, models.NotFoundf("element %s has no attribute %q", e.Name, nv.Name)
		}
		v, err := s.checkValue(e, a, nv.Value)
		if err != nil {
			violations = multierr.Append(violations, err)
			continue
		}
		staged[idx] = v
	}

	idAttr, idIdx := e.IDAttribute()
	iid := ar.nextIid
	if idAttr != nil {
		if v, ok := staged[idIdx]; ok && v.IsValid() {
			iid = v.Int[0]
			if iid <= 0 {
				violations = multierr.Append(violations, models.SchemaViolationf("%s: instance id must be positive, got %d", e.Name, iid))
			}
		}
	}

	for idx, a := range e.Attributes {
		if !a.Obligatory || a.Autogenerated {
			continue
		}
		if v, ok := staged[idx]; !ok || !v.IsValid() {
			violations = multierr.Append(violations, models.SchemaViolationf("obligatory attribute %s.%s has no value", e.Name, a.Name))
		}
	}
	if violations != nil {
		return 0, errors.Mark(violations, models.ErrSchemaViolation)
	}

	if ar.get(iid) != nil {
		return 0, models.ConstraintViolationf("instance %d of %s already exists", iid, e.Name)
	}
	if idAttr != nil {
		staged[idIdx] = models.Value{Type: idAttr.DataType, Flag: models.FlagValid, Int: []int64{iid}}
	}

	for idx, v := range staged {
		a := e.Attributes[idx]
		if a.Unique && !a.IsID() {
			if err := s.unique.check(e, a, idx, v, iid); err != nil {
				return 0, err
			}
		}
	}

	inst := newInstance(aid, iid, len(e.Attributes))
	for idx, v := range staged {
		inst.values[idx] = v
		if a := e.Attributes[idx]; a.Unique && !a.IsID() {
			s.unique.add(e, idx, v, iid)
		}
	}
	ar.tree.ReplaceOrInsert(inst)
	if iid >= ar.nextIid {
		ar.nextIid = iid + 1
	}

	s.logger.Debugf("created %s instance %d", e.Name, iid)
	s.record("CREATE", e, "iid=%d values=%d", iid, len(staged))
	return iid, nil
}

// SetAttributeValues updates declared attributes of an instance. Either all
// values are applied or none.
func (s *Store) SetAttributeValues(aid, iid int64, values []models.NameValue) error {
	e, inst, err := s.lookup(aid, iid)
	if err != nil {
		return err
	}
	staged := make(map[int]models.Value, len(values))
	for _, nv := range values {
		a, idx := e.Attribute(nv.Name)
		if a == nil {
			return models.NotFoundf("element %s has no attribute %q", e.Name, nv.Name)
		}
		v, err := s.checkValue(e, a, nv.Value)
		if err != nil {
			return err
		}
		if a.IsID() {
			if !v.IsValid() || v.Int[0] != iid {
				return models.SchemaViolationf("id attribute %s.%s of instance %d is immutable", e.Name, a.Name, iid)
			}
			continue
		}
		if a.Obligatory && !v.IsValid() {
			return models.SchemaViolationf("obligatory attribute %s.%s cannot be cleared", e.Name, a.Name)
		}
		if a.Unique {
			if err := s.unique.check(e, a, idx, v, iid); err != nil {
				return err
			}
		}
		staged[idx] = v
	}

	for idx, v := range staged {
		if a := e.Attributes[idx]; a.Unique {
			s.unique.remove(aid, idx, inst.value(idx, a), iid)
			s.unique.add(e, idx, v, iid)
		}
		inst.setValue(idx, v)
	}
	s.record("UPDATE", e, "iid=%d values=%d", iid, len(staged))
	return nil
}

// GetAttributeValues returns the named declared attributes of an instance,
// or all of them in declaration order when no name is given.
func (s *Store) GetAttributeValues(aid, iid int64, names ...string) ([]models.NameValue, error) {
	e, inst, err := s.lookup(aid, iid)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		out := make([]models.NameValue, len(e.Attributes))
		for idx, a := range e.Attributes {
			out[idx] = models.NameValue{Name: a.Name, Value: inst.value(idx, a).Clone()}
		}
		return out, nil
	}
	out := make([]models.NameValue, 0, len(names))
	for _, name := range names {
		a, idx := e.Attribute(name)
		if a == nil {
			return nil, models.NotFoundf("element %s has no attribute %q", e.Name, name)
		}
		out = append(out, models.NameValue{Name: a.Name, Value: inst.value(idx, a).Clone()})
	}
	return out, nil
}

// GetAttributeValue returns a single declared attribute value.
func (s *Store) GetAttributeValue(aid, iid int64, name string) (models.Value, error) {
	nvs, err := s.GetAttributeValues(aid, iid, name)
	if err != nil {
		return models.Value{}, err
	}
	return nvs[0].Value, nil
}

// AllAttributeValues returns every declared attribute value of an instance
// in declaration order. Instance attributes are read with InstanceAttributes.
func (s *Store) AllAttributeValues(aid, iid int64) ([]models.NameValue, error) {
	return s.GetAttributeValues(aid, iid)
}

// SetInstanceAttribute adds or replaces a schema-free attribute.
func (s *Store) SetInstanceAttribute(aid, iid int64, name string, v models.Value) error {
	e, inst, err := s.lookup(aid, iid)
	if err != nil {
		return err
	}
	if name == "" {
		return models.SchemaViolationf("instance attribute name must not be empty")
	}
	if a, _ := e.Attribute(name); a != nil {
		return models.ConstraintViolationf("%q is a declared attribute of %s", name, e.Name)
	}
	for i := range inst.instAttrs {
		if inst.instAttrs[i].Name == name {
			inst.instAttrs[i].Value = v.Clone()
			return nil
		}
	}
	inst.instAttrs = append(inst.instAttrs, models.NameValue{Name: name, Value: v.Clone()})
	return nil
}

// RemoveInstanceAttribute deletes a schema-free attribute.
func (s *Store) RemoveInstanceAttribute(aid, iid int64, name string) error {
	e, inst, err := s.lookup(aid, iid)
	if err != nil {
		return err
	}
	for i := range inst.instAttrs {
		if inst.instAttrs[i].Name == name {
			inst.instAttrs = append(inst.instAttrs[:i], inst.instAttrs[i+1:]...)
			return nil
		}
	}
	return models.NotFoundf("instance %d of %s has no instance attribute %q", iid, e.Name, name)
}

// InstanceAttributes returns the schema-free attributes in insertion order.
func (s *Store) InstanceAttributes(aid, iid int64) ([]models.NameValue, error) {
	_, inst, err := s.lookup(aid, iid)
	if err != nil {
		return nil, err
	}
	out := make([]models.NameValue, len(inst.instAttrs))
	for i, nv := range inst.instAttrs {
		out[i] = models.NameValue{Name: nv.Name, Value: nv.Value.Clone()}
	}
	return out, nil
}

// AllInstances returns the iids of element aid in ascending order.
func (s *Store) AllInstances(aid int64) ([]int64, error) {
	if _, err := s.catalog.Element(aid); err != nil {
		return nil, err
	}
	a, ok := s.arenas[aid]
	if !ok {
		return []int64{}, nil
	}
	out := make([]int64, 0, a.tree.Len())
	a.tree.Ascend(func(item btree.Item) bool {
		out = append(out, item.(*Instance).Iid)
		return true
	})
	return out, nil
}

// InstanceCount returns the number of instances of element aid.
func (s *Store) InstanceCount(aid int64) int {
	a, ok := s.arenas[aid]
	if !ok {
		return 0
	}
	return a.tree.Len()
}

// HasInstance reports whether (aid, iid) exists.
func (s *Store) HasInstance(aid, iid int64) bool {
	a, ok := s.arenas[aid]
	return ok && a.get(iid) != nil
}

// InstanceByName returns the lowest iid whose name attribute equals name.
func (s *Store) InstanceByName(aid int64, name string) (int64, error) {
	e, err := s.catalog.Element(aid)
	if err != nil {
		return 0, err
	}
	a, idx := e.AttributeByBaseName("name")
	if a == nil {
		return 0, models.NotFoundf("element %s has no name attribute", e.Name)
	}
	ar, ok := s.arenas[aid]
	if !ok {
		return 0, models.NotFoundf("%s has no instance named %q", e.Name, name)
	}
	var found int64
	ar.tree.Ascend(func(item btree.Item) bool {
		inst := item.(*Instance)
		v := inst.value(idx, a)
		if v.IsValid() && v.AsString() == name {
			found = inst.Iid
			return false
		}
		return true
	})
	if found == 0 {
		return 0, models.NotFoundf("%s has no instance named %q", e.Name, name)
	}
	return found, nil
}

// RemoveInstance deletes an instance and scrubs it from every relation set.
// Children that need the instance as their father are removed with it when
// cascade is set; otherwise their existence fails the removal.
func (s *Store) RemoveInstance(aid, iid int64, cascade bool) error {
	e, inst, err := s.lookup(aid, iid)
	if err != nil {
		return err
	}

	doomed := map[*Instance]bool{inst: true}
	order := []*Instance{inst}
	for n := 0; n < len(order); n++ {
		children := s.dependents(order[n], doomed)
		if len(children) > 0 && !cascade {
			c := children[0]
			ce, _ := s.catalog.Element(c.Aid)
			return models.ConstraintViolationf("instance %d of %s still has dependent child %d of %s",
				order[n].Iid, s.elementName(order[n].Aid), c.Iid, ce.Name)
		}
		for _, c := range children {
			doomed[c] = true
			order = append(order, c)
		}
	}

	for _, victim := range order {
		s.detach(victim)
	}
	if len(order) > 1 {
		s.logger.Infof("removed %s instance %d with %d dependent children", e.Name, iid, len(order)-1)
	}
	s.record("REMOVE", e, "iid=%d cascade=%t removed=%d", iid, cascade, len(order))
	return nil
}

func (s *Store) elementName(aid int64) string {
	if e, err := s.catalog.Element(aid); err == nil {
		return e.Name
	}
	return fmt.Sprintf("element %d", aid)
}

// dependents returns the children of inst that would drop below the
// minimum number of fathers once every doomed instance is gone.
func (s *Store) dependents(inst *Instance, doomed map[*Instance]bool) []*Instance {
	var out []*Instance
	for _, rel := range s.catalog.Relations(inst.Aid) {
		if rel.Type != models.TypeFatherChild || rel.Kind != models.KindChild {
			continue
		}
		inv := s.catalog.Inverse(rel)
		if inv.Range.Min < 1 {
			continue
		}
		childArena, ok := s.arenas[rel.Elem2]
		if !ok {
			continue
		}
		for _, childIid := range inst.links[rel.ID] {
			child := childArena.get(childIid)
			if child == nil || doomed[child] {
				continue
			}
			remaining := 0
			for _, fatherIid := range child.links[inv.ID] {
				father := s.arenas[inst.Aid].get(fatherIid)
				if father != nil && !doomed[father] {
					remaining++
				}
			}
			if remaining < int(inv.Range.Min) {
				out = append(out, child)
			}
		}
	}
	return out
}

// detach removes inst from its arena, the unique index and the link lists
// of every instance it is related to.
func (s *Store) detach(inst *Instance) {
	e, err := s.catalog.Element(inst.Aid)
	if err != nil {
		return
	}
	for relID, targets := range inst.links {
		rel, err := s.catalog.Relation(relID)
		if err != nil {
			continue
		}
		inv := s.catalog.Inverse(rel)
		ta, ok := s.arenas[rel.Elem2]
		if !ok {
			continue
		}
		for _, t := range uniqueIids(targets) {
			if other := ta.get(t); other != nil {
				other.links[inv.ID] = removeAll(other.links[inv.ID], inst.Iid)
				if len(other.links[inv.ID]) == 0 {
					delete(other.links, inv.ID)
				}
			}
		}
	}
	for idx, a := range e.Attributes {
		if a.Unique && !a.IsID() {
			s.unique.remove(inst.Aid, idx, inst.value(idx, a), inst.Iid)
		}
	}
	s.arenas[inst.Aid].tree.Delete(inst)
}

// CheckMinCardinality reports every instance whose relation sets are below
// the minimum of their range.
func (s *Store) CheckMinCardinality() error {
	var errs error
	aids := make([]int64, 0, len(s.arenas))
	for aid := range s.arenas {
		aids = append(aids, aid)
	}
	sort.Slice(aids, func(i, j int) bool { return aids[i] < aids[j] })

	for _, aid := range aids {
		rels := s.catalog.Relations(aid)
		e, _ := s.catalog.Element(aid)
		s.arenas[aid].tree.Ascend(func(item btree.Item) bool {
			inst := item.(*Instance)
			for _, rel := range rels {
				if n := len(inst.links[rel.ID]); n < int(rel.Range.Min) {
					errs = multierr.Append(errs, models.ConstraintViolationf(
						"instance %d of %s has %d %s links, needs at least %d", inst.Iid, e.Name, n, rel.Name, rel.Range.Min))
				}
			}
			return true
		})
	}
	if errs != nil {
		return errors.Mark(errs, models.ErrConstraintViolation)
	}
	return nil
}
