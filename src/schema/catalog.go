package schema

import (
	"sort"
	"strings"

	"odscore/src/models"

	"go.uber.org/zap"
)

// Catalog holds the element, attribute, relation and enumeration
// definitions of one open data set. It is not synchronized; the owning
// data set serializes mutation.
type Catalog struct {
	base      *BaseModel
	elements  map[int64]*models.Element
	byName    map[string]int64
	relations map[models.RelationID]*models.Relation
	enums     map[string]*models.EnumerationDefinition
	logger    *zap.SugaredLogger
}

func newCatalog(base *BaseModel, logger *zap.SugaredLogger) *Catalog {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Catalog{
		base:      base,
		elements:  make(map[int64]*models.Element),
		byName:    make(map[string]int64),
		relations: make(map[models.RelationID]*models.Relation),
		enums:     make(map[string]*models.EnumerationDefinition),
		logger:    logger,
	}
}

// BaseModel returns the base model the catalog was built from.
func (c *Catalog) BaseModel() *BaseModel {
	return c.base
}

// Element returns the element with the given aid.
func (c *Catalog) Element(aid int64) (*models.Element, error) {
	e, ok := c.elements[aid]
	if !ok {
		return nil, models.NotFoundf("element %d does not exist", aid)
	}
	return e, nil
}

// ElementByName returns the element called name.
func (c *Catalog) ElementByName(name string) (*models.Element, error) {
	aid, ok := c.byName[name]
	if !ok {
		return nil, models.NotFoundf("element %q does not exist", name)
	}
	return c.elements[aid], nil
}

// ElementsByBaseName returns all elements derived from base, ordered by aid.
func (c *Catalog) ElementsByBaseName(base string) []*models.Element {
	var out []*models.Element
	for _, e := range c.Elements() {
		if strings.EqualFold(e.BaseName, base) {
			out = append(out, e)
		}
	}
	return out
}

// Elements returns every element ordered by aid.
func (c *Catalog) Elements() []*models.Element {
	out := make([]*models.Element, 0, len(c.elements))
	for _, e := range c.elements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Aid < out[j].Aid })
	return out
}

// Relation returns the relation with the given id.
func (c *Catalog) Relation(id models.RelationID) (*models.Relation, error) {
	r, ok := c.relations[id]
	if !ok {
		return nil, models.NotFoundf("relation %d does not exist", id)
	}
	return r, nil
}

// Inverse returns the paired relation of rel.
func (c *Catalog) Inverse(rel *models.Relation) *models.Relation {
	return c.relations[rel.InverseID]
}

// RelationByName returns the outgoing relation of element aid called name.
func (c *Catalog) RelationByName(aid int64, name string) (*models.Relation, error) {
	e, err := c.Element(aid)
	if err != nil {
		return nil, err
	}
	for _, id := range e.Relations {
		if r := c.relations[id]; r.Name == name {
			return r, nil
		}
	}
	return nil, models.NotFoundf("element %s has no relation %q", e.Name, name)
}

// Relations returns the outgoing relations of element aid in declaration order.
func (c *Catalog) Relations(aid int64) []*models.Relation {
	e, ok := c.elements[aid]
	if !ok {
		return nil
	}
	out := make([]*models.Relation, 0, len(e.Relations))
	for _, id := range e.Relations {
		out = append(out, c.relations[id])
	}
	return out
}

// RelationsBetween returns the relations owned by from that target to.
func (c *Catalog) RelationsBetween(from, to int64) []*models.Relation {
	var out []*models.Relation
	for _, r := range c.Relations(from) {
		if r.Elem2 == to {
			out = append(out, r)
		}
	}
	return out
}

// Enumeration returns the enumeration called name.
func (c *Catalog) Enumeration(name string) (*models.EnumerationDefinition, error) {
	e, ok := c.enums[name]
	if !ok {
		return nil, models.NotFoundf("enumeration %q does not exist", name)
	}
	return e, nil
}

// Enumerations returns all enumerations ordered by name.
func (c *Catalog) Enumerations() []*models.EnumerationDefinition {
	out := make([]*models.EnumerationDefinition, 0, len(c.enums))
	for _, e := range c.enums {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RenameElement changes the name of an element. The aid is unchanged.
func (c *Catalog) RenameElement(aid int64, newName string) error {
	e, err := c.Element(aid)
	if err != nil {
		return err
	}
	if newName == "" {
		return models.SchemaViolationf("element name must not be empty")
	}
	if newName == e.Name {
		return nil
	}
	if _, taken := c.byName[newName]; taken {
		return models.ConstraintViolationf("element name %q is already in use", newName)
	}
	delete(c.byName, e.Name)
	old := e.Name
	e.Name = newName
	c.byName[newName] = aid
	c.logger.Debugf("renamed element %d from %s to %s", aid, old, newName)
	return nil
}

// AddAttribute appends a new attribute to element aid. Existing instances
// report the new attribute as invalid until a value is set.
func (c *Catalog) AddAttribute(aid int64, attr models.Attribute) error {
	e, err := c.Element(aid)
	if err != nil {
		return err
	}
	if attr.Name == "" {
		return models.SchemaViolationf("attribute name must not be empty")
	}
	if a, _ := e.Attribute(attr.Name); a != nil {
		return models.ConstraintViolationf("element %s already has attribute %q", e.Name, attr.Name)
	}
	if attr.BaseName != "" {
		if a, _ := e.AttributeByBaseName(attr.BaseName); a != nil {
			return models.ConstraintViolationf("element %s already binds base attribute %q to %s", e.Name, attr.BaseName, a.Name)
		}
	}
	if err := c.checkAttribute(e, &attr); err != nil {
		return err
	}
	e.Attributes = append(e.Attributes, &attr)
	return nil
}

// RenameAttribute changes the name of an attribute of element aid.
func (c *Catalog) RenameAttribute(aid int64, oldName, newName string) error {
	e, err := c.Element(aid)
	if err != nil {
		return err
	}
	a, _ := e.Attribute(oldName)
	if a == nil {
		return models.NotFoundf("element %s has no attribute %q", e.Name, oldName)
	}
	if oldName == newName {
		return nil
	}
	if other, _ := e.Attribute(newName); other != nil {
		return models.ConstraintViolationf("element %s already has attribute %q", e.Name, newName)
	}
	a.Name = newName
	return nil
}

// AddEnumeration registers a new enumeration.
func (c *Catalog) AddEnumeration(def *models.EnumerationDefinition) error {
	if def == nil || def.Name == "" {
		return models.SchemaViolationf("enumeration name must not be empty")
	}
	if _, exists := c.enums[def.Name]; exists {
		return models.ConstraintViolationf("enumeration %q already exists", def.Name)
	}
	c.enums[def.Name] = def
	return nil
}

func (c *Catalog) checkAttribute(e *models.Element, a *models.Attribute) error {
	if a.DataType == models.DTUnknown {
		return models.SchemaViolationf("attribute %s.%s has no data type", e.Name, a.Name)
	}
	if a.DataType.Scalar() == models.DTEnum {
		if a.EnumName == "" {
			return models.SchemaViolationf("enum attribute %s.%s names no enumeration", e.Name, a.Name)
		}
		if _, ok := c.enums[a.EnumName]; !ok {
			return models.SchemaViolationf("attribute %s.%s references unknown enumeration %q", e.Name, a.Name, a.EnumName)
		}
	} else if a.EnumName != "" {
		return models.SchemaViolationf("attribute %s.%s of type %s must not name an enumeration", e.Name, a.Name, a.DataType)
	}
	if a.IsID() {
		a.Unique = true
		a.Autogenerated = true
		a.Obligatory = true
	}
	return nil
}

func (c *Catalog) addElement(e *models.Element) {
	c.elements[e.Aid] = e
	c.byName[e.Name] = e.Aid
}

func (c *Catalog) addRelation(r *models.Relation) {
	c.relations[r.ID] = r
	owner := c.elements[r.Elem1]
	owner.Relations = append(owner.Relations, r.ID)
}
