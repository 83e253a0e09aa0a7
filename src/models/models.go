package models

import (
	"fmt"
	"sort"
	"strings"
)

// RelationID is the stable identifier of one side of a relation pair.
type RelationID int32

// RelationKind is the role of element2 as seen from element1.
type RelationKind uint8

const (
	KindFather RelationKind = iota
	KindChild
	KindInfoFrom
	KindInfoTo
	KindInfoRel
)

var relationKindNames = [...]string{"FATHER", "CHILD", "INFO_FROM", "INFO_TO", "INFO_REL"}

func (k RelationKind) String() string {
	if int(k) < len(relationKindNames) {
		return relationKindNames[k]
	}
	return fmt.Sprintf("RelationKind(%d)", uint8(k))
}

// Inverse returns the kind of the paired relation.
func (k RelationKind) Inverse() RelationKind {
	switch k {
	case KindFather:
		return KindChild
	case KindChild:
		return KindFather
	case KindInfoFrom:
		return KindInfoTo
	case KindInfoTo:
		return KindInfoFrom
	case KindInfoRel:
		return KindInfoRel
	}
	return k
}

// ParseRelationKind parses FATHER, CHILD, INFO_FROM, INFO_TO or INFO_REL.
func ParseRelationKind(s string) (RelationKind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range relationKindNames {
		if n == name {
			return RelationKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown relationship kind %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *RelationKind) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRelationKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RelationType classifies a relation pair.
type RelationType uint8

const (
	TypeFatherChild RelationType = iota
	TypeInfo
	TypeInheritance
)

var relationTypeNames = [...]string{"FATHER_CHILD", "INFO", "INHERITANCE"}

func (t RelationType) String() string {
	if int(t) < len(relationTypeNames) {
		return relationTypeNames[t]
	}
	return fmt.Sprintf("RelationType(%d)", uint8(t))
}

// ParseRelationType parses FATHER_CHILD, INFO or INHERITANCE.
func ParseRelationType(s string) (RelationType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range relationTypeNames {
		if n == name {
			return RelationType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown relation type %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *RelationType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseRelationType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Unbounded is the Max value of a range without upper limit.
const Unbounded = -1

// Range is a cardinality range. Max == Unbounded means no upper limit.
type Range struct {
	Min int32 `yaml:"min"`
	Max int32 `yaml:"max"`
}

// DefaultRange is used for synthesized inverses and clamped ranges.
var DefaultRange = Range{Min: 0, Max: Unbounded}

// Valid reports whether the range is well formed.
func (r Range) Valid() bool {
	if r.Min < 0 {
		return false
	}
	if r.Max == Unbounded {
		return true
	}
	return r.Max >= 1 && r.Max >= r.Min
}

// AllowsAtMost reports whether n links stay within the upper bound.
func (r Range) AllowsAtMost(n int) bool {
	return r.Max == Unbounded || n <= int(r.Max)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Min, r.Max)
}

// Element is a schema-level table definition bound to a base element.
type Element struct {
	// Aid is the stable element identifier.
	Aid int64
	// Name is unique within the catalog and may be renamed.
	Name string
	// BaseName is the base element type, e.g. "AoMeasurement". Immutable.
	BaseName string
	// Attributes in declaration order. Instances store declared values
	// aligned with this slice.
	Attributes []*Attribute
	// Relations holds the outgoing relations of this element.
	Relations []RelationID
}

// Attribute returns the attribute called name and its position.
func (e *Element) Attribute(name string) (*Attribute, int) {
	for i, a := range e.Attributes {
		if a.Name == name {
			return a, i
		}
	}
	return nil, -1
}

// AttributeByBaseName returns the attribute bound to the base attribute.
func (e *Element) AttributeByBaseName(base string) (*Attribute, int) {
	for i, a := range e.Attributes {
		if a.BaseName != "" && strings.EqualFold(a.BaseName, base) {
			return a, i
		}
	}
	return nil, -1
}

// IDAttribute returns the attribute bound to base attribute "id".
func (e *Element) IDAttribute() (*Attribute, int) {
	return e.AttributeByBaseName("id")
}

// Attribute is a column definition of an element.
type Attribute struct {
	Name          string
	BaseName      string
	DataType      DataType
	Length        int32
	EnumName      string
	UnitID        int64
	Obligatory    bool
	Unique        bool
	Autogenerated bool
}

// IsID reports whether the attribute is bound to base attribute "id".
func (a *Attribute) IsID() bool {
	return strings.EqualFold(a.BaseName, "id")
}

// Relation is one side of a relation pair.
type Relation struct {
	ID          RelationID
	InverseID   RelationID
	Elem1       int64
	Elem2       int64
	Name        string
	InverseName string
	BaseName    string
	Kind        RelationKind
	Type        RelationType
	// Range bounds the number of element2 instances linked to one
	// element1 instance.
	Range Range
}

// IsBaseRelation reports whether the relation binds to a base relation.
func (r *Relation) IsBaseRelation() bool {
	return r.BaseName != ""
}

func (r *Relation) String() string {
	return fmt.Sprintf("%d.%s->%d (%s %s %s)", r.Elem1, r.Name, r.Elem2, r.Kind, r.Type, r.Range)
}

// EnumerationDefinition maps item codes to item names and back.
type EnumerationDefinition struct {
	Name  string
	names map[int32]string
	codes map[string]int32
}

// NewEnumeration returns an empty enumeration.
func NewEnumeration(name string) *EnumerationDefinition {
	return &EnumerationDefinition{
		Name:  name,
		names: make(map[int32]string),
		codes: make(map[string]int32),
	}
}

// AddItem registers a new item. Codes and names must both be unused.
func (e *EnumerationDefinition) AddItem(code int32, name string) error {
	if _, exists := e.names[code]; exists {
		return ConstraintViolationf("enumeration %s already has item code %d", e.Name, code)
	}
	if _, exists := e.codes[name]; exists {
		return ConstraintViolationf("enumeration %s already has item %q", e.Name, name)
	}
	e.names[code] = name
	e.codes[name] = code
	return nil
}

// RenameItem changes the name of an existing item; its code never changes.
func (e *EnumerationDefinition) RenameItem(code int32, newName string) error {
	old, exists := e.names[code]
	if !exists {
		return NotFoundf("enumeration %s has no item code %d", e.Name, code)
	}
	if old == newName {
		return nil
	}
	if _, taken := e.codes[newName]; taken {
		return ConstraintViolationf("enumeration %s already has item %q", e.Name, newName)
	}
	delete(e.codes, old)
	e.names[code] = newName
	e.codes[newName] = code
	return nil
}

// ItemName returns the name for code.
func (e *EnumerationDefinition) ItemName(code int32) (string, error) {
	name, ok := e.names[code]
	if !ok {
		return "", NotFoundf("enumeration %s has no item code %d", e.Name, code)
	}
	return name, nil
}

// ItemCode returns the code for name.
func (e *EnumerationDefinition) ItemCode(name string) (int32, error) {
	code, ok := e.codes[name]
	if !ok {
		return 0, NotFoundf("enumeration %s has no item %q", e.Name, name)
	}
	return code, nil
}

// HasCode reports whether code is a defined item.
func (e *EnumerationDefinition) HasCode(code int32) bool {
	_, ok := e.names[code]
	return ok
}

// Codes returns all item codes in ascending order.
func (e *EnumerationDefinition) Codes() []int32 {
	codes := make([]int32, 0, len(e.names))
	for c := range e.names {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
