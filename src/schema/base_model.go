package schema

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"odscore/src/models"

	"gopkg.in/yaml.v3"
)

/*

The base model is the versioned template every application model extends.
Application elements bind to a base element, application attributes to base
attributes and application relations to base relations. Bindings supply the
default data type, obligation flags and cardinalities.

*/

// BaseModel is one version of the base model template.
type BaseModel struct {
	Version      string             `yaml:"version"`
	Elements     []*BaseElement     `yaml:"elements"`
	Enumerations []*EnumerationSpec `yaml:"enumerations"`
}

// BaseElement is a base element type such as AoTest.
type BaseElement struct {
	Name       string          `yaml:"name"`
	Attributes []BaseAttribute `yaml:"attributes"`
	Relations  []BaseRelation  `yaml:"relations"`
}

// BaseAttribute defines the defaults for attributes bound to it.
type BaseAttribute struct {
	Name          string          `yaml:"name"`
	DataType      models.DataType `yaml:"datatype"`
	EnumName      string          `yaml:"enumeration"`
	Obligatory    bool            `yaml:"obligatory"`
	Unique        bool            `yaml:"unique"`
	Autogenerated bool            `yaml:"autogenerated"`
}

// BaseRelation defines the defaults for relations bound to it.
type BaseRelation struct {
	Name        string              `yaml:"name"`
	Target      string              `yaml:"target"`
	InverseName string              `yaml:"inverse"`
	Kind        models.RelationKind `yaml:"kind"`
	Type        models.RelationType `yaml:"type"`
	Range       models.Range        `yaml:"range"`
}

// EnumerationSpec is the serialized form of an enumeration.
type EnumerationSpec struct {
	Name  string     `yaml:"name"`
	Items []EnumItem `yaml:"items"`
}

// EnumItem is one code/name pair.
type EnumItem struct {
	Code int32  `yaml:"code"`
	Name string `yaml:"name"`
}

// Element returns the base element called name, compared case-insensitively.
func (bm *BaseModel) Element(name string) *BaseElement {
	for _, e := range bm.Elements {
		if strings.EqualFold(e.Name, name) {
			return e
		}
	}
	return nil
}

// Attribute returns the base attribute called name.
func (be *BaseElement) Attribute(name string) *BaseAttribute {
	for i := range be.Attributes {
		if strings.EqualFold(be.Attributes[i].Name, name) {
			return &be.Attributes[i]
		}
	}
	return nil
}

// Relation returns the base relation called name.
func (be *BaseElement) Relation(name string) *BaseRelation {
	for i := range be.Relations {
		if strings.EqualFold(be.Relations[i].Name, name) {
			return &be.Relations[i]
		}
	}
	return nil
}

// BaseModelProvider hands out base model versions.
type BaseModelProvider interface {
	BaseModel(version string) (*BaseModel, error)
}

// StaticProvider serves base models registered in memory.
type StaticProvider struct {
	mu     sync.RWMutex
	models map[string]*BaseModel
}

// NewStaticProvider creates a provider holding the given models.
func NewStaticProvider(bms ...*BaseModel) *StaticProvider {
	p := &StaticProvider{models: make(map[string]*BaseModel)}
	for _, bm := range bms {
		p.Register(bm)
	}
	return p
}

// Register adds or replaces a base model version.
func (p *StaticProvider) Register(bm *BaseModel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.models[bm.Version] = bm
}

// BaseModel returns the model registered for version.
func (p *StaticProvider) BaseModel(version string) (*BaseModel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bm, ok := p.models[version]
	if !ok {
		return nil, models.NotFoundf("base model version %q is not available", version)
	}
	return bm, nil
}

// LoadBaseModelYAML decodes a base model from r.
func LoadBaseModelYAML(r io.Reader) (*BaseModel, error) {
	var bm BaseModel
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&bm); err != nil {
		return nil, fmt.Errorf("parse base model: %w", err)
	}
	if bm.Version == "" {
		return nil, models.SchemaViolationf("base model has no version")
	}
	for _, e := range bm.Elements {
		for i := range e.Relations {
			if e.Relations[i].Range == (models.Range{}) {
				e.Relations[i].Range = models.DefaultRange
			}
		}
	}
	return &bm, nil
}

//go:embed asam35.yaml
var asam35YAML string

var (
	defaultOnce  sync.Once
	defaultModel *BaseModel
	defaultErr   error
)

// DefaultBaseModel returns the embedded asam35 base model.
func DefaultBaseModel() (*BaseModel, error) {
	defaultOnce.Do(func() {
		defaultModel, defaultErr = LoadBaseModelYAML(strings.NewReader(asam35YAML))
	})
	return defaultModel, defaultErr
}

// DefaultProvider returns a provider serving the embedded base model.
func DefaultProvider() (*StaticProvider, error) {
	bm, err := DefaultBaseModel()
	if err != nil {
		return nil, err
	}
	return NewStaticProvider(bm), nil
}
