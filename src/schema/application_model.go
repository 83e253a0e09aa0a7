package schema

import (
	"fmt"
	"io"
	"os"

	"odscore/src/models"

	"gopkg.in/yaml.v3"
)

// ApplicationModel is the application schema of one data set before it is
// merged with the base model.
type ApplicationModel struct {
	BaseModelVersion string             `yaml:"base_model_version"`
	Elements         []*ElementSpec     `yaml:"elements"`
	Enumerations     []*EnumerationSpec `yaml:"enumerations"`
}

// ElementSpec declares an application element.
type ElementSpec struct {
	// Aid is optional; elements without one are numbered after the
	// highest declared aid.
	Aid        int64           `yaml:"aid"`
	Name       string          `yaml:"name"`
	BaseName   string          `yaml:"base"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Relations  []RelationSpec  `yaml:"relations"`
}

// AttributeSpec declares an application attribute. Unset fields fall back
// to the bound base attribute.
type AttributeSpec struct {
	Name          string          `yaml:"name"`
	BaseName      string          `yaml:"base"`
	DataType      models.DataType `yaml:"datatype"`
	Length        int32           `yaml:"length"`
	EnumName      string          `yaml:"enumeration"`
	UnitID        int64           `yaml:"unit"`
	Obligatory    *bool           `yaml:"obligatory"`
	Unique        *bool           `yaml:"unique"`
	Autogenerated *bool           `yaml:"autogenerated"`
}

// RelationSpec declares one side of a relation pair. Unset fields fall
// back to the bound base relation.
type RelationSpec struct {
	Name        string               `yaml:"name"`
	Target      string               `yaml:"target"`
	InverseName string               `yaml:"inverse"`
	BaseName    string               `yaml:"base"`
	Kind        *models.RelationKind `yaml:"kind"`
	Type        *models.RelationType `yaml:"type"`
	Range       *models.Range        `yaml:"range"`
}

// LoadApplicationModelYAML decodes an application model from r.
func LoadApplicationModelYAML(r io.Reader) (*ApplicationModel, error) {
	var am ApplicationModel
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&am); err != nil {
		return nil, fmt.Errorf("parse application model: %w", err)
	}
	return &am, nil
}

// LoadApplicationModelFile reads an application model from path.
func LoadApplicationModelFile(path string) (*ApplicationModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.WrapIOFailure(err, "open application model %s", path)
	}
	defer f.Close()
	return LoadApplicationModelYAML(f)
}
