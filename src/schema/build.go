package schema

import (
	"fmt"

	"odscore/src/models"

	"github.com/cockroachdb/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BuildOptions controls how tolerant Build is with broken models.
type BuildOptions struct {
	// ExtendedCompatibility synthesizes missing inverse relations and
	// clamps invalid cardinality ranges to [0,-1] instead of failing.
	ExtendedCompatibility bool
	Logger                *zap.SugaredLogger
}

// Build merges an application model with its base model into a catalog.
func Build(base *BaseModel, app *ApplicationModel, opts BuildOptions) (*Catalog, error) {
	if base == nil {
		return nil, models.SchemaViolationf("no base model given")
	}
	if app == nil {
		app = &ApplicationModel{}
	}
	if app.BaseModelVersion != "" && app.BaseModelVersion != base.Version {
		return nil, models.SchemaViolationf("application model requires base model %s, got %s", app.BaseModelVersion, base.Version)
	}

	b := &builder{
		cat:    newCatalog(base, opts.Logger),
		opts:   opts,
		nextID: 1,
	}
	if err := b.enumerations(base.Enumerations, app.Enumerations); err != nil {
		return nil, err
	}
	if err := b.elements(app.Elements); err != nil {
		return nil, err
	}
	if err := b.relations(app.Elements); err != nil {
		return nil, err
	}
	if err := b.pair(); err != nil {
		return nil, err
	}

	b.cat.logger.Infof("catalog built on base model %s: %d elements, %d relations, %d enumerations",
		base.Version, len(b.cat.elements), len(b.cat.relations), len(b.cat.enums))
	return b.cat, nil
}

// BuildFromProvider fetches the base model version the application model
// names (or version when it names none) and builds the catalog.
func BuildFromProvider(p BaseModelProvider, version string, app *ApplicationModel, opts BuildOptions) (*Catalog, error) {
	if app != nil && app.BaseModelVersion != "" {
		version = app.BaseModelVersion
	}
	base, err := p.BaseModel(version)
	if err != nil {
		return nil, err
	}
	return Build(base, app, opts)
}

type builder struct {
	cat    *Catalog
	opts   BuildOptions
	nextID models.RelationID
	// declaration order of relations, used for deterministic pairing
	order []models.RelationID
}

func (b *builder) enumerations(baseEnums, appEnums []*EnumerationSpec) error {
	for _, specs := range [][]*EnumerationSpec{baseEnums, appEnums} {
		for _, spec := range specs {
			def := models.NewEnumeration(spec.Name)
			for _, item := range spec.Items {
				if err := def.AddItem(item.Code, item.Name); err != nil {
					return errors.Mark(err, models.ErrSchemaViolation)
				}
			}
			// application enumerations replace base enumerations of the same name
			b.cat.enums[spec.Name] = def
		}
	}
	return nil
}

func (b *builder) elements(specs []*ElementSpec) error {
	var maxAid int64
	seen := make(map[int64]string)
	for _, es := range specs {
		if es.Aid < 0 {
			return models.SchemaViolationf("element %s has negative aid %d", es.Name, es.Aid)
		}
		if es.Aid == 0 {
			continue
		}
		if other, dup := seen[es.Aid]; dup {
			return models.SchemaViolationf("elements %s and %s share aid %d", other, es.Name, es.Aid)
		}
		seen[es.Aid] = es.Name
		if es.Aid > maxAid {
			maxAid = es.Aid
		}
	}

	for _, es := range specs {
		if es.Name == "" {
			return models.SchemaViolationf("element without name")
		}
		if _, dup := b.cat.byName[es.Name]; dup {
			return models.SchemaViolationf("element name %q is declared twice", es.Name)
		}
		be := b.cat.base.Element(es.BaseName)
		if be == nil {
			return models.SchemaViolationf("element %s derives from unknown base element %q", es.Name, es.BaseName)
		}
		aid := es.Aid
		if aid == 0 {
			maxAid++
			aid = maxAid
		}
		e := &models.Element{Aid: aid, Name: es.Name, BaseName: be.Name}
		for _, as := range es.Attributes {
			attr, err := b.attribute(e, be, as)
			if err != nil {
				return err
			}
			e.Attributes = append(e.Attributes, attr)
		}
		b.cat.addElement(e)
	}
	return nil
}

func (b *builder) attribute(e *models.Element, be *BaseElement, as AttributeSpec) (*models.Attribute, error) {
	if as.Name == "" {
		return nil, models.SchemaViolationf("element %s has an attribute without name", e.Name)
	}
	if a, _ := e.Attribute(as.Name); a != nil {
		return nil, models.SchemaViolationf("element %s declares attribute %q twice", e.Name, as.Name)
	}
	attr := &models.Attribute{
		Name:     as.Name,
		DataType: as.DataType,
		Length:   as.Length,
		EnumName: as.EnumName,
		UnitID:   as.UnitID,
	}
	if as.BaseName != "" {
		ba := be.Attribute(as.BaseName)
		if ba == nil {
			return nil, models.SchemaViolationf("attribute %s.%s binds unknown base attribute %q of %s", e.Name, as.Name, as.BaseName, be.Name)
		}
		if other, _ := e.AttributeByBaseName(ba.Name); other != nil {
			return nil, models.SchemaViolationf("element %s binds base attribute %q to both %s and %s", e.Name, ba.Name, other.Name, as.Name)
		}
		attr.BaseName = ba.Name
		if attr.DataType == models.DTUnknown {
			attr.DataType = ba.DataType
		}
		if attr.EnumName == "" {
			attr.EnumName = ba.EnumName
		}
		attr.Obligatory = ba.Obligatory
		attr.Unique = ba.Unique
		attr.Autogenerated = ba.Autogenerated
	}
	if as.Obligatory != nil {
		attr.Obligatory = *as.Obligatory
	}
	if as.Unique != nil {
		attr.Unique = *as.Unique
	}
	if as.Autogenerated != nil {
		attr.Autogenerated = *as.Autogenerated
	}
	if err := b.cat.checkAttribute(e, attr); err != nil {
		return nil, err
	}
	return attr, nil
}

func (b *builder) relations(specs []*ElementSpec) error {
	for _, es := range specs {
		owner := b.cat.elements[b.cat.byName[es.Name]]
		be := b.cat.base.Element(owner.BaseName)
		for _, rs := range es.Relations {
			rel, err := b.relation(owner, be, rs)
			if err != nil {
				return err
			}
			b.cat.addRelation(rel)
			b.order = append(b.order, rel.ID)
		}
	}
	return nil
}

func (b *builder) relation(owner *models.Element, be *BaseElement, rs RelationSpec) (*models.Relation, error) {
	if rs.Name == "" {
		return nil, models.SchemaViolationf("element %s has a relation without name", owner.Name)
	}
	for _, id := range owner.Relations {
		if b.cat.relations[id].Name == rs.Name {
			return nil, models.SchemaViolationf("element %s declares relation %q twice", owner.Name, rs.Name)
		}
	}
	target, err := b.cat.ElementByName(rs.Target)
	if err != nil {
		return nil, models.SchemaViolationf("relation %s.%s targets unknown element %q", owner.Name, rs.Name, rs.Target)
	}

	rel := &models.Relation{
		ID:          b.nextID,
		Elem1:       owner.Aid,
		Elem2:       target.Aid,
		Name:        rs.Name,
		InverseName: rs.InverseName,
		Range:       models.DefaultRange,
	}
	b.nextID++

	kindSet, typeSet := false, false
	if rs.BaseName != "" {
		br := be.Relation(rs.BaseName)
		if br == nil {
			return nil, models.SchemaViolationf("relation %s.%s binds unknown base relation %q of %s", owner.Name, rs.Name, rs.BaseName, be.Name)
		}
		rel.BaseName = br.Name
		rel.Kind, rel.Type, rel.Range = br.Kind, br.Type, br.Range
		kindSet, typeSet = true, true
	}
	if rs.Kind != nil {
		rel.Kind = *rs.Kind
		kindSet = true
	}
	if rs.Type != nil {
		rel.Type = *rs.Type
		typeSet = true
	}
	if rs.Range != nil {
		rel.Range = *rs.Range
	}
	if !kindSet {
		return nil, models.SchemaViolationf("relation %s.%s has no relationship kind", owner.Name, rs.Name)
	}
	if !typeSet {
		switch rel.Kind {
		case models.KindFather, models.KindChild:
			rel.Type = models.TypeFatherChild
		case models.KindInfoFrom, models.KindInfoTo, models.KindInfoRel:
			rel.Type = models.TypeInfo
		}
	}
	if rel.Type == models.TypeFatherChild && rel.Kind != models.KindFather && rel.Kind != models.KindChild {
		return nil, models.SchemaViolationf("relation %s.%s is FATHER_CHILD but has kind %s", owner.Name, rs.Name, rel.Kind)
	}
	if !rel.Range.Valid() {
		if !b.opts.ExtendedCompatibility {
			return nil, models.SchemaViolationf("relation %s.%s has invalid range %s", owner.Name, rs.Name, rel.Range)
		}
		b.cat.logger.Warnf("clamping invalid range %s of relation %s.%s to %s", rel.Range, owner.Name, rs.Name, models.DefaultRange)
		rel.Range = models.DefaultRange
	}
	return rel, nil
}

// pair links every relation with its inverse on the target element.
func (b *builder) pair() error {
	var errs error
	for _, id := range b.order {
		rel := b.cat.relations[id]
		if rel.InverseID != 0 {
			continue
		}
		inv, err := b.findInverse(rel)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if inv == nil {
			if !b.opts.ExtendedCompatibility {
				owner := b.cat.elements[rel.Elem1]
				errs = multierr.Append(errs, models.SchemaViolationf("relation %s.%s has no inverse on %s",
					owner.Name, rel.Name, b.cat.elements[rel.Elem2].Name))
				continue
			}
			inv = b.synthesizeInverse(rel)
		}
		rel.InverseID, inv.InverseID = inv.ID, rel.ID
		rel.InverseName, inv.InverseName = inv.Name, rel.Name
	}
	if errs != nil {
		return errors.Mark(errs, models.ErrSchemaViolation)
	}
	return nil
}

func (b *builder) findInverse(rel *models.Relation) (*models.Relation, error) {
	owner := b.cat.elements[rel.Elem1]
	var found *models.Relation
	for _, candID := range b.cat.elements[rel.Elem2].Relations {
		cand := b.cat.relations[candID]
		if cand.ID == rel.ID || cand.Elem2 != rel.Elem1 {
			continue
		}
		switch {
		case rel.InverseName != "" && cand.Name == rel.InverseName:
		case rel.InverseName == "" && cand.InverseName == rel.Name:
		default:
			continue
		}
		if found != nil {
			return nil, models.SchemaViolationf("relation %s.%s has more than one inverse candidate", owner.Name, rel.Name)
		}
		found = cand
	}
	if found == nil {
		return nil, nil
	}
	if found.InverseID != 0 {
		return nil, models.SchemaViolationf("relation %s.%s names inverse %s which is already paired", owner.Name, rel.Name, found.Name)
	}
	if found.InverseName != "" && found.InverseName != rel.Name {
		return nil, models.SchemaViolationf("relations %s.%s and %s disagree about their pairing", owner.Name, rel.Name, found.Name)
	}
	if found.Kind != rel.Kind.Inverse() {
		return nil, models.SchemaViolationf("relation %s.%s has kind %s but its inverse %s has kind %s",
			owner.Name, rel.Name, rel.Kind, found.Name, found.Kind)
	}
	if found.Type != rel.Type {
		return nil, models.SchemaViolationf("relation %s.%s has type %s but its inverse %s has type %s",
			owner.Name, rel.Name, rel.Type, found.Name, found.Type)
	}
	return found, nil
}

func (b *builder) synthesizeInverse(rel *models.Relation) *models.Relation {
	owner := b.cat.elements[rel.Elem1]
	target := b.cat.elements[rel.Elem2]
	name := rel.InverseName
	if name == "" {
		name = owner.Name
	}
	for taken := true; taken; {
		taken = false
		for _, id := range target.Relations {
			if b.cat.relations[id].Name == name {
				name = fmt.Sprintf("%s_inverse", name)
				taken = true
				break
			}
		}
	}
	inv := &models.Relation{
		ID:    b.nextID,
		Elem1: target.Aid,
		Elem2: owner.Aid,
		Name:  name,
		Kind:  rel.Kind.Inverse(),
		Type:  rel.Type,
		Range: models.DefaultRange,
	}
	b.nextID++
	b.cat.addRelation(inv)
	b.cat.logger.Warnf("synthesized inverse %s.%s %s for relation %s.%s", target.Name, inv.Name, inv.Range, owner.Name, rel.Name)
	return inv
}
