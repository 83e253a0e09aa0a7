package external

import (
	"sort"
	"strings"

	"odscore/src/engine"
	"odscore/src/models"
)

const (
	baseLocalColumn       = "AoLocalColumn"
	baseExternalComponent = "AoExternalComponent"
)

// ReadLayout builds the layout of the local column (aid, iid) from its
// external component instances, ordered by ordinal number.
func ReadLayout(store *engine.Store, aid, iid int64) (*Layout, error) {
	cat := store.Catalog()
	lc, err := cat.Element(aid)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(lc.BaseName, baseLocalColumn) {
		return nil, models.SchemaViolationf("element %s is a %s, not a %s", lc.Name, lc.BaseName, baseLocalColumn)
	}
	if !store.HasInstance(aid, iid) {
		return nil, models.NotFoundf("%s has no instance %d", lc.Name, iid)
	}

	var rel *models.Relation
	for _, r := range cat.Relations(aid) {
		target, err := cat.Element(r.Elem2)
		if err != nil || !strings.EqualFold(target.BaseName, baseExternalComponent) {
			continue
		}
		if rel == nil || strings.EqualFold(r.BaseName, "external_component") {
			rel = r
		}
	}
	if rel == nil {
		return nil, models.NotFoundf("element %s has no relation to an %s", lc.Name, baseExternalComponent)
	}
	ec, err := cat.Element(rel.Elem2)
	if err != nil {
		return nil, err
	}

	r := reader{store: store}
	layout := &Layout{}

	if gf, ok := r.int(lc, iid, "global_flag"); ok {
		f := models.Flag(gf)
		layout.GlobalFlag = &f
	}
	if a, _ := lc.AttributeByBaseName("flags"); a != nil {
		v, err := store.GetAttributeValue(aid, iid, a.Name)
		if err != nil {
			return nil, err
		}
		if v.IsValid() {
			for _, f := range v.Int {
				layout.LocalFlags = append(layout.LocalFlags, models.Flag(f))
			}
		}
	}

	type ordered struct {
		ordinal int64
		d       Descriptor
		f       FlagDescriptor
	}
	var comps []ordered
	hasFlags := false
	for _, eid := range store.Related(rel, iid) {
		o := ordered{}
		o.ordinal, _ = r.int(ec, eid, "ordinal_number")
		o.d.File, _ = r.str(ec, eid, "filename_url")
		vt, ok := r.int(ec, eid, "value_type")
		if !ok {
			return nil, models.SchemaViolationf("%s %d has no value_type", ec.Name, eid)
		}
		o.d.ValueType = ValueType(vt)
		o.d.StartOffset, _ = r.int(ec, eid, "start_offset")
		o.d.BlockSize, _ = r.int(ec, eid, "block_size")
		o.d.ValuesPerBlock, _ = r.int(ec, eid, "valuesperblock")
		o.d.ValueOffset, _ = r.int(ec, eid, "value_offset")
		o.d.Length, _ = r.int(ec, eid, "component_length")
		bc, _ := r.int(ec, eid, "ao_bit_count")
		bo, _ := r.int(ec, eid, "ao_bit_offset")
		o.d.BitCount, o.d.BitOffset = int(bc), int(bo)
		if o.d.File == "" {
			return nil, models.SchemaViolationf("%s %d has no filename_url", ec.Name, eid)
		}

		if fn, ok := r.str(ec, eid, "flags_filename_url"); ok && fn != "" {
			hasFlags = true
			o.f.File = fn
			o.f.StartOffset, _ = r.int(ec, eid, "flags_start_offset")
		}
		if err := r.err; err != nil {
			return nil, err
		}
		comps = append(comps, o)
	}
	if len(comps) == 0 {
		return nil, models.NotFoundf("%s %d has no external components", lc.Name, iid)
	}

	sort.SliceStable(comps, func(i, j int) bool { return comps[i].ordinal < comps[j].ordinal })
	for _, o := range comps {
		layout.Components = append(layout.Components, o.d)
		if hasFlags {
			layout.Flags = append(layout.Flags, o.f)
		}
	}
	return layout, nil
}

// reader fetches base attributes by base name and keeps the first error.
type reader struct {
	store *engine.Store
	err   error
}

func (r *reader) value(e *models.Element, iid int64, base string) (models.Value, bool) {
	a, _ := e.AttributeByBaseName(base)
	if a == nil || r.err != nil {
		return models.Value{}, false
	}
	v, err := r.store.GetAttributeValue(e.Aid, iid, a.Name)
	if err != nil {
		r.err = err
		return models.Value{}, false
	}
	return v, v.IsValid() && v.Len() > 0
}

func (r *reader) int(e *models.Element, iid int64, base string) (int64, bool) {
	v, ok := r.value(e, iid, base)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

func (r *reader) str(e *models.Element, iid int64, base string) (string, bool) {
	v, ok := r.value(e, iid, base)
	if !ok {
		return "", false
	}
	return v.AsString(), true
}
