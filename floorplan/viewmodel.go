package floorplan

// BuildViewModel decodes every row of the snapshot into point and polygon
// bindings, in row order. Duplicated label keys are kept; lookups built from
// the result resolve them last-wins.
func BuildViewModel(snap *Snapshot, host SelectionHost) ViewModel {
	vm := ViewModel{
		Points:   make([]DataPoint, 0),
		Polygons: make([]PolygonVM, 0),
	}
	if snap == nil {
		return vm
	}

	roles := ResolveRoles(snap.Columns)
	for row := range snap.Rows {
		dp, poly := DecodeRow(snap, roles, row)
		if dp == nil && poly == nil {
			continue
		}

		id := ResolveSelectionID(host, snap, row)
		if dp != nil {
			dp.SelectionID = id
			vm.Points = append(vm.Points, *dp)
		}
		if poly != nil {
			poly.SelectionID = id
			vm.Polygons = append(vm.Polygons, *poly)
		}
	}
	return vm
}

// bindingIndex is the per-cycle lookup used by the label binder
type bindingIndex struct {
	polygonColors map[string]string
	pointColors   map[string]string
	points        map[string]DataPoint
}

func newBindingIndex(vm ViewModel) bindingIndex {
	idx := bindingIndex{
		polygonColors: make(map[string]string),
		pointColors:   make(map[string]string),
		points:        make(map[string]DataPoint),
	}
	for _, p := range vm.Polygons {
		if c := p.ColorValue(); c != "" && p.ID != "" {
			idx.polygonColors[NormalizeKey(p.ID)] = c
		}
	}
	for _, dp := range vm.Points {
		key := NormalizeKey(dp.FieldNumber)
		idx.points[key] = dp
		c := dp.Color
		if c == "" {
			c = dp.LayerColor
		}
		if c != "" {
			idx.pointColors[key] = c
		}
	}
	return idx
}

// colorFor applies the priority polygon color, point color, default
func (idx bindingIndex) colorFor(key, defaultColor string) string {
	if c, ok := idx.polygonColors[key]; ok {
		return c
	}
	if c, ok := idx.pointColors[key]; ok {
		return c
	}
	return defaultColor
}
