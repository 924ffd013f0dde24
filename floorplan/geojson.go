package floorplan

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// PolygonToFeature converts one overlay polygon into a GeoJSON feature in
// drawing coordinates. The ring is closed if the point list is open.
func PolygonToFeature(p PolygonVM, defaultColor string) (*geojson.Feature, error) {
	ring, err := ParsePoints(p.Points)
	if err != nil {
		return nil, err
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}

	poly := orb.Polygon{ring}
	f := geojson.NewFeature(poly)
	if p.ID != "" {
		f.ID = p.ID
	}

	fill := p.ColorValue()
	if fill == "" {
		fill = defaultColor
	}
	centroid, area := planar.CentroidArea(poly)
	f.Properties["key"] = p.Key()
	f.Properties["color"] = fill
	f.Properties["area"] = math.Abs(area)
	f.Properties["centroid"] = []float64{centroid[0], centroid[1]}
	f.Properties["selectable"] = p.SelectionID != nil
	return f, nil
}

// OverlayFeatureCollection exports the overlay polygons. Polygons whose
// points cannot be parsed are left out.
func OverlayFeatureCollection(polys []PolygonVM, defaultColor string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range polys {
		f, err := PolygonToFeature(p, defaultColor)
		if err != nil {
			continue
		}
		fc.Append(f)
	}
	return fc
}
