package floorplan

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestPolygonToFeature(t *testing.T) {
	p := PolygonVM{ID: "R1", Points: "0,0 10,0 10,10 0,10", Color: strPtr("#ff0000"), SelectionID: "row-0"}

	f, err := PolygonToFeature(p, DefaultFillColor)
	if err != nil {
		t.Fatalf("PolygonToFeature() error: %v", err)
	}
	if f.ID != "R1" {
		t.Errorf("ID = %v, want R1", f.ID)
	}

	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry = %T, want orb.Polygon", f.Geometry)
	}
	if len(poly[0]) != 5 || !poly[0].Closed() {
		t.Errorf("ring = %v, want a closed ring of 5 points", poly[0])
	}

	if area := f.Properties.MustFloat64("area"); math.Abs(area-100) > 1e-9 {
		t.Errorf("area = %v, want 100", area)
	}
	if got := f.Properties.MustString("color"); got != "#ff0000" {
		t.Errorf("color = %q, want #ff0000", got)
	}
	if got := f.Properties.MustBool("selectable"); !got {
		t.Error("selectable = false, want true")
	}
	centroid, _ := f.Properties["centroid"].([]float64)
	if len(centroid) != 2 || centroid[0] != 5 || centroid[1] != 5 {
		t.Errorf("centroid = %v, want [5 5]", centroid)
	}
}

func TestPolygonToFeature_Defaults(t *testing.T) {
	p := PolygonVM{Points: "0,0 4,0 0,3 0,0"}

	f, err := PolygonToFeature(p, "#cccccc")
	if err != nil {
		t.Fatalf("PolygonToFeature() error: %v", err)
	}
	if f.ID != nil {
		t.Errorf("ID = %v, want nil", f.ID)
	}
	if got := f.Properties.MustString("key"); got != p.Points {
		t.Errorf("key = %q, want the point list", got)
	}
	if got := f.Properties.MustString("color"); got != "#cccccc" {
		t.Errorf("color = %q, want default", got)
	}
	if len(f.Geometry.(orb.Polygon)[0]) != 4 {
		t.Error("an already closed ring must not be closed twice")
	}
	if area := f.Properties.MustFloat64("area"); math.Abs(area-6) > 1e-9 {
		t.Errorf("area = %v, want 6", area)
	}

	if _, err := PolygonToFeature(PolygonVM{Points: "nope"}, ""); err == nil {
		t.Error("expected error for invalid points")
	}
}

func TestOverlayFeatureCollection(t *testing.T) {
	fc := OverlayFeatureCollection(overlayPolys(), DefaultFillColor)
	if len(fc.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2 (invalid points skipped)", len(fc.Features))
	}

	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		t.Fatalf("UnmarshalFeatureCollection: %v", err)
	}
	if parsed.Features[1].Properties.MustString("key") != "b" {
		t.Errorf("second feature key = %v, want b", parsed.Features[1].Properties["key"])
	}
}
