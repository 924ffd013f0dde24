package floorplan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildViewModel_NilSnapshot(t *testing.T) {
	vm := BuildViewModel(nil, newFakeHost())
	assert.NotNil(t, vm.Points)
	assert.NotNil(t, vm.Polygons)
	assert.Empty(t, vm.Points)
	assert.Empty(t, vm.Polygons)
	assert.JSONEq(t, `{"points":[],"polygons":[]}`, toJSON(t, vm))
}

func TestBuildViewModel_AttachesSelectionIDs(t *testing.T) {
	payload := mustPayload(t, roomsJSON)
	vm := BuildViewModel(payload.Snapshot, newFakeHost())

	require.Len(t, vm.Points, 2)
	assert.Equal(t, "row-0", vm.Points[0].SelectionID)
	assert.Equal(t, "row-1", vm.Points[1].SelectionID)

	require.Len(t, vm.Polygons, 2)
	assert.Equal(t, "R1", vm.Polygons[0].ID)
	assert.Equal(t, "row-0", vm.Polygons[0].SelectionID)
	assert.Equal(t, "p2", vm.Polygons[1].ID)
	assert.Equal(t, "row-2", vm.Polygons[1].SelectionID)
}

func TestBuildViewModel_WithoutHost(t *testing.T) {
	vm := BuildViewModel(mustPayload(t, roomsJSON).Snapshot, nil)
	require.Len(t, vm.Points, 2)
	assert.False(t, vm.Points[0].HasSelection())
	assert.Nil(t, vm.Polygons[0].SelectionID)
}

func TestBuildViewModel_KeepsDuplicates(t *testing.T) {
	snap := testSnapshot("s",
		[]Column{col("Room", RoleFieldNumber), col("Color", RoleLayerColor)},
		[]interface{}{"A", "red"},
		[]interface{}{"a", "blue"},
	)
	vm := BuildViewModel(snap, nil)
	require.Len(t, vm.Points, 2)

	idx := newBindingIndex(vm)
	assert.Equal(t, "blue", idx.colorFor(NormalizeKey("A"), "#ccc"), "last row wins for a duplicated key")
}

func TestBindingIndex_Priority(t *testing.T) {
	green := "green"
	vm := ViewModel{
		Points: []DataPoint{
			{FieldNumber: "Kitchen", LayerColor: "Red", Color: "red"},
			{FieldNumber: "Hall", LayerColor: "Blue"},
			{FieldNumber: "Attic"},
		},
		Polygons: []PolygonVM{
			{ID: "KITCHEN", Points: "0,0 1,1 1,0", Color: &green},
			{ID: "Cellar", Points: "0,0 1,1 1,0"},
		},
	}
	idx := newBindingIndex(vm)

	assert.Equal(t, "green", idx.colorFor(NormalizeKey("kitchen"), "#ccc"), "polygon color beats point color")
	assert.Equal(t, "Blue", idx.colorFor(NormalizeKey("hall"), "#ccc"), "layer color when no resolved color")
	assert.Equal(t, "#ccc", idx.colorFor(NormalizeKey("attic"), "#ccc"))
	assert.Equal(t, "#ccc", idx.colorFor(NormalizeKey("cellar"), "#ccc"), "polygon without color does not match")
	assert.Equal(t, "#ccc", idx.colorFor(NormalizeKey("nowhere"), "#ccc"))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, NormalizeKey("Room 1"), NormalizeKey("  ROOM 1 "))
	assert.Equal(t, NormalizeKey("ärger"), NormalizeKey("ÄRGER"))
	assert.NotEqual(t, NormalizeKey("Room 1"), NormalizeKey("Room 2"))
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want [3]uint8
	}{
		{"#ff0000", true, [3]uint8{255, 0, 0}},
		{"#F00", true, [3]uint8{255, 0, 0}},
		{"Teal", true, [3]uint8{0, 128, 128}},
		{"  blue ", true, [3]uint8{0, 0, 255}},
		{"", false, [3]uint8{}},
		{"#xyz123", false, [3]uint8{}},
		{"not-a-color", false, [3]uint8{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, ok := ParseColor(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, [3]uint8{c.R, c.G, c.B})
				assert.Equal(t, uint8(255), c.A)
			}
		})
	}
}
