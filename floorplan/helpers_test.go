package floorplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const roomsJSON = `{
  "snapshot": {
    "id": "rooms",
    "columns": [
      {"displayName": "Room", "queryName": "t.room", "roles": {"fieldNumber": true}},
      {"displayName": "Status", "roles": {"layerColor": true}},
      {"displayName": "Area", "roles": {"tooltipFields": true}},
      {"displayName": "", "roles": {"tooltipFields": true}},
      {"displayName": "Shape", "roles": {"points": true}}
    ],
    "rows": [
      ["R1", "#FF0000", 12.5, "north", "0,0 10,0 10,10 0,10"],
      [" r2 ", {"value": null, "objects": {"fill": {"solid": {"color": "#00ff00"}}}}, null, null, ""],
      ["", null, null, null, "20,20 30,20 30,30"]
    ]
  }
}`

const planSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100">
  <rect id="r1" data-label="R1" x="0" y="0" width="10" height="10"/>
  <g data-label="R2">
    <path d="M 20 20 L 30 20 L 30 30 Z"/>
    <text x="25" y="25">R2</text>
  </g>
  <rect data-label="R3" x="40" y="40" width="5" height="5"/>
</svg>`

func mustPayload(t *testing.T, raw string) *UpdatePayload {
	t.Helper()
	payload, err := DecodeUpdatePayload([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeUpdatePayload() error: %v", err)
	}
	return payload
}

// testSnapshot builds a snapshot from column roles and raw row values
func testSnapshot(id string, columns []Column, rows ...[]interface{}) *Snapshot {
	snap := &Snapshot{ID: id, Columns: columns}
	for _, r := range rows {
		cells := make([]Cell, len(r))
		for i, v := range r {
			cells[i] = CellFromRaw(v)
		}
		snap.Rows = append(snap.Rows, cells)
	}
	return snap
}

func col(name string, roles ...string) Column {
	c := Column{DisplayName: name, Roles: map[string]bool{}}
	for _, r := range roles {
		c.Roles[r] = true
	}
	return c
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return string(data)
}

// fakeBuilder lets each test decide how identities are built
type fakeBuilder struct {
	forRow      func(snap *Snapshot, row int) (SelectionID, error)
	forCategory func(snap *Snapshot, column, row int) (SelectionID, error)
}

func (b fakeBuilder) ForTableRow(snap *Snapshot, row int) (SelectionID, error) {
	if b.forRow == nil {
		return nil, errors.New("no row builder")
	}
	return b.forRow(snap, row)
}

func (b fakeBuilder) ForCategory(snap *Snapshot, column, row int) (SelectionID, error) {
	if b.forCategory == nil {
		return nil, errors.New("no category builder")
	}
	return b.forCategory(snap, column, row)
}

// fakeHost records selections and issues "row-N" identities by default
type fakeHost struct {
	builder   SelectionIDBuilder
	selectErr error
	selected  chan SelectionID
	mu        sync.Mutex
	calls     int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		builder: fakeBuilder{forRow: func(_ *Snapshot, row int) (SelectionID, error) {
			return fmt.Sprintf("row-%d", row), nil
		}},
		selected: make(chan SelectionID, 16),
	}
}

func (h *fakeHost) NewSelectionIDBuilder() SelectionIDBuilder {
	return h.builder
}

func (h *fakeHost) Select(_ context.Context, id SelectionID) error {
	h.mu.Lock()
	h.calls++
	err := h.selectErr
	h.mu.Unlock()
	h.selected <- id
	return err
}

// waitSelected returns the next selection or fails after a second
func (h *fakeHost) waitSelected(t *testing.T) SelectionID {
	t.Helper()
	select {
	case id := <-h.selected:
		return id
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for host selection")
		return nil
	}
}

// assertNoSelection fails if a selection arrives within a short window
func (h *fakeHost) assertNoSelection(t *testing.T) {
	t.Helper()
	select {
	case id := <-h.selected:
		t.Fatalf("unexpected selection %v", id)
	case <-time.After(50 * time.Millisecond):
	}
}
