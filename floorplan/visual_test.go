package floorplan

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) PersistProperties(group string, props map[string]interface{}) error {
	args := m.Called(group, props)
	return args.Error(0)
}

func planSettings() Settings {
	s := DefaultSettings()
	s.FloorPlan.SVGText = planSVG
	return s
}

func TestVisual_InitialPlaceholder(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	assert.Equal(t, uint64(0), v.Version())
	assert.Contains(t, v.SVG(), ClassPlaceholderEmpty)
	assert.NotNil(t, v.ViewModel().Points)
}

func TestVisual_UpdatePipeline(t *testing.T) {
	host := newFakeHost()
	v := NewVisual(host, nil, DefaultSettings())

	res := v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())

	assert.Equal(t, uint64(1), res.Version)
	assert.Equal(t, "ok", res.Status)
	assert.Empty(t, res.ImportError)
	assert.Equal(t, 2, res.Points)
	assert.Equal(t, 2, res.Polygons)
	assert.Equal(t, BindResult{Labeled: 3, Colored: 3}, res.Bind)
	assert.Equal(t, []string{"R1", "p2"}, res.Overlay.Entered)
	assert.Equal(t, res, v.LastResult())

	out := v.SVG()
	assert.Contains(t, out, ClassOverlayShape)
	assert.Contains(t, out, `transform="translate(0,0) scale(1)"`)
	assert.Contains(t, out, `fill="#FF0000"`)
}

func TestVisual_OverlayPersistsAcrossUpdates(t *testing.T) {
	v := NewVisual(newFakeHost(), nil, DefaultSettings())
	snap := mustPayload(t, roomsJSON).Snapshot

	v.Update(snap, planSettings())
	res := v.Update(snap, planSettings())

	assert.Empty(t, res.Overlay.Entered)
	assert.Equal(t, []string{"R1", "p2"}, res.Overlay.Updated)
	out := v.SVG()
	assert.Equal(t, 2, strings.Count(out, `class="`+ClassOverlayShape+`"`))
	assert.Equal(t, 1, strings.Count(out, `class="`+ClassOverlay+`"`))
	assert.NotContains(t, out, "<animate", "nothing changed")
}

func TestVisual_InvalidPolygonKeepsOverlay(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())

	bad := testSnapshot("s",
		[]Column{col("Room", RoleFieldNumber), col("Pts", RolePoints)},
		[]interface{}{"R1", "0,0 1"},
	)
	res := v.Update(bad, planSettings())

	assert.NotEmpty(t, res.OverlayError)
	assert.Equal(t, 2, strings.Count(v.SVG(), `class="`+ClassOverlayShape+`"`))
	assert.Equal(t, 3, res.Bind.Colored, "labels are still bound")
}

func TestVisual_DrawableCountIgnoresOverlayAndTooltip(t *testing.T) {
	v := NewVisual(newFakeHost(), nil, DefaultSettings())
	res := v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())
	require.Equal(t, []string{"R1", "p2"}, res.Overlay.Entered)

	require.True(t, v.PointerEnter("R1", 0))
	require.Contains(t, v.SVG(), ClassTooltip)

	v.mu.Lock()
	n := v.surface.DrawableCount()
	v.mu.Unlock()
	assert.Equal(t, 3, n, "only the plan's rect, path and rect")
}

func TestVisual_MalformedMarkup(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	s := DefaultSettings()
	s.FloorPlan.SVGText = "<svg><g></svg>"

	res := v.Update(nil, s)
	assert.Equal(t, "error", res.Status)
	assert.NotEmpty(t, res.ImportError)
	assert.Contains(t, v.SVG(), ClassPlaceholderError)
	assert.NotContains(t, v.SVG(), ClassOverlay+`"`)
}

func TestVisual_ApplyKeepsCurrentState(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())

	// Snapshot only: settings stay
	res := v.Apply(&UpdatePayload{Snapshot: testSnapshot("s", []Column{col("Room", RoleFieldNumber)}, []interface{}{"R3"})})
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, res.Points)

	// Settings only: snapshot stays
	s := planSettings()
	s.Zoom.Enabled = false
	res = v.Apply(&UpdatePayload{Settings: &s})
	assert.Equal(t, 1, res.Points)
	assert.False(t, v.Settings().Zoom.Enabled)

	res = v.Apply(nil)
	assert.Equal(t, uint64(4), res.Version)
}

func TestVisual_ImportFile(t *testing.T) {
	p := &mockPersister{}
	p.On("PersistProperties", "floorPlan", map[string]interface{}{"svgText": planSVG}).Return(nil)
	v := NewVisual(nil, p, DefaultSettings())

	res, err := v.ImportFile("Plan.SVG", []byte(planSVG))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, planSVG, v.Settings().FloorPlan.SVGText)
	p.AssertExpectations(t)
}

// blockingPersist makes the persister block on the given props until release
// is closed, signalling started once the call is in flight.
func blockingPersist(p *mockPersister, text string, started chan<- struct{}, release <-chan struct{}) {
	p.On("PersistProperties", "floorPlan", map[string]interface{}{"svgText": text}).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil)
}

func TestVisual_ImportFileKeepsConcurrentUpdate(t *testing.T) {
	imported := `<svg width="10" height="10"><rect data-label="R3" width="5" height="5"/></svg>`
	started, release := make(chan struct{}), make(chan struct{})
	p := &mockPersister{}
	blockingPersist(p, imported, started, release)

	v := NewVisual(nil, p, DefaultSettings())
	v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())

	done := make(chan UpdateResult)
	go func() {
		res, err := v.ImportFile("new.svg", []byte(imported))
		assert.NoError(t, err)
		done <- res
	}()
	<-started

	// A host update lands while the file is still being persisted
	newer := planSettings()
	newer.Tooltips.Show = false
	v.Update(testSnapshot("new", []Column{col("Room", RoleFieldNumber)}, []interface{}{"R3"}), newer)

	close(release)
	res := <-done

	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, res.Points, "the newer snapshot is kept")
	require.Len(t, v.ViewModel().Points, 1)
	assert.Equal(t, "R3", v.ViewModel().Points[0].FieldNumber)
	assert.False(t, v.Settings().Tooltips.Show, "the newer settings are kept")
	assert.Equal(t, imported, v.Settings().FloorPlan.SVGText)
	assert.Equal(t, uint64(3), v.Version())
	p.AssertExpectations(t)
}

func TestVisual_NewerImportWins(t *testing.T) {
	first := `<svg><rect data-label="A" width="1" height="1"/></svg>`
	second := `<svg><rect data-label="B" width="1" height="1"/></svg>`
	started, release := make(chan struct{}), make(chan struct{})
	p := &mockPersister{}
	blockingPersist(p, first, started, release)
	p.On("PersistProperties", "floorPlan", map[string]interface{}{"svgText": second}).Return(nil)

	v := NewVisual(nil, p, DefaultSettings())

	done := make(chan struct{})
	go func() {
		_, err := v.ImportFile("first.svg", []byte(first))
		assert.NoError(t, err)
		close(done)
	}()
	<-started

	_, err := v.ImportFile("second.svg", []byte(second))
	require.NoError(t, err)
	close(release)
	<-done

	assert.Equal(t, second, v.Settings().FloorPlan.SVGText)
	assert.Contains(t, v.SVG(), `data-label="B"`)
}

func TestVisual_ImportFileRejectsOtherTypes(t *testing.T) {
	p := &mockPersister{}
	v := NewVisual(nil, p, DefaultSettings())

	_, err := v.ImportFile("plan.png", []byte("png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFile))
	assert.Equal(t, uint64(0), v.Version())
	p.AssertNotCalled(t, "PersistProperties", mock.Anything, mock.Anything)
}

func TestVisual_ImportFilePersistFailureStillRenders(t *testing.T) {
	p := &mockPersister{}
	p.On("PersistProperties", "floorPlan", mock.Anything).Return(errors.New("read-only"))
	v := NewVisual(nil, p, DefaultSettings())

	res, err := v.ImportFile("plan.svg", []byte(planSVG))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 3, res.Bind.Labeled)

	// No persister at all behaves the same
	res, err = NewVisual(nil, nil, DefaultSettings()).ImportFile("plan.svg", []byte(planSVG))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
}

func TestVisual_Listeners(t *testing.T) {
	v := NewVisual(newFakeHost(), nil, DefaultSettings())
	var mu sync.Mutex
	var versions []uint64
	v.OnRender(func(version uint64) {
		mu.Lock()
		versions = append(versions, version)
		mu.Unlock()
	})

	v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())
	assert.True(t, v.PointerEnter("R1", 0))
	assert.False(t, v.PointerEnter("nope", 0), "unhandled events do not notify")
	assert.True(t, v.Wheel(-1))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2, 3}, versions)
}

func TestVisual_ElementEvents(t *testing.T) {
	host := newFakeHost()
	v := NewVisual(host, nil, DefaultSettings())
	v.Update(mustPayload(t, roomsJSON).Snapshot, planSettings())

	require.True(t, v.PointerEnter("R1", 0))
	assert.Contains(t, v.SVG(), ClassTooltip)
	require.True(t, v.PointerLeave("R1", 0))
	assert.NotContains(t, v.SVG(), ClassTooltip)

	require.True(t, v.Click("R1", 0))
	assert.Equal(t, "row-0", host.waitSelected(t))

	require.True(t, v.ClickPolygon("p2"))
	assert.Equal(t, "row-2", host.waitSelected(t))
	assert.False(t, v.ClickPolygon("missing"))
}

func TestVisual_ViewportEvents(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	v.Update(nil, planSettings())

	require.True(t, v.Wheel(-100))
	require.True(t, v.PointerDown(10, 10))
	require.True(t, v.PointerMove(30, 40))
	require.True(t, v.PointerUp())

	vp := v.Viewport()
	assert.InDelta(t, 1.1, vp.Scale, 1e-9)
	assert.Equal(t, 20.0, vp.TranslateX)
	assert.Equal(t, 30.0, vp.TranslateY)
	assert.Contains(t, v.SVG(), `transform="translate(20,30) scale(1.1)"`)

	// The transform survives a re-render
	v.Rerender()
	assert.Contains(t, v.SVG(), `transform="translate(20,30) scale(1.1)"`)

	require.True(t, v.DoubleClick())
	assert.Contains(t, v.SVG(), `transform="translate(0,0) scale(1)"`)
}

func TestVisual_ZoomDisabled(t *testing.T) {
	s := planSettings()
	s.Zoom.Enabled = false
	v := NewVisual(nil, nil, s)
	v.Update(nil, s)

	assert.False(t, v.Wheel(-100))
	assert.False(t, v.PointerDown(1, 1))
	assert.False(t, v.PointerMove(5, 5))
	assert.Equal(t, 1.0, v.Viewport().Scale)
	assert.True(t, v.DoubleClick(), "double click resets regardless")
}

func TestVisual_WriteSVG(t *testing.T) {
	v := NewVisual(nil, nil, DefaultSettings())
	v.Update(nil, planSettings())

	var buf bytes.Buffer
	require.NoError(t, v.WriteSVG(&buf))
	assert.Equal(t, v.SVG(), buf.String())
}

func TestVisual_ConcurrentUpdates(t *testing.T) {
	v := NewVisual(newFakeHost(), nil, DefaultSettings())
	snap := mustPayload(t, roomsJSON).Snapshot

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v.Update(snap, planSettings())
		}()
		go func() {
			defer wg.Done()
			v.PointerEnter("R1", 0)
			v.Wheel(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, strings.Count(v.SVG(), `class="`+ClassOverlayShape+`"`))
}
