package floorplan

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnsupportedFile is returned by ImportFile for anything but an .svg file
var ErrUnsupportedFile = errors.New("unsupported file type: expected .svg")

// RenderListener is notified after every render with the new version
type RenderListener func(version uint64)

// UpdateResult summarises one render cycle
type UpdateResult struct {
	Version      uint64          `json:"version"`
	Status       string          `json:"status"`
	ImportError  string          `json:"importError,omitempty"`
	Points       int             `json:"points"`
	Polygons     int             `json:"polygons"`
	Bind         BindResult      `json:"bind"`
	Overlay      ReconcileResult `json:"overlay"`
	OverlayError string          `json:"overlayError,omitempty"`
}

// Visual owns the render surface and handles every host update and user
// event. All entry points are serialised, so the latest update wins.
type Visual struct {
	mu        sync.Mutex
	host      SelectionHost
	persister SettingsPersister

	surface  *Surface
	overlay  *Overlay
	viewport *Viewport

	settings Settings
	snapshot *Snapshot
	vm       ViewModel
	last     UpdateResult
	version  uint64

	importSeq uint64

	listeners []RenderListener
}

// NewVisual creates a visual showing the empty placeholder. host and
// persister may be nil.
func NewVisual(host SelectionHost, persister SettingsPersister, settings Settings) *Visual {
	return &Visual{
		host:      host,
		persister: persister,
		surface:   NewSurface(),
		overlay:   NewOverlay(),
		viewport:  NewViewport(),
		settings:  settings,
		vm:        ViewModel{Points: []DataPoint{}, Polygons: []PolygonVM{}},
	}
}

// OnRender registers a listener called after each render
func (v *Visual) OnRender(fn RenderListener) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Update renders a new snapshot with the given settings
func (v *Visual) Update(snap *Snapshot, settings Settings) UpdateResult {
	return v.update(func(s **Snapshot, st *Settings) {
		*s = snap
		*st = settings
	})
}

// Apply renders a decoded update payload. A payload without settings keeps
// the settings in effect; one without a snapshot keeps the last snapshot.
func (v *Visual) Apply(payload *UpdatePayload) UpdateResult {
	if payload == nil {
		return v.Rerender()
	}
	return v.update(func(s **Snapshot, st *Settings) {
		if payload.Snapshot != nil {
			*s = payload.Snapshot
		}
		if payload.Settings != nil {
			*st = *payload.Settings
		}
	})
}

// UpdateSettings re-renders the last snapshot with new settings
func (v *Visual) UpdateSettings(settings Settings) UpdateResult {
	return v.update(func(_ **Snapshot, st *Settings) { *st = settings })
}

// Rerender renders the last snapshot and settings again
func (v *Visual) Rerender() UpdateResult {
	return v.update(func(**Snapshot, *Settings) {})
}

// update applies mutate to the current state and renders it in one critical
// section, so a concurrent update is never overwritten by a stale copy.
func (v *Visual) update(mutate func(snap **Snapshot, settings *Settings)) UpdateResult {
	v.mu.Lock()
	mutate(&v.snapshot, &v.settings)
	res := v.renderLocked()
	listeners := v.listenersLocked()
	v.mu.Unlock()

	notify(listeners, res.Version)
	return res
}

// ImportFile loads an SVG file chosen by the user. The text is stored in
// the floor plan settings and persisted; a persistence failure is logged
// and the import still renders. Only the floor plan text is replaced: the
// snapshot and other settings are whatever is current once persistence
// returns. A newer import started meanwhile wins.
func (v *Visual) ImportFile(name string, data []byte) (UpdateResult, error) {
	if !strings.EqualFold(filepath.Ext(name), ".svg") {
		return UpdateResult{}, fmt.Errorf("import %q: %w", name, ErrUnsupportedFile)
	}
	text := string(data)

	v.mu.Lock()
	v.importSeq++
	seq := v.importSeq
	persister := v.persister
	v.mu.Unlock()

	if persister == nil {
		log.Printf("[VISUAL] Warning: no settings persister, %s will not survive a reload", name)
	} else if err := persister.PersistProperties("floorPlan", map[string]interface{}{"svgText": text}); err != nil {
		log.Printf("[VISUAL] Warning: failed to persist %s: %v", name, err)
	}

	return v.update(func(_ **Snapshot, st *Settings) {
		if seq != v.importSeq {
			log.Printf("[VISUAL] %s superseded by a newer import", name)
			return
		}
		st.FloorPlan.SVGText = text
	}), nil
}

// renderLocked builds the view model, imports the markup, binds labels,
// reconciles the overlay and re-applies the viewport. Callers hold v.mu.
func (v *Visual) renderLocked() UpdateResult {
	vm := BuildViewModel(v.snapshot, v.host)
	v.vm = vm

	res := UpdateResult{Points: len(vm.Points), Polygons: len(vm.Polygons)}

	if err := v.surface.Import(v.settings.FloorPlan.SVGText); err != nil {
		log.Printf("[VISUAL] Warning: SVG import failed: %v", err)
		res.ImportError = err.Error()
	}
	res.Status = v.surface.Status().String()

	if root := v.surface.Root(); root != nil {
		v.overlay.Attach(root)
		overlayRes, err := v.overlay.Reconcile(vm.Polygons, v.settings.OverlayOptions(v.host))
		if err != nil {
			log.Printf("[OVERLAY] Warning: overlay left unchanged: %v", err)
			res.OverlayError = err.Error()
		}
		res.Overlay = overlayRes
		res.Bind = BindLabels(v.surface, vm, v.settings.BindOptions(v.host))
	} else {
		v.overlay.Detach()
	}

	v.surface.SetTransform(v.viewport.Transform())

	v.version++
	res.Version = v.version
	v.last = res
	return res
}

func (v *Visual) listenersLocked() []RenderListener {
	out := make([]RenderListener, len(v.listeners))
	copy(out, v.listeners)
	return out
}

func notify(listeners []RenderListener, version uint64) {
	for _, fn := range listeners {
		fn(version)
	}
}

// Settings returns the settings currently in effect
func (v *Visual) Settings() Settings {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settings
}

// ViewModel returns the view model of the last render
func (v *Visual) ViewModel() ViewModel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vm
}

// LastResult returns the summary of the last render
func (v *Visual) LastResult() UpdateResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Version returns the number of renders so far
func (v *Visual) Version() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// WriteSVG serialises the current surface
func (v *Visual) WriteSVG(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.surface.WriteTo(w)
	return err
}

// SVG returns the current surface as a string
func (v *Visual) SVG() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.surface.String()
}

// PointerEnter dispatches a hover-in on a labeled element
func (v *Visual) PointerEnter(label string, index int) bool {
	return v.dispatch(func() bool { return v.surface.PointerEnter(label, index) })
}

// PointerLeave dispatches a hover-out on a labeled element
func (v *Visual) PointerLeave(label string, index int) bool {
	return v.dispatch(func() bool { return v.surface.PointerLeave(label, index) })
}

// Click dispatches a click on a labeled element
func (v *Visual) Click(label string, index int) bool {
	return v.dispatch(func() bool { return v.surface.Click(label, index) })
}

// ClickPolygon dispatches a click on an overlay polygon
func (v *Visual) ClickPolygon(key string) bool {
	return v.dispatch(func() bool { return v.overlay.Click(key) })
}

// Wheel zooms the viewport when zoom is enabled
func (v *Visual) Wheel(deltaY float64) bool {
	return v.dispatchViewport(func(enabled bool) bool { return v.viewport.Wheel(deltaY, enabled) })
}

// PointerDown starts a pan when zoom is enabled
func (v *Visual) PointerDown(x, y float64) bool {
	return v.dispatchViewport(func(enabled bool) bool { return v.viewport.PointerDown(x, y, enabled) })
}

// PointerMove pans while dragging
func (v *Visual) PointerMove(x, y float64) bool {
	return v.dispatchViewport(func(bool) bool { return v.viewport.PointerMove(x, y) })
}

// PointerUp ends a pan
func (v *Visual) PointerUp() bool {
	return v.dispatchViewport(func(bool) bool { return v.viewport.PointerUp() })
}

// PointerLeaveSurface ends a pan when the pointer leaves the surface
func (v *Visual) PointerLeaveSurface() bool {
	return v.dispatchViewport(func(bool) bool { return v.viewport.PointerLeave() })
}

// DoubleClick resets the viewport
func (v *Visual) DoubleClick() bool {
	return v.dispatchViewport(func(bool) bool {
		v.viewport.DoubleClick()
		return true
	})
}

// Viewport returns a copy of the viewport state
func (v *Visual) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return *v.viewport
}

// dispatch runs an element event and bumps the version when it was handled
func (v *Visual) dispatch(fn func() bool) bool {
	v.mu.Lock()
	handled := fn()
	var listeners []RenderListener
	var version uint64
	if handled {
		v.version++
		version = v.version
		listeners = v.listenersLocked()
	}
	v.mu.Unlock()

	notify(listeners, version)
	return handled
}

func (v *Visual) dispatchViewport(fn func(enabled bool) bool) bool {
	return v.dispatch(func() bool {
		if !fn(v.settings.Zoom.Enabled) {
			return false
		}
		v.surface.SetTransform(v.viewport.Transform())
		return true
	})
}
