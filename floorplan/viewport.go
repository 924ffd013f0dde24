package floorplan

import (
	"fmt"
	"math"
)

// Zoom limits and wheel step factors
const (
	MinScale    = 0.1
	MaxScale    = 10.0
	zoomInStep  = 1.1
	zoomOutStep = 0.9
	singularEps = 1e-10
)

// Point is a 2D position in surface pixels or drawing units
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns the identity transform
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, D: 1}
}

// TransformPoint applies an affine transform to a point
func TransformPoint(p Point, m AffineMatrix) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// InvertMatrix computes the inverse of an affine transform.
// Returns identity if the matrix is singular.
func InvertMatrix(m AffineMatrix) AffineMatrix {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < singularEps {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Ty - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Ty: (m.C*m.Tx - m.A*m.Ty) * invDet,
	}
}

// ViewportState is either idle or dragging
type ViewportState int

const (
	ViewportIdle ViewportState = iota
	ViewportDragging
)

func (s ViewportState) String() string {
	if s == ViewportDragging {
		return "dragging"
	}
	return "idle"
}

// Viewport tracks pan and zoom for the rendered region. It is not safe for
// concurrent use; the owning visual serialises access.
type Viewport struct {
	Scale      float64       `json:"scale"`
	TranslateX float64       `json:"translateX"`
	TranslateY float64       `json:"translateY"`
	State      ViewportState `json:"state"`
	dragStart  Point
}

// NewViewport returns a viewport at unit scale with no translation
func NewViewport() *Viewport {
	return &Viewport{Scale: 1}
}

// Wheel zooms out on positive deltaY and in on negative deltaY, clamped to
// [MinScale, MaxScale]. Returns true when the event was consumed.
func (v *Viewport) Wheel(deltaY float64, enabled bool) bool {
	if !enabled {
		return false
	}
	switch {
	case deltaY > 0:
		v.Scale *= zoomOutStep
	case deltaY < 0:
		v.Scale *= zoomInStep
	default:
		return true
	}
	v.Scale = math.Min(MaxScale, math.Max(MinScale, v.Scale))
	return true
}

// PointerDown starts a drag at the given surface position
func (v *Viewport) PointerDown(x, y float64, enabled bool) bool {
	if !enabled {
		return false
	}
	v.State = ViewportDragging
	v.dragStart = Point{X: x - v.TranslateX, Y: y - v.TranslateY}
	return true
}

// PointerMove pans while dragging; ignored when idle
func (v *Viewport) PointerMove(x, y float64) bool {
	if v.State != ViewportDragging {
		return false
	}
	v.TranslateX = x - v.dragStart.X
	v.TranslateY = y - v.dragStart.Y
	return true
}

// PointerUp ends a drag
func (v *Viewport) PointerUp() bool {
	if v.State != ViewportDragging {
		return false
	}
	v.State = ViewportIdle
	return true
}

// PointerLeave ends a drag the same way a release does
func (v *Viewport) PointerLeave() bool {
	return v.PointerUp()
}

// DoubleClick resets scale and translation
func (v *Viewport) DoubleClick() {
	v.Scale = 1
	v.TranslateX = 0
	v.TranslateY = 0
	v.State = ViewportIdle
}

// Transform renders the viewport as an SVG transform list
func (v *Viewport) Transform() string {
	return fmt.Sprintf("translate(%s,%s) scale(%s)",
		formatFloat(v.TranslateX), formatFloat(v.TranslateY), formatFloat(v.Scale))
}

// Matrix returns the viewport as an affine transform from drawing to surface
func (v *Viewport) Matrix() AffineMatrix {
	return AffineMatrix{A: v.Scale, D: v.Scale, Tx: v.TranslateX, Ty: v.TranslateY}
}

// ToDrawing maps a surface position back into drawing coordinates
func (v *Viewport) ToDrawing(p Point) Point {
	return TransformPoint(p, InvertMatrix(v.Matrix()))
}
