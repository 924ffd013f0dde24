package floorplan

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
)

// Marker classes for the overlay layer
const (
	ClassOverlay      = "planbind-overlay"
	ClassOverlayShape = "planbind-overlay-shape"
)

const (
	// TransitionDuration is how long an updated polygon animates its paint
	TransitionDuration = 200 * time.Millisecond
	neutralStroke      = "#666666"
)

// ErrInvalidPoints is returned for a point list that cannot describe a polygon
var ErrInvalidPoints = errors.New("invalid points")

// OverlayOptions carries the resolved settings for one reconcile pass
type OverlayOptions struct {
	DefaultColor     string
	Opacity          float64
	HighlightBorders bool
	Host             SelectionHost
}

// ReconcileResult lists the keys that entered, were updated, or exited
type ReconcileResult struct {
	Entered []string `json:"entered"`
	Updated []string `json:"updated"`
	Exited  []string `json:"exited"`
}

type overlayShape struct {
	el        *etree.Element
	selection SelectionID
	fill      string
	opacity   string
	stroke    string
}

// Overlay is the persistent polygon layer. Shapes are keyed by polygon id
// (or points when no id is set) and reconciled against each new list.
type Overlay struct {
	group  *etree.Element
	shapes map[string]*overlayShape
	host   SelectionHost
}

// NewOverlay creates an empty, detached overlay layer
func NewOverlay() *Overlay {
	g := etree.NewElement("g")
	g.CreateAttr("class", ClassOverlay)
	return &Overlay{
		group:  g,
		shapes: make(map[string]*overlayShape),
	}
}

// Attach moves the layer to the end of root so it draws above the markup
func (o *Overlay) Attach(root *etree.Element) {
	o.Detach()
	if root != nil {
		root.AddChild(o.group)
	}
}

// Detach removes the layer from whatever tree it is in, keeping its shapes
func (o *Overlay) Detach() {
	if parent := o.group.Parent(); parent != nil {
		parent.RemoveChild(o.group)
	}
}

// Group returns the layer element
func (o *Overlay) Group() *etree.Element {
	return o.group
}

// Reconcile brings the layer in line with polys. Every point list is
// validated first; on error nothing is changed.
func (o *Overlay) Reconcile(polys []PolygonVM, opts OverlayOptions) (res ReconcileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconcile overlay: %v", r)
		}
	}()

	next := make(map[string]PolygonVM, len(polys))
	order := make([]string, 0, len(polys))
	for _, p := range polys {
		if _, err := ParsePoints(p.Points); err != nil {
			return ReconcileResult{}, fmt.Errorf("polygon %q: %w", p.Key(), err)
		}
		key := p.Key()
		if _, dup := next[key]; !dup {
			order = append(order, key)
		}
		next[key] = p
	}

	res = ReconcileResult{Entered: []string{}, Updated: []string{}, Exited: []string{}}
	for key, sh := range o.shapes {
		if _, ok := next[key]; ok {
			continue
		}
		o.group.RemoveChild(sh.el)
		delete(o.shapes, key)
		res.Exited = append(res.Exited, key)
	}
	sort.Strings(res.Exited)

	o.host = opts.Host
	op := formatFloat(opts.Opacity)
	for _, key := range order {
		p := next[key]
		fill := p.ColorValue()
		if fill == "" {
			fill = opts.DefaultColor
		}
		stroke := neutralStroke
		if opts.HighlightBorders && fill != "" {
			stroke = fill
		}

		sh, ok := o.shapes[key]
		if !ok {
			el := o.group.CreateElement("polygon")
			el.CreateAttr("class", ClassOverlayShape)
			el.CreateAttr("data-key", key)
			el.CreateAttr("points", p.Points)
			el.CreateAttr("fill", fill)
			el.CreateAttr("fill-opacity", op)
			el.CreateAttr("stroke", stroke)
			el.CreateAttr("stroke-width", "1")
			o.shapes[key] = &overlayShape{el: el, selection: p.SelectionID, fill: fill, opacity: op, stroke: stroke}
			res.Entered = append(res.Entered, key)
			continue
		}

		clearAnimations(sh.el)
		sh.el.CreateAttr("points", p.Points)
		animate(sh.el, "fill", sh.fill, fill)
		animate(sh.el, "fill-opacity", sh.opacity, op)
		animate(sh.el, "stroke", sh.stroke, stroke)
		sh.el.CreateAttr("fill", fill)
		sh.el.CreateAttr("fill-opacity", op)
		sh.el.CreateAttr("stroke", stroke)
		sh.fill, sh.opacity, sh.stroke = fill, op, stroke
		sh.selection = p.SelectionID
		res.Updated = append(res.Updated, key)
	}
	return res, nil
}

// Len returns the number of shapes in the layer
func (o *Overlay) Len() int {
	return len(o.shapes)
}

// Keys returns the shape keys in sorted order
func (o *Overlay) Keys() []string {
	keys := make([]string, 0, len(o.shapes))
	for k := range o.shapes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shape returns the element drawn for key
func (o *Overlay) Shape(key string) *etree.Element {
	if sh, ok := o.shapes[key]; ok {
		return sh.el
	}
	return nil
}

// Click forwards the shape's selection identity to the host. A click on a
// known shape is handled and does not propagate.
func (o *Overlay) Click(key string) bool {
	sh, ok := o.shapes[key]
	if !ok {
		return false
	}
	selectAsync(o.host, sh.selection)
	return true
}

func clearAnimations(el *etree.Element) {
	for _, child := range el.ChildElements() {
		if child.Tag == "animate" {
			el.RemoveChild(child)
		}
	}
}

// animate adds a short paint transition when a value actually changes
func animate(el *etree.Element, attr, from, to string) {
	if from == to {
		return
	}
	a := el.CreateElement("animate")
	a.CreateAttr("attributeName", attr)
	a.CreateAttr("from", from)
	a.CreateAttr("to", to)
	a.CreateAttr("dur", fmt.Sprintf("%dms", TransitionDuration.Milliseconds()))
	a.CreateAttr("fill", "freeze")
}

// ParsePoints reads an SVG point list ("x1,y1 x2,y2 ...") into a ring.
// Commas and whitespace are interchangeable separators.
func ParsePoints(s string) (orb.Ring, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPoints)
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of coordinates", ErrInvalidPoints)
	}

	ring := make(orb.Ring, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPoints, fields[i])
		}
		y, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPoints, fields[i+1])
		}
		ring = append(ring, orb.Point{x, y})
	}
	return ring, nil
}
