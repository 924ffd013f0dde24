package floorplan

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/paulmach/orb"
)

// Marker classes for binder-owned elements
const (
	ClassTooltip = "planbind-tooltip"
	ClassBound   = "planbind-bound"
)

const (
	hoverOpacity    = "0.8"
	tooltipLineH    = 16.0
	tooltipCharW    = 7.0
	tooltipPadding  = 8.0
	tooltipGap      = 6.0
	defaultBorderCl = "black"
)

// BindOptions carries the resolved settings for one binding cycle
type BindOptions struct {
	LabelAttribute   string
	DefaultColor     string
	Opacity          float64
	HighlightBorders bool
	ShowTooltips     bool
	Host             SelectionHost
}

// BindResult summarises one binding cycle
type BindResult struct {
	Labeled int `json:"labeled"`
	Colored int `json:"colored"`
	Failed  int `json:"failed"`
}

// interaction holds the handlers wired to one labeled element for the
// current cycle. They are replaced wholesale on the next import.
type interaction struct {
	el      *etree.Element
	onEnter func()
	onLeave func()
	onClick func()
}

// BindLabels colours every labeled element of the imported markup from the
// view model and wires hover, tooltip and click behaviour. A failure on one
// element is logged and does not stop the others.
func BindLabels(s *Surface, vm ViewModel, opts BindOptions) BindResult {
	var res BindResult
	if s == nil || s.root == nil {
		return res
	}

	attr := opts.LabelAttribute
	if attr == "" {
		attr = DefaultLabelAttribute
	}
	idx := newBindingIndex(vm)
	ids := indexByID(s.root)

	var labeled []*etree.Element
	walk(s.root, func(el *etree.Element) bool {
		if hasClass(el, ClassOverlay) || hasClass(el, ClassTooltip) {
			return false
		}
		if el.SelectAttr(attr) != nil {
			labeled = append(labeled, el)
		}
		return true
	})
	res.Labeled = len(labeled)

	for _, el := range labeled {
		label := strings.TrimSpace(el.SelectAttrValue(attr, ""))
		key := NormalizeKey(label)
		fill := idx.colorFor(key, opts.DefaultColor)

		if err := guard("color "+label, func() { paintLabeled(el, fill, opts, ids) }); err != nil {
			res.Failed++
			continue
		}
		res.Colored++

		dp, hasPoint := idx.points[key]
		s.addInteraction(key, newInteraction(s, el, label, dp, hasPoint, opts))
	}
	return res
}

func newInteraction(s *Surface, el *etree.Element, label string, dp DataPoint, hasPoint bool, opts BindOptions) *interaction {
	return &interaction{
		el: el,
		onEnter: func() {
			el.CreateAttr("opacity", hoverOpacity)
			if opts.ShowTooltips {
				var entries map[string]string
				if hasPoint {
					entries = dp.Tooltip
				}
				s.showTooltip(el, label, entries)
			}
		},
		onLeave: func() {
			el.CreateAttr("opacity", "1")
			s.hideTooltip()
		},
		onClick: func() {
			if hasPoint && dp.HasSelection() {
				selectAsync(opts.Host, dp.SelectionID)
			}
		},
	}
}

// paintLabeled colours the element, its shape descendants and the targets
// of any <use> references among them.
func paintLabeled(el *etree.Element, fill string, opts BindOptions, ids map[string]*etree.Element) {
	el.CreateAttr("class", addClass(el.SelectAttrValue("class", ""), ClassBound))

	seen := make(map[*etree.Element]bool)
	var paint func(*etree.Element)
	paint = func(target *etree.Element) {
		walk(target, func(n *etree.Element) bool {
			if seen[n] {
				return false
			}
			seen[n] = true
			if n == el || shapeTags[n.Tag] {
				if err := guard("paint "+n.Tag, func() { paintShape(n, fill, opts) }); err != nil {
					return true
				}
			}
			if n.Tag == "use" {
				if ref, ok := ids[useTarget(n)]; ok {
					paint(ref)
				}
			}
			return true
		})
	}
	paint(el)
}

func paintShape(el *etree.Element, fill string, opts BindOptions) {
	if fill != "" {
		el.CreateAttr("fill", fill)
		setStyleProperty(el, "fill", fill)
	}
	op := formatFloat(opts.Opacity)
	el.CreateAttr("fill-opacity", op)
	setStyleProperty(el, "fill-opacity", op)

	if opts.HighlightBorders {
		stroke := fill
		if stroke == "" {
			stroke = defaultBorderCl
		}
		el.CreateAttr("stroke", stroke)
		setStyleProperty(el, "stroke", stroke)
		if _, ok := styleProperty(el, "stroke-width"); !ok && el.SelectAttr("stroke-width") == nil {
			el.CreateAttr("stroke-width", "1")
		}
	}
}

// useTarget returns the id a <use> element points at, from href or xlink:href
func useTarget(el *etree.Element) string {
	href := el.SelectAttrValue("href", "")
	if href == "" {
		href = el.SelectAttrValue("xlink:href", "")
	}
	return strings.TrimPrefix(strings.TrimSpace(href), "#")
}

func indexByID(root *etree.Element) map[string]*etree.Element {
	ids := make(map[string]*etree.Element)
	walk(root, func(el *etree.Element) bool {
		if id := el.SelectAttrValue("id", ""); id != "" {
			ids[id] = el
		}
		return true
	})
	return ids
}

func addClass(classes, class string) string {
	for _, c := range strings.Fields(classes) {
		if c == class {
			return classes
		}
	}
	if strings.TrimSpace(classes) == "" {
		return class
	}
	return strings.TrimSpace(classes) + " " + class
}

// guard runs one mutation, turning a panic into a logged error
func guard(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", op, r)
			log.Printf("[BIND] Warning: %v", err)
		}
	}()
	fn()
	return nil
}

func (s *Surface) addInteraction(key string, in *interaction) {
	s.interactions[key] = append(s.interactions[key], in)
}

func (s *Surface) lookup(label string, index int) *interaction {
	list := s.interactions[NormalizeKey(label)]
	if index < 0 || index >= len(list) {
		return nil
	}
	return list[index]
}

// PointerEnter dispatches a hover-in on the index-th element carrying label
func (s *Surface) PointerEnter(label string, index int) bool {
	in := s.lookup(label, index)
	if in == nil {
		return false
	}
	in.onEnter()
	return true
}

// PointerLeave dispatches a hover-out on the index-th element carrying label
func (s *Surface) PointerLeave(label string, index int) bool {
	in := s.lookup(label, index)
	if in == nil {
		return false
	}
	in.onLeave()
	return true
}

// Click dispatches a click. A handled click does not propagate further.
func (s *Surface) Click(label string, index int) bool {
	in := s.lookup(label, index)
	if in == nil {
		return false
	}
	in.onClick()
	return true
}

// Tooltip returns the tooltip currently shown, if any
func (s *Surface) Tooltip() *etree.Element {
	return s.tooltip
}

// showTooltip draws the label and its sorted key/value lines above the
// element's bounding box.
func (s *Surface) showTooltip(el *etree.Element, label string, entries map[string]string) {
	s.hideTooltip()
	if s.root == nil {
		return
	}

	lines := []string{label}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+entries[k])
	}

	longest := 0
	for _, l := range lines {
		longest = max(longest, utf8.RuneCountInString(l))
	}
	width := float64(longest)*tooltipCharW + 2*tooltipPadding
	height := float64(len(lines))*tooltipLineH + tooltipPadding

	b, ok := elementBound(el)
	if !ok {
		b = orb.Bound{}
	}
	x := b.Center()[0] - width/2
	y := b.Min[1] - height - tooltipGap

	g := s.root.CreateElement("g")
	g.CreateAttr("class", ClassTooltip)
	g.CreateAttr("pointer-events", "none")
	g.CreateAttr("transform", fmt.Sprintf("translate(%s,%s)", formatFloat(x), formatFloat(y)))

	bg := g.CreateElement("rect")
	bg.CreateAttr("width", formatFloat(width))
	bg.CreateAttr("height", formatFloat(height))
	bg.CreateAttr("rx", "4")
	bg.CreateAttr("fill", "#ffffff")
	bg.CreateAttr("stroke", "#666666")

	text := g.CreateElement("text")
	text.CreateAttr("font-size", "12")
	text.CreateAttr("fill", "#333333")
	for i, l := range lines {
		span := text.CreateElement("tspan")
		span.CreateAttr("x", formatFloat(tooltipPadding))
		span.CreateAttr("y", formatFloat(float64(i+1)*tooltipLineH))
		if i == 0 {
			span.CreateAttr("font-weight", "bold")
		}
		span.SetText(l)
	}
	s.tooltip = g
}

func (s *Surface) hideTooltip() {
	if s.tooltip == nil {
		return
	}
	if parent := s.tooltip.Parent(); parent != nil {
		parent.RemoveChild(s.tooltip)
	}
	s.tooltip = nil
}

var numberRe = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+\.?)(?:[eE][-+]?\d+)?`)

// elementBound approximates the user-space bounding box of an element and
// its descendants from their geometry attributes. Path data is read as
// absolute coordinate pairs.
func elementBound(el *etree.Element) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	add := func(x, y float64) {
		p := orb.Point{x, y}
		if !found {
			b = orb.Bound{Min: p, Max: p}
			found = true
			return
		}
		b = b.Extend(p)
	}
	num := func(n *etree.Element, name string) float64 {
		v, _ := parseLength(n.SelectAttrValue(name, "0"))
		return v
	}

	walk(el, func(n *etree.Element) bool {
		switch n.Tag {
		case "rect", "image", "use":
			x, y := num(n, "x"), num(n, "y")
			add(x, y)
			add(x+num(n, "width"), y+num(n, "height"))
		case "circle":
			cx, cy, r := num(n, "cx"), num(n, "cy"), num(n, "r")
			add(cx-r, cy-r)
			add(cx+r, cy+r)
		case "ellipse":
			cx, cy, rx, ry := num(n, "cx"), num(n, "cy"), num(n, "rx"), num(n, "ry")
			add(cx-rx, cy-ry)
			add(cx+rx, cy+ry)
		case "line":
			add(num(n, "x1"), num(n, "y1"))
			add(num(n, "x2"), num(n, "y2"))
		case "polygon", "polyline":
			if ring, err := ParsePoints(n.SelectAttrValue("points", "")); err == nil {
				for _, p := range ring {
					add(p[0], p[1])
				}
			}
		case "path":
			nums := numberRe.FindAllString(n.SelectAttrValue("d", ""), -1)
			for i := 0; i+1 < len(nums); i += 2 {
				x, errX := strconv.ParseFloat(nums[i], 64)
				y, errY := strconv.ParseFloat(nums[i+1], 64)
				if errX == nil && errY == nil {
					add(x, y)
				}
			}
		case "text":
			add(num(n, "x"), num(n, "y"))
		}
		return true
	})
	return b, found
}
