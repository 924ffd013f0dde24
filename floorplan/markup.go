package floorplan

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// Marker classes used in the rendered surface
const (
	ClassSurface          = "planbind-surface"
	ClassViewport         = "planbind-viewport"
	ClassPlaceholder      = "planbind-placeholder"
	ClassPlaceholderEmpty = "planbind-placeholder-empty"
	ClassPlaceholderError = "planbind-placeholder-error"
)

const svgNamespace = "http://www.w3.org/2000/svg"

var (
	// ErrMalformedMarkup is returned when the SVG text is not well-formed XML
	ErrMalformedMarkup = errors.New("malformed markup")
	// ErrNoRootElement is returned when the document has no <svg> root
	ErrNoRootElement = errors.New("no root svg element")
)

// shapeTags are the elements that carry a fill
var shapeTags = map[string]bool{
	"rect":     true,
	"path":     true,
	"polygon":  true,
	"circle":   true,
	"ellipse":  true,
	"polyline": true,
}

// ImportStatus describes what the surface currently shows
type ImportStatus int

const (
	ImportEmpty ImportStatus = iota
	ImportFailed
	ImportOK
)

func (s ImportStatus) String() string {
	switch s {
	case ImportOK:
		return "ok"
	case ImportFailed:
		return "error"
	default:
		return "empty"
	}
}

// Surface is the live render tree the visual draws into. It is rebuilt on
// every import; only the viewport transform is carried over by the caller.
type Surface struct {
	doc      *etree.Document
	viewport *etree.Element
	root     *etree.Element
	status   ImportStatus

	interactions map[string][]*interaction
	tooltip      *etree.Element
}

// NewSurface creates a surface showing the neutral placeholder
func NewSurface() *Surface {
	s := &Surface{}
	s.reset()
	s.showPlaceholder(ClassPlaceholderEmpty, "Load an SVG floor plan to begin")
	return s
}

// reset discards everything drawn so far
func (s *Surface) reset() {
	doc := etree.NewDocument()
	outer := doc.CreateElement("svg")
	outer.CreateAttr("xmlns", svgNamespace)
	outer.CreateAttr("class", ClassSurface)
	outer.CreateAttr("width", "100%")
	outer.CreateAttr("height", "100%")

	vp := outer.CreateElement("g")
	vp.CreateAttr("class", ClassViewport)

	s.doc = doc
	s.viewport = vp
	s.root = nil
	s.status = ImportEmpty
	s.interactions = make(map[string][]*interaction)
	s.tooltip = nil
}

// Import replaces the surface content with the given SVG text. Blank text
// shows the neutral placeholder; text that cannot be parsed, or that has no
// <svg> root, shows the error placeholder and returns the parse error.
func (s *Surface) Import(text string) error {
	s.reset()

	if strings.TrimSpace(text) == "" {
		s.showPlaceholder(ClassPlaceholderEmpty, "Load an SVG floor plan to begin")
		return nil
	}

	root, err := parseMarkup(text)
	if err != nil {
		s.showPlaceholder(ClassPlaceholderError, "Unable to display the SVG floor plan")
		s.status = ImportFailed
		return err
	}

	makeResponsive(root)
	s.viewport.AddChild(root)
	s.root = root
	s.status = ImportOK
	return nil
}

func (s *Surface) showPlaceholder(class, message string) {
	g := s.viewport.CreateElement("g")
	g.CreateAttr("class", ClassPlaceholder+" "+class)
	text := g.CreateElement("text")
	text.CreateAttr("x", "50%")
	text.CreateAttr("y", "50%")
	text.CreateAttr("text-anchor", "middle")
	text.CreateAttr("fill", "#666666")
	text.SetText(message)
}

// Status reports what the last import produced
func (s *Surface) Status() ImportStatus {
	return s.status
}

// Root returns the imported <svg> element, or nil when a placeholder is shown
func (s *Surface) Root() *etree.Element {
	return s.root
}

// Placeholder returns the marker class of the placeholder currently shown,
// or an empty string when markup is displayed.
func (s *Surface) Placeholder() string {
	for _, child := range s.viewport.ChildElements() {
		if hasClass(child, ClassPlaceholderEmpty) {
			return ClassPlaceholderEmpty
		}
		if hasClass(child, ClassPlaceholderError) {
			return ClassPlaceholderError
		}
	}
	return ""
}

// DrawableCount counts the shape elements of the floor plan itself. Tooltips
// and the polygon overlay are not counted.
func (s *Surface) DrawableCount() int {
	n := 0
	walk(s.viewport, func(el *etree.Element) bool {
		if hasClass(el, ClassOverlay) || hasClass(el, ClassTooltip) {
			return false
		}
		if shapeTags[el.Tag] {
			n++
		}
		return true
	})
	return n
}

// SetTransform applies the viewport transform to the whole rendered region
func (s *Surface) SetTransform(transform string) {
	s.viewport.CreateAttr("transform", transform)
	setStyleProperty(s.viewport, "transform-origin", "0 0")
}

// WriteTo serialises the surface as an SVG document
func (s *Surface) WriteTo(w io.Writer) (int64, error) {
	return s.doc.WriteTo(w)
}

// String returns the serialised surface
func (s *Surface) String() string {
	out, err := s.doc.WriteToString()
	if err != nil {
		return ""
	}
	return out
}

// parseMarkup checks well-formedness with a strict decoder, then builds the
// element tree and returns its detached <svg> root.
func parseMarkup(text string) (*etree.Element, error) {
	if err := checkWellFormed(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, ErrNoRootElement
	}
	doc.RemoveChild(root)
	return root, nil
}

func checkWellFormed(text string) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return ErrNoRootElement
	}
	return nil
}

// makeResponsive forces the root to fill its container while keeping the
// drawing's own aspect ratio.
func makeResponsive(root *etree.Element) {
	if root.SelectAttr("viewBox") == nil {
		w, okW := parseLength(root.SelectAttrValue("width", ""))
		h, okH := parseLength(root.SelectAttrValue("height", ""))
		if okW && okH && w > 0 && h > 0 {
			root.CreateAttr("viewBox", fmt.Sprintf("0 0 %s %s", formatFloat(w), formatFloat(h)))
		}
	}
	root.CreateAttr("width", "100%")
	root.CreateAttr("height", "100%")
	if root.SelectAttr("preserveAspectRatio") == nil {
		root.CreateAttr("preserveAspectRatio", "xMidYMid meet")
	}
}

// parseLength reads a plain or px-suffixed number; percentages are rejected
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// walk visits el and its descendants depth-first; returning false skips children
func walk(el *etree.Element, fn func(*etree.Element) bool) {
	if el == nil {
		return
	}
	if !fn(el) {
		return
	}
	for _, child := range el.ChildElements() {
		walk(child, fn)
	}
}

func hasClass(el *etree.Element, class string) bool {
	for _, c := range strings.Fields(el.SelectAttrValue("class", "")) {
		if c == class {
			return true
		}
	}
	return false
}

// setStyleProperty sets one declaration in the inline style attribute,
// keeping the other declarations and their order.
func setStyleProperty(el *etree.Element, prop, value string) {
	decls := strings.Split(el.SelectAttrValue("style", ""), ";")
	out := make([]string, 0, len(decls)+1)
	replaced := false
	for _, d := range decls {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		name, _, _ := strings.Cut(d, ":")
		if strings.EqualFold(strings.TrimSpace(name), prop) {
			if !replaced {
				out = append(out, prop+":"+value)
				replaced = true
			}
			continue
		}
		out = append(out, d)
	}
	if !replaced {
		out = append(out, prop+":"+value)
	}
	el.CreateAttr("style", strings.Join(out, ";"))
}

// styleProperty returns the value of one inline style declaration
func styleProperty(el *etree.Element, prop string) (string, bool) {
	for _, d := range strings.Split(el.SelectAttrValue("style", ""), ";") {
		name, value, ok := strings.Cut(d, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), prop) {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}
