package floorplan

import (
	"math"
	"strconv"
	"strings"
)

// Defaults applied when the host leaves a setting blank
const (
	DefaultLabelAttribute      = "data-label"
	DefaultFillColor           = "#cccccc"
	DefaultTransparencyPercent = 40.0
)

// DefaultSettings returns the settings used before the host sends any
func DefaultSettings() Settings {
	return Settings{
		FloorPlan: FloorPlanSettings{
			LabelAttribute: DefaultLabelAttribute,
			DefaultColor:   DefaultFillColor,
		},
		Tooltips: TooltipSettings{Show: true},
		Zoom:     ZoomSettings{Enabled: true},
		Polygons: PolygonSettings{
			Transparency:        true,
			TransparencyPercent: "40",
		},
	}
}

// LabelAttribute returns the markup attribute that carries label keys
func (s Settings) LabelAttribute() string {
	if a := strings.TrimSpace(s.FloorPlan.LabelAttribute); a != "" {
		return a
	}
	return DefaultLabelAttribute
}

// DefaultColor returns the fill used for labels with no matching row
func (s Settings) DefaultColor() string {
	if c := strings.TrimSpace(s.FloorPlan.DefaultColor); c != "" {
		return c
	}
	return DefaultFillColor
}

// Opacity returns the fill opacity in [0, 1]. With transparency off the
// fill is opaque.
func (s Settings) Opacity() float64 {
	if !s.Polygons.Transparency {
		return 1
	}
	return ParseTransparency(s.Polygons.TransparencyPercent) / 100
}

// ParseTransparency reads a percentage, clamped to [0, 100]. Unparseable
// input yields DefaultTransparencyPercent.
func ParseTransparency(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return DefaultTransparencyPercent
	}
	return math.Min(100, math.Max(0, v))
}

// BindOptions resolves the settings for the label binder
func (s Settings) BindOptions(host SelectionHost) BindOptions {
	return BindOptions{
		LabelAttribute:   s.LabelAttribute(),
		DefaultColor:     s.DefaultColor(),
		Opacity:          s.Opacity(),
		HighlightBorders: s.Polygons.HighlightBorders,
		ShowTooltips:     s.Tooltips.Show,
		Host:             host,
	}
}

// OverlayOptions resolves the settings for the polygon overlay
func (s Settings) OverlayOptions(host SelectionHost) OverlayOptions {
	return OverlayOptions{
		DefaultColor:     s.DefaultColor(),
		Opacity:          s.Opacity(),
		HighlightBorders: s.Polygons.HighlightBorders,
		Host:             host,
	}
}
