package floorplan

// Column roles understood by the row decoder
const (
	RoleFieldNumber   = "fieldNumber"
	RoleLayerColor    = "layerColor"
	RoleColor         = "color"
	RoleTooltipFields = "tooltipFields"
	RolePoints        = "points"
	RolePolygonPoints = "polygonPoints"
	RolePolygonID     = "polygonId"
)

// SelectionID is a host-issued interaction identity. It is carried alongside
// entities and handed back to the host untouched.
type SelectionID any

// DataPoint is the point-style binding produced for one row with a label key
type DataPoint struct {
	FieldNumber string            `json:"fieldNumber"`
	LayerColor  string            `json:"layerColor"`
	Color       string            `json:"color,omitempty"`
	Tooltip     map[string]string `json:"tooltip,omitempty"`
	SelectionID SelectionID       `json:"-"`
}

// HasSelection reports whether the host issued an identity for this point
func (dp DataPoint) HasSelection() bool {
	return dp.SelectionID != nil
}

// PolygonVM is the overlay binding produced for one row with point data
type PolygonVM struct {
	ID          string      `json:"id,omitempty"`
	Points      string      `json:"points"`
	Color       *string     `json:"color,omitempty"`
	SelectionID SelectionID `json:"-"`
}

// Key returns the reconciliation key: the id, or the raw point list when no id is set
func (p PolygonVM) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Points
}

// ColorValue returns the resolved color or an empty string
func (p PolygonVM) ColorValue() string {
	if p.Color == nil {
		return ""
	}
	return *p.Color
}

// ViewModel holds both decodings of one tabular snapshot
type ViewModel struct {
	Points   []DataPoint `json:"points"`
	Polygons []PolygonVM `json:"polygons"`
}

// Column describes one column of the host's tabular snapshot
type Column struct {
	DisplayName string                 `json:"displayName" msgpack:"displayName"`
	QueryName   string                 `json:"queryName,omitempty" msgpack:"queryName"`
	Roles       map[string]bool        `json:"roles" msgpack:"roles"`
	Objects     map[string]interface{} `json:"objects,omitempty" msgpack:"objects"`
}

// HasRole reports whether the column is tagged with the given role
func (c Column) HasRole(role string) bool {
	return c.Roles[role]
}

// Snapshot is one host update: columns with role tags and rows of cells
type Snapshot struct {
	ID      string   `json:"id,omitempty" msgpack:"id"`
	Columns []Column `json:"columns" msgpack:"columns"`
	Rows    [][]Cell `json:"rows" msgpack:"rows"`
}

// Cell returns the cell at (row, col), or an empty cell when out of range
func (s *Snapshot) Cell(row, col int) Cell {
	if s == nil || row < 0 || row >= len(s.Rows) || col < 0 {
		return Cell{}
	}
	r := s.Rows[row]
	if col >= len(r) {
		return Cell{}
	}
	return r[col]
}

// UpdatePayload is the message the host sends on every update. A nil
// Settings keeps the settings currently in effect.
type UpdatePayload struct {
	Snapshot *Snapshot `json:"snapshot" msgpack:"snapshot"`
	Settings *Settings `json:"settings,omitempty" msgpack:"settings"`
}

// FloorPlanSettings is the settings group that carries the persisted SVG text
type FloorPlanSettings struct {
	SVGText        string `yaml:"svgText" json:"svgText" msgpack:"svgText"`
	LabelAttribute string `yaml:"labelAttribute,omitempty" json:"labelAttribute,omitempty" msgpack:"labelAttribute"`
	DefaultColor   string `yaml:"defaultColor,omitempty" json:"defaultColor,omitempty" msgpack:"defaultColor"`
}

// TooltipSettings toggles hover tooltips
type TooltipSettings struct {
	Show bool `yaml:"show" json:"show" msgpack:"show"`
}

// ZoomSettings toggles wheel zoom and drag pan
type ZoomSettings struct {
	Enabled bool `yaml:"enabled" json:"enabled" msgpack:"enabled"`
}

// PolygonSettings holds the fill opacity and border options. The opacity
// applies to label-matched fills as well as overlay polygons.
type PolygonSettings struct {
	Transparency        bool   `yaml:"transparency" json:"transparency" msgpack:"transparency"`
	TransparencyPercent string `yaml:"transparencyPercent" json:"transparencyPercent" msgpack:"transparencyPercent"`
	HighlightBorders    bool   `yaml:"highlightBorders" json:"highlightBorders" msgpack:"highlightBorders"`
}

// Settings is the typed settings object supplied by the host
type Settings struct {
	FloorPlan FloorPlanSettings `yaml:"floorPlan" json:"floorPlan" msgpack:"floorPlan"`
	Tooltips  TooltipSettings   `yaml:"tooltips" json:"tooltips" msgpack:"tooltips"`
	Zoom      ZoomSettings      `yaml:"zoom" json:"zoom" msgpack:"zoom"`
	Polygons  PolygonSettings   `yaml:"polygons" json:"polygons" msgpack:"polygons"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	UpdateTopic   string `yaml:"updateTopic,omitempty" json:"updateTopic,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	HTTP     HTTPConfig `yaml:"http" json:"http"`
	MQTT     MQTTConfig `yaml:"mqtt" json:"mqtt"`
	SVGURL   string     `yaml:"svgUrl,omitempty" json:"svgUrl,omitempty"` // Optional remote floor plan loaded at startup
	Settings Settings   `yaml:"settings" json:"settings"`
}
