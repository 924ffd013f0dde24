package floorplan

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// CellKind tags the shape a raw cell arrived in
type CellKind int

const (
	CellEmpty CellKind = iota
	CellScalar
	CellWrapped
)

// Cell is a decoded table cell: a bare scalar, or a wrapper carrying a value
// and optional formatting metadata under "objects".
type Cell struct {
	Kind    CellKind
	Scalar  interface{}
	Value   interface{}
	Objects map[string]interface{}
}

// CellFromRaw classifies a generically decoded value (JSON or msgpack)
func CellFromRaw(raw interface{}) Cell {
	switch v := raw.(type) {
	case nil:
		return Cell{}
	case map[string]interface{}:
		return wrappedCell(v)
	case map[interface{}]interface{}:
		return wrappedCell(stringKeys(v))
	default:
		return Cell{Kind: CellScalar, Scalar: v}
	}
}

func wrappedCell(m map[string]interface{}) Cell {
	c := Cell{Kind: CellWrapped}
	_, hasValue := m["value"]
	objs, hasObjects := m["objects"]
	if !hasValue && !hasObjects {
		// A bare metadata object: treat the whole map as formatting objects
		c.Objects = m
		return c
	}
	c.Value = m["value"]
	if hasObjects {
		c.Objects = asMap(objs)
	}
	return c
}

// Raw returns the cell in its generic wire shape
func (c Cell) Raw() interface{} {
	switch c.Kind {
	case CellScalar:
		return c.Scalar
	case CellWrapped:
		m := map[string]interface{}{"value": c.Value}
		if c.Objects != nil {
			m["objects"] = c.Objects
		}
		return m
	default:
		return nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CellFromRaw(raw)
	return nil
}

// MarshalJSON implements json.Marshaler
func (c Cell) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Raw())
}

// DecodeMsgpack implements msgpack.CustomDecoder
func (c *Cell) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	*c = CellFromRaw(raw)
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder
func (c Cell) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(c.Raw())
}

// IsNull reports whether the cell carries no value at all
func (c Cell) IsNull() bool {
	switch c.Kind {
	case CellScalar:
		return c.Scalar == nil
	case CellWrapped:
		return c.Value == nil
	default:
		return true
	}
}

// Text returns the cell's direct value formatted as a string
func (c Cell) Text() string {
	switch c.Kind {
	case CellScalar:
		return formatScalar(c.Scalar)
	case CellWrapped:
		return formatScalar(c.Value)
	default:
		return ""
	}
}

// ColorText resolves a color from the cell: the direct value first, then any
// fill color carried in the formatting metadata.
func (c Cell) ColorText() string {
	if v := strings.TrimSpace(c.Text()); v != "" {
		return v
	}
	if c.Kind == CellWrapped {
		return colorFromObjects(c.Objects)
	}
	return ""
}

func formatScalar(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case map[string]interface{}, []interface{}:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// colorFromObjects walks formatting metadata looking for a fill color, either
// as {fill:{solid:{color}}} or as any nested "color" property.
func colorFromObjects(objs map[string]interface{}) string {
	if len(objs) == 0 {
		return ""
	}
	if fill, ok := objs["fill"]; ok {
		if c := solidColor(fill); c != "" {
			return c
		}
	}
	if raw, ok := objs["color"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if c := solidColor(raw); c != "" {
			return c
		}
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if child := asMap(objs[k]); child != nil {
			if c := colorFromObjects(child); c != "" {
				return c
			}
		}
	}
	return ""
}

func solidColor(v interface{}) string {
	m := asMap(v)
	if m == nil {
		return ""
	}
	solid := asMap(m["solid"])
	if solid == nil {
		return ""
	}
	if s, ok := solid["color"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		return m
	case map[interface{}]interface{}:
		return stringKeys(m)
	default:
		return nil
	}
}

func stringKeys(m map[interface{}]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	return out
}

// RoleIndex maps each semantic role to the column that carries it; -1 when absent
type RoleIndex struct {
	FieldNumber int
	LayerColor  int
	Points      int
	PolygonID   int
	Tooltips    []int
}

// ResolveRoles picks the first column for each singular role and every
// column tagged as a tooltip field.
func ResolveRoles(columns []Column) RoleIndex {
	idx := RoleIndex{FieldNumber: -1, LayerColor: -1, Points: -1, PolygonID: -1}
	for i, col := range columns {
		if idx.FieldNumber < 0 && col.HasRole(RoleFieldNumber) {
			idx.FieldNumber = i
		}
		if idx.LayerColor < 0 && (col.HasRole(RoleLayerColor) || col.HasRole(RoleColor)) {
			idx.LayerColor = i
		}
		if idx.Points < 0 && (col.HasRole(RolePoints) || col.HasRole(RolePolygonPoints)) {
			idx.Points = i
		}
		if idx.PolygonID < 0 && col.HasRole(RolePolygonID) {
			idx.PolygonID = i
		}
		if col.HasRole(RoleTooltipFields) {
			idx.Tooltips = append(idx.Tooltips, i)
		}
	}
	return idx
}

// DecodeRow turns one row into at most one DataPoint and one PolygonVM.
// Selection identities are attached later by the view model builder.
func DecodeRow(snap *Snapshot, roles RoleIndex, row int) (*DataPoint, *PolygonVM) {
	if snap == nil || row < 0 || row >= len(snap.Rows) {
		return nil, nil
	}

	label := ""
	if roles.FieldNumber >= 0 {
		label = strings.TrimSpace(snap.Cell(row, roles.FieldNumber).Text())
	}
	layerColor := resolveColor(snap, roles.LayerColor, row)

	var dp *DataPoint
	if label != "" {
		dp = &DataPoint{
			FieldNumber: label,
			LayerColor:  layerColor,
		}
		if layerColor != "" {
			dp.Color = strings.ToLower(layerColor)
		}
		dp.Tooltip = decodeTooltip(snap, roles.Tooltips, row)
	}

	var poly *PolygonVM
	if roles.Points >= 0 {
		points := strings.TrimSpace(snap.Cell(row, roles.Points).Text())
		if points != "" {
			id := ""
			if roles.PolygonID >= 0 {
				id = strings.TrimSpace(snap.Cell(row, roles.PolygonID).Text())
			}
			if id == "" {
				id = label
			}
			if id == "" {
				id = fmt.Sprintf("p%d", row)
			}
			poly = &PolygonVM{ID: id, Points: points}
			if layerColor != "" {
				c := layerColor
				poly.Color = &c
			}
		}
	}

	return dp, poly
}

// resolveColor applies the cell-level extraction and falls back to the
// column's own formatting metadata.
func resolveColor(snap *Snapshot, col, row int) string {
	if col < 0 {
		return ""
	}
	if c := snap.Cell(row, col).ColorText(); c != "" {
		return c
	}
	if col < len(snap.Columns) {
		return colorFromObjects(snap.Columns[col].Objects)
	}
	return ""
}

func decodeTooltip(snap *Snapshot, cols []int, row int) map[string]string {
	var tooltip map[string]string
	for n, col := range cols {
		cell := snap.Cell(row, col)
		if cell.IsNull() {
			continue
		}
		name := ""
		if col < len(snap.Columns) {
			name = strings.TrimSpace(snap.Columns[col].DisplayName)
		}
		if name == "" {
			name = fmt.Sprintf("Tooltip %d", n+1)
		}
		if tooltip == nil {
			tooltip = make(map[string]string)
		}
		tooltip[name] = cell.Text()
	}
	return tooltip
}

// DecodeUpdatePayload decodes a host update from various formats:
// - Raw JSON (object starting with '{')
// - Zlib-compressed JSON
// - MessagePack
// A bare snapshot without the {snapshot, settings} envelope is accepted too.
func DecodeUpdatePayload(data []byte) (*UpdatePayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	switch {
	case trimmed[0] == '{':
		return decodeJSONPayload(trimmed)
	case isZlib(trimmed):
		inflated, err := inflateZlib(trimmed)
		if err != nil {
			return nil, fmt.Errorf("inflating payload: %w", err)
		}
		return DecodeUpdatePayload(inflated)
	default:
		return decodeMsgpackPayload(trimmed)
	}
}

func decodeJSONPayload(data []byte) (*UpdatePayload, error) {
	var payload UpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing JSON payload: %w", err)
	}
	if payload.Snapshot == nil {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parsing JSON snapshot: %w", err)
		}
		if len(snap.Columns) > 0 || len(snap.Rows) > 0 {
			payload.Snapshot = &snap
		}
	}
	return &payload, nil
}

func decodeMsgpackPayload(data []byte) (*UpdatePayload, error) {
	var payload UpdatePayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unknown format: not JSON, zlib, or msgpack: %w", err)
	}
	if payload.Snapshot == nil {
		var snap Snapshot
		if err := msgpack.Unmarshal(data, &snap); err == nil && (len(snap.Columns) > 0 || len(snap.Rows) > 0) {
			payload.Snapshot = &snap
		}
	}
	return &payload, nil
}

// isZlib checks for a zlib stream header: deflate method, window <= 32K and a
// CMF/FLG pair divisible by 31. msgpack maps (0x80+) never match.
func isZlib(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return data[0]&0x0f == 8 && data[0]>>4 <= 7 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}

// ParseSnapshotFile reads an update payload from disk
func ParseSnapshotFile(path string) (*UpdatePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return DecodeUpdatePayload(data)
}
