package record

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/georesolve/internal/geometry"
)

// Property keys of the wire tuple.
const (
	PropClass      = "class"
	PropMembership = "membership"
	PropTile       = "tile"
	PropCRS        = "crs"
	PropID         = "id"
	PropParent     = "parent"
	PropRemoved    = "removed"
	PropArea       = "area"

	// propLegacyID is accepted as the id when "id" is absent.
	propLegacyID = "iiuuid"
)

// Tuple is the wire shape of one record: geometry, opaque attributes and
// the property map carrying classification and lineage.
type Tuple struct {
	// Geometry is WKT text (string) or WKB ([]byte).
	Geometry any

	Attributes map[string]string

	Properties map[string]any
}

// tupleJSON is the JSON-lines representation used by import and export.
type tupleJSON struct {
	Geometry    string            `json:"geometry,omitempty"`
	GeometryWKB string            `json:"geometry_wkb,omitempty"`
	Attributes  map[string]string `json:"attributes"`
	Properties  map[string]any    `json:"properties"`
}

// MarshalJSON writes WKT under "geometry" and WKB base64 under "geometry_wkb".
func (t Tuple) MarshalJSON() ([]byte, error) {
	out := tupleJSON{Attributes: t.Attributes, Properties: t.Properties}
	switch g := t.Geometry.(type) {
	case string:
		out.Geometry = g
	case []byte:
		out.GeometryWKB = base64.StdEncoding.EncodeToString(g)
	case nil:
	default:
		return nil, fmt.Errorf("tuple geometry: unsupported encoding %T", t.Geometry)
	}
	if out.Attributes == nil {
		out.Attributes = map[string]string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either geometry encoding.
func (t *Tuple) UnmarshalJSON(data []byte) error {
	var in tupleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.Attributes = in.Attributes
	t.Properties = in.Properties
	t.Geometry = nil
	switch {
	case in.Geometry != "":
		t.Geometry = in.Geometry
	case in.GeometryWKB != "":
		wkb, err := base64.StdEncoding.DecodeString(in.GeometryWKB)
		if err != nil {
			return fmt.Errorf("geometry_wkb: %w", err)
		}
		t.Geometry = wkb
	}
	return nil
}

// Decode turns a wire tuple into a GeoRecord.
//
// Membership may arrive as a number or as a numeric string. The presence of
// the "removed" key tombstones the record regardless of its value, except
// for an explicit boolean false.
func Decode(t Tuple) (*GeoRecord, error) {
	g, err := geometry.Parse(t.Geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadGeometry, err)
	}

	props := t.Properties
	r := &GeoRecord{
		Geometry:   g,
		Attributes: Attributes(t.Attributes).Clone(),
		Class:      stringProp(props, PropClass),
		Tile:       stringProp(props, PropTile),
		CRS:        stringProp(props, PropCRS),
		ID:         stringProp(props, PropID),
		Parent:     stringProp(props, PropParent),
	}
	if r.ID == "" {
		r.ID = stringProp(props, propLegacyID)
	}

	if v, ok := props[PropMembership]; ok && v != nil {
		m, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("membership: %w", err)
		}
		r.Membership = m
	}

	if v, ok := props[PropArea]; ok && v != nil {
		a, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("area: %w", err)
		}
		r.Area = &a
	}

	if v, ok := props[PropRemoved]; ok {
		if b, isBool := v.(bool); !isBool || b {
			r.Removed = true
		}
	}
	return r, nil
}

// Encode turns a GeoRecord into its wire tuple. Geometry is written as WKT;
// the tombstone flag is never written.
func Encode(r *GeoRecord) Tuple {
	props := map[string]any{
		PropClass:      r.Class,
		PropMembership: r.Membership,
		PropTile:       r.Tile,
		PropCRS:        r.CRS,
		PropID:         r.ID,
		PropParent:     r.Parent,
	}
	if r.Area != nil {
		props[PropArea] = *r.Area
	}
	return Tuple{
		Geometry:   geometry.WKT(r.Geometry),
		Attributes: r.Attributes.Clone(),
		Properties: props,
	}
}

func stringProp(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
