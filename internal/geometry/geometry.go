// Package geometry wraps the go-geos polygon algebra used by every resolve
// mode: parsing, bounding boxes, the shared union/repair/split sequence and
// the pixel rectangles of the raster mode.
//
// Parsed geometries live in geos.DefaultContext. go-geos serialises every
// call on a context, so a worker that does heavy overlay work takes its own
// context from NewContext, brings its inputs over with Import and uses the
// In variants of the constructors. Constructors require their inputs to
// belong to the context they are given.
//
// go-geos reports GEOS failures by panicking. Every helper that performs an
// overlay operation recovers those panics through Safe and returns them as
// *OpError, so a single degenerate input never takes down a group.
package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geos"
)

// ErrEmptyGeometry is returned when a geometry is missing or has no points.
var ErrEmptyGeometry = errors.New("empty geometry")

// ErrInvalidGeometry is returned when geometry input cannot be decoded.
var ErrInvalidGeometry = errors.New("invalid geometry")

// OpError is a recovered GEOS failure.
type OpError struct {
	// Op names the failing operation ("union", "difference", ...).
	Op string

	// Err is the underlying GEOS error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("geometry %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Safe runs fn and converts a go-geos panic into an *OpError.
func Safe(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = &OpError{Op: op, Err: rerr}
				return
			}
			err = &OpError{Op: op, Err: fmt.Errorf("%v", r)}
		}
	}()
	return fn()
}

// Parse decodes a WKT string or WKB byte slice.
//
// Empty geometries are rejected with ErrEmptyGeometry; undecodable input
// wraps ErrInvalidGeometry.
func Parse(v any) (*geos.Geom, error) {
	var g *geos.Geom
	err := Safe("parse", func() error {
		var perr error
		switch val := v.(type) {
		case nil:
			return ErrEmptyGeometry
		case string:
			if val == "" {
				return ErrEmptyGeometry
			}
			g, perr = geos.NewGeomFromWKT(val)
		case []byte:
			if len(val) == 0 {
				return ErrEmptyGeometry
			}
			g, perr = geos.NewGeomFromWKB(val)
		case *geos.Geom:
			g = val
		default:
			return fmt.Errorf("%w: unsupported encoding %T", ErrInvalidGeometry, v)
		}
		if perr != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGeometry, perr)
		}
		if g == nil || g.IsEmpty() {
			return ErrEmptyGeometry
		}
		return nil
	})
	var opErr *OpError
	if errors.As(err, &opErr) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, opErr.Err)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

// MustParse is Parse for literals in tests and fixtures. It panics on error.
func MustParse(wkt string) *geos.Geom {
	g, err := Parse(wkt)
	if err != nil {
		panic(fmt.Sprintf("geometry.MustParse(%q): %v", wkt, err))
	}
	return g
}

// IsEmpty reports whether g is nil or has no points.
func IsEmpty(g *geos.Geom) bool {
	return g == nil || g.IsEmpty()
}

// Bounds returns the bounding box of g. A nil or empty geometry yields the
// zero bound.
func Bounds(g *geos.Geom) orb.Bound {
	if IsEmpty(g) {
		return orb.Bound{}
	}
	b := g.Bounds()
	return orb.Bound{
		Min: orb.Point{b.MinX, b.MinY},
		Max: orb.Point{b.MaxX, b.MaxY},
	}
}

// Area returns the planar area of g, 0 for nil.
func Area(g *geos.Geom) float64 {
	if g == nil {
		return 0
	}
	return g.Area()
}

// NewContext returns a fresh GEOS context for one worker.
func NewContext() *geos.Context {
	return geos.NewContext()
}

// Import copies g into ctx.
func Import(ctx *geos.Context, g *geos.Geom) (*geos.Geom, error) {
	if g == nil {
		return nil, ErrEmptyGeometry
	}
	var out *geos.Geom
	err := Safe("import", func() error {
		var perr error
		out, perr = ctx.NewGeomFromWKB(g.ToWKB())
		return perr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rect builds the axis-aligned polygon [minX,maxX] x [minY,maxY].
func Rect(minX, minY, maxX, maxY float64) *geos.Geom {
	return RectIn(geos.DefaultContext, minX, minY, maxX, maxY)
}

// RectIn is Rect in ctx.
func RectIn(ctx *geos.Context, minX, minY, maxX, maxY float64) *geos.Geom {
	return ctx.NewPolygon([][][]float64{{
		{minX, minY},
		{maxX, minY},
		{maxX, maxY},
		{minX, maxY},
		{minX, minY},
	}})
}

// BoundPolygon converts an orb.Bound into its rectangle polygon.
func BoundPolygon(b orb.Bound) *geos.Geom {
	return Rect(b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// WKT returns the WKT text of g, "" for nil.
func WKT(g *geos.Geom) string {
	if g == nil {
		return ""
	}
	return g.ToWKT()
}
