package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

type Kind int

const (
	KindPoint Kind = iota
	KindPolylines
	KindPolygons
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolylines:
		return "polylines"
	case KindPolygons:
		return "polygons"
	}
	return fmt.Sprintf("[!UNKNOWN Kind %d]", int(k))
}

// Geometry is one of Point, Polylines or Polygons. Every variant carries a
// single representative point; storage only ever filters on that point.
type Geometry interface {
	Kind() Kind
	Center() orb.Point
	isGeometry()
}

type Point struct {
	Position orb.Point
}

// NewPoint takes latitude first, like the rest of the storage API.
func NewPoint(lat, lon float64) Point {
	return Point{Position: orb.Point{lon, lat}}
}

func (Point) Kind() Kind          { return KindPoint }
func (p Point) Center() orb.Point { return p.Position }
func (Point) isGeometry()         {}

// Polylines is an ordered list of polylines plus a caller supplied center.
type Polylines struct {
	Lines    []orb.LineString
	Centroid orb.Point
}

func NewPolylines(lines []orb.LineString, center orb.Point) Polylines {
	return Polylines{Lines: cloneLines(lines), Centroid: center}
}

func (Polylines) Kind() Kind          { return KindPolylines }
func (p Polylines) Center() orb.Point { return p.Centroid }
func (Polylines) isGeometry()         {}

// Polygons is an ordered list of rings. Closing points are kept as given.
type Polygons struct {
	Rings    []orb.Ring
	Centroid orb.Point
}

func NewPolygons(rings []orb.Ring, center orb.Point) Polygons {
	return Polygons{Rings: cloneRings(rings), Centroid: center}
}

func (Polygons) Kind() Kind          { return KindPolygons }
func (p Polygons) Center() orb.Point { return p.Centroid }
func (Polygons) isGeometry()         {}

// Validate reports whether g can be persisted: shapes need at least one
// non-empty coordinate list.
func Validate(g Geometry) error {
	switch v := g.(type) {
	case Point:
		return nil
	case Polylines:
		if len(v.Lines) == 0 {
			return fmt.Errorf("%w: polylines without any line", ErrInvalidGeometry)
		}
		for i, l := range v.Lines {
			if len(l) == 0 {
				return fmt.Errorf("%w: polyline %d is empty", ErrInvalidGeometry, i)
			}
		}
		return nil
	case Polygons:
		if len(v.Rings) == 0 {
			return fmt.Errorf("%w: polygons without any ring", ErrInvalidGeometry)
		}
		for i, r := range v.Rings {
			if len(r) == 0 {
				return fmt.Errorf("%w: ring %d is empty", ErrInvalidGeometry, i)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidGeometry, g)
	}
}

// Equal compares variant, coordinates and center exactly.
func Equal(a, b Geometry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || !a.Center().Equal(b.Center()) {
		return false
	}
	switch av := a.(type) {
	case Point:
		return true
	case Polylines:
		bv := b.(Polylines)
		if len(av.Lines) != len(bv.Lines) {
			return false
		}
		for i := range av.Lines {
			if !av.Lines[i].Equal(bv.Lines[i]) {
				return false
			}
		}
		return true
	case Polygons:
		bv := b.(Polygons)
		if len(av.Rings) != len(bv.Rings) {
			return false
		}
		for i := range av.Rings {
			if !av.Rings[i].Equal(bv.Rings[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func cloneLines(in []orb.LineString) []orb.LineString {
	if in == nil {
		return nil
	}
	out := make([]orb.LineString, len(in))
	for i, l := range in {
		out[i] = append(orb.LineString(nil), l...)
	}
	return out
}

func cloneRings(in []orb.Ring) []orb.Ring {
	if in == nil {
		return nil
	}
	out := make([]orb.Ring, len(in))
	for i, r := range in {
		out[i] = append(orb.Ring(nil), r...)
	}
	return out
}
