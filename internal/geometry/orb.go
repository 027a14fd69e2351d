package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FromOrb converts a GeoJSON-level geometry. Points become Point. Line
// strings become Polylines. Polygons and multi polygons flatten into
// Polygons rings, outer and inner alike. center overrides the computed
// centroid for non point shapes.
func FromOrb(g orb.Geometry, center *orb.Point) (Geometry, error) {
	var out Geometry
	switch v := g.(type) {
	case orb.Point:
		return Point{Position: v}, nil
	case orb.LineString:
		out = NewPolylines([]orb.LineString{v}, centerOf(v, center))
	case orb.MultiLineString:
		out = NewPolylines(v, centerOf(v, center))
	case orb.Ring:
		out = NewPolygons([]orb.Ring{v}, centerOf(v, center))
	case orb.Polygon:
		out = NewPolygons(v, centerOf(v, center))
	case orb.MultiPolygon:
		var rings []orb.Ring
		for _, p := range v {
			rings = append(rings, p...)
		}
		out = NewPolygons(rings, centerOf(v, center))
	case nil:
		return nil, fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	default:
		return nil, fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToOrb converts back for GeoJSON output. Each Polygons ring becomes its own
// polygon since the ring list does not say which rings are holes.
func ToOrb(g Geometry) orb.Geometry {
	switch v := g.(type) {
	case Point:
		return v.Position
	case Polylines:
		if len(v.Lines) == 1 {
			return v.Lines[0].Clone()
		}
		return orb.MultiLineString(cloneLines(v.Lines))
	case Polygons:
		mp := make(orb.MultiPolygon, len(v.Rings))
		for i, r := range v.Rings {
			mp[i] = orb.Polygon{r.Clone()}
		}
		return mp
	}
	return nil
}

func centerOf(g orb.Geometry, override *orb.Point) orb.Point {
	if override != nil {
		return *override
	}
	c, _ := planar.CentroidArea(g)
	return c
}
