package geometry

import "github.com/paulmach/osm"

// ShapeClass buckets a stored element the way map rendering groups them.
type ShapeClass string

const (
	ShapePoint    ShapeClass = "point"
	ShapeLine     ShapeClass = "line"
	ShapeArea     ShapeClass = "area"
	ShapeRelation ShapeClass = "relation"
)

func Classify(k ElementKey, g Geometry) ShapeClass {
	switch {
	case k.Type == osm.TypeNode:
		return ShapePoint
	case g != nil && g.Kind() == KindPolygons:
		return ShapeArea
	case k.Type == osm.TypeRelation:
		return ShapeRelation
	default:
		return ShapeLine
	}
}
