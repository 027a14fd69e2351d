// Package codec converts geometries to and from the row shape persisted by the
// geometry store: two optional blobs plus the representative point.
//
// A blob holds a list of coordinate lists:
//
//	uint32 list count
//	per list: uint32 point count, then point count * (float64 lat, float64 lon)
//
// All integers and floats are little endian. Coordinates round-trip exactly.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

const (
	countSize = 4
	pointSize = 16
)

// Encoded is the storage form of a geometry. At most one blob is non-nil;
// neither means the geometry is a point.
type Encoded struct {
	Polylines []byte
	Polygons  []byte
	Lat       float64
	Lon       float64
}

func Encode(g geometry.Geometry) (Encoded, error) {
	if err := geometry.Validate(g); err != nil {
		return Encoded{}, err
	}
	c := g.Center()
	out := Encoded{Lat: c.Lat(), Lon: c.Lon()}

	switch v := g.(type) {
	case geometry.Point:
	case geometry.Polylines:
		lists := make([][]orb.Point, len(v.Lines))
		for i, l := range v.Lines {
			lists[i] = l
		}
		out.Polylines = writeLists(lists)
	case geometry.Polygons:
		lists := make([][]orb.Point, len(v.Rings))
		for i, r := range v.Rings {
			lists[i] = r
		}
		out.Polygons = writeLists(lists)
	}
	return out, nil
}

func Decode(e Encoded) (geometry.Geometry, error) {
	center := orb.Point{e.Lon, e.Lat}
	switch {
	case e.Polylines != nil && e.Polygons != nil:
		return nil, corrupt(-1, "both polylines and polygons payload present")
	case e.Polylines != nil:
		lists, err := readLists(e.Polylines)
		if err != nil {
			return nil, err
		}
		lines := make([]orb.LineString, len(lists))
		for i, l := range lists {
			lines[i] = l
		}
		return geometry.Polylines{Lines: lines, Centroid: center}, nil
	case e.Polygons != nil:
		lists, err := readLists(e.Polygons)
		if err != nil {
			return nil, err
		}
		rings := make([]orb.Ring, len(lists))
		for i, l := range lists {
			rings[i] = l
		}
		return geometry.Polygons{Rings: rings, Centroid: center}, nil
	default:
		return geometry.Point{Position: center}, nil
	}
}

func encodedSize(lists [][]orb.Point) int {
	n := countSize
	for _, l := range lists {
		n += countSize + len(l)*pointSize
	}
	return n
}

func writeLists(lists [][]orb.Point) []byte {
	data := make([]byte, encodedSize(lists))
	index := 0

	binary.LittleEndian.PutUint32(data[index:], uint32(len(lists)))
	index += countSize

	for _, l := range lists {
		binary.LittleEndian.PutUint32(data[index:], uint32(len(l)))
		index += countSize
		for _, p := range l {
			binary.LittleEndian.PutUint64(data[index:], math.Float64bits(p.Lat()))
			binary.LittleEndian.PutUint64(data[index+8:], math.Float64bits(p.Lon()))
			index += pointSize
		}
	}
	return data
}

func readLists(data []byte) ([][]orb.Point, error) {
	index := 0
	listCount, err := readCount(data, index)
	if err != nil {
		return nil, err
	}
	index += countSize
	if listCount == 0 {
		return nil, corrupt(0, "no coordinate lists")
	}
	// every list needs at least its count and one point
	if listCount > (len(data)-index)/(countSize+pointSize) {
		return nil, corrupt(0, "list count %d exceeds payload of %d bytes", listCount, len(data))
	}

	lists := make([][]orb.Point, listCount)
	for i := range lists {
		pointCount, err := readCount(data, index)
		if err != nil {
			return nil, err
		}
		if pointCount == 0 {
			return nil, corrupt(index, "list %d is empty", i)
		}
		index += countSize
		if pointCount > (len(data)-index)/pointSize {
			return nil, corrupt(index, "list %d claims %d points, only %d bytes left", i, pointCount, len(data)-index)
		}

		points := make([]orb.Point, pointCount)
		for j := range points {
			lat := math.Float64frombits(binary.LittleEndian.Uint64(data[index:]))
			lon := math.Float64frombits(binary.LittleEndian.Uint64(data[index+8:]))
			points[j] = orb.Point{lon, lat}
			index += pointSize
		}
		lists[i] = points
	}

	if index != len(data) {
		return nil, corrupt(index, "%d trailing bytes", len(data)-index)
	}
	return lists, nil
}

func readCount(data []byte, index int) (int, error) {
	if len(data)-index < countSize {
		return 0, corrupt(index, "truncated count")
	}
	return int(binary.LittleEndian.Uint32(data[index:])), nil
}

// String renders e for log lines.
func (e Encoded) String() string {
	return fmt.Sprintf("Encoded{polylines=%dB polygons=%dB lat=%v lon=%v}", len(e.Polylines), len(e.Polygons), e.Lat, e.Lon)
}
