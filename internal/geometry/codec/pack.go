package codec

import (
	"encoding/binary"
	"math"
)

const (
	packVersion byte = 1

	flagPolylines byte = 1 << 0
	flagPolygons  byte = 1 << 1

	packHeaderSize = 2 + 8 + 8
)

// Pack folds e into one frame for key/value caches:
//
//	version(1) flags(1) lat(8) lon(8) [uint32 len + polylines] [uint32 len + polygons]
func Pack(e Encoded) []byte {
	size := packHeaderSize
	var flags byte
	if e.Polylines != nil {
		flags |= flagPolylines
		size += countSize + len(e.Polylines)
	}
	if e.Polygons != nil {
		flags |= flagPolygons
		size += countSize + len(e.Polygons)
	}

	data := make([]byte, size)
	data[0] = packVersion
	data[1] = flags
	binary.LittleEndian.PutUint64(data[2:], math.Float64bits(e.Lat))
	binary.LittleEndian.PutUint64(data[10:], math.Float64bits(e.Lon))
	index := packHeaderSize
	for _, blob := range [][]byte{e.Polylines, e.Polygons} {
		if blob == nil {
			continue
		}
		binary.LittleEndian.PutUint32(data[index:], uint32(len(blob)))
		index += countSize
		index += copy(data[index:], blob)
	}
	return data
}

func Unpack(data []byte) (Encoded, error) {
	if len(data) < packHeaderSize {
		return Encoded{}, corrupt(0, "frame shorter than header")
	}
	if data[0] != packVersion {
		return Encoded{}, corrupt(0, "unknown frame version %d", data[0])
	}
	flags := data[1]
	if flags&^(flagPolylines|flagPolygons) != 0 {
		return Encoded{}, corrupt(1, "unknown flags %#x", flags)
	}

	e := Encoded{
		Lat: math.Float64frombits(binary.LittleEndian.Uint64(data[2:])),
		Lon: math.Float64frombits(binary.LittleEndian.Uint64(data[10:])),
	}
	index := packHeaderSize
	next := func() ([]byte, error) {
		n, err := readCount(data, index)
		if err != nil {
			return nil, err
		}
		index += countSize
		if n > len(data)-index {
			return nil, corrupt(index, "blob of %d bytes exceeds frame", n)
		}
		blob := make([]byte, n)
		copy(blob, data[index:index+n])
		index += n
		return blob, nil
	}

	var err error
	if flags&flagPolylines != 0 {
		if e.Polylines, err = next(); err != nil {
			return Encoded{}, err
		}
	}
	if flags&flagPolygons != 0 {
		if e.Polygons, err = next(); err != nil {
			return Encoded{}, err
		}
	}
	if index != len(data) {
		return Encoded{}, corrupt(index, "%d trailing bytes", len(data)-index)
	}
	return e, nil
}
