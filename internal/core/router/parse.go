package router

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

// parseBBOX reads "west,south,east,north[,EPSG:4326]". West may exceed east
// for boxes crossing the anti-meridian.
func parseBBOX(bboxParam string) (geometry.BoundingBox, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return geometry.BoundingBox{}, errors.New("expected west,south,east,north[,EPSG:4326]")
	}
	var v [4]float64
	for i, name := range []string{"west", "south", "east", "north"} {
		f, err := parseFloat(parts[i])
		if err != nil {
			return geometry.BoundingBox{}, fmt.Errorf("%s: %w", name, err)
		}
		v[i] = f
	}
	if len(parts) == 5 {
		srid := strings.ToUpper(strings.TrimSpace(parts[4]))
		if srid != "EPSG:4326" {
			return geometry.BoundingBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", srid)
		}
	}
	return geometry.NewBoundingBox(v[1], v[0], v[3], v[2])
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func parseKey(typ, id string) (geometry.ElementKey, error) {
	t, err := geometry.ParseElementType(typ)
	if err != nil {
		return geometry.ElementKey{}, err
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return geometry.ElementKey{}, fmt.Errorf("element id %q: %w", id, err)
	}
	return geometry.NewElementKey(t, n), nil
}

// parseFeature accepts a GeoJSON Feature or a bare geometry. An optional
// properties.center = [lon, lat] sets the representative point.
func parseFeature(body []byte) (geometry.Geometry, error) {
	var (
		og     orb.Geometry
		center *orb.Point
	)
	if f, err := geojson.UnmarshalFeature(body); err == nil && f.Geometry != nil {
		og = f.Geometry
		if raw, ok := f.Properties["center"]; ok {
			c, err := parseCenter(raw)
			if err != nil {
				return nil, err
			}
			center = &c
		}
	} else {
		g, gerr := geojson.UnmarshalGeometry(body)
		if gerr != nil {
			return nil, fmt.Errorf("body is neither a GeoJSON feature nor a geometry: %w", gerr)
		}
		og = g.Geometry()
	}
	return geometry.FromOrb(og, center)
}

func parseCenter(raw any) (orb.Point, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return orb.Point{}, errors.New("properties.center must be [lon, lat]")
	}
	lon, ok1 := arr[0].(float64)
	lat, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return orb.Point{}, errors.New("properties.center must hold numbers")
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return orb.Point{}, errors.New("properties.center out of range")
	}
	return orb.Point{lon, lat}, nil
}
