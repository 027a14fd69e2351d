package main

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func featureCenter(f *geojson.Feature) (*orb.Point, error) {
	raw, ok := f.Properties["center"]
	if !ok {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return nil, errors.New("properties.center must be [lon, lat]")
	}
	lon, ok1 := arr[0].(float64)
	lat, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return nil, errors.New("properties.center must hold numbers")
	}
	return &orb.Point{lon, lat}, nil
}
