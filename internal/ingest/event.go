// Package ingest defines the change events that feed the geometry store from
// a message bus.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

const (
	OpPut    = "put"
	OpDelete = "delete"
)

// Event is one element geometry change. Seq, when set, is a per-element
// version; events with a Seq at or below the last applied one are dropped.
type Event struct {
	Version     int             `json:"version"`
	Op          string          `json:"op"`
	ElementType string          `json:"element_type"`
	ElementID   int64           `json:"element_id"`
	Seq         uint64          `json:"seq,omitempty"`
	TS          time.Time       `json:"ts"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	Center      *[2]float64     `json:"center,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpPut:
		if len(e.Geometry) == 0 {
			return fmt.Errorf("put requires geometry")
		}
	case OpDelete:
		if len(e.Geometry) > 0 {
			return fmt.Errorf("delete must not carry geometry")
		}
	default:
		return fmt.Errorf("op must be put|delete")
	}
	if _, err := geometry.ParseElementType(e.ElementType); err != nil {
		return err
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if c := e.Center; c != nil {
		if !(c[0] >= -180 && c[0] <= 180 && c[1] >= -90 && c[1] <= 90) {
			return fmt.Errorf("center out of range")
		}
	}
	return nil
}

func (e Event) Key() (geometry.ElementKey, error) {
	t, err := geometry.ParseElementType(e.ElementType)
	if err != nil {
		return geometry.ElementKey{}, err
	}
	return geometry.NewElementKey(t, e.ElementID), nil
}

// Shape parses the GeoJSON geometry of a put event. Center is [lon, lat].
func (e Event) Shape() (geometry.Geometry, error) {
	gj, err := geojson.UnmarshalGeometry(e.Geometry)
	if err != nil {
		return nil, fmt.Errorf("geometry parse: %w", err)
	}
	var center *orb.Point
	if e.Center != nil {
		center = &orb.Point{e.Center[0], e.Center[1]}
	}
	return geometry.FromOrb(gj.Geometry(), center)
}
