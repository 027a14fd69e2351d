package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

// toEvents turns parsed entries back into put events carrying GeoJSON.
func toEvents(entries []geometrystore.Entry, seq uint64, now time.Time) ([]ingest.Event, error) {
	out := make([]ingest.Event, 0, len(entries))
	for _, e := range entries {
		raw, err := geojson.NewGeometry(geometry.ToOrb(e.Geometry)).MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Key, err)
		}
		c := e.Geometry.Center()
		out = append(out, ingest.Event{
			Version:     1,
			Op:          ingest.OpPut,
			ElementType: strings.ToLower(e.Key.ColumnValue()),
			ElementID:   e.Key.ID,
			Seq:         seq,
			TS:          now.UTC(),
			Geometry:    raw,
			Center:      &[2]float64{c.Lon(), c.Lat()},
		})
	}
	return out, nil
}
