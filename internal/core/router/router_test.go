package router

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

func TestParseBBOX_Valid(t *testing.T) {
	bb, err := parseBBOX("11.0,55.0,12.0,56.0,EPSG:4326")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := geometry.BoundingBox{South: 55, West: 11, North: 56, East: 12}
	if bb != want {
		t.Fatalf("got %+v want %+v", bb, want)
	}
}

func TestParseBBOX_AntimeridianAllowed(t *testing.T) {
	bb, err := parseBBOX("175,-10,-175,10")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !bb.CrossesAntimeridian() {
		t.Fatalf("expected wrapped box: %+v", bb)
	}
}

func TestParseBBOX_Invalid(t *testing.T) {
	for _, raw := range []string{
		"11,55,12,56,EPSG:3857",
		"11,55,12",
		"a,55,12,56",
		"11,56,12,55",
		"11,-95,12,56",
	} {
		if _, err := parseBBOX(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseKey(t *testing.T) {
	k, err := parseKey("WAY", "12")
	if err != nil || k.String() != "way/12" {
		t.Fatalf("k=%v err=%v", k, err)
	}
	if _, err := parseKey("area", "1"); err == nil {
		t.Fatalf("expected error for bad type")
	}
	if _, err := parseKey("way", "x"); err == nil {
		t.Fatalf("expected error for bad id")
	}
}

func TestParseFeature(t *testing.T) {
	g, err := parseFeature([]byte(`{"type":"Feature","geometry":{"type":"LineString","coordinates":[[0,0],[2,0]]},"properties":{"center":[5,6]}}`))
	if err != nil {
		t.Fatalf("feature: %v", err)
	}
	if pl, ok := g.(geometry.Polylines); !ok || pl.Centroid != (orb.Point{5, 6}) {
		t.Fatalf("feature: %#v", g)
	}

	g, err = parseFeature([]byte(`{"type":"Point","coordinates":[13,52]}`))
	if err != nil || !geometry.Equal(g, geometry.NewPoint(52, 13)) {
		t.Fatalf("bare geometry: %v %v", g, err)
	}

	if _, err := parseFeature([]byte(`{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"center":"x"}}`)); err == nil {
		t.Fatalf("expected error for bad center")
	}
	if _, err := parseFeature([]byte(`{"type":"MultiPoint","coordinates":[[0,0]]}`)); !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Fatalf("expected ErrInvalidGeometry, got %v", err)
	}
	if _, err := parseFeature([]byte(`nope`)); err == nil {
		t.Fatalf("expected error for garbage")
	}
}

func TestEtagMatches(t *testing.T) {
	const etag = `"00ab"`
	cases := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"00ab"`, true},
		{`W/"00ab"`, true},
		{`"x", "00ab"`, true},
		{` "x" ,W/"00ab" `, true},
		{"*", true},
		{`"00abc"`, false},
		{`"x", "y"`, false},
	}
	for _, tc := range cases {
		if got := etagMatches(tc.header, etag); got != tc.want {
			t.Errorf("etagMatches(%q)=%v want %v", tc.header, got, tc.want)
		}
	}
}
