package references

import (
	"strings"
	"testing"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

func TestTable_ValidatesName(t *testing.T) {
	if _, err := Table("osm_quests"); err != nil {
		t.Fatalf("Table(osm_quests): %v", err)
	}
	for _, bad := range []string{"", "1abc", "quests; DROP TABLE x", "a.b"} {
		if _, err := Table(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestQuestTable_SQL(t *testing.T) {
	got := QuestTable().ReferencedKeysSQL()
	if got != "SELECT element_type, element_id FROM osm_quests" {
		t.Fatalf("sql=%q", got)
	}
}

func TestParseTables(t *testing.T) {
	srcs, err := ParseTables(" osm_quests, ,osm_notes ")
	if err != nil {
		t.Fatalf("ParseTables: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("len=%d want 2", len(srcs))
	}
	if _, err := ParseTables("ok,bad-name"); err == nil {
		t.Fatalf("expected error for bad-name")
	}
}

func TestStatic_SQL(t *testing.T) {
	got := Static(
		geometry.NewElementKey(osm.TypeWay, 0),
		geometry.NewElementKey(osm.TypeNode, -5),
	).ReferencedKeysSQL()
	want := "SELECT 'WAY' AS element_type, 0 AS element_id UNION ALL SELECT 'NODE' AS element_type, -5 AS element_id"
	if got != want {
		t.Fatalf("sql=%q\nwant %q", got, want)
	}
	if empty := Static().ReferencedKeysSQL(); !strings.Contains(empty, "WHERE 1 = 0") {
		t.Fatalf("empty static must select nothing: %q", empty)
	}
}

func TestUnion(t *testing.T) {
	q := QuestTable()
	if Union(q) != q {
		t.Fatalf("single source must be returned as is")
	}
	got := Union(q, Static(geometry.NewElementKey(osm.TypeRelation, 7))).ReferencedKeysSQL()
	if strings.Count(got, "UNION ALL") != 1 || !strings.Contains(got, "osm_quests") || !strings.Contains(got, "'RELATION'") {
		t.Fatalf("unexpected union sql: %q", got)
	}
}

func TestStatic_DropsInvalidKeys(t *testing.T) {
	got := Static(
		geometry.ElementKey{Type: osm.Type("way' OR '1'='1"), ID: 1},
		geometry.ElementKey{Type: "Way", ID: 2},
		geometry.NewElementKey(osm.TypeRelation, 3),
	).ReferencedKeysSQL()
	want := "SELECT 'RELATION' AS element_type, 3 AS element_id"
	if got != want {
		t.Fatalf("sql=%q\nwant %q", got, want)
	}
	if only := Static(geometry.ElementKey{Type: "x'", ID: 1}).ReferencedKeysSQL(); !strings.Contains(only, "WHERE 1 = 0") {
		t.Fatalf("all-invalid static must select nothing: %q", only)
	}
}
