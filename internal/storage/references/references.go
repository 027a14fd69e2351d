// Package references describes which geometry keys are still in use by other
// tables. The geometry store only needs the SQL that yields those keys, so
// orphan cleanup stays a single set difference inside the engine.
package references

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
)

// Source yields a SELECT returning (element_type, element_id) rows.
type Source interface {
	ReferencedKeysSQL() string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type table struct {
	name string
}

// Table references every row of name via its element_type/element_id columns.
func Table(name string) (Source, error) {
	name = strings.TrimSpace(name)
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid reference table name %q", name)
	}
	return table{name: name}, nil
}

// QuestTable is the quest table created alongside the geometry table.
func QuestTable() Source { return table{name: "osm_quests"} }

func (t table) ReferencedKeysSQL() string {
	return "SELECT element_type, element_id FROM " + t.name
}

func (t table) String() string { return t.name }

// ParseTables turns "osm_quests,osm_notes" into sources.
func ParseTables(csv string) ([]Source, error) {
	var out []Source
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		s, err := Table(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

type static []geometry.ElementKey

// Static is a fixed key set, handy as a fake in tests. Keys that fail
// Validate are dropped: the store never holds a row under them.
func Static(keys ...geometry.ElementKey) Source {
	out := make(static, 0, len(keys))
	for _, k := range keys {
		if k.Validate() == nil {
			out = append(out, k)
		}
	}
	return out
}

func (s static) ReferencedKeysSQL() string {
	if len(s) == 0 {
		return "SELECT CAST(NULL AS TEXT) AS element_type, CAST(NULL AS BIGINT) AS element_id WHERE 1 = 0"
	}
	parts := make([]string, len(s))
	for i, k := range s {
		// Static only keeps keys of the closed type enum
		parts[i] = "SELECT '" + k.ColumnValue() + "' AS element_type, " +
			strconv.FormatInt(k.ID, 10) + " AS element_id"
	}
	return strings.Join(parts, " UNION ALL ")
}

type union []Source

// Union references every key referenced by any of sources.
func Union(sources ...Source) Source {
	switch len(sources) {
	case 0:
		return Static()
	case 1:
		return sources[0]
	}
	return union(append([]Source(nil), sources...))
}

func (u union) ReferencedKeysSQL() string {
	parts := make([]string, len(u))
	for i, s := range u {
		parts[i] = s.ReferencedKeysSQL()
	}
	return strings.Join(parts, " UNION ALL ")
}
