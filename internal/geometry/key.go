// Package geometry defines the geometry values stored per OSM element and the
// keys they are stored under.
package geometry

import (
	"fmt"
	"strings"

	"github.com/paulmach/osm"
)

// ElementKey identifies a map element by type and numeric id.
type ElementKey struct {
	Type osm.Type
	ID   int64
}

func NewElementKey(t osm.Type, id int64) ElementKey {
	return ElementKey{Type: t, ID: id}
}

func (k ElementKey) String() string {
	return fmt.Sprintf("%s/%d", k.Type, k.ID)
}

// ColumnValue is the upper-case spelling persisted in element_type columns.
func (k ElementKey) ColumnValue() string {
	return strings.ToUpper(string(k.Type))
}

// Validate accepts only the canonical osm.TypeNode, osm.TypeWay and
// osm.TypeRelation values. Other spellings must go through ParseElementType
// first, so one element never maps to two column values.
func (k ElementKey) Validate() error {
	switch k.Type {
	case osm.TypeNode, osm.TypeWay, osm.TypeRelation:
		return nil
	}
	if t, err := ParseElementType(string(k.Type)); err == nil {
		return fmt.Errorf("element type %q is not canonical, use %q", k.Type, t)
	}
	return fmt.Errorf("unknown element type %q", k.Type)
}

// ParseElementType accepts "node"/"NODE", "way"/"WAY" and "relation"/"RELATION".
func ParseElementType(s string) (osm.Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(osm.TypeNode):
		return osm.TypeNode, nil
	case string(osm.TypeWay):
		return osm.TypeWay, nil
	case string(osm.TypeRelation):
		return osm.TypeRelation, nil
	default:
		return "", fmt.Errorf("unknown element type %q", s)
	}
}
