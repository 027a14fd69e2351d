package sqldb

import (
	"context"
	"fmt"
)

const (
	GeometryTable = "elements_geometry"
	QuestTable    = "osm_quests"
)

// EnsureSchema creates the geometry table and the quest table that references
// it. Existing tables are left as they are.
func (d *DB) EnsureSchema(ctx context.Context) error {
	dl := d.dialect
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            element_type   TEXT NOT NULL,
            element_id     %s NOT NULL,
            polylines_blob %s NULL,
            polygons_blob  %s NULL,
            latitude       %s NOT NULL,
            longitude      %s NOT NULL,
            PRIMARY KEY (element_type, element_id)
        )`, GeometryTable, dl.BigIntType, dl.BlobType, dl.BlobType, dl.FloatType, dl.FloatType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_lat_lon ON %s (latitude, longitude)`, GeometryTable, GeometryTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            quest_id     %s,
            quest_type   TEXT NOT NULL,
            element_type TEXT NOT NULL,
            element_id   %s NOT NULL
        )`, QuestTable, dl.SerialKey, dl.BigIntType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_element ON %s (element_type, element_id)`, QuestTable, QuestTable),
	}
	for i, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
