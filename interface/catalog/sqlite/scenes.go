package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/common"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog"
	"github.com/airbusgeo/s1ard-worklist/interface/safe"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

// Catalog is a local scene index backed by a sqlite database. Products are
// registered with Ingest and served to queries without touching the archive.
type Catalog struct {
	db *sql.DB
}

// compact timestamps (yyyymmddThhmmss) order lexicographically, so the date
// window is evaluated directly by the sql engine
const schema = `
CREATE TABLE IF NOT EXISTS scenes (
	source_id        TEXT PRIMARY KEY,
	path             TEXT NOT NULL,
	sensor           TEXT NOT NULL,
	product          TEXT NOT NULL,
	acquisition_mode TEXT NOT NULL,
	start            TEXT NOT NULL,
	stop             TEXT NOT NULL,
	orbit            INTEGER,
	relative_orbit   INTEGER,
	orbit_direction  TEXT,
	wkt              TEXT,
	slice_number     INTEGER,
	total_slices     INTEGER
);
CREATE INDEX IF NOT EXISTS scenes_start ON scenes(start);
`

// Open initializes or connects to the scene index.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite.Open[%s]: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open.schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close implements catalog.Archive
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ingest identifies the given products and registers them into the index.
// Re-ingesting a known product updates its record.
func (c *Catalog) Ingest(ctx context.Context, paths []string) (int, error) {
	scenes, err := safe.Identify(paths)
	if err != nil {
		return 0, fmt.Errorf("sqlite.Ingest.%w", err)
	}
	if err := c.IngestScenes(ctx, scenes); err != nil {
		return 0, err
	}
	return len(scenes), nil
}

// IngestScenes registers already-identified scenes into the index.
func (c *Catalog) IngestScenes(ctx context.Context, scenes []*entities.Scene) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite.IngestScenes: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO scenes
		(source_id, path, sensor, product, acquisition_mode, start, stop,
		 orbit, relative_orbit, orbit_direction, wkt, slice_number, total_slices)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite.IngestScenes: %w", err)
	}
	defer stmt.Close()

	for _, s := range scenes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sqlite.IngestScenes: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.SourceID, s.Path, s.Sensor, s.Product, s.AcquisitionMode,
			common.FormatSceneTime(s.Start), common.FormatSceneTime(s.Stop),
			s.AbsoluteOrbit, s.RelativeOrbit, s.OrbitDirection, s.GeometryWKT,
			s.SliceNumber, s.TotalSlices); err != nil {
			return fmt.Errorf("sqlite.IngestScenes[%s]: %w", s.SourceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite.IngestScenes: %w", err)
	}
	log.Logger(ctx).Sugar().Debugf("[sqlite] ingested %d scenes", len(scenes))
	return nil
}

// Delete removes a scene from the index.
func (c *Catalog) Delete(ctx context.Context, sourceID string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM scenes WHERE source_id = ?", sourceID); err != nil {
		return fmt.Errorf("sqlite.Delete[%s]: %w", sourceID, err)
	}
	return nil
}

// Select implements catalog.Archive: it returns the sorted locations of the
// scenes matching the query, reduced to one location per physical acquisition.
func (c *Catalog) Select(ctx context.Context, query entities.Query) ([]string, error) {
	scenes, err := c.SelectScenes(ctx, query)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(scenes))
	for i, s := range scenes {
		paths[i] = s.Path
	}
	paths, err = catalog.FilterDuplicates(paths, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Select.%w", err)
	}
	return paths, nil
}

// SelectScenes implements catalog.SceneSelector. Attribute and date filters
// run in the sql engine; the area-of-interest filter is refined on the exact
// footprints afterwards.
func (c *Catalog) SelectScenes(ctx context.Context, query entities.Query) ([]*entities.Scene, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite.SelectScenes: %w", err)
	}
	where, args := buildWhere(query)
	rows, err := c.db.QueryContext(ctx, `SELECT source_id, path, sensor, product, acquisition_mode,
		start, stop, orbit, relative_orbit, orbit_direction, wkt, slice_number, total_slices
		FROM scenes`+where+` ORDER BY start, source_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite.SelectScenes: %w", err)
	}
	defer rows.Close()

	var scenes []*entities.Scene
	for rows.Next() {
		s := &entities.Scene{}
		var start, stop string
		if err := rows.Scan(&s.SourceID, &s.Path, &s.Sensor, &s.Product, &s.AcquisitionMode,
			&start, &stop, &s.AbsoluteOrbit, &s.RelativeOrbit, &s.OrbitDirection,
			&s.GeometryWKT, &s.SliceNumber, &s.TotalSlices); err != nil {
			return nil, fmt.Errorf("sqlite.SelectScenes.Scan: %w", err)
		}
		if s.Start, err = common.ParseSceneTime(start); err != nil {
			return nil, fmt.Errorf("sqlite.SelectScenes[%s]: %w", s.SourceID, err)
		}
		if s.Stop, err = common.ParseSceneTime(stop); err != nil {
			return nil, fmt.Errorf("sqlite.SelectScenes[%s]: %w", s.SourceID, err)
		}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.SelectScenes: %w", err)
	}

	if query.AOI != nil {
		if scenes, err = filterAOI(scenes, query); err != nil {
			return nil, fmt.Errorf("sqlite.SelectScenes.%w", err)
		}
	}
	if query.CheckExist {
		for _, s := range scenes {
			if _, err := os.Stat(s.Path); err != nil {
				return nil, catalog.ErrSceneNotFound{Path: s.Path}
			}
		}
	}
	return scenes, nil
}

func buildWhere(query entities.Query) (string, []interface{}) {
	var conds []string
	var args []interface{}

	appendIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		conds = append(conds, column+" IN (?"+strings.Repeat(", ?", len(values)-1)+")")
		for _, v := range values {
			args = append(args, v)
		}
	}

	appendIn("sensor", query.Sensors)
	appendIn("product", query.Products)

	var modes []string
	for _, mode := range query.AcquisitionModes {
		if mode == "SM" {
			modes = append(modes, entities.StripmapModes...)
		} else {
			modes = append(modes, mode)
		}
	}
	appendIn("acquisition_mode", modes)

	if !query.MinDate.IsZero() {
		column := "start"
		if query.DateRelaxed {
			column = "stop"
		}
		conds = append(conds, column+" >= ?")
		args = append(args, common.FormatSceneTime(query.MinDate))
	}
	if !query.MaxDate.IsZero() {
		column := "stop"
		if query.DateRelaxed {
			column = "start"
		}
		conds = append(conds, column+" <= ?")
		args = append(args, common.FormatSceneTime(query.MaxDate))
	}

	if query.Datatake != 0 {
		// the data-take id sits at a fixed offset of the scene identifier
		conds = append(conds, "substr(source_id, 57, 6) = ?")
		args = append(args, fmt.Sprintf("%06X", query.Datatake))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// filterAOI keeps the scenes whose exact footprint intersects the area of
// interest.
func filterAOI(scenes []*entities.Scene, query entities.Query) ([]*entities.Scene, error) {
	geo, err := query.AOI.Geographic()
	if err != nil {
		return nil, fmt.Errorf("filterAOI.%w", err)
	}
	prepared := geo.Geom.Prepare()
	var kept []*entities.Scene
	for _, s := range scenes {
		footprint, err := s.Footprint()
		if err != nil {
			return nil, fmt.Errorf("filterAOI.%w", err)
		}
		intersects, err := prepared.Intersects(footprint)
		if err != nil {
			return nil, fmt.Errorf("filterAOI.Intersects[%s]: %w", s.SourceID, err)
		}
		if intersects {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].Start.Equal(kept[j].Start) {
			return kept[i].Start.Before(kept[j].Start)
		}
		return kept[i].SourceID < kept[j].SourceID
	})
	return kept, nil
}
