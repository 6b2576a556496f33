package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog"
	"github.com/airbusgeo/s1ard-worklist/interface/grid"
	"github.com/airbusgeo/s1ard-worklist/interface/safe"
	"github.com/airbusgeo/s1ard-worklist/service"
	"github.com/airbusgeo/s1ard-worklist/service/geometry"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

// windowPad widens the date window of the second search pass: a tile may be
// touched by the neighbor of a boundary acquisition just outside the extremal
// timestamps of the first pass.
const windowPad = time.Minute

// Catalog builds processing work-lists from a scene archive and a tiling grid.
type Catalog struct {
	Archive   catalog.Archive
	Reference catalog.Reference
	Grid      grid.Grid
	// Identify resolves bare scene locations into parsed records
	// (safe.Identify if nil)
	Identify func(paths []string) ([]*entities.Scene, error)
	// Workers bounds the parallel per-tile searches (sequential if 0)
	Workers int
}

// Select builds the work-list: the locations of the scenes to process and the
// grid tiles to produce. The spatial constraint is, in order of precedence:
// the given tile ids, the area of interest of the query, or, when neither is
// set, the footprints of an initial selection (see selectTwoPhase).
func (c *Catalog) Select(ctx context.Context, query entities.Query, aoiTiles []string) (entities.Selection, error) {
	if err := query.Validate(); err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select: %w", err)
	}
	query = normalizeQuery(query)
	switch {
	case len(aoiTiles) > 0:
		return c.selectFromTiles(ctx, query, aoiTiles)
	case query.AOI != nil:
		return c.selectFromAOI(ctx, query)
	}
	return c.selectTwoPhase(ctx, query)
}

// normalizeQuery fans the generic stripmap mode out to the beam identifiers.
func normalizeQuery(query entities.Query) entities.Query {
	var modes []string
	for _, mode := range query.AcquisitionModes {
		if mode == "SM" {
			modes = append(modes, entities.StripmapModes...)
		} else {
			modes = append(modes, mode)
		}
	}
	query.AcquisitionModes = modes
	return query
}

// selectFromTiles searches once per tile and returns the input tile list
// unchanged.
func (c *Catalog) selectFromTiles(ctx context.Context, query entities.Query, aoiTiles []string) (entities.Selection, error) {
	tiles, err := c.Grid.Tiles(aoiTiles)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	scenes, err := c.searchTiles(ctx, query, tiles)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	return entities.Selection{Scenes: scenes, Tiles: aoiTiles}, nil
}

// selectFromAOI searches once with the area of interest of the query and
// derives the tile list from it.
func (c *Catalog) selectFromAOI(ctx context.Context, query entities.Query) (entities.Selection, error) {
	aoiWKT, err := query.AOI.WKT()
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	tiles, err := c.Grid.TilesFromAOI(aoiWKT)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	scenes, err := c.Archive.Select(ctx, query)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	return entities.Selection{Scenes: scenes, Tiles: tileIDs(tiles)}, nil
}

// selectTwoPhase runs the query without spatial constraint to locate the
// touched tiles, then searches once per tile over a widened date window so
// that every tile gets all the acquisitions covering it, including the
// neighbors of the initial selection.
func (c *Catalog) selectTwoPhase(ctx context.Context, query entities.Query) (entities.Selection, error) {
	candidates, err := c.selectScenes(ctx, query)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	if len(candidates) == 0 {
		return entities.Selection{}, nil
	}
	log.Logger(ctx).Sugar().Debugf("initial selection: %d scenes", len(candidates))

	minDate, maxDate, tiles, err := deriveWindowAndTiles(candidates, c.Grid)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	query.MinDate, query.MaxDate = minDate, maxDate
	scenes, err := c.searchTiles(ctx, query, tiles)
	if err != nil {
		return entities.Selection{}, fmt.Errorf("catalog.Select.%w", err)
	}
	return entities.Selection{Scenes: scenes, Tiles: tileIDs(tiles)}, nil
}

// deriveWindowAndTiles computes the tiles overlapping the scene footprints and
// the widened [min(start), max(stop)] window of the scenes.
func deriveWindowAndTiles(scenes []*entities.Scene, g grid.Grid) (time.Time, time.Time, []entities.Tile, error) {
	wkts := make([]string, len(scenes))
	minDate, maxDate := scenes[0].Start, scenes[0].Stop
	for i, s := range scenes {
		if s.GeometryWKT == "" {
			return time.Time{}, time.Time{}, nil, fmt.Errorf("deriveWindowAndTiles: scene %s has no footprint", s.SourceID)
		}
		wkts[i] = s.GeometryWKT
		if s.Start.Before(minDate) {
			minDate = s.Start
		}
		if s.Stop.After(maxDate) {
			maxDate = s.Stop
		}
	}
	tiles, err := g.TilesFromAOI(wkts...)
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("deriveWindowAndTiles.%w", err)
	}
	return minDate.Add(-windowPad), maxDate.Add(windowPad), tiles, nil
}

// searchTiles runs one search per tile and merges the results into an ordered,
// duplicate-free location list.
func (c *Catalog) searchTiles(ctx context.Context, query entities.Query, tiles []entities.Tile) ([]string, error) {
	results := make([][]string, len(tiles))

	wg, ctx := errgroup.WithContext(ctx)
	jobChan := make(chan int, len(tiles))
	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers && i < len(tiles); i++ {
		wg.Go(func() error {
			for idx := range jobChan {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				tile := tiles[idx]
				aoi, err := geometry.VectorFromWKT(tile.GeometryWKT)
				if err != nil {
					return fmt.Errorf("searchTiles[%s]: %w", tile.ID, err)
				}
				q := query
				q.AOI = &aoi
				if results[idx], err = c.Archive.Select(ctx, q); err != nil {
					return fmt.Errorf("searchTiles[%s]: %w", tile.ID, err)
				}
			}
			return nil
		})
	}
	for i := range tiles {
		jobChan <- i
	}
	close(jobChan)
	if err := wg.Wait(); err != nil {
		return nil, err
	}

	set := service.StringSet{}
	for _, locations := range results {
		for _, location := range locations {
			set.Push(location)
		}
	}
	scenes := set.Slice()
	sort.Strings(scenes)
	return scenes, nil
}

// selectScenes returns the parsed records of the scenes matching the query,
// resolving bare locations when the archive does not provide records itself.
func (c *Catalog) selectScenes(ctx context.Context, query entities.Query) ([]*entities.Scene, error) {
	if selector, ok := c.Archive.(catalog.SceneSelector); ok {
		scenes, err := selector.SelectScenes(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("selectScenes.%w", err)
		}
		return scenes, nil
	}
	locations, err := c.Archive.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selectScenes.%w", err)
	}
	scenes, err := c.identify(locations)
	if err != nil {
		return nil, fmt.Errorf("selectScenes.%w", err)
	}
	return scenes, nil
}

func (c *Catalog) identify(paths []string) ([]*entities.Scene, error) {
	if c.Identify != nil {
		return c.Identify(paths)
	}
	return safe.Identify(paths)
}

// CollectNeighbors returns the locations of the acquisitions adjacent to the
// scene in its data take.
func (c *Catalog) CollectNeighbors(ctx context.Context, scene *entities.Scene) ([]string, error) {
	start, stop := service.BufferTime(scene.Start, scene.Stop, neighborBufferSeconds)
	locations, err := c.Archive.Select(ctx, entities.Query{
		Sensors:          []string{scene.Sensor},
		Products:         []string{scene.Product},
		AcquisitionModes: []string{scene.AcquisitionMode},
		MinDate:          start,
		MaxDate:          stop,
		DateRelaxed:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("CollectNeighbors.%w", err)
	}
	var neighbors []string
	for _, location := range locations {
		if location != scene.Path {
			neighbors = append(neighbors, location)
		}
	}
	return neighbors, nil
}

func tileIDs(tiles []entities.Tile) []string {
	ids := make([]string, len(tiles))
	for i, tile := range tiles {
		ids[i] = tile.ID
	}
	return ids
}
