package grid

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/service/geometry"
)

// Grid maps between the cells of the target spatial-tiling grid and areas of
// interest.
type Grid interface {
	// TilesFromAOI returns the tiles intersecting any of the given geometries
	TilesFromAOI(aoiWKTs ...string) ([]entities.Tile, error)
	// Tiles returns the tiles with the given ids
	Tiles(ids []string) ([]entities.Tile, error)
	// AOIFromTiles returns the union geometry of the given tile ids
	AOIFromTiles(ids []string) (string, error)
}

// GeoJSON is a Grid backed by a feature collection: one feature per tile,
// identified by a feature property.
type GeoJSON struct {
	tiles map[string]entities.Tile
	order []string
}

// LoadGeoJSON reads the grid definition from a geojson file. idProperty is the
// feature property holding the tile id ("id" if empty).
func LoadGeoJSON(path, idProperty string) (*GeoJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grid.LoadGeoJSON: %w", err)
	}
	g, err := NewGeoJSON(raw, idProperty)
	if err != nil {
		return nil, fmt.Errorf("grid.LoadGeoJSON[%s]: %w", path, err)
	}
	return g, nil
}

// NewGeoJSON parses the grid definition from a geojson feature collection.
func NewGeoJSON(raw []byte, idProperty string) (*GeoJSON, error) {
	if idProperty == "" {
		idProperty = "id"
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("NewGeoJSON: %w", err)
	}
	g := &GeoJSON{tiles: map[string]entities.Tile{}}
	for i, f := range fc.Features {
		id, ok := f.Properties[idProperty]
		if !ok {
			return nil, fmt.Errorf("NewGeoJSON: feature %d has no %s property", i, idProperty)
		}
		tileID := fmt.Sprintf("%v", id)
		if _, exists := g.tiles[tileID]; exists {
			return nil, fmt.Errorf("NewGeoJSON: duplicated tile id: %s", tileID)
		}
		if f.Geometry.Geometry == nil {
			return nil, fmt.Errorf("NewGeoJSON: tile %s has no geometry", tileID)
		}
		g.tiles[tileID] = entities.Tile{ID: tileID, GeometryWKT: wkt.MustEncode(f.Geometry.Geometry)}
		g.order = append(g.order, tileID)
	}
	sort.Strings(g.order)
	return g, nil
}

// TilesFromAOI implements Grid
func (g *GeoJSON) TilesFromAOI(aoiWKTs ...string) ([]entities.Tile, error) {
	selected := map[string]bool{}
	for _, aoiWKT := range aoiWKTs {
		aoi, err := geos.FromWKT(aoiWKT)
		if err != nil {
			return nil, fmt.Errorf("TilesFromAOI.FromWKT: %w", err)
		}
		paoi := aoi.Prepare()
		for _, id := range g.order {
			if selected[id] {
				continue
			}
			tileGeom, err := geos.FromWKT(g.tiles[id].GeometryWKT)
			if err != nil {
				return nil, fmt.Errorf("TilesFromAOI[%s]: %w", id, err)
			}
			intersects, err := paoi.Intersects(tileGeom)
			if err != nil {
				return nil, fmt.Errorf("TilesFromAOI.Intersects[%s]: %w", id, err)
			}
			if intersects {
				selected[id] = true
			}
		}
	}
	var tiles []entities.Tile
	for _, id := range g.order {
		if selected[id] {
			tiles = append(tiles, g.tiles[id])
		}
	}
	return tiles, nil
}

// Tiles implements Grid
func (g *GeoJSON) Tiles(ids []string) ([]entities.Tile, error) {
	tiles := make([]entities.Tile, len(ids))
	for i, id := range ids {
		tile, ok := g.tiles[id]
		if !ok {
			return nil, fmt.Errorf("Tiles: unknown tile id: %s", id)
		}
		tiles[i] = tile
	}
	return tiles, nil
}

// AOIFromTiles implements Grid
func (g *GeoJSON) AOIFromTiles(ids []string) (string, error) {
	tiles, err := g.Tiles(ids)
	if err != nil {
		return "", fmt.Errorf("AOIFromTiles.%w", err)
	}
	wkts := make([]string, len(tiles))
	for i, tile := range tiles {
		wkts[i] = tile.GeometryWKT
	}
	aoiWKT, err := geometry.WKTUnion(wkts, geometry.TOLERANCE_GEOG)
	if err != nil {
		return "", fmt.Errorf("AOIFromTiles.%w", err)
	}
	return aoiWKT, nil
}
