package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// EPSG code of the geographic reference frame used for catalog filters.
const SRIDGeographic = 4326

// Vector is a geometry value with an explicit spatial reference.
type Vector struct {
	Geom *geos.Geometry
	SRID int
}

// VectorFromWKT builds a geographic Vector from a WKT string.
func VectorFromWKT(wkt string) (Vector, error) {
	g, err := geos.FromWKT(wkt)
	if err != nil {
		return Vector{}, fmt.Errorf("VectorFromWKT: %w", err)
	}
	return Vector{Geom: g, SRID: SRIDGeographic}, nil
}

// Geographic returns the vector expressed in the geographic reference frame.
// Catalog footprints and filters are exchanged in EPSG:4326; other reference
// frames must be reprojected by the caller before entering the work-list
// subsystem.
func (v Vector) Geographic() (Vector, error) {
	if v.Geom == nil {
		return Vector{}, fmt.Errorf("Geographic: empty vector")
	}
	if v.SRID != SRIDGeographic {
		return Vector{}, fmt.Errorf("Geographic: unsupported reference frame EPSG:%d (expecting EPSG:%d)", v.SRID, SRIDGeographic)
	}
	return v, nil
}

// WKT returns the WKT encoding of the vector.
func (v Vector) WKT() (string, error) {
	if v.Geom == nil {
		return "", fmt.Errorf("WKT: empty vector")
	}
	wkt, err := v.Geom.ToWKT()
	if err != nil {
		return "", fmt.Errorf("WKT: %w", err)
	}
	return wkt, nil
}

// Extent returns the bounding extent of the vector.
func (v Vector) Extent() (*geom.Extent, error) {
	wkt, err := v.WKT()
	if err != nil {
		return nil, fmt.Errorf("Extent.%w", err)
	}
	return ExtentWKT(wkt)
}

// ExtentWKT computes the bounding extent of a WKT geometry.
func ExtentWKT(wkt string) (*geom.Extent, error) {
	g, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("ExtentWKT.DecodeString: %w", err)
	}
	ext, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return nil, fmt.Errorf("ExtentWKT.NewExtentFromGeometry: %w", err)
	}
	return ext, nil
}

var TOLERANCE_GEOG = 0.000001

func WKTUnion(wkts []string, tolerance float64) (string, error) {
	var geoms []*geos.Geometry
	for _, wkt := range wkts {
		geo, err := geos.FromWKT(wkt)
		if err != nil {
			return "", fmt.Errorf("WKTUnion.FromWKT: %w", err)
		}
		geoms = append(geoms, geo)
	}
	aoi, err := Union(geoms, tolerance)
	if err != nil {
		return "", fmt.Errorf("WKTUnion.%w", err)
	}
	wkt, err := aoi.ToWKT()
	if err != nil {
		return "", fmt.Errorf("WKTUnion.ToWKT: %w", err)
	}
	return wkt, nil
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	for _, geom := range geoms {
		if geom, err = geom.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi, err = geom.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	return aoi, nil
}

func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}
