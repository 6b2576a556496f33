package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/airbusgeo/s1ard-worklist/common"
	"github.com/airbusgeo/s1ard-worklist/service/geometry"
	"github.com/araddon/dateparse"
	"github.com/paulsmith/gogeos/geos"
)

// Scene is one radar acquisition product as described by a catalog record
type Scene struct {
	SourceID        string    `json:"source_id"`
	Path            string    `json:"path"`
	Sensor          string    `json:"sensor"`           // S1A or S1B
	Product         string    `json:"product"`          // GRD or SLC
	AcquisitionMode string    `json:"acquisition_mode"` // IW, EW or S1..S6
	Start           time.Time `json:"start"`
	Stop            time.Time `json:"stop"`
	AbsoluteOrbit   int       `json:"orbit"`
	RelativeOrbit   int       `json:"relative_orbit"`
	OrbitDirection  string    `json:"orbit_direction"`
	GeometryWKT     string    `json:"wkt"`
	SliceNumber     int       `json:"slice_number"`
	TotalSlices     int       `json:"total_slices"`
}

// Unsliced returns whether the scene signals an indivisible acquisition
// (NRT slicing mode: sliceNumber and totalSlices are both 0)
func (s *Scene) Unsliced() bool {
	return s.SliceNumber == 0 && s.TotalSlices == 0
}

// Validate checks the structural invariants of the scene record
func (s *Scene) Validate() error {
	if s.Stop.Before(s.Start) {
		return fmt.Errorf("scene %s: start after stop", s.SourceID)
	}
	if s.SliceNumber < 0 || s.TotalSlices < 0 {
		// -1 denotes "unknown" on records coming from the reference catalog
		return nil
	}
	if (s.SliceNumber == 0) != (s.TotalSlices == 0) {
		return fmt.Errorf("scene %s: inconsistent slicing signal %d/%d", s.SourceID, s.SliceNumber, s.TotalSlices)
	}
	if s.TotalSlices > 0 && s.SliceNumber > s.TotalSlices {
		return fmt.Errorf("scene %s: slice %d out of range 1..%d", s.SourceID, s.SliceNumber, s.TotalSlices)
	}
	return nil
}

// Footprint returns the scene footprint as a geos geometry
func (s *Scene) Footprint() (*geos.Geometry, error) {
	g, err := geos.FromWKT(s.GeometryWKT)
	if err != nil {
		return nil, fmt.Errorf("Footprint[%s]: %w", s.SourceID, err)
	}
	return g, nil
}

// StripmapModes are the beam identifiers that the generic "SM" acquisition
// mode fans out to.
var StripmapModes = []string{"S1", "S2", "S3", "S4", "S5", "S6"}

// Query is the canonical catalog query. Zero-valued fields are inactive.
type Query struct {
	Sensors          []string
	Products         []string
	AcquisitionModes []string
	MinDate          time.Time
	MaxDate          time.Time
	// DateRelaxed loosens the date filter so that acquisitions merely
	// overlapping the [MinDate, MaxDate] window qualify:
	//  - strict:  start >= mindate & stop <= maxdate
	//  - relaxed: stop >= mindate & start <= maxdate
	DateRelaxed bool
	// Datatake filters on the data-take frame id (decimal; 0 = inactive)
	Datatake int
	// AOI restricts the search to scenes intersecting the geometry
	AOI *geometry.Vector
	// CheckExist requires every returned scene location to exist locally
	CheckExist bool
}

type queryJSON struct {
	Sensors          []string `json:"sensors,omitempty"`
	Products         []string `json:"products,omitempty"`
	AcquisitionModes []string `json:"acquisition_modes,omitempty"`
	MinDate          string   `json:"mindate,omitempty"`
	MaxDate          string   `json:"maxdate,omitempty"`
	DateRelaxed      bool     `json:"date_relaxed,omitempty"`
	Datatake         int      `json:"datatake,omitempty"`
	AOIWKT           string   `json:"aoi_wkt,omitempty"`
	CheckExist       bool     `json:"check_exist,omitempty"`
}

// ParseDate parses a query date, either in the compact scene timestamp format
// or in any common representation.
func ParseDate(s string) (time.Time, error) {
	if t, err := common.ParseSceneTime(s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseDate[%s]: %w", s, err)
	}
	return t.UTC(), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface for Query
func (q *Query) UnmarshalJSON(data []byte) error {
	var j queryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*q = Query{
		Sensors:          j.Sensors,
		Products:         j.Products,
		AcquisitionModes: j.AcquisitionModes,
		DateRelaxed:      j.DateRelaxed,
		Datatake:         j.Datatake,
		CheckExist:       j.CheckExist,
	}
	var err error
	if j.MinDate != "" {
		if q.MinDate, err = ParseDate(j.MinDate); err != nil {
			return fmt.Errorf("Query.mindate: %w", err)
		}
	}
	if j.MaxDate != "" {
		if q.MaxDate, err = ParseDate(j.MaxDate); err != nil {
			return fmt.Errorf("Query.maxdate: %w", err)
		}
	}
	if j.AOIWKT != "" {
		v, err := geometry.VectorFromWKT(j.AOIWKT)
		if err != nil {
			return fmt.Errorf("Query.aoi_wkt: %w", err)
		}
		q.AOI = &v
	}
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Query
func (q Query) MarshalJSON() ([]byte, error) {
	j := queryJSON{
		Sensors:          q.Sensors,
		Products:         q.Products,
		AcquisitionModes: q.AcquisitionModes,
		DateRelaxed:      q.DateRelaxed,
		Datatake:         q.Datatake,
		CheckExist:       q.CheckExist,
	}
	if !q.MinDate.IsZero() {
		j.MinDate = common.FormatSceneTime(q.MinDate)
	}
	if !q.MaxDate.IsZero() {
		j.MaxDate = common.FormatSceneTime(q.MaxDate)
	}
	if q.AOI != nil {
		wkt, err := q.AOI.WKT()
		if err != nil {
			return nil, fmt.Errorf("Query.aoi_wkt: %w", err)
		}
		j.AOIWKT = wkt
	}
	return json.Marshal(j)
}

// Validate checks the input shape of the query
func (q *Query) Validate() error {
	if !q.MinDate.IsZero() && !q.MaxDate.IsZero() && q.MaxDate.Before(q.MinDate) {
		return fmt.Errorf("query: mindate after maxdate")
	}
	if q.Datatake < 0 || q.Datatake > 0xFFFFFF {
		return fmt.Errorf("query: datatake %d out of the 6-digit hexadecimal range", q.Datatake)
	}
	return nil
}

// Tile is a cell of the target spatial-tiling grid
type Tile struct {
	ID          string `json:"id"`
	GeometryWKT string `json:"wkt"`
}

// Selection is the processing work-list: the scene locations to process and
// the grid tiles to produce.
type Selection struct {
	Scenes []string `json:"scenes"`
	Tiles  []string `json:"tiles"`
}
