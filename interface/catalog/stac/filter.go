package stac

import (
	"fmt"
	"time"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
)

const filterTimeFormat = "2006-01-02T15:04:05Z"

// Expr is a CQL2-JSON filter expression
type Expr map[string]interface{}

func op(name string, args ...interface{}) Expr {
	return Expr{"op": name, "args": args}
}

func property(name string) Expr {
	return Expr{"property": name}
}

// anyOf joins the alternatives with "or" (a single alternative stands alone)
func anyOf(exprs []Expr) Expr {
	if len(exprs) == 1 {
		return exprs[0]
	}
	args := make([]interface{}, len(exprs))
	for i, e := range exprs {
		args[i] = e
	}
	return Expr{"op": "or", "args": args}
}

// platformNames maps the sensor identifiers of scene names to the platform
// property values of the archive items.
var platformNames = map[string]string{
	"S1A": "sentinel-1a",
	"S1B": "sentinel-1b",
}

// BuildFilter translates a catalog query into a CQL2-JSON filter expression.
// Inactive query fields contribute no clause; a fully inactive query yields a
// nil filter (i.e. select all).
func BuildFilter(q entities.Query) (Expr, error) {
	var clauses []Expr

	if len(q.Sensors) > 0 {
		var alts []Expr
		for _, sensor := range q.Sensors {
			platform, ok := platformNames[sensor]
			if !ok {
				return nil, fmt.Errorf("BuildFilter: unknown sensor: %s", sensor)
			}
			alts = append(alts, op("=", property("platform"), platform))
		}
		clauses = append(clauses, anyOf(alts))
	}

	if len(q.Products) > 0 {
		var alts []Expr
		for _, product := range q.Products {
			alts = append(alts, op("=", property("sar:product_type"), product))
		}
		clauses = append(clauses, anyOf(alts))
	}

	if len(q.AcquisitionModes) > 0 {
		var alts []Expr
		for _, mode := range q.AcquisitionModes {
			alts = append(alts, op("=", property("sar:instrument_mode"), mode))
		}
		clauses = append(clauses, anyOf(alts))
	}

	// Strict date filtering requires the acquisition to be fully contained in
	// the [MinDate, MaxDate] window; the relaxed variant swaps the bound
	// attributes so that overlapping acquisitions qualify as well.
	if !q.MinDate.IsZero() {
		attr := "start_datetime"
		if q.DateRelaxed {
			attr = "end_datetime"
		}
		clauses = append(clauses, op(">=", property(attr), formatFilterTime(q.MinDate)))
	}
	if !q.MaxDate.IsZero() {
		attr := "end_datetime"
		if q.DateRelaxed {
			attr = "start_datetime"
		}
		clauses = append(clauses, op("<=", property(attr), formatFilterTime(q.MaxDate)))
	}

	if q.Datatake != 0 {
		clauses = append(clauses, op("=", property("s1:datatake"), fmt.Sprintf("%06X", q.Datatake)))
	}

	if q.AOI != nil {
		geo, err := q.AOI.Geographic()
		if err != nil {
			return nil, fmt.Errorf("BuildFilter.%w", err)
		}
		ext, err := geo.Extent()
		if err != nil {
			return nil, fmt.Errorf("BuildFilter.%w", err)
		}
		// the archive is queried with the bounding box of the area of
		// interest; exact footprint intersection is refined downstream
		bbox := map[string]interface{}{
			"type": "Polygon",
			"coordinates": [][][]float64{{
				{ext.MinX(), ext.MinY()},
				{ext.MaxX(), ext.MinY()},
				{ext.MaxX(), ext.MaxY()},
				{ext.MinX(), ext.MaxY()},
				{ext.MinX(), ext.MinY()},
			}},
		}
		clauses = append(clauses, op("s_intersects", property("geometry"), bbox))
	}

	switch len(clauses) {
	case 0:
		return nil, nil
	case 1:
		return clauses[0], nil
	}
	args := make([]interface{}, len(clauses))
	for i, c := range clauses {
		args[i] = c
	}
	return Expr{"op": "and", "args": args}, nil
}

func formatFilterTime(t time.Time) string {
	return t.UTC().Format(filterTimeFormat)
}
