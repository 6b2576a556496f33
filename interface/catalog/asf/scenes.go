package asf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/common"
	"github.com/airbusgeo/s1ard-worklist/service"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

const (
	DefaultURL       = "https://api.daac.asf.alaska.edu/services/search/param?"
	DefaultNbRetries = 5

	queryTimeFormat = "2006-01-02T15:04:05Z"
)

// platformNames maps the sensor identifiers of scene names to the platform
// values of the reference api.
var platformNames = map[string]string{
	"S1A": "Sentinel-1A",
	"S1B": "Sentinel-1B",
}

// grdLevels are the processing levels the generic "GRD" product fans out to.
var grdLevels = []string{"GRD_HD", "GRD_MD", "GRD_MS", "GRD_HS", "GRD_FD"}

// Archive is the reference scene catalog of the Alaska Satellite Facility.
// It is used to cross-check the primary archive before declaring a data-take
// incomplete.
type Archive struct {
	URL       string
	NbRetries int
}

// Close implements catalog.Archive. The connection is stateless.
func (a *Archive) Close() error {
	return nil
}

// Select implements catalog.Archive: it returns the sorted download locations
// of the scenes matching the query.
func (a *Archive) Select(ctx context.Context, query entities.Query) ([]string, error) {
	records, err := a.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("asf.Select.%w", err)
	}
	urls := make([]string, len(records))
	for i, r := range records {
		urls[i] = r.Properties.URL
	}
	sort.Strings(urls)
	return urls, nil
}

// SceneNames implements catalog.Reference: it returns the sorted identifiers
// of the scenes matching the query.
func (a *Archive) SceneNames(ctx context.Context, query entities.Query) ([]string, error) {
	records, err := a.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("asf.SceneNames.%w", err)
	}
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Properties.SceneName
	}
	sort.Strings(names)
	return names, nil
}

// SelectScenes implements catalog.SceneSelector. The reference api does not
// expose slicing properties: SliceNumber and TotalSlices are unknown (-1).
func (a *Archive) SelectScenes(ctx context.Context, query entities.Query) ([]*entities.Scene, error) {
	records, err := a.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("asf.SelectScenes.%w", err)
	}
	scenes := make([]*entities.Scene, len(records))
	for i, r := range records {
		if scenes[i], err = parseRecord(r); err != nil {
			return nil, fmt.Errorf("asf.SelectScenes: %w", err)
		}
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SourceID < scenes[j].SourceID })
	return scenes, nil
}

type record struct {
	Geometry   geojson.Geometry `json:"geometry"`
	Properties struct {
		SceneName       string      `json:"sceneName"`
		URL             string      `json:"url"`
		StartTime       string      `json:"startTime"`
		StopTime        string      `json:"stopTime"`
		Platform        string      `json:"platform"`
		BeamModeType    string      `json:"beamModeType"`
		ProcessingLevel string      `json:"processingLevel"`
		Orbit           json.Number `json:"orbit"`
		PathNumber      int         `json:"pathNumber"`
		FlightDirection string      `json:"flightDirection"`
	} `json:"properties"`
}

// search queries the reference api and post-filters the results: the api only
// matches acquisitions overlapping the [start, stop] window, so the strict
// containment semantics of the query are applied here.
func (a *Archive) search(ctx context.Context, query entities.Query) ([]record, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	url, err := a.buildQuery(query)
	if err != nil {
		return nil, fmt.Errorf("search.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("[asf] %s", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("search.NewRequest: %w", err)
	}
	nbRetries := a.NbRetries
	if nbRetries == 0 {
		nbRetries = DefaultNbRetries
	}
	body, err := service.GetBodyRetryReq(req, nbRetries)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := struct {
		Features []record `json:"features"`
	}{}
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("search.Unmarshal: %w (response: %s)", err, body)
	}

	var records []record
	for _, r := range results.Features {
		ok, err := matches(r, query)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		if ok {
			records = append(records, r)
		}
	}
	return records, nil
}

func (a *Archive) buildQuery(query entities.Query) (string, error) {
	v := neturl.Values{}
	v.Set("output", "geojson")

	var platforms []string
	for _, sensor := range query.Sensors {
		platform, ok := platformNames[sensor]
		if !ok {
			return "", fmt.Errorf("buildQuery: unknown sensor: %s", sensor)
		}
		platforms = append(platforms, platform)
	}
	if len(platforms) > 0 {
		v.Set("platform", strings.Join(platforms, ","))
	}

	var levels []string
	for _, product := range query.Products {
		if product == "GRD" {
			levels = append(levels, grdLevels...)
		} else {
			levels = append(levels, product)
		}
	}
	if len(levels) > 0 {
		v.Set("processingLevel", strings.Join(levels, ","))
	}

	var modes []string
	for _, mode := range query.AcquisitionModes {
		if mode == "SM" {
			modes = append(modes, entities.StripmapModes...)
		} else {
			modes = append(modes, mode)
		}
	}
	if len(modes) > 0 {
		v.Set("beamMode", strings.Join(modes, ","))
	}

	if !query.MinDate.IsZero() {
		v.Set("start", query.MinDate.UTC().Format(queryTimeFormat))
	}
	if !query.MaxDate.IsZero() {
		v.Set("end", query.MaxDate.UTC().Format(queryTimeFormat))
	}

	if query.AOI != nil {
		geo, err := query.AOI.Geographic()
		if err != nil {
			return "", fmt.Errorf("buildQuery.%w", err)
		}
		aoiWKT, err := geo.WKT()
		if err != nil {
			return "", fmt.Errorf("buildQuery.%w", err)
		}
		v.Set("intersectsWith", aoiWKT)
	}

	url := a.URL
	if url == "" {
		url = DefaultURL
	}
	return url + v.Encode(), nil
}

func matches(r record, query entities.Query) (bool, error) {
	start, stop, err := recordTimes(r)
	if err != nil {
		return false, err
	}
	if query.DateRelaxed {
		if !query.MinDate.IsZero() && stop.Before(query.MinDate) {
			return false, nil
		}
		if !query.MaxDate.IsZero() && start.After(query.MaxDate) {
			return false, nil
		}
	} else {
		if !query.MinDate.IsZero() && start.Before(query.MinDate) {
			return false, nil
		}
		if !query.MaxDate.IsZero() && stop.After(query.MaxDate) {
			return false, nil
		}
	}
	if query.Datatake != 0 {
		info, err := common.Info(r.Properties.SceneName)
		if err != nil {
			return false, fmt.Errorf("matches: %w", err)
		}
		if info["DATATAKE"] != fmt.Sprintf("%06X", query.Datatake) {
			return false, nil
		}
	}
	return true, nil
}

func recordTimes(r record) (time.Time, time.Time, error) {
	start, err := entities.ParseDate(r.Properties.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("recordTimes[%s]: %w", r.Properties.SceneName, err)
	}
	stop, err := entities.ParseDate(r.Properties.StopTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("recordTimes[%s]: %w", r.Properties.SceneName, err)
	}
	return start, stop, nil
}

func parseRecord(r record) (*entities.Scene, error) {
	start, stop, err := recordTimes(r)
	if err != nil {
		return nil, fmt.Errorf("parseRecord: %w", err)
	}
	info, err := common.Info(r.Properties.SceneName)
	if err != nil {
		return nil, fmt.Errorf("parseRecord: %w", err)
	}
	var orbit int
	if r.Properties.Orbit != "" {
		n, err := r.Properties.Orbit.Int64()
		if err != nil {
			return nil, fmt.Errorf("parseRecord[%s].orbit: %w", r.Properties.SceneName, err)
		}
		orbit = int(n)
	}

	scene := &entities.Scene{
		SourceID:        strings.TrimSuffix(r.Properties.SceneName, ".SAFE"),
		Path:            r.Properties.URL,
		Sensor:          info["MISSION_ID"],
		Product:         info["PRODUCT_TYPE"],
		AcquisitionMode: r.Properties.BeamModeType,
		Start:           start,
		Stop:            stop,
		AbsoluteOrbit:   orbit,
		RelativeOrbit:   r.Properties.PathNumber,
		OrbitDirection:  strings.ToUpper(r.Properties.FlightDirection),
		SliceNumber:     -1,
		TotalSlices:     -1,
	}
	if r.Geometry.Geometry != nil {
		scene.GeometryWKT = wkt.MustEncode(r.Geometry.Geometry)
	}
	return scene, nil
}
