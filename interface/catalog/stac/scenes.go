package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog"
	"github.com/airbusgeo/s1ard-worklist/service"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

const (
	// DefaultMaxTries bounds the retries of a transient archive failure
	DefaultMaxTries = 300
	// DefaultRetryDelay is the pause between two tries
	DefaultRetryDelay = time.Second
	// DefaultPageLimit is the number of records fetched per search page
	DefaultPageLimit = 250
)

// Archive is a scene archive exposed through a STAC API endpoint.
type Archive struct {
	URL         string
	Collections []string
	MaxTries    int
	RetryDelay  time.Duration
	PageLimit   int
	Client      *http.Client
}

// Open connects to the archive endpoint, retrying transient failures up to
// DefaultMaxTries times.
func Open(ctx context.Context, url string, collections []string) (*Archive, error) {
	a := &Archive{
		URL:         strings.TrimSuffix(url, "/"),
		Collections: collections,
		MaxTries:    DefaultMaxTries,
		RetryDelay:  DefaultRetryDelay,
		PageLimit:   DefaultPageLimit,
	}
	if err := service.Retry(ctx, a.MaxTries, a.RetryDelay, func() error { return a.ping(ctx) }); err != nil {
		return nil, fmt.Errorf("stac.Open[%s]: %w", url, err)
	}
	return a, nil
}

// Close implements catalog.Archive. The connection is stateless.
func (a *Archive) Close() error {
	return nil
}

// Select implements catalog.Archive: it returns the sorted locations of the
// scenes matching the query, reduced to one location per physical acquisition.
func (a *Archive) Select(ctx context.Context, query entities.Query) ([]string, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("stac.Select: %w", err)
	}
	features, err := a.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stac.Select.%w", err)
	}
	paths := service.StringSet{}
	for _, f := range features {
		path, err := sceneAssetPath(f)
		if err != nil {
			return nil, fmt.Errorf("stac.Select: %w", err)
		}
		if query.CheckExist {
			if _, err := os.Stat(path); err != nil {
				return nil, catalog.ErrSceneNotFound{Path: path}
			}
		}
		paths.Push(path)
	}
	scenes, err := catalog.FilterDuplicates(paths.Slice(), nil)
	if err != nil {
		return nil, fmt.Errorf("stac.Select.%w", err)
	}
	return scenes, nil
}

// SelectScenes implements catalog.SceneSelector: scenes are built from the
// record properties without reading the products.
func (a *Archive) SelectScenes(ctx context.Context, query entities.Query) ([]*entities.Scene, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("stac.SelectScenes: %w", err)
	}
	features, err := a.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stac.SelectScenes.%w", err)
	}
	byPath := map[string]*entities.Scene{}
	for _, f := range features {
		scene, err := parseFeature(f)
		if err != nil {
			return nil, fmt.Errorf("stac.SelectScenes: %w", err)
		}
		if query.CheckExist {
			if _, err := os.Stat(scene.Path); err != nil {
				return nil, catalog.ErrSceneNotFound{Path: scene.Path}
			}
		}
		byPath[scene.Path] = scene
	}
	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	paths, err = catalog.FilterDuplicates(paths, nil)
	if err != nil {
		return nil, fmt.Errorf("stac.SelectScenes.%w", err)
	}
	scenes := make([]*entities.Scene, len(paths))
	for i, p := range paths {
		scenes[i] = byPath[p]
	}
	return scenes, nil
}

type asset struct {
	Href string `json:"href"`
	Type string `json:"type"`
}

type feature struct {
	ID         string           `json:"id"`
	Geometry   geojson.Geometry `json:"geometry"`
	Properties struct {
		Datetime       string `json:"datetime"`
		StartDatetime  string `json:"start_datetime"`
		EndDatetime    string `json:"end_datetime"`
		Platform       string `json:"platform"`
		InstrumentMode string `json:"sar:instrument_mode"`
		ProductType    string `json:"sar:product_type"`
		SliceNumber    *int   `json:"s1:slice_number"`
		TotalSlices    *int   `json:"s1:total_slices"`
		AbsoluteOrbit  int    `json:"sat:absolute_orbit"`
		RelativeOrbit  int    `json:"sat:relative_orbit"`
		OrbitState     string `json:"sat:orbit_state"`
	} `json:"properties"`
	Assets map[string]asset `json:"assets"`
}

type searchLink struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

type searchResponse struct {
	Features []feature    `json:"features"`
	Links    []searchLink `json:"links"`
}

func (a *Archive) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", a.URL, nil)
	if err != nil {
		return fmt.Errorf("ping.NewRequest: %w", err)
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// search runs the paged item search and returns all matching records.
// Each page request is retried on transient failures.
func (a *Archive) search(ctx context.Context, query entities.Query) ([]feature, error) {
	filter, err := BuildFilter(query)
	if err != nil {
		return nil, fmt.Errorf("search.%w", err)
	}
	body := map[string]interface{}{"limit": a.pageLimit()}
	if len(a.Collections) > 0 {
		body["collections"] = a.Collections
	}
	if filter != nil {
		body["filter-lang"] = "cql2-json"
		body["filter"] = filter
	}
	rawBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search.Marshal: %w", err)
	}

	var features []feature
	url, method := a.URL+"/search", "POST"
	for page := 1; ; page++ {
		log.Logger(ctx).Sugar().Debugf("[stac] search page %d (%d records so far)", page, len(features))
		var results searchResponse
		err := service.Retry(ctx, a.maxTries(), a.RetryDelay, func() error {
			return a.doJSON(ctx, method, url, rawBody, &results)
		})
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		features = append(features, results.Features...)

		next := nextLink(results.Links)
		if next == nil {
			return features, nil
		}
		url = next.Href
		method = "GET"
		rawBody = nil
		if next.Method != "" {
			method = next.Method
			rawBody = next.Body
		}
	}
}

func nextLink(links []searchLink) *searchLink {
	for i := range links {
		if links[i].Rel == "next" {
			return &links[i]
		}
	}
	return nil
}

func (a *Archive) doJSON(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("doJSON.NewRequest: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return fmt.Errorf("doJSON: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("doJSON.ReadAll: %w", err))
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("doJSON.Unmarshal: %w (response: %s)", err, raw)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == 200 {
		return nil
	}
	raw, _ := io.ReadAll(resp.Body)
	err := fmt.Errorf("%s: %s", resp.Status, raw)
	if service.TemporaryCode(resp.StatusCode) {
		return service.MakeTemporary(err)
	}
	return err
}

func (a *Archive) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func (a *Archive) maxTries() int {
	if a.MaxTries > 0 {
		return a.MaxTries
	}
	return DefaultMaxTries
}

func (a *Archive) pageLimit() int {
	if a.PageLimit > 0 {
		return a.PageLimit
	}
	return DefaultPageLimit
}

// sceneAssetPath returns the local location of the product referenced by the
// record assets: the first asset (in key order) whose href points inside a
// .SAFE product. The href is truncated at the product root.
func sceneAssetPath(f feature) (string, error) {
	keys := make([]string, 0, len(f.Assets))
	for k := range f.Assets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		href := f.Assets[k].Href
		if i := strings.Index(href, ".SAFE"); i >= 0 {
			return localPath(href[:i+len(".SAFE")]), nil
		}
	}
	return "", fmt.Errorf("sceneAssetPath: no product asset on record %s", f.ID)
}

// localPath normalizes an asset href into an absolute local path, resolving
// symlinks when the target exists.
func localPath(href string) string {
	p := strings.TrimPrefix(href, "file://")
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		p = real
	}
	return p
}

func parseFeature(f feature) (*entities.Scene, error) {
	scene := &entities.Scene{
		SourceID:        strings.TrimSuffix(f.ID, ".SAFE"),
		Product:         f.Properties.ProductType,
		AcquisitionMode: f.Properties.InstrumentMode,
		AbsoluteOrbit:   f.Properties.AbsoluteOrbit,
		RelativeOrbit:   f.Properties.RelativeOrbit,
		OrbitDirection:  strings.ToUpper(f.Properties.OrbitState),
	}
	for sensor, platform := range platformNames {
		if platform == f.Properties.Platform {
			scene.Sensor = sensor
		}
	}

	var err error
	if scene.Start, err = parseFeatureTime(f.Properties.StartDatetime, f.Properties.Datetime); err != nil {
		return nil, fmt.Errorf("parseFeature[%s].start: %w", f.ID, err)
	}
	if scene.Stop, err = parseFeatureTime(f.Properties.EndDatetime, f.Properties.Datetime); err != nil {
		return nil, fmt.Errorf("parseFeature[%s].stop: %w", f.ID, err)
	}
	// records without slicing properties describe unsliced (NRT) acquisitions
	if f.Properties.SliceNumber != nil {
		scene.SliceNumber = *f.Properties.SliceNumber
	}
	if f.Properties.TotalSlices != nil {
		scene.TotalSlices = *f.Properties.TotalSlices
	}

	if f.Geometry.Geometry != nil {
		scene.GeometryWKT = wkt.MustEncode(f.Geometry.Geometry)
	}
	if scene.Path, err = sceneAssetPath(f); err != nil {
		return nil, fmt.Errorf("parseFeature.%w", err)
	}
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("parseFeature: %w", err)
	}
	return scene, nil
}

func parseFeatureTime(value, fallback string) (time.Time, error) {
	if value == "" {
		value = fallback
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
