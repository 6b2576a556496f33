package stac

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/interface/catalog"
)

func featureJSON(name string, slice, total int) string {
	return fmt.Sprintf(`{
		"id": "%s",
		"geometry": {"type": "Polygon", "coordinates": [[[8,50],[12,50],[12,52],[8,52],[8,50]]]},
		"properties": {
			"start_datetime": "2020-04-15T05:48:35Z",
			"end_datetime": "2020-04-15T05:49:02Z",
			"platform": "sentinel-1a",
			"sar:instrument_mode": "IW",
			"sar:product_type": "GRD",
			"s1:slice_number": %d,
			"s1:total_slices": %d,
			"sat:absolute_orbit": 32134,
			"sat:relative_orbit": 12,
			"sat:orbit_state": "ascending"
		},
		"assets": {
			"manifest": {"href": "file:///data/%s.SAFE/manifest.safe", "type": "application/xml"},
			"thumbnail": {"href": "https://somewhere/%s/preview.png", "type": "image/png"}
		}
	}`, name, slice, total, name, name)
}

const (
	scene1 = "S1A_IW_GRDH_1SDV_20200415T054835_20200415T054902_032134_03B6F4_041D"
	scene2 = "S1A_IW_GRDH_1SDV_20200415T054902_20200415T054927_032134_03B6F4_1111"
	scene3 = "S1A_IW_GRDH_1SDV_20200415T054927_20200415T054952_032134_03B6F4_2222"
)

func testArchive(url string) *Archive {
	return &Archive{URL: url, Collections: []string{"sentinel-1-grd"}, MaxTries: 5, PageLimit: 2}
}

func TestSelectPaging(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		pages++
		if r.URL.Query().Get("token") == "" {
			fmt.Fprintf(w, `{"features": [%s, %s], "links": [{"rel": "next", "href": "%s/search?token=p2", "method": "GET"}]}`,
				featureJSON(scene1, 3, 8), featureJSON(scene2, 4, 8), "http://"+r.Host)
			return
		}
		fmt.Fprintf(w, `{"features": [%s], "links": []}`, featureJSON(scene3, 5, 8))
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	scenes, err := a.Select(context.Background(), entities.Query{Sensors: []string{"S1A"}})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if pages != 2 {
		t.Errorf("expecting 2 pages, got %d", pages)
	}
	if len(scenes) != 3 {
		t.Fatalf("expecting 3 scenes, got %d", len(scenes))
	}
	for i, name := range []string{scene1, scene2, scene3} {
		if scenes[i] != "/data/"+name+".SAFE" {
			t.Errorf("wrong location: %s", scenes[i])
		}
	}
}

func TestSelectRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"features": [], "links": []}`)
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	if _, err := a.Select(context.Background(), entities.Query{}); err != nil {
		t.Fatalf("%v", err)
	}
	if calls != 3 {
		t.Errorf("expecting 3 tries, got %d", calls)
	}
}

func TestSelectRetryExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	if _, err := a.Select(context.Background(), entities.Query{}); err == nil {
		t.Fatal("expecting an error once the retries are exhausted")
	}
	if calls != a.MaxTries {
		t.Errorf("expecting %d tries, got %d", a.MaxTries, calls)
	}
}

func TestSelectPermanentFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no such collection", http.StatusBadRequest)
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	if _, err := a.Select(context.Background(), entities.Query{}); err == nil {
		t.Fatal("expecting an error")
	}
	if calls != 1 {
		t.Errorf("a client error must not be retried, got %d tries", calls)
	}
}

func TestSelectCheckExist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"features": [%s], "links": []}`, featureJSON(scene1, 3, 8))
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	_, err := a.Select(context.Background(), entities.Query{CheckExist: true})
	var notFound catalog.ErrSceneNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expecting ErrSceneNotFound, got %v", err)
	}
	if notFound.Path != "/data/"+scene1+".SAFE" {
		t.Errorf("wrong path: %s", notFound.Path)
	}
}

func TestSelectScenes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"cql2-json"`) {
			http.Error(w, "missing filter language", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"features": [%s], "links": []}`, featureJSON(scene1, 3, 8))
	}))
	defer srv.Close()

	a := testArchive(srv.URL)
	scenes, err := a.SelectScenes(context.Background(), entities.Query{Sensors: []string{"S1A"}, Products: []string{"GRD"}})
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("expecting 1 scene, got %d", len(scenes))
	}
	s := scenes[0]
	if s.SourceID != scene1 || s.Sensor != "S1A" || s.Product != "GRD" || s.AcquisitionMode != "IW" {
		t.Errorf("wrong scene identity: %+v", s)
	}
	if s.Path != "/data/"+scene1+".SAFE" {
		t.Errorf("wrong path: %s", s.Path)
	}
	if s.SliceNumber != 3 || s.TotalSlices != 8 {
		t.Errorf("wrong slicing: %d/%d", s.SliceNumber, s.TotalSlices)
	}
	if s.OrbitDirection != "ASCENDING" || s.AbsoluteOrbit != 32134 || s.RelativeOrbit != 12 {
		t.Errorf("wrong orbit info: %+v", s)
	}
	if s.Start.Format("20060102T150405") != "20200415T054835" {
		t.Errorf("wrong start: %v", s.Start)
	}
	if !strings.HasPrefix(s.GeometryWKT, "POLYGON") {
		t.Errorf("wrong footprint: %s", s.GeometryWKT)
	}
}

func TestOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"stac_version": "1.0.0"}`)
	}))
	defer srv.Close()

	a, err := Open(context.Background(), srv.URL+"/", []string{"sentinel-1-grd"})
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer a.Close()
	if a.URL != srv.URL {
		t.Errorf("trailing slash must be trimmed: %s", a.URL)
	}
}
