package safe

import (
	"testing"
	"time"

	"github.com/airbusgeo/s1ard-worklist/interface/safe/safetest"
)

const sceneName = "S1A_IW_GRDH_1SDV_20210101T000000_20210101T000025_035940_04354A_ABCD"

func TestReadManifest(t *testing.T) {
	path, err := safetest.Write(t.TempDir(), safetest.Product{
		Name:            sceneName,
		ProcessingStart: "2021-02-03T04:05:06.789000",
		SliceNumber:     3,
		TotalSlices:     5,
		Orbit:           35940,
		RelativeOrbit:   143,
	})
	if err != nil {
		t.Fatalf("%v", err)
	}

	m, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if m.ProcessingStart != "2021-02-03T04:05:06.789000" {
		t.Errorf("wrong processing start: %s", m.ProcessingStart)
	}
	if m.PlatformFamily != "SENTINEL-1" || m.PlatformNumber != "A" || m.Mode != "IW" {
		t.Errorf("wrong platform: %s %s %s", m.PlatformFamily, m.PlatformNumber, m.Mode)
	}
	if m.OrbitNumber != 35940 || m.RelativeOrbit != 143 || m.Pass != "ASCENDING" {
		t.Errorf("wrong orbit: %d %d %s", m.OrbitNumber, m.RelativeOrbit, m.Pass)
	}
	if m.ProductType != "GRD" || m.SliceNumber != 3 || m.TotalSlices != 5 {
		t.Errorf("wrong product info: %s %d/%d", m.ProductType, m.SliceNumber, m.TotalSlices)
	}
	if m.FootprintWKT != "POLYGON ((8.0 50.0,12.0 50.2,12.2 51.5,7.8 51.3,8.0 50.0))" {
		t.Errorf("wrong footprint: %s", m.FootprintWKT)
	}
}

func TestProcessingTime(t *testing.T) {
	path, err := safetest.Write(t.TempDir(), safetest.Product{
		Name:            sceneName,
		ProcessingStart: "2021-02-03T04:05:06.789000",
		SliceNumber:     1,
		TotalSlices:     1,
	})
	if err != nil {
		t.Fatalf("%v", err)
	}
	ts, err := ProcessingTime(path)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if !ts.Equal(time.Date(2021, 2, 3, 4, 5, 6, 789000000, time.UTC)) {
		t.Errorf("wrong processing time: %v", ts)
	}

	if _, err = ProcessingTime(t.TempDir()); err == nil {
		t.Error("expecting an error for a missing manifest")
	}
}

func TestIdentify(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"S1A_IW_GRDH_1SDV_20210101T000050_20210101T000115_035940_04354A_0AAA",
		"S1A_IW_GRDH_1SDV_20210101T000000_20210101T000025_035940_04354A_ABCD",
		"S1A_IW_GRDH_1SDV_20210101T000025_20210101T000050_035940_04354A_1BBB",
	}
	var paths []string
	for i, name := range names {
		path, err := safetest.Write(dir, safetest.Product{Name: name, SliceNumber: i + 1, TotalSlices: 3, Orbit: 35940})
		if err != nil {
			t.Fatalf("%v", err)
		}
		paths = append(paths, path)
	}

	scenes, err := Identify(paths)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("expecting 3 scenes, got %d", len(scenes))
	}
	for i := 1; i < len(scenes); i++ {
		if scenes[i].Start.Before(scenes[i-1].Start) {
			t.Error("scenes are not sorted by start time")
		}
	}
	s := scenes[0]
	if s.SourceID != names[1] || s.Sensor != "S1A" || s.Product != "GRD" || s.AcquisitionMode != "IW" {
		t.Errorf("wrong scene: %+v", s)
	}
	if s.AbsoluteOrbit != 35940 || s.GeometryWKT == "" {
		t.Errorf("manifest fields not filled: %+v", s)
	}

	if _, err = Identify([]string{"/tmp/unrecognized"}); err == nil {
		t.Error("expecting an error for an unrecognized path")
	}
}
