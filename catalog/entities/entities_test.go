package entities

import (
	"encoding/json"
	"testing"
	"time"
)

func TestQueryJSON(t *testing.T) {
	raw := `{"sensors":["S1A"],"products":["GRD"],"acquisition_modes":["IW"],"mindate":"20210101T000000","maxdate":"2021-01-02T00:00:00Z","date_relaxed":true,"datatake":275786,"check_exist":true}`
	var q Query
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("%v", err)
	}
	if len(q.Sensors) != 1 || q.Sensors[0] != "S1A" {
		t.Errorf("wrong sensors: %v", q.Sensors)
	}
	if !q.MinDate.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("wrong mindate: %v", q.MinDate)
	}
	if !q.MaxDate.Equal(time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("wrong maxdate: %v", q.MaxDate)
	}
	if !q.DateRelaxed || !q.CheckExist || q.Datatake != 275786 {
		t.Errorf("wrong flags: %+v", q)
	}
	if err := q.Validate(); err != nil {
		t.Errorf("%v", err)
	}

	// round trip
	b, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("%v", err)
	}
	var q2 Query
	if err := json.Unmarshal(b, &q2); err != nil {
		t.Fatalf("%v", err)
	}
	if !q2.MinDate.Equal(q.MinDate) || !q2.MaxDate.Equal(q.MaxDate) || q2.Datatake != q.Datatake {
		t.Errorf("round trip failed: %+v", q2)
	}
}

func TestQueryValidate(t *testing.T) {
	q := Query{MinDate: time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC), MaxDate: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := q.Validate(); err == nil {
		t.Error("expecting an error for a reversed date window")
	}
	q = Query{Datatake: 0x1000000}
	if err := q.Validate(); err == nil {
		t.Error("expecting an error for an out-of-range datatake")
	}
}

func TestSceneValidate(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	scenes := []struct {
		scene Scene
		ok    bool
	}{
		{Scene{SourceID: "a", Start: start, Stop: start.Add(25 * time.Second), SliceNumber: 3, TotalSlices: 5}, true},
		{Scene{SourceID: "b", Start: start, Stop: start.Add(25 * time.Second)}, true},                             // unsliced
		{Scene{SourceID: "c", Start: start, Stop: start.Add(25 * time.Second), SliceNumber: -1, TotalSlices: -1}, true}, // unknown
		{Scene{SourceID: "d", Start: start.Add(time.Second), Stop: start}, false},
		{Scene{SourceID: "e", Start: start, Stop: start, SliceNumber: 6, TotalSlices: 5}, false},
		{Scene{SourceID: "f", Start: start, Stop: start, SliceNumber: 0, TotalSlices: 5}, false},
	}
	for _, tc := range scenes {
		if err := tc.scene.Validate(); (err == nil) != tc.ok {
			t.Errorf("scene %s: expecting ok=%v, got %v", tc.scene.SourceID, tc.ok, err)
		}
	}
}

func TestUnsliced(t *testing.T) {
	s := Scene{}
	if !s.Unsliced() {
		t.Fail()
	}
	s.SliceNumber, s.TotalSlices = 1, 5
	if s.Unsliced() {
		t.Fail()
	}
}
