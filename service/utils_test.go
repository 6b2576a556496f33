package service

import (
	"testing"
	"time"
)

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("a")
	ss.Push("b")
	ss.Push("a")
	if len(ss) != 2 {
		t.Errorf("expecting 2 elements, got %d", len(ss))
	}
	if !ss.Exists("a") || !ss.Exists("b") {
		t.Fail()
	}
	ss.Pop("a")
	if ss.Exists("a") {
		t.Fail()
	}
	if len(ss.Slice()) != 1 {
		t.Fail()
	}
}

func TestBufferTime(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 10, 0, time.UTC)
	stop := time.Date(2021, 1, 1, 0, 0, 35, 0, time.UTC)
	bstart, bstop := BufferTime(start, stop, 2)
	if !bstart.Equal(start.Add(-2 * time.Second)) {
		t.Errorf("expecting start-2s, got %v", bstart)
	}
	if !bstop.Equal(stop.Add(2 * time.Second)) {
		t.Errorf("expecting stop+2s, got %v", bstop)
	}
}
