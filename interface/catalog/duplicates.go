package catalog

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/airbusgeo/s1ard-worklist/common"
	"github.com/airbusgeo/s1ard-worklist/interface/safe"
)

// ProcTimeFunc reads the declared processing start time of a scene product.
type ProcTimeFunc func(scenePath string) (time.Time, error)

// FilterDuplicates collapses reprocessing duplicates: scene locations sharing
// the same (instrument-token, start, stop) acquisition key describe the same
// physical acquisition, and only the most recently processed one is kept.
// The input is sorted internally so duplicates become adjacent; the reduced
// list is returned in sorted group order.
func FilterDuplicates(scenes []string, procTime ProcTimeFunc) ([]string, error) {
	if procTime == nil {
		procTime = safe.ProcessingTime
	}
	tmp := append([]string(nil), scenes...)
	sort.Strings(tmp)

	var keep []string
	for i := 0; i < len(tmp); {
		key, err := common.KeyFromSceneName(filepath.Base(tmp[i]))
		if err != nil {
			return nil, fmt.Errorf("FilterDuplicates: %w", err)
		}
		group := tmp[i : i+1]
		j := i + 1
		for ; j < len(tmp); j++ {
			next, err := common.KeyFromSceneName(filepath.Base(tmp[j]))
			if err != nil {
				return nil, fmt.Errorf("FilterDuplicates: %w", err)
			}
			if next != key {
				break
			}
			group = tmp[i : j+1]
		}
		if len(group) > 1 {
			latest, err := latestProcessed(group, procTime)
			if err != nil {
				return nil, fmt.Errorf("FilterDuplicates: %w", err)
			}
			keep = append(keep, latest)
		} else {
			keep = append(keep, group[0])
		}
		i = j
	}
	return keep, nil
}

// latestProcessed returns the group member with the maximum processing start
// time. An unreadable manifest inside a duplicate group is an error.
func latestProcessed(group []string, procTime ProcTimeFunc) (string, error) {
	best := ""
	var bestTime time.Time
	for _, scene := range group {
		t, err := procTime(scene)
		if err != nil {
			return "", fmt.Errorf("latestProcessed[%s]: %w", scene, err)
		}
		if best == "" || t.After(bestTime) {
			best, bestTime = scene, t
		}
	}
	return best, nil
}
