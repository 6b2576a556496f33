package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/common"
	"github.com/airbusgeo/s1ard-worklist/service"
	"github.com/airbusgeo/s1ard-worklist/service/log"
)

// neighborBufferSeconds widens the acquisition window of a scene so that its
// data-take neighbors fall into the search window.
const neighborBufferSeconds = 2

// CompletenessError reports every scene missing an expected, reference-
// confirmed data-take neighbor.
type CompletenessError struct {
	Messages []string
}

func (e *CompletenessError) Error() string {
	return "missing the following scenes:\n - " + strings.Join(e.Messages, "\n - ")
}

// CheckCompleteness verifies that no acquisition of a contiguous data take is
// missing around the given scenes. For each scene, the predecessor and
// successor are searched in the archive unless the scene sits at a data-take
// boundary; a gap is only reported when the reference catalog confirms the
// missing acquisition exists. All gaps are aggregated into one
// CompletenessError.
func (c *Catalog) CheckCompleteness(ctx context.Context, scenes []*entities.Scene) error {
	var messages []string
	var err error
	for _, scene := range scenes {
		missing, e := c.checkScene(ctx, scene)
		if e != nil {
			err = service.MergeErrors(true, err, fmt.Errorf("CheckCompleteness[%s]: %w", scene.SourceID, e))
			continue
		}
		if len(missing) > 0 {
			base := filepath.Base(scene.Path)
			messages = append(messages, strings.Join(missing, " and ")+" acquisition for scene "+base)
		}
	}
	if err != nil {
		return err
	}
	if len(messages) > 0 {
		return &CompletenessError{Messages: messages}
	}
	log.Logger(ctx).Sugar().Debugf("completeness check passed for %d scenes", len(scenes))
	return nil
}

// CheckCompletenessPaths resolves the scene locations of a work-list into
// parsed records and verifies their data takes (see CheckCompleteness).
func (c *Catalog) CheckCompletenessPaths(ctx context.Context, paths []string) error {
	scenes, err := c.identify(paths)
	if err != nil {
		return fmt.Errorf("CheckCompleteness.%w", err)
	}
	return c.CheckCompleteness(ctx, scenes)
}

// checkScene returns the confirmed-missing neighbors of the scene
// ("predecessor" and/or "successor").
func (c *Catalog) checkScene(ctx context.Context, scene *entities.Scene) ([]string, error) {
	groupsize := 3
	hasPredecessor, hasSuccessor := true, true
	bufStart, bufStop := service.BufferTime(scene.Start, scene.Stop, neighborBufferSeconds)
	query := entities.Query{
		Sensors:          []string{scene.Sensor},
		Products:         []string{scene.Product},
		AcquisitionModes: []string{scene.AcquisitionMode},
		MinDate:          bufStart,
		MaxDate:          bufStop,
		DateRelaxed:      true,
	}

	// reference scene keys, fetched at most once per scene
	var refKeys []common.SceneKey
	refLoaded := false
	loadRef := func() error {
		if refLoaded {
			return nil
		}
		if c.Reference == nil {
			return fmt.Errorf("no reference catalog configured")
		}
		names, err := c.Reference.SceneNames(ctx, query)
		if err != nil {
			return err
		}
		for _, name := range names {
			key, err := common.KeyFromSceneName(name)
			if err != nil {
				return err
			}
			refKeys = append(refKeys, key)
		}
		refLoaded = true
		return nil
	}

	if scene.Unsliced() {
		// the slice position cannot indicate data-take boundaries: locate the
		// scene inside the reference group instead
		if err := loadRef(); err != nil {
			return nil, fmt.Errorf("checkScene: %w", err)
		}
		if len(refKeys) > 0 {
			refStartMin, refStopMax := keyExtremes(refKeys)
			if refStartMin == common.FormatSceneTime(scene.Start) {
				groupsize--
				hasPredecessor = false
			}
			if refStopMax == common.FormatSceneTime(scene.Stop) {
				groupsize--
				hasSuccessor = false
			}
		}
	} else {
		if scene.SliceNumber == 1 {
			groupsize--
			hasPredecessor = false
		}
		if scene.SliceNumber == scene.TotalSlices {
			groupsize--
			hasSuccessor = false
		}
	}

	group, err := c.selectScenes(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("checkScene.%w", err)
	}
	if len(group) >= groupsize {
		return nil, nil
	}

	// the group is smaller than expected: only report the neighbors the
	// reference catalog confirms
	if err := loadRef(); err != nil {
		return nil, fmt.Errorf("checkScene: %w", err)
	}
	if len(refKeys) == 0 {
		return nil, nil
	}
	refStartMin, refStopMax := keyExtremes(refKeys)
	groupStartMin, groupStopMax := scene.Start, scene.Stop
	for _, s := range group {
		if s.Start.Before(groupStartMin) {
			groupStartMin = s.Start
		}
		if s.Stop.After(groupStopMax) {
			groupStopMax = s.Stop
		}
	}
	bufStartKey := common.FormatSceneTime(bufStart)
	bufStopKey := common.FormatSceneTime(bufStop)

	var missing []string
	if hasPredecessor && refStartMin < bufStartKey && bufStartKey < common.FormatSceneTime(groupStartMin) {
		missing = append(missing, "predecessor")
	}
	if hasSuccessor && common.FormatSceneTime(groupStopMax) < bufStopKey && bufStopKey < refStopMax {
		missing = append(missing, "successor")
	}
	return missing, nil
}

// keyExtremes returns the minimum start and maximum stop timestamps of the
// keys (compact timestamps order lexicographically).
func keyExtremes(keys []common.SceneKey) (string, string) {
	startMin, stopMax := keys[0].Start, keys[0].Stop
	for _, key := range keys[1:] {
		if key.Start < startMin {
			startMin = key.Start
		}
		if key.Stop > stopMax {
			stopMax = key.Stop
		}
	}
	return startMin, stopMax
}
