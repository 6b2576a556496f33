package common

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

//go:generate go run github.com/dmarkham/enumer -json -type Constellation

// Constellation defines the kind of satellites
type Constellation int

const (
	Unknown   Constellation = iota
	Sentinel1               // MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC.SAFE
)

// TimeFormat is the compact acquisition timestamp format used in scene identifiers
const TimeFormat = "20060102T150405"

// SceneKeyPattern extracts the (instrument-token, start, stop) triple that
// identifies a physical acquisition. Reprocessed duplicates of the same
// acquisition share the triple and only differ in their trailing product
// discriminator.
var SceneKeyPattern = regexp.MustCompile(`([0-9A-Z_]{16})_([0-9T]{15})_([0-9T]{15})`)

// SceneKey identifies a physical acquisition independently of reprocessing runs.
type SceneKey struct {
	Token string // instrument token: mission, mode, product, level, polarisation
	Start string
	Stop  string
}

// KeyFromSceneName extracts the acquisition key from a scene file name
func KeyFromSceneName(sceneName string) (SceneKey, error) {
	m := SceneKeyPattern.FindStringSubmatch(sceneName)
	if m == nil {
		return SceneKey{}, fmt.Errorf("KeyFromSceneName: no acquisition key in %s", sceneName)
	}
	return SceneKey{Token: m[1], Start: m[2], Stop: m[3]}, nil
}

// ParseSceneTime parses a compact scene timestamp (yyyymmddThhmmss, UTC)
func ParseSceneTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}

// FormatSceneTime formats a timestamp the way scene identifiers encode it
func FormatSceneTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// GetConstellationFromString returns the constellation from the user input
func GetConstellationFromString(input string) Constellation {
	switch strings.ToLower(input) {
	case "sentinel1", "sentinel-1":
		return Sentinel1
	}
	return GetConstellationFromProductId(input)
}

func GetConstellationFromProductId(sceneName string) Constellation {
	if strings.HasPrefix(sceneName, "S1") {
		return Sentinel1
	}
	return Unknown
}

// Info parses the fields of a scene identifier
func Info(sceneName string) (map[string]string, error) {
	sceneName = strings.TrimSuffix(sceneName, ".SAFE")
	switch GetConstellationFromProductId(sceneName) {
	case Sentinel1:
		if len(sceneName) < len("MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC") {
			return nil, fmt.Errorf("invalid Sentinel1 file name: %s", sceneName)
		}
		return map[string]string{
			"SCENE":            sceneName,
			"MISSION_ID":       sceneName[0:3],
			"MISSION_VERSION":  sceneName[2:3],
			"MODE":             sceneName[4:6],
			"PRODUCT_TYPE":     sceneName[7:10],
			"RESOLUTION":       sceneName[10:11],
			"PROCESSING_LEVEL": sceneName[12:13],
			"PRODUCT_CLASS":    sceneName[13:14],
			"POLARISATION":     sceneName[14:16],
			"START":            sceneName[17:32],
			"STOP":             sceneName[33:48],
			"ORBIT":            sceneName[49:55],
			"DATATAKE":         sceneName[56:62],
			"UNIQUE_ID":        sceneName[63:67],
		}, nil
	}
	return nil, fmt.Errorf("Info: constellation not supported")
}
