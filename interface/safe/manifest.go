package safe

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/s1ard-worklist/catalog/entities"
	"github.com/airbusgeo/s1ard-worklist/common"
)

// ManifestName is the metadata file at the root of an unpacked scene product
const ManifestName = "manifest.safe"

const procTimeFormat = "2006-01-02T15:04:05.999999"

// Manifest is the subset of the product manifest needed to identify a scene
type Manifest struct {
	ProcessingStart string
	StartTime       string
	StopTime        string
	PlatformFamily  string
	PlatformNumber  string
	Mode            string
	ProductType     string
	Pass            string
	OrbitNumber     int
	RelativeOrbit   int
	SliceNumber     int
	TotalSlices     int
	FootprintWKT    string
}

type orbitNumber struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

func (o orbitNumber) number() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(o.Value))
	if err != nil {
		return 0, fmt.Errorf("orbit number %q: %w", o.Value, err)
	}
	return n, nil
}

// ReadManifest parses the manifest.safe file of an unpacked scene directory
func ReadManifest(scenePath string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(scenePath, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("ReadManifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest parses the content of a manifest.safe file
func ParseManifest(raw []byte) (*Manifest, error) {
	doc := struct {
		XMLName         xml.Name `xml:"XFDU"`
		MetadataSection struct {
			MetadataObjects []struct {
				ID           string `xml:"ID,attr"`
				MetadataWrap struct {
					XMLData struct {
						Processing struct {
							Start string `xml:"start,attr"`
						} `xml:"processing"`
						AcquisitionPeriod struct {
							StartTime string `xml:"startTime"`
							StopTime  string `xml:"stopTime"`
						} `xml:"acquisitionPeriod"`
						Platform struct {
							FamilyName string `xml:"familyName"`
							Number     string `xml:"number"`
							Instrument struct {
								Extension struct {
									Mode string `xml:"instrumentMode>mode"`
								} `xml:"extension"`
							} `xml:"instrument"`
						} `xml:"platform"`
						OrbitReference struct {
							OrbitNumbers         []orbitNumber `xml:"orbitNumber"`
							RelativeOrbitNumbers []orbitNumber `xml:"relativeOrbitNumber"`
							Extension            struct {
								Pass string `xml:"orbitProperties>pass"`
							} `xml:"extension"`
						} `xml:"orbitReference"`
						ProductInformation struct {
							ProductType string `xml:"productType"`
							SliceNumber int    `xml:"sliceNumber"`
							TotalSlices int    `xml:"totalSlices"`
						} `xml:"standAloneProductInformation"`
						FrameSet struct {
							Coordinates string `xml:"frame>footPrint>coordinates"`
						} `xml:"frameSet"`
					} `xml:"xmlData"`
				} `xml:"metadataWrap"`
			} `xml:"metadataObject"`
		} `xml:"metadataSection"`
	}{}
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("ParseManifest.Unmarshal: %w", err)
	}

	m := Manifest{}
	for _, obj := range doc.MetadataSection.MetadataObjects {
		data := obj.MetadataWrap.XMLData
		if data.Processing.Start != "" && m.ProcessingStart == "" {
			m.ProcessingStart = data.Processing.Start
		}
		if data.AcquisitionPeriod.StartTime != "" {
			m.StartTime = data.AcquisitionPeriod.StartTime
			m.StopTime = data.AcquisitionPeriod.StopTime
		}
		if data.Platform.FamilyName != "" {
			m.PlatformFamily = data.Platform.FamilyName
			m.PlatformNumber = data.Platform.Number
			m.Mode = data.Platform.Instrument.Extension.Mode
		}
		for _, o := range data.OrbitReference.OrbitNumbers {
			if o.Type == "start" {
				n, err := o.number()
				if err != nil {
					return nil, fmt.Errorf("ParseManifest: %w", err)
				}
				m.OrbitNumber = n
			}
		}
		for _, o := range data.OrbitReference.RelativeOrbitNumbers {
			if o.Type == "start" {
				n, err := o.number()
				if err != nil {
					return nil, fmt.Errorf("ParseManifest: %w", err)
				}
				m.RelativeOrbit = n
			}
		}
		if data.OrbitReference.Extension.Pass != "" {
			m.Pass = data.OrbitReference.Extension.Pass
		}
		if data.ProductInformation.ProductType != "" {
			m.ProductType = data.ProductInformation.ProductType
			m.SliceNumber = data.ProductInformation.SliceNumber
			m.TotalSlices = data.ProductInformation.TotalSlices
		}
		if data.FrameSet.Coordinates != "" {
			wkt, err := coordinatesToWKT(data.FrameSet.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("ParseManifest.%w", err)
			}
			m.FootprintWKT = wkt
		}
	}
	return &m, nil
}

// coordinatesToWKT converts a gml "lat,lon lat,lon ..." coordinate list into a
// closed WKT polygon (lon lat order).
func coordinatesToWKT(coordinates string) (string, error) {
	pairs := strings.Fields(strings.TrimSpace(coordinates))
	if len(pairs) < 3 {
		return "", fmt.Errorf("coordinatesToWKT: too few points in %q", coordinates)
	}
	points := make([]string, 0, len(pairs)+1)
	for _, pair := range pairs {
		latlon := strings.Split(pair, ",")
		if len(latlon) != 2 {
			return "", fmt.Errorf("coordinatesToWKT: invalid point %q", pair)
		}
		points = append(points, latlon[1]+" "+latlon[0])
	}
	if points[0] != points[len(points)-1] {
		points = append(points, points[0])
	}
	return "POLYGON ((" + strings.Join(points, ",") + "))", nil
}

// ProcessingTime returns the declared processing start time of a scene,
// read from its manifest.
func ProcessingTime(scenePath string) (time.Time, error) {
	m, err := ReadManifest(scenePath)
	if err != nil {
		return time.Time{}, fmt.Errorf("ProcessingTime.%w", err)
	}
	if m.ProcessingStart == "" {
		return time.Time{}, fmt.Errorf("ProcessingTime: no processing start in manifest of %s", scenePath)
	}
	t, err := time.Parse(procTimeFormat, m.ProcessingStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("ProcessingTime: %w", err)
	}
	return t, nil
}

// Identify resolves scene paths into parsed scene records, sorted by
// acquisition start time. It fails on any unrecognized path.
func Identify(paths []string) ([]*entities.Scene, error) {
	scenes := make([]*entities.Scene, len(paths))
	for i, path := range paths {
		scene, err := IdentifyOne(path)
		if err != nil {
			return nil, fmt.Errorf("Identify.%w", err)
		}
		scenes[i] = scene
	}
	sortScenes(scenes)
	return scenes, nil
}

// IdentifyOne resolves one scene path into a parsed scene record. The
// identifier fields come from the scene name; footprint, orbit and slicing
// metadata come from the product manifest.
func IdentifyOne(path string) (*entities.Scene, error) {
	name := strings.TrimSuffix(filepath.Base(path), ".SAFE")
	info, err := common.Info(name)
	if err != nil {
		return nil, fmt.Errorf("IdentifyOne[%s]: %w", path, err)
	}
	start, err := common.ParseSceneTime(info["START"])
	if err != nil {
		return nil, fmt.Errorf("IdentifyOne[%s]: %w", path, err)
	}
	stop, err := common.ParseSceneTime(info["STOP"])
	if err != nil {
		return nil, fmt.Errorf("IdentifyOne[%s]: %w", path, err)
	}
	scene := &entities.Scene{
		SourceID:        name,
		Path:            path,
		Sensor:          info["MISSION_ID"],
		Product:         info["PRODUCT_TYPE"],
		AcquisitionMode: info["MODE"],
		Start:           start,
		Stop:            stop,
		SliceNumber:     -1,
		TotalSlices:     -1,
	}

	m, err := ReadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("IdentifyOne[%s]: %w", path, err)
	}
	scene.AbsoluteOrbit = m.OrbitNumber
	scene.RelativeOrbit = m.RelativeOrbit
	scene.OrbitDirection = m.Pass
	scene.GeometryWKT = m.FootprintWKT
	scene.SliceNumber = m.SliceNumber
	scene.TotalSlices = m.TotalSlices
	if m.Mode != "" {
		scene.AcquisitionMode = m.Mode
	}
	if err := scene.Validate(); err != nil {
		return nil, fmt.Errorf("IdentifyOne: %w", err)
	}
	return scene, nil
}

func sortScenes(scenes []*entities.Scene) {
	sort.Slice(scenes, func(i, j int) bool {
		if !scenes[i].Start.Equal(scenes[j].Start) {
			return scenes[i].Start.Before(scenes[j].Start)
		}
		return scenes[i].SourceID < scenes[j].SourceID
	})
}
