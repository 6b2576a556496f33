// Package safetest creates fake unpacked scene products for tests.
package safetest

import (
	"fmt"
	"os"
	"path/filepath"
)

// Product describes a fake scene product to write on disk.
type Product struct {
	Name            string // scene identifier, without the .SAFE suffix
	ProcessingStart string // manifest processing start time (defaulted if empty)
	SliceNumber     int
	TotalSlices     int
	Coordinates     string // gml "lat,lon lat,lon ..." footprint (defaulted if empty)
	Orbit           int
	RelativeOrbit   int
	Pass            string
}

const manifestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<xfdu:XFDU xmlns:xfdu="urn:ccsds:schema:xfdu:1" xmlns:safe="http://www.esa.int/safe/sentinel-1.0" xmlns:s1="http://www.esa.int/safe/sentinel-1.0/sentinel-1" xmlns:s1sarl1="http://www.esa.int/safe/sentinel-1.0/sentinel-1/sar/level-1" xmlns:gml="http://www.opengis.net/gml">
  <metadataSection>
    <metadataObject ID="processing">
      <metadataWrap><xmlData>
        <safe:processing name="SLC Post Processing" start="%s"/>
      </xmlData></metadataWrap>
    </metadataObject>
    <metadataObject ID="platform">
      <metadataWrap><xmlData>
        <safe:platform>
          <safe:familyName>SENTINEL-1</safe:familyName>
          <safe:number>A</safe:number>
          <safe:instrument>
            <safe:extension>
              <s1sarl1:instrumentMode><s1sarl1:mode>IW</s1sarl1:mode></s1sarl1:instrumentMode>
            </safe:extension>
          </safe:instrument>
        </safe:platform>
      </xmlData></metadataWrap>
    </metadataObject>
    <metadataObject ID="measurementOrbitReference">
      <metadataWrap><xmlData>
        <safe:orbitReference>
          <safe:orbitNumber type="start">%d</safe:orbitNumber>
          <safe:orbitNumber type="stop">%d</safe:orbitNumber>
          <safe:relativeOrbitNumber type="start">%d</safe:relativeOrbitNumber>
          <safe:relativeOrbitNumber type="stop">%d</safe:relativeOrbitNumber>
          <safe:extension>
            <s1:orbitProperties><s1:pass>%s</s1:pass></s1:orbitProperties>
          </safe:extension>
        </safe:orbitReference>
      </xmlData></metadataWrap>
    </metadataObject>
    <metadataObject ID="generalProductInformation">
      <metadataWrap><xmlData>
        <s1sarl1:standAloneProductInformation>
          <s1sarl1:productType>GRD</s1sarl1:productType>
          <s1sarl1:sliceNumber>%d</s1sarl1:sliceNumber>
          <s1sarl1:totalSlices>%d</s1sarl1:totalSlices>
        </s1sarl1:standAloneProductInformation>
      </xmlData></metadataWrap>
    </metadataObject>
    <metadataObject ID="measurementFrameSet">
      <metadataWrap><xmlData>
        <safe:frameSet>
          <safe:frame>
            <safe:footPrint srsName="http://www.opengis.net/def/crs/EPSG/0/4326">
              <gml:coordinates>%s</gml:coordinates>
            </safe:footPrint>
          </safe:frame>
        </safe:frameSet>
      </xmlData></metadataWrap>
    </metadataObject>
  </metadataSection>
</xfdu:XFDU>
`

// Write creates root/<Name>.SAFE/manifest.safe and returns the product path.
func Write(root string, p Product) (string, error) {
	if p.ProcessingStart == "" {
		p.ProcessingStart = "2021-01-01T10:00:00.000000"
	}
	if p.Coordinates == "" {
		p.Coordinates = "50.0,8.0 50.2,12.0 51.5,12.2 51.3,7.8"
	}
	if p.Pass == "" {
		p.Pass = "ASCENDING"
	}
	path := filepath.Join(root, p.Name+".SAFE")
	if err := os.MkdirAll(path, 0766); err != nil {
		return "", err
	}
	manifest := fmt.Sprintf(manifestTemplate,
		p.ProcessingStart,
		p.Orbit, p.Orbit, p.RelativeOrbit, p.RelativeOrbit, p.Pass,
		p.SliceNumber, p.TotalSlices,
		p.Coordinates)
	if err := os.WriteFile(filepath.Join(path, "manifest.safe"), []byte(manifest), 0666); err != nil {
		return "", err
	}
	return path, nil
}
