package export

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/beamline-data/saxsabs/internal/profile"
)

// canSAS 1D 1.1 schema identifiers.
const (
	cansasNS     = "urn:cansas1d:1.1"
	cansasXSI    = "http://www.w3.org/2001/XMLSchema-instance"
	cansasSchema = "urn:cansas1d:1.1 http://www.cansas.org/formats/canSAS1d/1.1/doc/cansas1d.xsd"
)

type cansasValue struct {
	Unit  string  `xml:"unit,attr"`
	Value float64 `xml:",chardata"`
}

type cansasIdata struct {
	Q    cansasValue  `xml:"Q"`
	I    cansasValue  `xml:"I"`
	Idev *cansasValue `xml:"Idev,omitempty"`
}

type cansasData struct {
	Idata []cansasIdata `xml:"Idata"`
}

type cansasSample struct {
	ID string `xml:"ID"`
}

type cansasSource struct {
	Radiation  string       `xml:"radiation"`
	Wavelength *cansasValue `xml:"wavelength,omitempty"`
}

type cansasDetector struct {
	Name string       `xml:"name"`
	SDD  *cansasValue `xml:"SDD,omitempty"`
}

type cansasInstrument struct {
	Name        string         `xml:"name"`
	Source      cansasSource   `xml:"SASsource"`
	Collimation struct{}       `xml:"SAScollimation"`
	Detector    cansasDetector `xml:"SASdetector"`
}

type cansasProcess struct {
	Name string `xml:"name"`
}

type cansasEntry struct {
	Name       string           `xml:"name,attr"`
	Title      string           `xml:"Title"`
	Run        string           `xml:"Run"`
	Data       cansasData       `xml:"SASdata"`
	Sample     cansasSample     `xml:"SASsample"`
	Instrument cansasInstrument `xml:"SASinstrument"`
	Process    cansasProcess    `xml:"SASprocess"`
}

type cansasRoot struct {
	XMLName        xml.Name    `xml:"SASroot"`
	Version        string      `xml:"version,attr"`
	Xmlns          string      `xml:"xmlns,attr"`
	XmlnsXSI       string      `xml:"xmlns:xsi,attr"`
	SchemaLocation string      `xml:"xsi:schemaLocation,attr"`
	Entry          cansasEntry `xml:"SASentry"`
}

// WriteCanSAS writes a guarded profile as canSAS 1D XML (urn:cansas1d:1.1).
// Points with unknown uncertainty omit the Idev element.
func WriteCanSAS(path string, p profile.Profile, meta Metadata) error {
	if err := Guard(p); err != nil {
		return err
	}
	meta = meta.withDefaults()

	root := cansasRoot{
		Version:        "1.1",
		Xmlns:          cansasNS,
		XmlnsXSI:       cansasXSI,
		SchemaLocation: cansasSchema,
		Entry: cansasEntry{
			Name:    "entry01",
			Title:   meta.Title,
			Run:     meta.Run,
			Sample:  cansasSample{ID: meta.SampleName},
			Process: cansasProcess{Name: meta.ProcessName},
		},
	}
	root.Entry.Instrument.Name = meta.InstrumentName
	root.Entry.Instrument.Source.Radiation = "x-ray"
	if meta.WavelengthA > 0 {
		root.Entry.Instrument.Source.Wavelength = &cansasValue{Unit: "A", Value: meta.WavelengthA}
	}
	root.Entry.Instrument.Detector.Name = meta.DetectorName
	if meta.SDDMeters > 0 {
		root.Entry.Instrument.Detector.SDD = &cansasValue{Unit: "m", Value: meta.SDDMeters}
	}

	for i := range p.X {
		row := cansasIdata{
			Q: cansasValue{Unit: "1/A", Value: p.X[i]},
			I: cansasValue{Unit: "1/cm", Value: p.I[i]},
		}
		if i < len(p.Err) && !math.IsNaN(p.Err[i]) && !math.IsInf(p.Err[i], 0) {
			row.Idev = &cansasValue{Unit: "1/cm", Value: p.Err[i]}
		}
		root.Entry.Data.Idata = append(root.Entry.Data.Idata, row)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating canSAS file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encoding canSAS XML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}
