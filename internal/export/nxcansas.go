package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/hdf5"

	"github.com/beamline-data/saxsabs/internal/profile"
)

// attrObject is satisfied by both *hdf5.Group and *hdf5.Dataset.
type attrObject interface {
	CreateAttribute(name string, dtype *hdf5.Datatype, space *hdf5.Dataspace) (*hdf5.Attribute, error)
}

// WriteNXcanSAS writes a guarded profile as an NXcanSAS HDF5 file:
// sasentry01 (NXentry/SASentry) containing sasdata01 (NXdata/SASdata) with
// Q, I, and Idev datasets plus the required signal/axes attributes, and
// minimal instrument and sample groups.
func WriteNXcanSAS(path string, p profile.Profile, meta Metadata) error {
	if err := Guard(p); err != nil {
		return err
	}
	meta = meta.withDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return fmt.Errorf("creating NXcanSAS file: %w", err)
	}
	defer f.Close()

	entry, err := f.CreateGroup("sasentry01")
	if err != nil {
		return err
	}
	defer entry.Close()
	if err := setStringAttrs(entry, map[string]string{
		"NX_class":     "NXentry",
		"canSAS_class": "SASentry",
		"version":      "1.1",
	}); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"definition": "NXcanSAS",
		"title":      meta.Title,
		"run":        meta.Run,
	} {
		if err := writeStringDataset(entry, name, value); err != nil {
			return err
		}
	}

	if err := writeSASData(entry, p); err != nil {
		return err
	}
	if err := writeInstrument(entry, meta); err != nil {
		return err
	}
	return writeSample(entry, meta)
}

func writeSASData(entry *hdf5.Group, p profile.Profile) error {
	data, err := entry.CreateGroup("sasdata01")
	if err != nil {
		return err
	}
	defer data.Close()
	if err := setStringAttrs(data, map[string]string{
		"NX_class":     "NXdata",
		"canSAS_class": "SASdata",
		"signal":       "I",
		"I_axes":       "Q",
	}); err != nil {
		return err
	}
	if err := setIntAttr(data, "Q_indices", 0); err != nil {
		return err
	}

	if err := writeFloatDataset(data, "Q", p.X, "1/angstrom"); err != nil {
		return err
	}
	if err := writeFloatDataset(data, "I", p.I, "1/cm"); err != nil {
		return err
	}
	if hasKnownErrors(p.Err) {
		idev := make([]float64, len(p.Err))
		for i, e := range p.Err {
			if math.IsNaN(e) || math.IsInf(e, 0) {
				idev[i] = 0
			} else {
				idev[i] = e
			}
		}
		if err := writeFloatDataset(data, "Idev", idev, "1/cm"); err != nil {
			return err
		}
	}
	return nil
}

func writeInstrument(entry *hdf5.Group, meta Metadata) error {
	inst, err := entry.CreateGroup("sasinstrument01")
	if err != nil {
		return err
	}
	defer inst.Close()
	if err := setStringAttrs(inst, map[string]string{
		"NX_class":     "NXinstrument",
		"canSAS_class": "SASinstrument",
	}); err != nil {
		return err
	}
	if meta.InstrumentName != "" {
		if err := writeStringDataset(inst, "name", meta.InstrumentName); err != nil {
			return err
		}
	}

	src, err := inst.CreateGroup("sassource01")
	if err != nil {
		return err
	}
	defer src.Close()
	if err := setStringAttrs(src, map[string]string{
		"NX_class":     "NXsource",
		"canSAS_class": "SASsource",
	}); err != nil {
		return err
	}
	if err := writeStringDataset(src, "radiation", "x-ray"); err != nil {
		return err
	}
	if meta.WavelengthA > 0 {
		if err := writeFloatDataset(src, "incident_wavelength", []float64{meta.WavelengthA}, "angstrom"); err != nil {
			return err
		}
	}
	return nil
}

func writeSample(entry *hdf5.Group, meta Metadata) error {
	sample, err := entry.CreateGroup("sassample01")
	if err != nil {
		return err
	}
	defer sample.Close()
	if err := setStringAttrs(sample, map[string]string{
		"NX_class":     "NXsample",
		"canSAS_class": "SASsample",
	}); err != nil {
		return err
	}
	return writeStringDataset(sample, "name", meta.SampleName)
}

func hasKnownErrors(errs []float64) bool {
	for _, e := range errs {
		if !math.IsNaN(e) && !math.IsInf(e, 0) {
			return true
		}
	}
	return false
}

func setStringAttrs(obj attrObject, attrs map[string]string) error {
	for name, value := range attrs {
		if err := setStringAttr(obj, name, value); err != nil {
			return err
		}
	}
	return nil
}

func setStringAttr(obj attrObject, name, value string) error {
	dtype, err := hdf5.NewDatatypeFromValue(value)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	defer dtype.Close()
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	defer attr.Close()
	return attr.Write(&value, dtype)
}

func setIntAttr(obj attrObject, name string, value int32) error {
	dtype, err := hdf5.NewDatatypeFromValue(value)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	defer dtype.Close()
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer space.Close()
	attr, err := obj.CreateAttribute(name, dtype, space)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", name, err)
	}
	defer attr.Close()
	return attr.Write(&value, dtype)
}

func writeFloatDataset(g *hdf5.Group, name string, data []float64, unit string) error {
	space, err := hdf5.CreateSimpleDataspace([]uint{uint(len(data))}, nil)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := g.CreateDataset(name, hdf5.T_NATIVE_DOUBLE, space)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	defer ds.Close()
	if err := ds.Write(&data); err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	return setStringAttr(ds, "units", unit)
}

func writeStringDataset(g *hdf5.Group, name, value string) error {
	dtype, err := hdf5.NewDatatypeFromValue(value)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	defer dtype.Close()
	space, err := hdf5.CreateDataspace(hdf5.S_SCALAR)
	if err != nil {
		return err
	}
	defer space.Close()
	ds, err := g.CreateDataset(name, dtype, space)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	defer ds.Close()
	return ds.Write(&value)
}
