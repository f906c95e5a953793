package export

import (
	"encoding/xml"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-data/saxsabs/internal/ingest"
	"github.com/beamline-data/saxsabs/internal/profile"
)

func calibrated() profile.Profile {
	return profile.Profile{
		X:    []float64{0.01, 0.02, 0.03, 0.04},
		I:    []float64{34.2, 30.8, 28.8, 27.5},
		Err:  []float64{0.5, 0.4, 0.3, 0.2},
		Axis: profile.MomentumTransfer,
	}
}

func TestGuardRejectsAzimuthal(t *testing.T) {
	p := calibrated()
	p.Axis = profile.AzimuthalAngle
	err := Guard(p)
	if !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	p.Axis = profile.OtherAxis
	if err := Guard(p); !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch for Other axis, got %v", err)
	}
}

func TestGuardAcceptsMomentumTransfer(t *testing.T) {
	if err := Guard(calibrated()); err != nil {
		t.Fatalf("momentum-transfer profile should pass the guard: %v", err)
	}
}

func TestWriteCanSASGuarded(t *testing.T) {
	p := calibrated()
	p.Axis = profile.AzimuthalAngle
	path := filepath.Join(t.TempDir(), "chi.xml")
	err := WriteCanSAS(path, p, Metadata{})
	if !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no file should be written when the guard fails")
	}
}

// parsedCanSAS mirrors just enough of the schema to verify written output.
type parsedCanSAS struct {
	Version string `xml:"version,attr"`
	Entry   struct {
		Title string `xml:"Title"`
		Run   string `xml:"Run"`
		Data  struct {
			Idata []struct {
				Q    float64  `xml:"Q"`
				I    float64  `xml:"I"`
				Idev *float64 `xml:"Idev"`
			} `xml:"Idata"`
		} `xml:"SASdata"`
		Sample struct {
			ID string `xml:"ID"`
		} `xml:"SASsample"`
	} `xml:"SASentry"`
}

func TestWriteCanSASRoundTrip(t *testing.T) {
	p := calibrated()
	path := filepath.Join(t.TempDir(), "profile.xml")
	require.NoError(t, WriteCanSAS(path, p, Metadata{Title: "glassy carbon", SampleName: "GC-42"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc parsedCanSAS
	require.NoError(t, xml.Unmarshal(raw, &doc))

	assert.Equal(t, "1.1", doc.Version)
	assert.Equal(t, "glassy carbon", doc.Entry.Title)
	assert.NotEmpty(t, doc.Entry.Run, "run ID should default to a generated identifier")
	assert.Equal(t, "GC-42", doc.Entry.Sample.ID)
	require.Len(t, doc.Entry.Data.Idata, p.Len(), "Q/I/Idev array lengths must agree")
	for i, row := range doc.Entry.Data.Idata {
		assert.InDelta(t, p.X[i], row.Q, 1e-12)
		assert.InDelta(t, p.I[i], row.I, 1e-12)
		require.NotNil(t, row.Idev, "point %d should carry Idev", i)
		assert.InDelta(t, p.Err[i], *row.Idev, 1e-12)
	}
}

func TestWriteCanSASOmitsUnknownIdev(t *testing.T) {
	p := calibrated()
	p.Err[1] = math.NaN()
	path := filepath.Join(t.TempDir(), "profile.xml")
	require.NoError(t, WriteCanSAS(path, p, Metadata{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc parsedCanSAS
	require.NoError(t, xml.Unmarshal(raw, &doc))
	require.Len(t, doc.Entry.Data.Idata, 4)
	assert.Nil(t, doc.Entry.Data.Idata[1].Idev)
	assert.NotNil(t, doc.Entry.Data.Idata[0].Idev)
}

func TestWriteDelimitedRoundTrip(t *testing.T) {
	p := calibrated()
	path := filepath.Join(t.TempDir(), "profile.tsv")
	require.NoError(t, WriteDelimited(path, p, '\t'))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := ingest.Read(f)
	require.NoError(t, err)

	require.Equal(t, p.Len(), got.Len())
	for i := range p.X {
		assert.InDelta(t, p.X[i], got.X[i], 1e-12)
		assert.InDelta(t, p.I[i], got.I[i], 1e-12)
		assert.InDelta(t, p.Err[i], got.Err[i], 1e-12)
	}
	assert.Equal(t, profile.MomentumTransfer, got.Axis)
}

func TestWriteDelimitedCSV(t *testing.T) {
	p := calibrated()
	path := filepath.Join(t.TempDir(), "profile.csv")
	require.NoError(t, WriteDelimited(path, p, ','))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := ingest.Read(f)
	require.NoError(t, err)
	assert.Equal(t, p.Len(), got.Len())
}
