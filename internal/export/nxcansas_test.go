package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"

	"github.com/beamline-data/saxsabs/internal/profile"
)

func TestWriteNXcanSASGuarded(t *testing.T) {
	p := calibrated()
	p.Axis = profile.AzimuthalAngle
	path := filepath.Join(t.TempDir(), "chi.h5")
	err := WriteNXcanSAS(path, p, Metadata{})
	if !errors.Is(err, ErrUnitMismatch) {
		t.Fatalf("expected ErrUnitMismatch, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no file should be written when the guard fails")
	}
}

func TestWriteNXcanSASRoundTrip(t *testing.T) {
	p := calibrated()
	path := filepath.Join(t.TempDir(), "profile.h5")
	require.NoError(t, WriteNXcanSAS(path, p, Metadata{Title: "glassy carbon"}))

	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	require.NoError(t, err)
	defer f.Close()

	data, err := f.OpenGroup("sasentry01/sasdata01")
	require.NoError(t, err, "entry/sasdata hierarchy must exist")
	defer data.Close()

	readArray := func(name string) []float64 {
		ds, err := data.OpenDataset(name)
		require.NoError(t, err, "dataset %s", name)
		defer ds.Close()
		dims, _, err := ds.Space().SimpleExtentDims()
		require.NoError(t, err)
		require.Len(t, dims, 1)
		out := make([]float64, dims[0])
		require.NoError(t, ds.Read(&out))
		return out
	}

	q := readArray("Q")
	i := readArray("I")
	idev := readArray("Idev")

	require.Len(t, q, p.Len(), "Q length")
	require.Len(t, i, p.Len(), "I length")
	require.Len(t, idev, p.Len(), "Idev length")
	for k := range q {
		assert.InDelta(t, p.X[k], q[k], 1e-12)
		assert.InDelta(t, p.I[k], i[k], 1e-12)
		assert.InDelta(t, p.Err[k], idev[k], 1e-12)
	}
}
