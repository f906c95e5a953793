package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGet(t *testing.T) {
	s := newTestStore(t)

	run := &CalibrationRun{
		ProfileName: "glassy_carbon_001.dat",
		Standard:    "SRM3600",
		Mode:        "rate",
		KFactor:     0.00413,
		KStd:        0.00007,
		PointsTotal: 120,
		PointsUsed:  114,
		QMinOverlap: 0.012,
		QMaxOverlap: 0.198,
	}
	require.NoError(t, s.Insert(run))
	assert.NotEmpty(t, run.RunID, "Insert should assign a run ID")
	assert.NotZero(t, run.CreatedAt, "Insert should stamp a creation time")

	got, err := s.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.ProfileName, got.ProfileName)
	assert.Equal(t, run.Standard, got.Standard)
	assert.InDelta(t, run.KFactor, got.KFactor, 1e-15)
	assert.Equal(t, run.PointsUsed, got.PointsUsed)
	assert.False(t, got.Degenerate)
}

func TestListByProfileNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for i, k := range []float64{1.0, 2.0, 3.0} {
		require.NoError(t, s.Insert(&CalibrationRun{
			ProfileName: "sample.dat",
			Standard:    "Water",
			KFactor:     k,
			CreatedAt:   int64(i + 1),
		}))
	}
	require.NoError(t, s.Insert(&CalibrationRun{
		ProfileName: "other.dat",
		Standard:    "Water",
		KFactor:     9.0,
		CreatedAt:   10,
	}))

	runs, err := s.ListByProfile("sample.dat")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 3.0, runs[0].KFactor)
	assert.Equal(t, 1.0, runs[2].KFactor)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert(&CalibrationRun{
			ProfileName: "p.dat",
			CreatedAt:   int64(i + 1),
		}))
	}

	runs, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(5), runs[0].CreatedAt)
	assert.Equal(t, int64(4), runs[1].CreatedAt)
}

func TestDegenerateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	run := &CalibrationRun{ProfileName: "noisy.dat", Degenerate: true}
	require.NoError(t, s.Insert(run))

	got, err := s.Get(run.RunID)
	require.NoError(t, err)
	assert.True(t, got.Degenerate)
}

func TestOpenBootstrapsFullSchema(t *testing.T) {
	// Open applies the embedded initial migration, so a store that never
	// runs the migrate commands still has the listing index.
	s := newTestStore(t)

	var name string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_calibration_runs_profile'`).Scan(&name)
	require.NoError(t, err, "profile listing index should exist after Open")
	assert.Equal(t, "idx_calibration_runs_profile", name)
}

func TestMigrateUpDown(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.MigrateUp("migrations"))

	version, dirty, err := s.MigrateVersion("migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateDown("migrations"))

	version, _, err = s.MigrateVersion("migrations")
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
