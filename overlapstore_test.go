package gofootprint

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *OverlapStore {
	t.Helper()
	store, err := OpenOverlapStore(filepath.Join(t.TempDir(), "overlaps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOverlapStoreRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	run, err := store.StartRun("two squares")
	require.NoError(t, err)
	_, err = uuid.Parse(run.ID())
	require.NoError(t, err)

	c := NewOverlapComputer(nil)
	in := inputs("A", rect(0, 0, 10, 10), "B", rect(5, 0, 15, 10))
	var streamed []OverlapRecord
	err = c.ComputeTo(in, SinkFunc(func(rec OverlapRecord) error {
		streamed = append(streamed, rec)
		return run.WriteOverlap(rec)
	}))
	require.NoError(t, err)
	require.NoError(t, run.Finish(c.Ledger()))

	info, err := store.Run(run.ID())
	require.NoError(t, err)
	assert.Equal(t, run.ID(), info.RunID)
	assert.Equal(t, "two squares", info.Notes)
	assert.Equal(t, 3, info.RecordCount)
	assert.Equal(t, 0, info.LedgerCount)
	assert.False(t, info.FinishedAt.Before(info.StartedAt))

	records, err := store.Records(run.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(streamed, records); diff != "" {
		t.Errorf("stored records mismatch (-streamed +stored):\n%s", diff)
	}
}

func TestOverlapStoreLedger(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	run, err := store.StartRun("")
	require.NoError(t, err)

	c := NewOverlapComputer(nil)
	c.repair = &failingGeometry{PolygonRepair: NewPolygonRepair(nil), failIntersect: true}
	require.NoError(t, c.ComputeTo(inputs("A", rect(0, 0, 10, 10), "B", rect(5, 0, 15, 10)), run))
	require.NoError(t, run.Finish(c.Ledger()))

	info, err := store.Run(run.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, info.RecordCount)
	assert.Equal(t, 1, info.LedgerCount)

	ledger, err := store.Ledger(run.ID())
	require.NoError(t, err)
	if diff := cmp.Diff(c.Ledger(), ledger); diff != "" {
		t.Errorf("stored ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestOverlapStoreSkipsEmptyRecords(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	run, err := store.StartRun("empty")
	require.NoError(t, err)
	require.NoError(t, run.WriteOverlap(OverlapRecord{Serials: []string{"A"}}))
	require.NoError(t, run.Finish(nil))

	records, err := store.Records(run.ID())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOverlapStoreUnknownRun(t *testing.T) {
	t.Parallel()

	_, err := openTestStore(t).Run("no-such-run")
	assert.ErrorContains(t, err, "no-such-run")
}

func TestOverlapStoreKeepsRunsApart(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	first, err := store.StartRun("first")
	require.NoError(t, err)
	second, err := store.StartRun("second")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	require.NoError(t, first.WriteOverlap(OverlapRecord{Polygon: rect(0, 0, 1, 1), Serials: []string{"A", "B"}}))
	require.NoError(t, second.WriteOverlap(OverlapRecord{Polygon: rect(2, 2, 3, 3), Serials: []string{"C", "D"}}))

	records, err := store.Records(first.ID())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"A", "B"}, records[0].Serials)
}
