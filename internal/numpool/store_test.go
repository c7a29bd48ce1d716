package numpool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Zero(t, s.Len())
}

func TestLoadCorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Load(path)
	assert.Zero(t, s.Len())

	// A checkpoint after recovery replaces the damaged snapshot.
	require.True(t, s.append(&NumberRecord{Value: "15551230001", Status: StatusAvailable}))
	require.NoError(t, s.Checkpoint())
	assert.Equal(t, 1, Load(path).Len())
}

func TestCheckpointRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "numbers.json")

	s := Load(path)
	now := time.Now().UTC()
	require.True(t, s.append(&NumberRecord{
		Value:      "15551230001",
		List:       "batch1",
		Status:     StatusAssigned,
		Holder:     100,
		AssignedAt: &now,
	}))
	require.True(t, s.append(&NumberRecord{Value: "15551230002", Status: StatusUsed}))
	s.setHolder(100, "15551230001")
	s.bumpReassign(100)
	s.registerKnown(100)
	require.NoError(t, s.Checkpoint())

	loaded := Load(path)
	require.Equal(t, 2, loaded.Len())

	rec := loaded.FindByValue("15551230001")
	require.NotNil(t, rec)
	assert.Equal(t, StatusAssigned, rec.Status)
	assert.Equal(t, int64(100), rec.Holder)
	assert.Equal(t, "batch1", rec.List)

	// The lease index is rebuilt from assigned records.
	value, ok := loaded.holderValue(100)
	require.True(t, ok)
	assert.Equal(t, "15551230001", value)

	assert.Equal(t, 1, loaded.reassignCount(100))
	assert.Equal(t, []int64{100}, loaded.knownUsers())
}

func TestLoadRepairsTornRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "numbers.json")
	raw := `{
	  "numbers": [
	    {"value": "15551230001", "status": "assigned"},
	    {"value": "15551230002", "status": "nonsense"},
	    {"value": "15551230002", "status": "available"},
	    {"value": "", "status": "available"}
	  ]
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s := Load(path)
	assert.Equal(t, 2, s.Len())

	// Assigned without a holder is torn and returns to the pool.
	assert.Equal(t, StatusAvailable, s.FindByValue("15551230001").Status)
	// Unknown status is normalized.
	assert.Equal(t, StatusAvailable, s.FindByValue("15551230002").Status)
}

func TestAppendRejectsDuplicates(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "numbers.json"))
	assert.True(t, s.append(&NumberRecord{Value: "15551230001", Status: StatusAvailable}))
	assert.False(t, s.append(&NumberRecord{Value: "15551230001", Status: StatusAvailable}))
	assert.False(t, s.append(&NumberRecord{Value: "", Status: StatusAvailable}))
}

func TestRemoveListDropsOnlyThatList(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "numbers.json"))
	require.True(t, s.append(&NumberRecord{Value: "1", List: "a", Status: StatusAvailable}))
	require.True(t, s.append(&NumberRecord{Value: "2", List: "b", Status: StatusAvailable}))
	require.True(t, s.append(&NumberRecord{Value: "3", List: "a", Status: StatusAvailable}))

	removed := s.removeList("a")
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, s.Len())
	assert.Nil(t, s.FindByValue("1"))
	assert.NotNil(t, s.FindByValue("2"))
}
