package stats

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFile_LoadMissingIsEmpty(t *testing.T) {
	f := NewJSONFile(filepath.Join(t.TempDir(), "stats.json"))

	snap, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestJSONFile_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s, err := Open(context.Background(), NewJSONFile(path))
	assert.Error(t, err)
	require.NotNil(t, s, "a usable empty store is still returned")
	assert.Empty(t, s.Snapshot())
}

func TestJSONFile_ReadsExistingFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	content := `{"-1001": {"total": 3, "users": {"42": 1, "7": 2}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	snap, err := NewJSONFile(path).Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, snap, "-1001")
	assert.Equal(t, 3, snap["-1001"].Total)
	assert.Equal(t, []UserCount{{UserID: "42", Count: 1}, {UserID: "7", Count: 2}}, snap["-1001"].Users)
}

func TestJSONFile_RoundTripKeepsUserOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	ctx := context.Background()

	s := NewStore(NewJSONFile(path))
	for _, u := range []string{"zed", "amy", "mo", "amy"} {
		require.NoError(t, s.Record(ctx, "g", u))
	}

	reopened, err := Open(ctx, NewJSONFile(path))
	require.NoError(t, err)

	gs, ok := reopened.Group("g")
	require.True(t, ok)
	assert.Equal(t, 4, gs.Total)
	assert.Equal(t, []UserCount{
		{UserID: "zed", Count: 1},
		{UserID: "amy", Count: 2},
		{UserID: "mo", Count: 1},
	}, gs.Users)
}

func TestJSONFile_SaveWritesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	f := NewJSONFile(path)

	err := f.Save(context.Background(), Snapshot{
		"g": {Total: 2, Users: []UserCount{{UserID: "b", Count: 1}, {UserID: "a", Count: 1}}},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"g":{"total":2,"users":{"b":1,"a":1}}}`, string(data))
	assert.Contains(t, string(data), `{"b":1,"a":1}`)
}

func TestJSONFile_SaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	f := NewJSONFile(path)

	require.NoError(t, f.Save(context.Background(), Snapshot{}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestJSONFile_SaveFailureIsReported(t *testing.T) {
	f := NewJSONFile(filepath.Join(t.TempDir(), "missing-dir", "stats.json"))
	s := NewStore(f)

	err := s.Record(context.Background(), "g", "A")
	assert.Error(t, err)

	gs, ok := s.Group("g")
	require.True(t, ok)
	assert.Equal(t, 1, gs.Total)
}
