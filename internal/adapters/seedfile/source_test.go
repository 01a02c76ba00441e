package seedfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Embedded(t *testing.T) {
	stations, err := New("").Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 32)

	first := stations[0]
	assert.Equal(t, "st-001", first.ID)
	assert.True(t, first.Location.Valid())
	require.NotNil(t, first.Prices["diesel"])

	last := stations[31]
	assert.Equal(t, "Rompetrol Vake", last.Name)
	require.Contains(t, last.Prices, "diesel")
	assert.Nil(t, last.Prices["diesel"])
}

func TestSource_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Gulf X","lat":41.7,"lng":44.8,"prices":null}]`), 0o600))

	stations, err := New(path).Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Empty(t, stations[0].ID)
	assert.Equal(t, 44.8, stations[0].Location.Lon)
	assert.Nil(t, stations[0].Prices)
}

func TestSource_MissingFile(t *testing.T) {
	_, err := New("/nonexistent/stations.json").Stations(context.Background())
	assert.Error(t, err)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
