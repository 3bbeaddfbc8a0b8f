package regions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Lake Tahoe", "location": "lake"},
     "geometry": {"type": "Point", "coordinates": [-120.0, 39.1]}},
    {"type": "Feature", "properties": {"name": "Crater"},
     "geometry": {"type": "Point", "coordinates": [-122.1, 42.9]}},
    {"type": "Feature", "properties": {"name": "Mälaren", "location": "shore"},
     "geometry": {"type": "Point", "coordinates": [17.0, 59.4]}}
  ]
}`

func TestParseAssignsAreaIDsInOrder(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	r, ok := c.Lookup("0001")
	require.True(t, ok)
	assert.Equal(t, Region{AreaID: "0001", FeatureID: "Lake_Tahoe", Name: "Lake Tahoe", Location: "lake"}, r)

	r, ok = c.Lookup("0002")
	require.True(t, ok)
	assert.Equal(t, DefaultLocation, r.Location)

	r, ok = c.Lookup("3")
	require.True(t, ok)
	assert.Equal(t, "Malaren", r.FeatureID)
	assert.Equal(t, "shore", r.Location)

	_, ok = c.Lookup("0004")
	assert.False(t, ok)
	_, ok = c.Lookup("aid")
	assert.False(t, ok)
}

func TestGeoJSONRoundTrips(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	var fc map[string]any
	require.NoError(t, json.Unmarshal(c.GeoJSON(), &fc))
	assert.Equal(t, "FeatureCollection", fc["type"])
	assert.Len(t, fc["features"], 3)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"wrong type", `{"type":"Feature"}`},
		{"empty", `{"type":"FeatureCollection","features":[]}`},
		{"no name", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[0,0]}}]}`},
		{"no geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"a"}}]}`},
		{"duplicate", `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[0,0]}},
			{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,1]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.All(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.Error(t, err)
}

func TestFeatureID(t *testing.T) {
	assert.Equal(t, "Lake_Tahoe", FeatureID("Lake Tahoe"))
	assert.Equal(t, "Zelezno_jezero", FeatureID("  Železno jezero "))
	assert.Equal(t, "a_b-c", FeatureID("a / b-c"))
}
