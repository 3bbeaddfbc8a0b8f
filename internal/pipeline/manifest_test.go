package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/provider"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		areaID    string
		timestamp string
		wantErr   bool
	}{
		{"full name", "ECO_L2T_LSTE.002_LST_doy2024015123456_aid0007.tif", "0007", "2024015123456", false},
		{"tokens reversed", "aid0012_QC_doy2023300000001.tif", "0012", "2023300000001", false},
		{"short timestamp", "ECO_LST_doy202401512_aid0007.tif", "", "", true},
		{"no area", "ECO_LST_doy2024015123456.tif", "", "", true},
		{"three digit area", "ECO_LST_doy2024015123456_aid007.tif", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			areaID, ts, err := ParseFilename(tt.file)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.CodeManifestParse, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.areaID, areaID)
			assert.Equal(t, tt.timestamp, ts)
		})
	}
}

func TestGroupScenesJoinsLayersOfOneAcquisition(t *testing.T) {
	bundle := &provider.Bundle{
		TaskID: "task-9",
		Files: []provider.BundleFile{
			{FileID: "f3", FileName: "ECO_L2T_LSTE.002_QC_doy2024015123456_aid0007.tif"},
			{FileID: "f1", FileName: "ECO_L2T_LSTE.002_LST_doy2024015123456_aid0007.tif"},
			{FileID: "f9", FileName: "ECO_L2T_LSTE.002_LST_doy2024015123456_aid0002.tif"},
			{FileID: "f4", FileName: "ECO-L2T-LSTE-002-Statistics.csv"},
			{FileID: "f5", FileName: "ECO_L2T_LSTE.002_LST_aid0007.tif"},
			{FileID: "f6", FileName: "ECOSTRESS-request.json"},
		},
	}

	scenes, skipped := GroupScenes("req-1", bundle)
	require.Len(t, scenes, 2)
	assert.Equal(t, []string{"ECO_L2T_LSTE.002_LST_aid0007.tif"}, skipped)

	assert.Equal(t, "0002_2024015123456", scenes[0].SceneID)
	s := scenes[1]
	assert.Equal(t, "0007_2024015123456", s.SceneID)
	assert.Equal(t, "0007", s.AreaID)
	assert.Equal(t, "2024015123456", s.Timestamp)
	assert.Equal(t, "req-1", s.RequestID)
	assert.Equal(t, "task-9", s.TaskID)
	require.Len(t, s.Files, 2)
	assert.Equal(t, "f1", s.Files[0].FileID)
	assert.Equal(t, "f3", s.Files[1].FileID)
}

func TestGroupScenesEmptyBundle(t *testing.T) {
	scenes, skipped := GroupScenes("req-1", &provider.Bundle{TaskID: "t"})
	assert.Empty(t, scenes)
	assert.Empty(t, skipped)
}
