package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lakewatch/thermal-service/internal/filter"
	"github.com/lakewatch/thermal-service/internal/raster"
)

func testScene(t *testing.T) (*filter.Layers, *filter.Result) {
	t.Helper()
	l := &filter.Layers{
		Width:     2,
		Height:    2,
		LST:       []float64{290.5, 291, math.NaN(), 293},
		LSTErr:    []float64{0.5, 0.5, 0.5, 0.5},
		QC:        []float64{0, 3, 0, 1},
		Water:     []float64{1, 1, 1, 1},
		Cloud:     []float64{0, 0, 0, 0},
		EmisWB:    []float64{0.98, 0.98, 0.98, 0.97},
		Elevation: []float64{120, 120, 121, 122},
	}
	res, err := filter.Apply(l)
	require.NoError(t, err)
	return l, res
}

func testGeo() *raster.GeoRef {
	return &raster.GeoRef{
		PixelScale: []float64{1, 1, 0},
		Tiepoint:   []float64{0, 0, 0, 10, 50, 0},
	}
}

func TestPointsKeepsRetainedPixels(t *testing.T) {
	l, res := testScene(t)
	points := Points(l, res, testGeo())

	require.Len(t, points, 2)
	assert.Equal(t, Point{Longitude: 10.5, Latitude: 49.5, LST: 290.5, LSTErr: 0.5, QC: 0, EmisWB: 0.98, Height: 120, Water: 1}, points[0])
	assert.Equal(t, 11.5, points[1].Longitude)
	assert.Equal(t, 48.5, points[1].Latitude)
	assert.Equal(t, 293.0, points[1].LST)
}

func TestWriteCSV(t *testing.T) {
	l, res := testScene(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Points(l, res, testGeo())))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "longitude,latitude,LST,LST_err,QC,EmisWB,height,water,cloud", lines[0])
	assert.Equal(t, "10.5,49.5,290.5,0.5,0,0.98,120,1,0", lines[1])
}

func TestXLSX(t *testing.T) {
	l, res := testScene(t)
	data, err := XLSX(Points(l, res, testGeo()))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "290.5", rows[1][2])
}
