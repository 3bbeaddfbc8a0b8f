// Package export writes the per-pixel point table of a filtered scene.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lakewatch/thermal-service/internal/filter"
	"github.com/lakewatch/thermal-service/internal/raster"
)

// Columns is the header of every point export.
var Columns = []string{
	"longitude", "latitude", "LST", "LST_err", "QC", "EmisWB", "height", "water", "cloud",
}

// Point is one retained pixel.
type Point struct {
	Longitude float64
	Latitude  float64
	LST       float64
	LSTErr    float64
	QC        float64
	EmisWB    float64
	Height    float64
	Water     float64
	Cloud     float64
}

func (p Point) values() []float64 {
	return []float64{p.Longitude, p.Latitude, p.LST, p.LSTErr, p.QC, p.EmisWB, p.Height, p.Water, p.Cloud}
}

// Points collects the retained pixels of a scene in row-major order,
// positioned at their pixel centres.
func Points(l *filter.Layers, res *filter.Result, geo *raster.GeoRef) []Point {
	points := make([]Point, 0, res.Stats.Valid)
	for i := range res.Kept {
		if !res.Retained(i, l.LST) {
			continue
		}
		lon, lat := geo.PixelCenter(i%l.Width, i/l.Width)
		points = append(points, Point{
			Longitude: lon,
			Latitude:  lat,
			LST:       l.LST[i],
			LSTErr:    l.LSTErr[i],
			QC:        l.QC[i],
			EmisWB:    l.EmisWB[i],
			Height:    l.Elevation[i],
			Water:     l.Water[i],
			Cloud:     l.Cloud[i],
		})
	}
	return points
}

// WriteCSV writes points with a header row.
func WriteCSV(w io.Writer, points []Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(Columns))
	for _, p := range points {
		for i, v := range p.values() {
			record[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
