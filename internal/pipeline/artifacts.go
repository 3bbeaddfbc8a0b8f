package pipeline

import (
	"bytes"
	"fmt"

	"github.com/lakewatch/thermal-service/internal/export"
	"github.com/lakewatch/thermal-service/internal/filter"
	"github.com/lakewatch/thermal-service/internal/raster"
)

// Artifact kinds, also the keys of SceneMetadata.Artifacts.
const (
	ArtifactFilteredTIF = "filtered_tif"
	ArtifactRawTIF      = "raw_tif"
	ArtifactCSV         = "csv"
	ArtifactXLSX        = "xlsx"
	ArtifactPNGRelative = "png_relative"
	ArtifactPNGFixed    = "png_fixed"
	ArtifactPNGGray     = "png_gray"
	ArtifactMetadata    = "metadata"
)

const (
	contentTypeTIFF = "image/tiff"
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePNG  = "image/png"
	contentTypeJSON = "application/json"
)

// ArtifactOptions toggles optional outputs.
type ArtifactOptions struct {
	WriteRaw  bool
	WriteXLSX bool
	Deflate   bool
}

type artifact struct {
	kind        string
	filename    string
	contentType string
	data        []byte
}

// sceneNames derives artifact filenames for one scene.
type sceneNames struct {
	base   string // {feature}_{location}_{timestamp}
	suffix string // "" or "_wtoff"
}

func (n sceneNames) filtered(ext string) string {
	return n.base + "_filter" + n.suffix + "." + ext
}

func (n sceneNames) preview(mode raster.PreviewMode) string {
	return n.base + "_filter" + n.suffix + "_" + string(mode) + ".png"
}

func (n sceneNames) raw() string {
	return n.base + "_raw.tif"
}

func newSceneNames(featureID, location, timestamp string, waterOff bool) sceneNames {
	n := sceneNames{base: featureID + "_" + location + "_" + timestamp}
	if waterOff {
		n.suffix = "_wtoff"
	}
	return n
}

// renderArtifacts encodes every raster, table and preview output of a
// filtered scene. The metadata document is added by the caller once the
// storage keys are known.
func renderArtifacts(names sceneNames, l *filter.Layers, res *filter.Result, geo *raster.GeoRef, opts ArtifactOptions) ([]artifact, error) {
	enc := raster.EncodeOptions{Deflate: opts.Deflate}
	var out []artifact

	filtered, err := raster.Stack(l.Width, l.Height, geo,
		raster.Band{Name: "LST", Data: raster.Masked(l.LST, res.Kept)},
		raster.Band{Name: "LST_err", Data: raster.Masked(l.LSTErr, res.Kept)},
		raster.Band{Name: "QC", Data: raster.Masked(l.QC, res.Kept)},
		raster.Band{Name: "EmisWB", Data: raster.Masked(l.EmisWB, res.Kept)},
		raster.Band{Name: "height", Data: raster.Masked(l.Elevation, res.Kept)},
	)
	if err != nil {
		return nil, fmt.Errorf("stack filtered raster: %w", err)
	}
	var buf bytes.Buffer
	if err := raster.Encode(&buf, filtered, enc); err != nil {
		return nil, fmt.Errorf("encode filtered raster: %w", err)
	}
	out = append(out, artifact{ArtifactFilteredTIF, names.filtered("tif"), contentTypeTIFF, buf.Bytes()})

	if opts.WriteRaw {
		raw, err := raster.Stack(l.Width, l.Height, geo,
			raster.Band{Name: "LST", Data: l.LST},
			raster.Band{Name: "LST_err", Data: l.LSTErr},
			raster.Band{Name: "QC", Data: l.QC},
			raster.Band{Name: "water", Data: l.Water},
			raster.Band{Name: "cloud", Data: l.Cloud},
			raster.Band{Name: "EmisWB", Data: l.EmisWB},
			raster.Band{Name: "height", Data: l.Elevation},
		)
		if err != nil {
			return nil, fmt.Errorf("stack raw raster: %w", err)
		}
		var rawBuf bytes.Buffer
		if err := raster.Encode(&rawBuf, raw, enc); err != nil {
			return nil, fmt.Errorf("encode raw raster: %w", err)
		}
		out = append(out, artifact{ArtifactRawTIF, names.raw(), contentTypeTIFF, rawBuf.Bytes()})
	}

	points := export.Points(l, res, geo)
	var csvBuf bytes.Buffer
	if err := export.WriteCSV(&csvBuf, points); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	out = append(out, artifact{ArtifactCSV, names.filtered("csv"), contentTypeCSV, csvBuf.Bytes()})

	if opts.WriteXLSX {
		book, err := export.XLSX(points)
		if err != nil {
			return nil, fmt.Errorf("write xlsx: %w", err)
		}
		out = append(out, artifact{ArtifactXLSX, names.filtered("xlsx"), contentTypeXLSX, book})
	}

	lst := raster.Masked(l.LST, res.Kept)
	for _, p := range []struct {
		kind string
		mode raster.PreviewMode
	}{
		{ArtifactPNGRelative, raster.PreviewRelative},
		{ArtifactPNGFixed, raster.PreviewFixed},
		{ArtifactPNGGray, raster.PreviewGray},
	} {
		var png bytes.Buffer
		if err := raster.WritePNG(&png, lst, l.Width, l.Height, p.mode); err != nil {
			return nil, fmt.Errorf("render %s preview: %w", p.mode, err)
		}
		out = append(out, artifact{p.kind, names.preview(p.mode), contentTypePNG, png.Bytes()})
	}
	return out, nil
}
