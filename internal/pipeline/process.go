package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/filter"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/raster"
	"github.com/lakewatch/thermal-service/internal/regions"
	"github.com/lakewatch/thermal-service/internal/storage"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
	"github.com/lakewatch/thermal-service/internal/telemetry"
)

// Layer tokens as they appear in provider filenames.
const (
	LayerLST       = "LST_doy"
	LayerLSTErr    = "LST_err"
	LayerQC        = "QC"
	LayerWater     = "water"
	LayerCloud     = "cloud"
	LayerEmisWB    = "EmisWB"
	LayerElevation = "height"
)

// LayerTokens lists the layers every scene must provide.
var LayerTokens = []string{LayerLST, LayerLSTErr, LayerQC, LayerWater, LayerCloud, LayerEmisWB, LayerElevation}

// ProcessorConfig controls scene processing.
type ProcessorConfig struct {
	CollectionPrefix string
	MaxInvalidRatio  float64
	Artifacts        ArtifactOptions
	Retry            Retry
}

// Processor turns one scene's layer rasters into filtered artifacts,
// statistics and a metadata row.
type Processor struct {
	store   ledger.Ledger
	api     provider.API
	objects storage.Storage
	regions *regions.Catalog
	cfg     ProcessorConfig
	now     func() time.Time
}

func NewProcessor(store ledger.Ledger, api provider.API, objects storage.Storage, catalog *regions.Catalog, cfg ProcessorConfig) *Processor {
	if cfg.MaxInvalidRatio <= 0 {
		cfg.MaxInvalidRatio = 0.9
	}
	return &Processor{store: store, api: api, objects: objects, regions: catalog, cfg: cfg, now: time.Now}
}

// SceneOutcome reports what processing one scene produced.
type SceneOutcome struct {
	SceneID    string            `json:"sceneId"`
	FeatureID  string            `json:"featureId"`
	Skipped    string            `json:"skipped,omitempty"`
	Stats      filter.Stats      `json:"stats"`
	WaterOff   bool              `json:"wtoff"`
	Artifacts  map[string]string `json:"artifacts,omitempty"`
	DurationMs int64             `json:"durationMs"`
}

// Process runs one scene attempt. Each call records its own job; the
// metadata row and artifacts are overwritten, so a redelivered scene ends
// in the same state as a single delivery.
func (p *Processor) Process(ctx context.Context, s taskqueue.ScenePayload) (*SceneOutcome, error) {
	ctx, span := tracer.Start(ctx, "pipeline.ProcessScene")
	defer span.End()
	span.SetAttributes(
		attribute.String("scene_id", s.SceneID),
		attribute.String("request_id", s.RequestID),
		attribute.String("task_id", s.TaskID),
	)

	started := p.now()
	taskID := s.TaskID
	date := s.Timestamp

	region, ok := p.regions.Lookup(s.AreaID)
	if !ok {
		msg := fmt.Sprintf("area %s is not in the region catalog", s.AreaID)
		featureID := "area_" + s.AreaID
		now := p.now()
		if err := p.store.AppendJob(ctx, &database.JobRecord{
			RequestID:    s.RequestID,
			JobType:      database.JobProcess,
			TaskID:       &taskID,
			FeatureID:    &featureID,
			Date:         &date,
			Status:       database.JobFailed,
			StartedAt:    now,
			CompletedAt:  &now,
			ErrorMessage: &msg,
		}); err != nil {
			return nil, fmt.Errorf("append job: %w", err)
		}
		recordScene("failed", 0, -1)
		return nil, apperrors.Validation("scene %s: %s", s.SceneID, msg)
	}
	span.SetAttributes(attribute.String("feature_id", region.FeatureID))

	logger := log.With().
		Str("component", "processor").
		Str("request_id", s.RequestID).
		Str("scene_id", s.SceneID).
		Str("feature_id", region.FeatureID).
		Logger()

	featureID := region.FeatureID
	job := &database.JobRecord{
		RequestID: s.RequestID,
		JobType:   database.JobProcess,
		TaskID:    &taskID,
		FeatureID: &featureID,
		Date:      &date,
	}
	if err := p.store.StartJob(ctx, job); err != nil {
		return nil, fmt.Errorf("start process job: %w", err)
	}

	out, err := p.process(ctx, s, region, logger)
	elapsed := p.now().Sub(started)
	if err != nil {
		telemetry.Fail(span, err, "scene processing failed")
		recordScene("failed", elapsed, -1)
		logger.Error().Err(err).Msg("Scene processing failed")
		if ferr := p.store.FinishJob(ctx, job.ID, database.JobFailed, err.Error(), nil); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to finish process job")
		}
		return nil, apperrors.SceneProcessing(s.SceneID, err)
	}
	out.DurationMs = elapsed.Milliseconds()

	meta, _ := json.Marshal(out)
	if err := p.store.FinishJob(ctx, job.ID, database.JobSuccess, "", meta); err != nil {
		return nil, fmt.Errorf("finish process job: %w", err)
	}

	ratio := 0.0
	if out.Stats.Total > 0 {
		ratio = float64(out.Stats.Valid) / float64(out.Stats.Total)
	}
	if out.Skipped != "" {
		recordScene("skipped", elapsed, ratio)
		logger.Info().Str("reason", out.Skipped).Msg("Scene skipped")
	} else {
		recordScene("success", elapsed, ratio)
		logger.Info().Int("valid_pixels", out.Stats.Valid).Int("artifacts", len(out.Artifacts)).
			Dur("duration", elapsed).Msg("Scene processed")
	}
	return out, nil
}

func (p *Processor) process(ctx context.Context, s taskqueue.ScenePayload, region regions.Region, logger zerolog.Logger) (*SceneOutcome, error) {
	layers, geo, err := p.loadLayers(ctx, s)
	if err != nil {
		return nil, err
	}

	res, err := filter.Apply(layers)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	stats := res.Stats
	if stats.Valid == 0 {
		// Moments of an empty scene are NaN, which JSON cannot carry.
		stats = filter.Stats{Total: stats.Total}
	}
	out := &SceneOutcome{SceneID: s.SceneID, FeatureID: region.FeatureID, Stats: stats, WaterOff: res.WaterOff}

	if reason := skipReason(res, p.cfg.MaxInvalidRatio); reason != "" {
		out.Skipped = reason
		return out, nil
	}

	names := newSceneNames(region.FeatureID, region.Location, s.Timestamp, res.WaterOff)
	arts, err := renderArtifacts(names, layers, res, geo, p.cfg.Artifacts)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(arts)+1)
	for _, a := range arts {
		keys[a.kind] = storage.ArtifactKey(p.cfg.CollectionPrefix, region.FeatureID, region.Location, a.filename)
	}
	keys[ArtifactMetadata] = storage.MetadataKey(p.cfg.CollectionPrefix, region.FeatureID, region.Location, names.filtered("json"))

	md := &database.SceneMetadata{
		FeatureID:       region.FeatureID,
		Date:            s.Timestamp,
		Location:        region.Location,
		RequestID:       s.RequestID,
		TaskID:          s.TaskID,
		SceneID:         s.SceneID,
		MinTemp:         res.Stats.Min,
		MaxTemp:         res.Stats.Max,
		MeanTemp:        res.Stats.Mean,
		MedianTemp:      res.Stats.Median,
		StdDev:          res.Stats.StdDev,
		ValidPixels:     res.Stats.Valid,
		TotalPixels:     res.Stats.Total,
		WaterPixelCount: res.WaterPixels,
		LandPixelCount:  res.LandPixels,
		WaterOff:        res.WaterOff,
		Histogram:       res.Histogram.Labeled(),
		CSVPath:         keys[ArtifactCSV],
		TIFPath:         keys[ArtifactFilteredTIF],
		PNGPath:         keys[ArtifactPNGRelative],
		Artifacts:       keys,
	}
	doc, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata document: %w", err)
	}
	arts = append(arts, artifact{ArtifactMetadata, names.filtered("json"), contentTypeJSON, doc})

	written := p.now().UTC()
	for _, a := range arts {
		if err := p.objects.Put(ctx, keys[a.kind], a.data, &storage.Metadata{
			ContentType: a.contentType,
			FeatureID:   region.FeatureID,
			SceneID:     s.SceneID,
			TaskID:      s.TaskID,
			RequestID:   s.RequestID,
			WrittenAt:   written,
		}); err != nil {
			return nil, fmt.Errorf("upload %s: %w", a.filename, err)
		}
		logger.Debug().Str("key", keys[a.kind]).Int("bytes", len(a.data)).Msg("Artifact stored")
	}

	if err := p.store.UpsertSceneMetadata(ctx, md); err != nil {
		return nil, fmt.Errorf("upsert scene metadata: %w", err)
	}
	if err := p.store.UpsertFeature(ctx, &database.Feature{
		ID:         region.FeatureID,
		Name:       region.Name,
		Location:   region.Location,
		LatestDate: s.Timestamp,
	}); err != nil {
		return nil, fmt.Errorf("upsert feature: %w", err)
	}

	out.Artifacts = keys
	return out, nil
}

// skipReason applies the invalid-pixel rule: scenes whose raw temperatures
// or filtered pixels are mostly invalid produce no artifacts.
func skipReason(res *filter.Result, maxRatio float64) string {
	if r := res.RawInvalidRatio(); r > maxRatio {
		return fmt.Sprintf("raw invalid ratio %.3f exceeds %.2f", r, maxRatio)
	}
	if r := res.FilteredInvalidRatio(); r > maxRatio {
		return fmt.Sprintf("filtered invalid ratio %.3f exceeds %.2f", r, maxRatio)
	}
	if res.Stats.Valid == 0 {
		return "no valid pixels after filtering"
	}
	return ""
}

// loadLayers downloads and decodes the seven layer rasters of a scene.
func (p *Processor) loadLayers(ctx context.Context, s taskqueue.ScenePayload) (*filter.Layers, *raster.GeoRef, error) {
	files := make(map[string]taskqueue.SceneFile, len(LayerTokens))
	for _, token := range LayerTokens {
		file, ok := findLayer(s.Files, token)
		if !ok {
			return nil, nil, fmt.Errorf("missing layer %s", token)
		}
		files[token] = file
	}

	bands := make(map[string]*raster.Raster, len(LayerTokens))
	for _, token := range LayerTokens {
		file := files[token]
		data, err := withRetry(ctx, p.cfg.Retry, "download", func(ctx context.Context) ([]byte, error) {
			return p.api.Download(ctx, s.TaskID, file.FileID)
		})
		if err != nil {
			return nil, nil, fmt.Errorf("download %s: %w", file.FileName, err)
		}
		r, err := raster.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", file.FileName, err)
		}
		if len(r.Bands) == 0 {
			return nil, nil, fmt.Errorf("decode %s: no bands", file.FileName)
		}
		bands[token] = r
	}

	lst := bands[LayerLST]
	for token, r := range bands {
		if r.Width != lst.Width || r.Height != lst.Height {
			return nil, nil, fmt.Errorf("layer %s is %dx%d, LST is %dx%d", token, r.Width, r.Height, lst.Width, lst.Height)
		}
	}

	first := func(token string) []float64 { return bands[token].Bands[0].Data }
	return &filter.Layers{
		Width:     lst.Width,
		Height:    lst.Height,
		LST:       first(LayerLST),
		LSTErr:    first(LayerLSTErr),
		QC:        first(LayerQC),
		Water:     first(LayerWater),
		Cloud:     first(LayerCloud),
		EmisWB:    first(LayerEmisWB),
		Elevation: first(LayerElevation),
	}, lst.Geo, nil
}

func findLayer(files []taskqueue.SceneFile, token string) (taskqueue.SceneFile, bool) {
	for _, f := range files {
		if strings.Contains(f.FileName, token) {
			return f, true
		}
	}
	return taskqueue.SceneFile{}, false
}
