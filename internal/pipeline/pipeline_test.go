package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/raster"
	"github.com/lakewatch/thermal-service/internal/regions"
)

const testRegions = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "Bled", "location": "lake"},
     "geometry": {"type": "Polygon", "coordinates": [[[14.08,46.36],[14.10,46.36],[14.10,46.37],[14.08,46.36]]]}},
    {"type": "Feature", "properties": {"name": "Bohinj", "location": "lake"},
     "geometry": {"type": "Polygon", "coordinates": [[[13.85,46.27],[13.90,46.27],[13.90,46.29],[13.85,46.27]]]}},
    {"type": "Feature", "properties": {"name": "Cerknica", "location": "lake"},
     "geometry": {"type": "Polygon", "coordinates": [[[14.33,45.74],[14.40,45.74],[14.40,45.78],[14.33,45.74]]]}}
  ]
}`

func testCatalog(t *testing.T) *regions.Catalog {
	t.Helper()
	c, err := regions.Parse([]byte(testRegions))
	require.NoError(t, err)
	return c
}

// fakeProvider is an in-memory extraction provider.
type fakeProvider struct {
	mu       sync.Mutex
	statuses []string
	statusIx int
	bundles  map[string]*provider.Bundle
	files    map[string][]byte
	submits  []provider.TaskRequest
	taskID   string

	statusErr   error
	bundleErr   error
	downloadErr error
	statusCalls int
	downloads   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		taskID:  "task-1",
		bundles: make(map[string]*provider.Bundle),
		files:   make(map[string][]byte),
	}
}

func (f *fakeProvider) SubmitTask(_ context.Context, task provider.TaskRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, task)
	return f.taskID, nil
}

func (f *fakeProvider) TaskStatus(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if len(f.statuses) == 0 {
		return provider.StatusProcessing, nil
	}
	s := f.statuses[min(f.statusIx, len(f.statuses)-1)]
	f.statusIx++
	return s, nil
}

func (f *fakeProvider) Bundle(_ context.Context, taskID string) (*provider.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bundleErr != nil {
		return nil, f.bundleErr
	}
	b, ok := f.bundles[taskID]
	if !ok {
		return nil, apperrors.NotFound("bundle %s not found", taskID)
	}
	return b, nil
}

func (f *fakeProvider) Download(_ context.Context, _ string, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.files[fileID]
	if !ok {
		return nil, apperrors.NotFound("file %s not found", fileID)
	}
	return data, nil
}

// addFile registers a provider file and lists it in the task's bundle.
func (f *fakeProvider) addFile(t *testing.T, taskID, name string, data []byte) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bundles[taskID]
	if !ok {
		b = &provider.Bundle{TaskID: taskID}
		f.bundles[taskID] = b
	}
	id := fmt.Sprintf("file-%d", len(f.files)+1)
	f.files[id] = data
	b.Files = append(b.Files, provider.BundleFile{FileID: id, FileName: name})
}

type enqueued struct {
	taskType string
	payload  json.RawMessage
}

// fakeEnqueuer records queued work items.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	err   error
}

func (q *fakeEnqueuer) Enqueue(_ context.Context, taskType string, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	q.tasks = append(q.tasks, enqueued{taskType: taskType, payload: data})
	return fmt.Sprintf("q-%d", len(q.tasks)), nil
}

func (q *fakeEnqueuer) ofType(taskType string) []json.RawMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []json.RawMessage
	for _, task := range q.tasks {
		if task.taskType == taskType {
			out = append(out, task.payload)
		}
	}
	return out
}

var testGeo = &raster.GeoRef{
	PixelScale: []float64{0.01, 0.01, 0},
	Tiepoint:   []float64{0, 0, 0, 14.08, 46.37, 0},
	GeoKeys:    []uint16{1, 1, 0, 1, 1024, 0, 1, 2},
}

func layerTIFF(t *testing.T, w, h int, data []float64) []byte {
	t.Helper()
	r, err := raster.Stack(w, h, testGeo, raster.Band{Name: "band_1", Data: data})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, r, raster.EncodeOptions{}))
	return buf.Bytes()
}

// sceneLayers is a 2x2 scene: three water pixels and one land pixel.
type sceneLayers map[string][]float64

func goodScene() sceneLayers {
	return sceneLayers{
		LayerLST:       {290, 291, 292, 293},
		LayerLSTErr:    {0.5, 0.5, 0.5, 0.5},
		LayerQC:        {0, 1, 0, 0},
		LayerWater:     {1, 1, 1, 0},
		LayerCloud:     {0, 0, 0, 0},
		LayerEmisWB:    {0.98, 0.98, 0.98, 0.97},
		LayerElevation: {475, 475, 475, 480},
	}
}

// layerFileNames mirrors the provider's naming scheme.
var layerFileNames = map[string]string{
	LayerLST:       "LST",
	LayerLSTErr:    "LST_err",
	LayerQC:        "QC",
	LayerWater:     "water",
	LayerCloud:     "cloud",
	LayerEmisWB:    "EmisWB",
	LayerElevation: "height",
}

// addScene uploads a scene's layers for areaID at timestamp, omitting the
// listed layer tokens.
func (f *fakeProvider) addScene(t *testing.T, taskID, areaID, timestamp string, layers sceneLayers, omit ...string) {
	t.Helper()
	skip := make(map[string]bool)
	for _, o := range omit {
		skip[o] = true
	}
	for _, token := range LayerTokens {
		if skip[token] {
			continue
		}
		name := fmt.Sprintf("ECO_L2T_LSTE.002_%s_doy%s_aid%s.tif", layerFileNames[token], timestamp, areaID)
		f.addFile(t, taskID, name, layerTIFF(t, 2, 2, layers[token]))
	}
}

func TestWithRetryRetriesOnlyTransient(t *testing.T) {
	ctx := context.Background()
	calls := 0
	out, err := withRetry(ctx, Retry{Attempts: 3}, "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, apperrors.TransientProvider(errors.New("503"), "status")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 3, calls)

	calls = 0
	_, err = withRetry(ctx, Retry{Attempts: 3}, "op", func(context.Context) (int, error) {
		calls++
		return 0, apperrors.NotFound("gone")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = withRetry(ctx, Retry{Attempts: 2}, "op", func(context.Context) (int, error) {
		calls++
		return 0, apperrors.TransientProvider(errors.New("timeout"), "status")
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 2, calls)
}

// testClock is a settable clock shared by the components under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 16, 6, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
