package pipeline

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

var (
	areaIDRe    = regexp.MustCompile(`aid(\d{4})`)
	timestampRe = regexp.MustCompile(`doy(\d{13})`)
)

// ParseFilename extracts the area id and acquisition timestamp from a
// provider raster filename.
func ParseFilename(name string) (areaID, timestamp string, err error) {
	a := areaIDRe.FindStringSubmatch(name)
	t := timestampRe.FindStringSubmatch(name)
	if a == nil || t == nil {
		return "", "", apperrors.ManifestParse(name)
	}
	return a[1], t[1], nil
}

// SceneID is the work item key of one (area, acquisition) pair.
func SceneID(areaID, timestamp string) string {
	return areaID + "_" + timestamp
}

func isRaster(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".tif" || ext == ".tiff"
}

// GroupScenes groups the raster files of a bundle by scene, sorted by scene
// id. Non-raster entries are ignored; rasters whose names lack either token
// are returned as skipped.
func GroupScenes(requestID string, bundle *provider.Bundle) (scenes []taskqueue.ScenePayload, skipped []string) {
	byID := make(map[string]*taskqueue.ScenePayload)
	for _, f := range bundle.Files {
		if !isRaster(f.FileName) {
			continue
		}
		areaID, ts, err := ParseFilename(f.FileName)
		if err != nil {
			skipped = append(skipped, f.FileName)
			continue
		}
		id := SceneID(areaID, ts)
		s, ok := byID[id]
		if !ok {
			s = &taskqueue.ScenePayload{
				RequestID: requestID,
				TaskID:    bundle.TaskID,
				SceneID:   id,
				AreaID:    areaID,
				Timestamp: ts,
			}
			byID[id] = s
		}
		s.Files = append(s.Files, taskqueue.SceneFile{FileID: f.FileID, FileName: f.FileName})
	}

	scenes = make([]taskqueue.ScenePayload, 0, len(byID))
	for _, s := range byID {
		sort.Slice(s.Files, func(i, j int) bool { return s.Files[i].FileName < s.Files[j].FileName })
		scenes = append(scenes, *s)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].SceneID < scenes[j].SceneID })
	return scenes, skipped
}
