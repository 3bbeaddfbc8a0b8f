package ledger

import (
	"github.com/lakewatch/thermal-service/internal/database"
)

// SceneKey identifies a scene in the job ledger.
type SceneKey struct {
	FeatureID string
	Date      string
}

// Progress summarizes the process jobs of a request.
type Progress struct {
	Expected  *int `json:"expected"`
	Terminal  int  `json:"terminal"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Running   int  `json:"running"`
}

// SceneOutcome is the state of one scene across all its process attempts.
type SceneOutcome struct {
	// Finished is the latest success or failed attempt, nil while no attempt
	// has finished.
	Finished *database.JobRecord
	// Latest is the latest attempt of any status.
	Latest database.JobRecord
}

// SceneOutcomes folds the process attempts of each scene. A scene stays
// finished once any attempt finished, so a redelivered attempt that is still
// running never reopens it.
func SceneOutcomes(jobs []database.JobRecord) map[SceneKey]SceneOutcome {
	out := make(map[SceneKey]SceneOutcome)
	for i := range jobs {
		j := jobs[i]
		if j.JobType != database.JobProcess || j.FeatureID == nil || j.Date == nil {
			continue
		}
		key := SceneKey{FeatureID: *j.FeatureID, Date: *j.Date}
		o, seen := out[key]
		if !seen || j.ID > o.Latest.ID {
			o.Latest = j
		}
		if j.Status == database.JobSuccess || j.Status == database.JobFailed {
			if o.Finished == nil || j.ID > o.Finished.ID {
				o.Finished = &j
			}
		}
		out[key] = o
	}
	return out
}

// Summarize counts each scene once, by its latest finished attempt.
func Summarize(req *database.ProcessingRequest, jobs []database.JobRecord) Progress {
	p := Progress{Expected: req.SceneCount}
	for _, o := range SceneOutcomes(jobs) {
		if o.Finished == nil {
			p.Running++
			continue
		}
		p.Terminal++
		if o.Finished.Status == database.JobSuccess {
			p.Succeeded++
		} else {
			p.Failed++
		}
	}
	return p
}

// DeriveStatus computes a request's status from the request row and the job
// records it owns.
func DeriveStatus(req *database.ProcessingRequest, jobs []database.JobRecord) database.RequestStatus {
	if req.ErrorMessage != nil && *req.ErrorMessage != "" {
		return database.StatusFailed
	}

	if req.ExternalTaskID == nil || *req.ExternalTaskID == "" {
		var lastSubmit *database.JobRecord
		for i := range jobs {
			j := &jobs[i]
			if j.JobType == database.JobSubmit && (lastSubmit == nil || j.ID > lastSubmit.ID) {
				lastSubmit = j
			}
		}
		if lastSubmit != nil && lastSubmit.Status == database.JobFailed {
			return database.StatusFailed
		}
		return database.StatusPending
	}

	if req.SceneCount == nil {
		return database.StatusSubmitted
	}

	p := Summarize(req, jobs)
	if p.Terminal < *req.SceneCount {
		return database.StatusProcessing
	}
	if p.Failed > 0 {
		return database.StatusCompletedWithErrors
	}
	return database.StatusCompleted
}
