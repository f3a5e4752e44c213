package detect

import (
	"context"
	"time"

	"github.com/formward/formward/pkg/model"
	"github.com/formward/formward/pkg/store"
)

// DuplicateDetector flags resubmissions of an already-logged payload from
// the same submitter on the same form. Matching is exact: the payload hash
// must be byte-identical, so trivially mutated content is not caught.
type DuplicateDetector struct {
	logs   store.LogStore
	window time.Duration
}

const DefaultDuplicateWindow = 24 * time.Hour

func NewDuplicateDetector(logs store.LogStore, window time.Duration) *DuplicateDetector {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateDetector{logs: logs, window: window}
}

// Check looks for sub's payload hash among logged submissions inside the
// lookback window. A store failure means no verdict, never a false positive.
func (d *DuplicateDetector) Check(ctx context.Context, sub *model.Submission, formID, submitterKey string) (model.DetectorResult, error) {
	res := model.DetectorResult{Check: "duplicate"}
	if d.logs == nil || sub.Empty() {
		return res, nil
	}
	hash := sub.PayloadHash()
	since := time.Now().Add(-d.window)
	hashes, err := d.logs.FindRecentHashes(ctx, formID, submitterKey, since)
	if err != nil {
		return res, err
	}
	for _, h := range hashes {
		if h == hash {
			res.Detected = true
			res.Score = 100
			res.Reason = "identical submission seen within lookback window"
			res.Evidence = map[string]any{
				"payload_hash": hash,
				"window":       d.window.String(),
			}
			break
		}
	}
	return res, nil
}
