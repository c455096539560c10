package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const idTimeLayout = "20060102_150405"

// NewJobID returns job_YYYYmmdd_HHMMSS_<8 hex>, so lexical order follows creation time.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "job_" + now.UTC().Format(idTimeLayout) + "_" + suffix
}

// JobIDTime extracts the creation time encoded in a job id.
func JobIDTime(jobID string) (time.Time, bool) {
	parts := strings.Split(jobID, "_")
	if len(parts) != 4 || parts[0] != "job" {
		return time.Time{}, false
	}
	t, err := time.Parse(idTimeLayout, parts[1]+"_"+parts[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
