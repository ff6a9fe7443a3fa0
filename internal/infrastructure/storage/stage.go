package storage

import (
	"fmt"
	"strings"
)

// StagePath builds the stage sink path for record globalIndex of job
// jobID's entityType, per spec.md §6: "stage/<jobId>/<entityType>_<0-padded
// 4+ digit index>.json".
func StagePath(jobID, entityType string, globalIndex int) string {
	return fmt.Sprintf("stage/%s/%s_%04d.json", jobID, strings.ToLower(entityType), globalIndex)
}

// StageDir returns the directory prefix holding a job's staged artifacts.
func StageDir(jobID string) string {
	return fmt.Sprintf("stage/%s", jobID)
}
