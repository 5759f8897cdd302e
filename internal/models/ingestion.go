package models

import "time"

// IngestionJobStatus tracks an asynchronous ingestion.
type IngestionJobStatus string

const (
	IngestionJobQueued    IngestionJobStatus = "queued"
	IngestionJobRunning   IngestionJobStatus = "running"
	IngestionJobSucceeded IngestionJobStatus = "succeeded"
	IngestionJobFailed    IngestionJobStatus = "failed"
)

// IngestionCounts summarises an upsert batch.
type IngestionCounts struct {
	InsertedCount int `json:"insertedCount"`
	UpdatedCount  int `json:"updatedCount"`
	TotalCount    int `json:"totalCount"`
	FailedCount   int `json:"failedCount"`
}

// IngestionJob is the status record of an asynchronous ingestion.
type IngestionJob struct {
	ID            string             `json:"jobId"`
	InstitutionID string             `json:"institutionId"`
	Mode          string             `json:"mode"`
	Year          int                `json:"year"`
	Term          string             `json:"term"`
	SourceURL     string             `json:"sourceUrl"`
	Status        IngestionJobStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	Counts        *IngestionCounts   `json:"counts,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	FinishedAt    *time.Time         `json:"finishedAt,omitempty"`
}
