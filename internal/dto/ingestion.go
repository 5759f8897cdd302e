package dto

import (
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// Ingestion modes select the adapter capability.
const (
	IngestionModeMarkup      = "markup"
	IngestionModeInteractive = "interactive"
	IngestionModeDocument    = "document"
)

// IngestionRequest triggers a scrape of one institution for a term.
type IngestionRequest struct {
	InstitutionID string `json:"institutionId" yaml:"institutionId" validate:"required"`
	Year          int    `json:"year" yaml:"year" validate:"required,min=2000,max=2100"`
	Term          string `json:"term" yaml:"term" validate:"required"`
	SourceURL     string `json:"sourceUrl" yaml:"sourceUrl" validate:"required,url"`
	Mode          string `json:"mode" yaml:"mode" validate:"required,oneof=markup interactive"`
}

// DocumentIngestionRequest carries the form fields of a document upload.
type DocumentIngestionRequest struct {
	InstitutionID string `form:"institutionId" json:"institutionId" validate:"required"`
	Year          int    `form:"year" json:"year" validate:"required,min=2000,max=2100"`
	Term          string `form:"term" json:"term" validate:"required"`
}

// IngestionResponse is returned from a saving ingestion.
type IngestionResponse struct {
	Catalog       *catalog.Catalog `json:"catalog"`
	InsertedCount int              `json:"insertedCount"`
	UpdatedCount  int              `json:"updatedCount"`
	FailedCount   int              `json:"failedCount"`
}

// PreviewResponse returns a scraped catalog with its data-quality report and nothing saved.
type PreviewResponse struct {
	Catalog *catalog.Catalog `json:"catalog"`
	Report  catalog.Report   `json:"report"`
}

// JobAcceptedResponse acknowledges an asynchronous ingestion.
type JobAcceptedResponse struct {
	JobID  string                    `json:"jobId"`
	Status models.IngestionJobStatus `json:"status"`
}
