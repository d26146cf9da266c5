package models

import "time"

// SiteReport summarizes one site's pass through the pipeline.
type SiteReport struct {
	Brand             string        `json:"brand"`
	Source            string        `json:"source"`
	Mode              string        `json:"mode"`
	Extracted         int           `json:"extracted"`
	Mapped            int           `json:"mapped"`
	Skipped           int           `json:"skipped"`
	PagesFailed       int           `json:"pages_failed"`
	EmbeddingsMissing int           `json:"embeddings_missing"`
	Upserted          int           `json:"upserted"`
	Duration          time.Duration `json:"duration_ms"`
	Err               string        `json:"error,omitempty"`
	// FatalErr carries a run-stopping store error; it never serializes.
	FatalErr error `json:"-"`
}

// RunReport aggregates site reports for a full ingestion run.
type RunReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Sites      []SiteReport  `json:"sites"`
	Total      int           `json:"total"`
	Duration   time.Duration `json:"duration_ms"`
}

// Add appends a site report and updates run totals.
func (r *RunReport) Add(site SiteReport) {
	r.Sites = append(r.Sites, site)
	r.Total += site.Upserted
}
