package model

import "time"

// File is a named batch of leads created together.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TotalLeads int       `json:"total_leads"`
	CreatedAt  time.Time `json:"created_at"`
}

// FileSummary is a file with its live lead aggregates.
type FileSummary struct {
	File
	Stats FileStats `json:"stats"`
}

// FileStats is computed from lead rows on demand and never stored.
type FileStats struct {
	CurrentTotal int `json:"current_total"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	Pending      int `json:"pending"`
	Processing   int `json:"processing"`
	WithCEO      int `json:"with_ceo"`
}

// Done reports whether every lead of the file reached a terminal state.
func (s FileStats) Done() bool {
	return s.CurrentTotal > 0 && s.Completed+s.Failed == s.CurrentTotal
}
