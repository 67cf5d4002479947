// Package model defines the domain types shared across the enrichment pipeline.
package model

import (
	"strings"
	"time"
)

// LeadStatus is the coarse lifecycle tag of a lead.
type LeadStatus string

const (
	LeadStatusPending    LeadStatus = "pending"
	LeadStatusProcessing LeadStatus = "processing"
	LeadStatusCompleted  LeadStatus = "completed"
	LeadStatusFailed     LeadStatus = "failed"
)

// Terminal reports whether no further stage will run for the lead.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusCompleted || s == LeadStatusFailed
}

// LeadInput is one scraped profile as submitted by the browser extension.
type LeadInput struct {
	FullName   string `json:"fullName"`
	Company    string `json:"company"`
	Title      string `json:"title,omitempty"`
	Location   string `json:"location,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// Normalize trims whitespace on every field.
func (in LeadInput) Normalize() LeadInput {
	return LeadInput{
		FullName:   strings.Join(strings.Fields(in.FullName), " "),
		Company:    strings.Join(strings.Fields(in.Company), " "),
		Title:      strings.TrimSpace(in.Title),
		Location:   strings.TrimSpace(in.Location),
		ProfileURL: strings.TrimSpace(in.ProfileURL),
	}
}

// Valid reports whether the input carries the two fields the pipeline needs.
func (in LeadInput) Valid() bool {
	return strings.TrimSpace(in.FullName) != "" && strings.TrimSpace(in.Company) != ""
}

// Lead is one person/company record moving through the pipeline.
type Lead struct {
	ID           string     `json:"id"`
	FileID       string     `json:"file_id"`
	FullName     string     `json:"full_name"`
	Company      string     `json:"company"`
	Title        string     `json:"title,omitempty"`
	Location     string     `json:"location,omitempty"`
	LinkedInURL  string     `json:"linkedin_url,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	CEOName      string     `json:"ceo_name,omitempty"`
	Email        string     `json:"email,omitempty"`
	EmailPattern string     `json:"email_pattern,omitempty"`
	EmailStatus  string     `json:"email_status,omitempty"`
	Status       LeadStatus `json:"status"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// EmailVerified reports whether the stored email was confirmed deliverable.
func (l *Lead) EmailVerified() bool {
	return l.Email != "" && l.EmailStatus == EmailStatusValid
}

// EmailStatusValid is the verification status of a deliverable address.
const EmailStatusValid = "valid"

// EmailResult is the derived email data written by the email stage.
type EmailResult struct {
	Email      string  `json:"email"`
	Pattern    string  `json:"pattern"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
}
