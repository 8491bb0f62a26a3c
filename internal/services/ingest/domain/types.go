// Package domain defines the submission pipeline types
package domain

import (
	"time"

	dedupdom "civicpulse/internal/services/dedup/domain"
	detectdom "civicpulse/internal/services/detect/domain"
	issuedom "civicpulse/internal/services/issues/domain"
)

// Stage is a step of the submission state machine
type Stage string

// Pipeline stages in order; rejections at RateChecked or Validated
// short-circuit straight to Decided
const (
	StageReceived     Stage = "received"
	StageRateChecked  Stage = "rate_checked"
	StageValidated    Stage = "validated"
	StageClassified   Stage = "classified"
	StageDedupChecked Stage = "dedup_checked"
	StageDecided      Stage = "decided"
)

// RejectReason says why a submission was turned away
type RejectReason string

// Reject reasons; only admission and validation produce them
const (
	RejectRateLimited     RejectReason = "rate_limited"
	RejectTooLarge        RejectReason = "too_large"
	RejectUnknownType     RejectReason = "unknown_type"
	RejectUnsupportedType RejectReason = "unsupported_type"
	RejectCorruptImage    RejectReason = "corrupt_image"
)

// CandidateReport is the transient, per-request submission payload. It is
// created when the request arrives and discarded once the pipeline decides;
// persistence of accepted reports is the issue store's job
type CandidateReport struct {
	Description string
	Category    issuedom.Category
	Latitude    *float64
	Longitude   *float64

	Image        []byte
	DeclaredType string
	Filename     string

	UserKey   string // identity for the per-user limiter
	IPKey     string // identity for the per-IP limiter
	UserEmail string
	Source    string
}

// HasPhoto reports whether the submission carries image bytes
func (c CandidateReport) HasPhoto() bool { return len(c.Image) > 0 }

// HasLocation reports whether both coordinates are present
func (c CandidateReport) HasLocation() bool { return c.Latitude != nil && c.Longitude != nil }

// ImageMeta describes the normalized photo attached to a decision
type ImageMeta struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	MIME        string `json:"mime_type"`
	Bytes       int    `json:"bytes"`
	Fingerprint string `json:"fingerprint"`
	Resized     bool   `json:"resized,omitempty"`
}

// Rejection carries the reason a submission was refused. RetryAfter is only
// set for rate-limit rejections
type Rejection struct {
	Reason     RejectReason  `json:"reason"`
	Detail     string        `json:"detail,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// Decision is the pipeline's sole output. A positive detection or a likely
// duplicate is informational; neither rejects the submission on its own
type Decision struct {
	SubmissionID string            `json:"submission_id"`
	Accepted     bool              `json:"accepted"`
	Stage        Stage             `json:"stage"`
	Rejection    *Rejection        `json:"rejection,omitempty"`
	ReportID     *int64            `json:"report_id,omitempty"`
	Image        *ImageMeta        `json:"image,omitempty"`
	Detection    *detectdom.Result `json:"detection,omitempty"`
	Dedup        *dedupdom.Outcome `json:"dedup,omitempty"`
}
