// Package domain defines the duplicate-check contract
package domain

import (
	"context"
	"time"

	issuedom "civicpulse/internal/services/issues/domain"
)

// Outcome is the advisory result of a duplicate check. It never blocks
// submission by itself; the caller decides what to do with a likely match
type Outcome struct {
	Likely    bool      `json:"likely_duplicate"`
	IssueID   int64     `json:"issue_id,omitempty"`
	DistanceM float64   `json:"distance_m,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// CheckerPort decides whether a new report likely duplicates a recent
// nearby open issue of the same category. Store failures degrade to a
// not-a-duplicate outcome
type CheckerPort interface {
	Check(ctx context.Context, category issuedom.Category, lat, lng float64) Outcome
}
