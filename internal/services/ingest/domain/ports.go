package domain

import "context"

// SubmitterPort runs a candidate through the full admission pipeline.
// The error return is reserved for infrastructure failures (storage writes);
// ordinary rejections are expressed in the Decision
type SubmitterPort interface {
	Submit(ctx context.Context, c CandidateReport) (Decision, error)
}
