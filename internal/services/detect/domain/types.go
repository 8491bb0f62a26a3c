// Package domain defines the core types and interfaces for the detect service
package domain

import "time"

// Verdict is the binary outcome of running a policy over an image
type Verdict string

// Verdict values
const (
	VerdictPositive Verdict = "positive"
	VerdictNegative Verdict = "negative"
)

// Score is one raw classifier label score, validated at the boundary
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detection is a policy label that survived thresholding.
// Box stays empty: zero-shot classification yields no localization
type Detection struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

// Result is what a detection run produces. Degraded marks a run where the
// classifier was unreachable or returned garbage and the verdict fell back
// to negative — the fail-open contract made visible in the type
type Result struct {
	Verdict    Verdict     `json:"verdict"`
	Detections []Detection `json:"detections"`
	Degraded   bool        `json:"degraded,omitempty"`
	ComputedAt time.Time   `json:"computed_at"`
}

// Positive reports whether the verdict is positive
func (r Result) Positive() bool { return r.Verdict == VerdictPositive }

// Policy names a label vocabulary and the thresholding rule applied to it
type Policy struct {
	Name      string
	Labels    []string // full candidate vocabulary sent to the classifier
	Positive  []string // labels that count toward a positive verdict
	Threshold float64  // scores must exceed this to survive
}

// VandalismPolicy is the default vocabulary for vandalism reports
func VandalismPolicy(threshold float64) Policy {
	return Policy{
		Name: "vandalism",
		Labels: []string{
			"graffiti", "vandalism", "spray paint", "street art",
			"clean wall", "public property", "normal street",
		},
		Positive:  []string{"graffiti", "vandalism", "spray paint"},
		Threshold: threshold,
	}
}

// FloodingPolicy is the default vocabulary for flooding reports
func FloodingPolicy(threshold float64) Policy {
	return Policy{
		Name: "flooding",
		Labels: []string{
			"flooding", "waterlogged street", "standing water", "flooded road",
			"dry street", "normal street", "puddle",
		},
		Positive:  []string{"flooding", "waterlogged street", "standing water", "flooded road"},
		Threshold: threshold,
	}
}
