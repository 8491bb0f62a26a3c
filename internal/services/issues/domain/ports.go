package domain

import (
	"context"
	"time"
)

// ReaderPort queries the issue store read projection
type ReaderPort interface {
	// Nearby returns open issues of the category created within window and
	// inside a bounding box around the point. Callers apply the exact
	// distance metric; the box is only a prefilter
	Nearby(ctx context.Context, category Category, lat, lng, radiusM float64, window time.Duration) ([]NearbySummary, error)
}

// WriterPort is the write path an accepted report feeds into
type WriterPort interface {
	Insert(ctx context.Context, r Report) (int64, error)
}
