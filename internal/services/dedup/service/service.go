// Package service implements the duplicate checker over the issue store
// read projection
package service

import (
	"context"
	"time"

	"civicpulse/internal/core/geo"
	"civicpulse/internal/platform/logger"
	"civicpulse/internal/services/dedup/domain"
	issuedom "civicpulse/internal/services/issues/domain"
)

// Config bounds what counts as a duplicate
type Config struct {
	RadiusM float64       // default 100 m
	Window  time.Duration // default 24h
}

// Service implements domain.CheckerPort
type Service struct {
	reader issuedom.ReaderPort
	cfg    Config
}

var _ domain.CheckerPort = (*Service)(nil)

// New constructs the checker
func New(reader issuedom.ReaderPort, cfg Config) *Service {
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Service{reader: reader, cfg: cfg}
}

// Check queries recent open issues of the category near the point and picks
// the closest within the radius, ties broken by most recent created_at.
// A store failure degrades to New: duplicate suppression is a quality-of-life
// feature, never a reason to block submission
func (s *Service) Check(ctx context.Context, category issuedom.Category, lat, lng float64) domain.Outcome {
	candidates, err := s.reader.Nearby(ctx, category, lat, lng, s.cfg.RadiusM, s.cfg.Window)
	if err != nil {
		logger.C(ctx).Warn().Err(err).
			Str("category", string(category)).
			Msg("dedup lookup failed, assuming new issue")
		return domain.Outcome{Degraded: true}
	}

	var (
		best     issuedom.NearbySummary
		bestDist float64
		found    bool
	)
	for _, c := range candidates {
		d := geo.HaversineM(lat, lng, c.Latitude, c.Longitude)
		if d > s.cfg.RadiusM {
			continue
		}
		switch {
		case !found, d < bestDist:
			best, bestDist, found = c, d, true
		case d == bestDist && c.CreatedAt.After(best.CreatedAt):
			best, bestDist = c, d
		}
	}
	if !found {
		return domain.Outcome{}
	}
	return domain.Outcome{
		Likely:    true,
		IssueID:   best.ID,
		DistanceM: bestDist,
		CreatedAt: best.CreatedAt,
	}
}
