// Package service orchestrates the report submission pipeline: admission,
// upload validation, classification, duplicate detection, persistence
package service

import (
	"context"
	"time"

	"civicpulse/internal/core/imaging"
	"civicpulse/internal/core/ratelimit"
	"civicpulse/internal/platform/logger"
	dedupdom "civicpulse/internal/services/dedup/domain"
	detectdom "civicpulse/internal/services/detect/domain"
	"civicpulse/internal/services/ingest/domain"
	issuedom "civicpulse/internal/services/issues/domain"

	"github.com/google/uuid"
)

// Config tunes the pipeline. Zero fields take defaults
type Config struct {
	UserCap int           // submissions per user per window, default 5
	IPCap   int           // submissions per address per window, default 10
	Window  time.Duration // limiter window, default 1h
	Image   imaging.Config

	// Categories that get a classifier pass when a photo is attached.
	// Defaults to vandalism and flooding
	DetectCategories []issuedom.Category
}

func (c Config) withDefaults() Config {
	if c.UserCap <= 0 {
		c.UserCap = 5
	}
	if c.IPCap <= 0 {
		c.IPCap = 10
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if len(c.DetectCategories) == 0 {
		c.DetectCategories = []issuedom.Category{issuedom.CategoryVandalism, issuedom.CategoryFlooding}
	}
	return c
}

// Deps are the downstream ports the pipeline drives
type Deps struct {
	Detector detectdom.DetectorPort
	Dedup    dedupdom.CheckerPort
	Reports  issuedom.WriterPort
}

// Service implements domain.SubmitterPort
type Service struct {
	deps       Deps
	users      *ratelimit.Limiter
	ips        *ratelimit.Limiter
	validator  *imaging.Validator
	detectable map[issuedom.Category]struct{}
}

// Option customizes a Service
type Option func(*options)

type options struct {
	clock []ratelimit.Option
}

// WithClock overrides the limiter clock, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = append(o.clock, ratelimit.WithClock(now)) }
}

// New wires the pipeline from its config and downstream ports
func New(deps Deps, cfg Config, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	detectable := make(map[issuedom.Category]struct{}, len(cfg.DetectCategories))
	for _, cat := range cfg.DetectCategories {
		detectable[cat] = struct{}{}
	}

	return &Service{
		deps:       deps,
		users:      ratelimit.New(cfg.UserCap, cfg.Window, o.clock...),
		ips:        ratelimit.New(cfg.IPCap, cfg.Window, o.clock...),
		validator:  imaging.NewValidator(cfg.Image),
		detectable: detectable,
	}
}

// Submit runs a candidate through every stage in order. Rate and validation
// failures short-circuit to a rejected Decision; classification and dedup
// annotate but never reject. The error return fires only when persisting an
// accepted report fails
func (s *Service) Submit(ctx context.Context, c domain.CandidateReport) (domain.Decision, error) {
	sid := uuid.NewString()
	log := logger.C(ctx).With().Str("submission_id", sid).Logger()

	if d := s.users.Admit(c.UserKey); !d.Allowed {
		log.Warn().Str("user", c.UserKey).Msg("user submission limit reached")
		return rejected(sid, domain.StageRateChecked, domain.RejectRateLimited,
			"submission limit reached for this account", d.RetryAfter), nil
	}
	if d := s.ips.Admit(c.IPKey); !d.Allowed {
		log.Warn().Str("ip", c.IPKey).Msg("address submission limit reached")
		return rejected(sid, domain.StageRateChecked, domain.RejectRateLimited,
			"submission limit reached for this address", d.RetryAfter), nil
	}

	dec := domain.Decision{SubmissionID: sid, Stage: domain.StageRateChecked}

	var normalized []byte
	var fingerprint string
	if c.HasPhoto() {
		norm, err := s.validator.Validate(c.Image, c.DeclaredType, c.Filename)
		if err != nil {
			reason, _ := imaging.ReasonOf(err)
			log.Info().Str("reason", string(reason)).Str("filename", c.Filename).Msg("upload rejected")
			return rejected(sid, domain.StageValidated, mapReason(reason), err.Error(), 0), nil
		}
		normalized = norm.Bytes
		fingerprint = imaging.Fingerprint(normalized)
		dec.Image = &domain.ImageMeta{
			Width:       norm.Width,
			Height:      norm.Height,
			MIME:        norm.MIME,
			Bytes:       len(norm.Bytes),
			Fingerprint: fingerprint,
			Resized:     norm.Resized,
		}
	}
	dec.Stage = domain.StageValidated

	if c.HasPhoto() {
		if _, ok := s.detectable[c.Category]; ok {
			res := s.deps.Detector.Detect(ctx, string(c.Category), normalized, fingerprint)
			dec.Detection = &res
		}
	}
	dec.Stage = domain.StageClassified

	if c.HasLocation() {
		out := s.deps.Dedup.Check(ctx, c.Category, *c.Latitude, *c.Longitude)
		dec.Dedup = &out
	}
	dec.Stage = domain.StageDedupChecked

	source := c.Source
	if source == "" {
		source = "web"
	}
	id, err := s.deps.Reports.Insert(ctx, issuedom.Report{
		Description: c.Description,
		Category:    c.Category,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		ImagePath:   fingerprint,
		Source:      source,
		UserEmail:   c.UserEmail,
	})
	if err != nil {
		return domain.Decision{}, err
	}

	dec.ReportID = &id
	dec.Accepted = true
	dec.Stage = domain.StageDecided
	log.Info().Int64("report_id", id).Str("category", string(c.Category)).Msg("report accepted")
	return dec, nil
}

func rejected(sid string, stage domain.Stage, reason domain.RejectReason, detail string, retryAfter time.Duration) domain.Decision {
	return domain.Decision{
		SubmissionID: sid,
		Stage:        stage,
		Rejection: &domain.Rejection{
			Reason:     reason,
			Detail:     detail,
			RetryAfter: retryAfter,
		},
	}
}

func mapReason(r imaging.Reason) domain.RejectReason {
	switch r {
	case imaging.TooLarge:
		return domain.RejectTooLarge
	case imaging.UnknownType:
		return domain.RejectUnknownType
	case imaging.UnsupportedType:
		return domain.RejectUnsupportedType
	default:
		return domain.RejectCorruptImage
	}
}
