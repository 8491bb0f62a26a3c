// Package service implements the detect service: policy thresholding over
// raw classifier scores, result caching, and the fail-open contract
package service

import (
	"context"
	"time"

	"civicpulse/internal/core/cache"
	"civicpulse/internal/platform/logger"
	"civicpulse/internal/services/detect/domain"
)

// Config for the detect service
type Config struct {
	Timeout    time.Duration // per-call bound on the external classifier, default 15s
	CacheTTL   time.Duration // detection result TTL, default 10m
	MaxEntries int           // result cache LRU cap, default 4096
}

// Service implements domain.DetectorPort. Detection failures never propagate:
// submission must not be blocked by a classifier outage
type Service struct {
	classifier domain.ClassifierPort
	policies   map[string]domain.Policy
	results    *cache.TTL[domain.Result]
	cfg        Config
	now        func() time.Time
}

var _ domain.DetectorPort = (*Service)(nil)

// Option mutates the service during construction
type Option func(*Service)

// WithClock injects a clock for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the detect service with the given policies
func New(classifier domain.ClassifierPort, policies []domain.Policy, cfg Config, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 4096
	}
	pm := make(map[string]domain.Policy, len(policies))
	for _, p := range policies {
		pm[p.Name] = p
	}
	s := &Service{
		classifier: classifier,
		policies:   pm,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.results = cache.New[domain.Result](cfg.CacheTTL,
		cache.WithClock[domain.Result](s.now),
		cache.WithMaxEntries[domain.Result](cfg.MaxEntries),
	)
	return s
}

// Policies lists the configured policy names
func (s *Service) Policies() []string {
	out := make([]string, 0, len(s.policies))
	for name := range s.policies {
		out = append(out, name)
	}
	return out
}

// Has reports whether a policy with the given name is configured
func (s *Service) Has(policy string) bool {
	_, ok := s.policies[policy]
	return ok
}

// Detect runs the named policy over the image. The fingerprint keys the
// result cache; two uploads of the same bytes within the TTL hit the
// classifier at most once. Degraded results are not cached so a recovered
// classifier gets retried on the next upload
func (s *Service) Detect(ctx context.Context, policy string, image []byte, fingerprint string) domain.Result {
	log := logger.C(ctx)

	pol, ok := s.policies[policy]
	if !ok {
		log.Warn().Str("policy", policy).Msg("unknown detection policy, degrading to negative")
		return s.degraded()
	}

	key := pol.Name + ":" + fingerprint
	if res, ok := s.results.Get(key); ok {
		return res
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	scores, err := s.classifier.Classify(cctx, image, pol.Labels)
	if err != nil {
		log.Warn().Err(err).Str("policy", pol.Name).Msg("detection degraded to negative")
		return s.degraded()
	}

	res := Apply(pol, scores, s.now())
	s.results.Put(key, res)
	return res
}

func (s *Service) degraded() domain.Result {
	return domain.Result{
		Verdict:    domain.VerdictNegative,
		Detections: []domain.Detection{},
		Degraded:   true,
		ComputedAt: s.now(),
	}
}

// Apply filters raw scores through a policy: positive labels scoring above
// the threshold survive, and one surviving label makes the verdict positive
func Apply(pol domain.Policy, scores []domain.Score, at time.Time) domain.Result {
	positive := make(map[string]struct{}, len(pol.Positive))
	for _, l := range pol.Positive {
		positive[l] = struct{}{}
	}

	detections := make([]domain.Detection, 0, len(scores))
	for _, sc := range scores {
		if _, ok := positive[sc.Label]; !ok {
			continue
		}
		if sc.Score <= pol.Threshold {
			continue
		}
		detections = append(detections, domain.Detection{
			Label:      sc.Label,
			Confidence: sc.Score,
			Box:        []float64{},
		})
	}

	verdict := domain.VerdictNegative
	if len(detections) > 0 {
		verdict = domain.VerdictPositive
	}
	return domain.Result{Verdict: verdict, Detections: detections, ComputedAt: at}
}
