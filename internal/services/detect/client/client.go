// Package client talks to the external zero-shot image classification service
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	perr "civicpulse/internal/platform/errors"
	"civicpulse/internal/services/detect/domain"
)

// Config configures the classifier endpoint
type Config struct {
	URL     string
	Token   string        // optional bearer token; public models work without one
	Timeout time.Duration // transport-level bound, default 15s
}

// Client implements domain.ClassifierPort over HTTP
type Client struct {
	cfg  Config
	http *http.Client
}

var _ domain.ClassifierPort = (*Client)(nil)

// New creates a reusable classifier client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type classifyRequest struct {
	Inputs     string             `json:"inputs"` // base64 image bytes
	Parameters classifyParameters `json:"parameters"`
}

type classifyParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
}

// Classify posts the image and vocabulary, and validates the scored-label
// schema at the boundary so malformed responses surface as a distinct error
// feeding the caller's fail-open path
func (c *Client) Classify(ctx context.Context, image []byte, labels []string) ([]domain.Score, error) {
	if len(labels) == 0 {
		return nil, perr.InvalidArgf("classify requires a candidate label set")
	}

	body, err := json.Marshal(classifyRequest{
		Inputs:     base64.StdEncoding.EncodeToString(image),
		Parameters: classifyParameters{CandidateLabels: labels},
	})
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "marshal classify payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "build classify request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "classifier unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, perr.Unavailablef("classifier returned status %d", resp.StatusCode)
	}

	var scores []domain.Score
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "malformed classifier response")
	}
	for _, s := range scores {
		if s.Label == "" || s.Score < 0 || s.Score > 1 {
			return nil, perr.Unavailablef("classifier response failed schema check: label=%q score=%f", s.Label, s.Score)
		}
	}
	return scores, nil
}
