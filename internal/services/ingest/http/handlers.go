// Package http exposes the submission pipeline over REST
package http

import (
	"context"
	"io"
	"mime/multipart"
	stdhttp "net/http"
	"strconv"

	"civicpulse/internal/core/imaging"
	perr "civicpulse/internal/platform/errors"
	pnet "civicpulse/internal/platform/net"
	phttp "civicpulse/internal/platform/net/http"
	"civicpulse/internal/platform/net/http/bind"
	dedupdom "civicpulse/internal/services/dedup/domain"
	detectdom "civicpulse/internal/services/detect/domain"
	"civicpulse/internal/services/ingest/domain"
	issuedom "civicpulse/internal/services/issues/domain"

	"github.com/go-chi/chi/v5"
)

// Detector is the classification surface the standalone detect
// endpoints need
type Detector interface {
	Detect(ctx context.Context, policy string, image []byte, fingerprint string) detectdom.Result
	Has(policy string) bool
}

// Config tunes the transport layer
type Config struct {
	MaxUploadBytes int64 // multipart file read cap, default 20 MiB
}

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 20 << 20
	}
	return c
}

// Handlers wires the pipeline and its sibling services onto a router
type Handlers struct {
	cfg       Config
	pipeline  domain.SubmitterPort
	detector  Detector
	dedup     dedupdom.CheckerPort
	validator *imaging.Validator
}

// New builds the handler set
func New(pipeline domain.SubmitterPort, detector Detector, dedup dedupdom.CheckerPort, validator *imaging.Validator, cfg Config) *Handlers {
	return &Handlers{
		cfg:       cfg.withDefaults(),
		pipeline:  pipeline,
		detector:  detector,
		dedup:     dedup,
		validator: validator,
	}
}

// Mount attaches the versioned API routes
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports", phttp.Handle(h.submitReport))
		r.Post("/reports/dedup-check", phttp.Handle(h.dedupCheck))
		r.Post("/detect/{policy}", phttp.Handle(h.detect))
	})
}

type reportForm struct {
	Description string   `json:"description" validate:"required,min=3,max=2000"`
	Category    string   `json:"category" validate:"required"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	UserEmail   string   `json:"user_email" validate:"omitempty,email"`
	Source      string   `json:"source" validate:"omitempty,oneof=web api"`
}

func (h *Handlers) submitReport(r *stdhttp.Request) phttp.Response {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		return phttp.Error(perr.JSONErrf("invalid multipart form: %v", err))
	}

	form := reportForm{
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		UserEmail:   r.FormValue("user_email"),
		Source:      r.FormValue("source"),
	}
	var err error
	if form.Latitude, err = optionalFloat(r, "latitude"); err != nil {
		return phttp.Error(err)
	}
	if form.Longitude, err = optionalFloat(r, "longitude"); err != nil {
		return phttp.Error(err)
	}
	if err := bind.ValidateStruct(form); err != nil {
		return phttp.Error(err)
	}
	if (form.Latitude == nil) != (form.Longitude == nil) {
		return phttp.Error(perr.Validationf("latitude and longitude must be provided together"))
	}

	category := issuedom.Category(form.Category)
	if !category.Valid() {
		return phttp.Error(perr.WithField(perr.Validationf("unknown category %q", form.Category), "category"))
	}

	photo, declaredType, filename, err := h.readPhoto(r)
	if err != nil {
		return phttp.Error(err)
	}

	userKey := r.Header.Get("X-User")
	if userKey == "" {
		userKey = form.UserEmail
	}
	ip := pnet.ClientIP(r)
	if userKey == "" {
		userKey = "ip:" + ip
	}

	dec, err := h.pipeline.Submit(r.Context(), domain.CandidateReport{
		Description:  form.Description,
		Category:     category,
		Latitude:     form.Latitude,
		Longitude:    form.Longitude,
		Image:        photo,
		DeclaredType: declaredType,
		Filename:     filename,
		UserKey:      userKey,
		IPKey:        ip,
		UserEmail:    form.UserEmail,
		Source:       form.Source,
	})
	if err != nil {
		return phttp.Error(perr.WrapIf(err, perr.ErrorCodeDB, "persist report"))
	}
	if !dec.Accepted {
		return phttp.Error(rejectionError(dec.Rejection))
	}
	return phttp.Created(dec)
}

type dedupCheckReq struct {
	Category  string  `json:"category" validate:"required"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

func (h *Handlers) dedupCheck(r *stdhttp.Request) phttp.Response {
	req, err := bind.ParseJSON[dedupCheckReq](r)
	if err != nil {
		return phttp.Error(err)
	}
	category := issuedom.Category(req.Category)
	if !category.Valid() {
		return phttp.Error(perr.WithField(perr.Validationf("unknown category %q", req.Category), "category"))
	}
	out := h.dedup.Check(r.Context(), category, req.Latitude, req.Longitude)
	return phttp.OK(out)
}

func (h *Handlers) detect(r *stdhttp.Request) phttp.Response {
	policy := chi.URLParam(r, "policy")
	if !h.detector.Has(policy) {
		return phttp.Error(perr.NotFoundf("no detection policy %q", policy))
	}

	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		return phttp.Error(perr.JSONErrf("invalid multipart form: %v", err))
	}
	photo, declaredType, filename, err := h.readPhoto(r)
	if err != nil {
		return phttp.Error(err)
	}
	if len(photo) == 0 {
		return phttp.Error(perr.WithField(perr.Validationf("photo is required"), "photo"))
	}

	norm, err := h.validator.Validate(photo, declaredType, filename)
	if err != nil {
		return phttp.Error(uploadError(err))
	}
	res := h.detector.Detect(r.Context(), policy, norm.Bytes, imaging.Fingerprint(norm.Bytes))
	return phttp.OK(res)
}

// readPhoto pulls the optional photo part out of a parsed multipart form.
// The read is capped one byte past the configured limit so the validator
// still sees an oversized payload as oversized rather than truncated
func (h *Handlers) readPhoto(r *stdhttp.Request) (data []byte, declaredType, filename string, err error) {
	file, header, ferr := r.FormFile("photo")
	if ferr == stdhttp.ErrMissingFile {
		return nil, "", "", nil
	}
	if ferr != nil {
		return nil, "", "", perr.JSONErrf("reading photo part: %v", ferr)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, rerr := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if rerr != nil {
		return nil, "", "", perr.Internalf("reading photo: %v", rerr)
	}
	return data, header.Header.Get("Content-Type"), header.Filename, nil
}

// rejectionError maps a pipeline rejection onto the wire error taxonomy
func rejectionError(rej *domain.Rejection) error {
	if rej == nil {
		return perr.Internalf("submission rejected without a reason")
	}
	switch rej.Reason {
	case domain.RejectRateLimited:
		return perr.RateLimited(rej.RetryAfter)
	case domain.RejectTooLarge:
		return perr.TooLargef("%s", rej.Detail)
	default:
		return perr.WithField(perr.Validationf("%s", rej.Detail), "photo")
	}
}

// uploadError maps a direct-validation failure the same way the pipeline does
func uploadError(err error) error {
	reason, ok := imaging.ReasonOf(err)
	if !ok {
		return err
	}
	if reason == imaging.TooLarge {
		return perr.TooLargef("%s", err.Error())
	}
	return perr.WithField(perr.Validationf("%s", err.Error()), "photo")
}

func optionalFloat(r *stdhttp.Request, field string) (*float64, error) {
	raw := r.FormValue(field)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, perr.WithField(perr.Validationf("%s must be a number", field), field)
	}
	return &v, nil
}
