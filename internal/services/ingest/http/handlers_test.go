package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime/multipart"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"civicpulse/internal/core/imaging"
	dedupdom "civicpulse/internal/services/dedup/domain"
	detectdom "civicpulse/internal/services/detect/domain"
	"civicpulse/internal/services/ingest/domain"
	ingestsvc "civicpulse/internal/services/ingest/service"
	issuedom "civicpulse/internal/services/issues/domain"

	"github.com/go-chi/chi/v5"
)

type fakeDetector struct {
	result detectdom.Result
}

func (f *fakeDetector) Detect(_ context.Context, _ string, _ []byte, _ string) detectdom.Result {
	return f.result
}

func (f *fakeDetector) Has(policy string) bool {
	return policy == "vandalism" || policy == "flooding"
}

type fakeChecker struct {
	outcome dedupdom.Outcome
}

func (f *fakeChecker) Check(_ context.Context, _ issuedom.Category, _, _ float64) dedupdom.Outcome {
	return f.outcome
}

type fakeWriter struct {
	err error
}

func (f *fakeWriter) Insert(_ context.Context, _ issuedom.Report) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func newRouter(t *testing.T, cfg ingestsvc.Config) (*chi.Mux, *fakeDetector, *fakeChecker) {
	t.Helper()
	det := &fakeDetector{result: detectdom.Result{Verdict: detectdom.VerdictNegative, Detections: []detectdom.Detection{}}}
	chk := &fakeChecker{}
	pipeline := ingestsvc.New(ingestsvc.Deps{Detector: det, Dedup: chk, Reports: &fakeWriter{}}, cfg)
	h := New(pipeline, det, chk, imaging.NewValidator(cfg.Image), Config{MaxUploadBytes: cfg.Image.MaxBytes})

	r := chi.NewRouter()
	h.Mount(r)
	return r, det, chk
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Error      string          `json:"error"`
	RetryAfter int             `json:"retry_after_seconds"`
	Data       json.RawMessage `json:"data"`
}

func do(t *testing.T, r stdhttp.Handler, req *stdhttp.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return rec, env
}

func multipartReport(t *testing.T, fields map[string]string, photo []byte) *stdhttp.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if photo != nil {
		part, err := mw.CreateFormFile("photo", "upload.jpg")
		if err != nil {
			t.Fatalf("create photo part: %v", err)
		}
		if _, err := part.Write(photo); err != nil {
			t.Fatalf("write photo: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "203.0.113.9:51234"
	return req
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestSubmitReport_Created(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	req := multipartReport(t, map[string]string{
		"description": "graffiti covering the station wall",
		"category":    "vandalism",
		"latitude":    "19.0760",
		"longitude":   "72.8777",
	}, smallJPEG(t))
	rec, env := do(t, r, req)

	if rec.Code != stdhttp.StatusCreated {
		t.Fatalf("status = %d, want 201\nbody: %s", rec.Code, rec.Body.String())
	}
	var dec domain.Decision
	if err := json.Unmarshal(env.Data, &dec); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if !dec.Accepted || dec.ReportID == nil || *dec.ReportID != 7 {
		t.Fatalf("decision = %+v, want accepted report 7", dec)
	}
	if dec.Image == nil || dec.Detection == nil || dec.Dedup == nil {
		t.Fatalf("decision = %+v, want image, detection and dedup annotations", dec)
	}
}

func TestSubmitReport_MissingDescription(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	rec, env := do(t, r, multipartReport(t, map[string]string{"category": "pothole"}, nil))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "required") {
		t.Fatalf("error = %q, want a required-field message", env.Error)
	}
}

func TestSubmitReport_UnknownCategory(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	rec, env := do(t, r, multipartReport(t, map[string]string{
		"description": "something odd",
		"category":    "ufo-sighting",
	}, nil))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "ufo-sighting") {
		t.Fatalf("error = %q, want the offending category named", env.Error)
	}
}

func TestSubmitReport_LoneLatitude(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	rec, _ := do(t, r, multipartReport(t, map[string]string{
		"description": "half a location",
		"category":    "garbage",
		"latitude":    "19.0",
	}, nil))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitReport_RateLimited(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{UserCap: 1, IPCap: 10})

	fields := map[string]string{"description": "burned out light", "category": "streetlight"}
	first := multipartReport(t, fields, nil)
	first.Header.Set("X-User", "user:a")
	if rec, _ := do(t, r, first); rec.Code != stdhttp.StatusCreated {
		t.Fatalf("first submit status = %d, want 201", rec.Code)
	}

	second := multipartReport(t, fields, nil)
	second.Header.Set("X-User", "user:a")
	rec, env := do(t, r, second)
	if rec.Code != stdhttp.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || env.RetryAfter <= 0 {
		t.Fatalf("retry-after header = %q, envelope = %d, want both set", rec.Header().Get("Retry-After"), env.RetryAfter)
	}
}

func TestSubmitReport_OversizedPhoto(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{Image: imaging.Config{MaxBytes: 64}})

	rec, _ := do(t, r, multipartReport(t, map[string]string{
		"description": "big photo",
		"category":    "vandalism",
	}, smallJPEG(t)))
	if rec.Code != stdhttp.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestSubmitReport_UnsupportedPhoto(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	rec, env := do(t, r, multipartReport(t, map[string]string{
		"description": "not an image",
		"category":    "vandalism",
	}, []byte("%PDF-1.7 definitely a document")))
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "unsupported_type") {
		t.Fatalf("error = %q, want the rejection reason surfaced", env.Error)
	}
}

func TestDedupCheck_OK(t *testing.T) {
	r, _, chk := newRouter(t, ingestsvc.Config{})
	chk.outcome = dedupdom.Outcome{Likely: true, IssueID: 31, DistanceM: 12.5}

	body := `{"category":"garbage","latitude":19.076,"longitude":72.8777}`
	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/reports/dedup-check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec, env := do(t, r, req)

	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var out dedupdom.Outcome
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if !out.Likely || out.IssueID != 31 {
		t.Fatalf("outcome = %+v, want likely duplicate of 31", out)
	}
}

func TestDedupCheck_RejectsBadBody(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/reports/dedup-check", strings.NewReader(`{"latitude":19.0`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(t, r, req)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDetect_Positive(t *testing.T) {
	r, det, _ := newRouter(t, ingestsvc.Config{})
	det.result = detectdom.Result{
		Verdict:    detectdom.VerdictPositive,
		Detections: []detectdom.Detection{{Label: "graffiti", Confidence: 0.81, Box: []float64{}}},
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("photo", "wall.jpg")
	_, _ = part.Write(smallJPEG(t))
	_ = mw.Close()

	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/detect/vandalism", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec, env := do(t, r, req)

	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	var res detectdom.Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Positive() || len(res.Detections) != 1 {
		t.Fatalf("result = %+v, want one positive detection", res)
	}
}

func TestDetect_UnknownPolicyIs404(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.Close()
	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/detect/arson", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec, _ := do(t, r, req)
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDetect_MissingPhoto(t *testing.T) {
	r, _, _ := newRouter(t, ingestsvc.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.Close()
	req := httptest.NewRequest(stdhttp.MethodPost, "/api/v1/detect/vandalism", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec, env := do(t, r, req)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "photo") {
		t.Fatalf("error = %q, want the photo field named", env.Error)
	}
}
