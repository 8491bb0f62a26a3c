package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"civicpulse/internal/core/imaging"
	"civicpulse/internal/platform/testkit"
	dedupdom "civicpulse/internal/services/dedup/domain"
	detectdom "civicpulse/internal/services/detect/domain"
	"civicpulse/internal/services/ingest/domain"
	issuedom "civicpulse/internal/services/issues/domain"
)

type fakeDetector struct {
	calls  int
	policy string
	result detectdom.Result
}

func (f *fakeDetector) Detect(_ context.Context, policy string, _ []byte, _ string) detectdom.Result {
	f.calls++
	f.policy = policy
	return f.result
}

type fakeChecker struct {
	calls   int
	outcome dedupdom.Outcome
}

func (f *fakeChecker) Check(_ context.Context, _ issuedom.Category, _, _ float64) dedupdom.Outcome {
	f.calls++
	return f.outcome
}

type fakeWriter struct {
	calls int
	last  issuedom.Report
	err   error
}

func (f *fakeWriter) Insert(_ context.Context, r issuedom.Report) (int64, error) {
	f.calls++
	f.last = r
	if f.err != nil {
		return 0, f.err
	}
	return int64(100 + f.calls), nil
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func fixture(deps *Deps) (*fakeDetector, *fakeChecker, *fakeWriter) {
	det := &fakeDetector{result: detectdom.Result{Verdict: detectdom.VerdictNegative, Detections: []detectdom.Detection{}}}
	chk := &fakeChecker{}
	wr := &fakeWriter{}
	*deps = Deps{Detector: det, Dedup: chk, Reports: wr}
	return det, chk, wr
}

func ptr(f float64) *float64 { return &f }

func TestSubmit_AcceptedWithPhotoAndLocation(t *testing.T) {
	var deps Deps
	det, chk, wr := fixture(&deps)
	det.result = detectdom.Result{
		Verdict:    detectdom.VerdictPositive,
		Detections: []detectdom.Detection{{Label: "graffiti", Confidence: 0.7, Box: []float64{}}},
	}
	chk.outcome = dedupdom.Outcome{Likely: true, IssueID: 42, DistanceM: 30}
	svc := New(deps, Config{})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description:  "spray paint on the underpass wall",
		Category:     issuedom.CategoryVandalism,
		Latitude:     ptr(19.0760),
		Longitude:    ptr(72.8777),
		Image:        testJPEG(t),
		DeclaredType: "image/jpeg",
		Filename:     "wall.jpg",
		UserKey:      "user:amit@example.com",
		IPKey:        "ip:10.0.0.1",
		UserEmail:    "amit@example.com",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !dec.Accepted || dec.Stage != domain.StageDecided {
		t.Fatalf("decision = %+v, want accepted at decided", dec)
	}
	if dec.ReportID == nil || *dec.ReportID != 101 {
		t.Fatalf("report id = %v, want 101", dec.ReportID)
	}
	if dec.SubmissionID == "" {
		t.Fatal("want a submission id assigned")
	}
	if dec.Image == nil || dec.Image.Fingerprint == "" || dec.Image.MIME != "image/jpeg" {
		t.Fatalf("image meta = %+v, want normalized jpeg meta", dec.Image)
	}
	if dec.Detection == nil || !dec.Detection.Positive() {
		t.Fatalf("detection = %+v, want positive verdict attached", dec.Detection)
	}
	if det.policy != "vandalism" {
		t.Fatalf("classifier policy = %q, want vandalism", det.policy)
	}
	if dec.Dedup == nil || !dec.Dedup.Likely || dec.Dedup.IssueID != 42 {
		t.Fatalf("dedup = %+v, want likely duplicate of 42", dec.Dedup)
	}
	if wr.last.ImagePath != dec.Image.Fingerprint {
		t.Fatalf("stored image ref = %q, want fingerprint %q", wr.last.ImagePath, dec.Image.Fingerprint)
	}
	if wr.last.Source != "web" {
		t.Fatalf("source = %q, want web default", wr.last.Source)
	}
}

func TestSubmit_AcceptedWithoutPhotoOrLocation(t *testing.T) {
	var deps Deps
	det, chk, wr := fixture(&deps)
	svc := New(deps, Config{})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "street light out on MG Road",
		Category:    issuedom.CategoryStreetlight,
		UserKey:     "user:a",
		IPKey:       "ip:b",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !dec.Accepted {
		t.Fatalf("decision = %+v, want accepted", dec)
	}
	if dec.Image != nil || dec.Detection != nil || dec.Dedup != nil {
		t.Fatalf("decision = %+v, want no photo, detection, or dedup annotations", dec)
	}
	if det.calls != 0 || chk.calls != 0 {
		t.Fatalf("detector calls = %d, checker calls = %d, want 0 and 0", det.calls, chk.calls)
	}
	if wr.calls != 1 || wr.last.ImagePath != "" {
		t.Fatalf("writer = %+v, want one insert with empty image ref", wr)
	}
}

func TestSubmit_PhotoOnNonDetectableCategorySkipsClassifier(t *testing.T) {
	var deps Deps
	det, _, _ := fixture(&deps)
	svc := New(deps, Config{})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description:  "deep pothole near the bus stop",
		Category:     issuedom.CategoryPothole,
		Image:        testJPEG(t),
		DeclaredType: "image/jpeg",
		UserKey:      "user:a",
		IPKey:        "ip:b",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !dec.Accepted || dec.Image == nil {
		t.Fatalf("decision = %+v, want accepted with image meta", dec)
	}
	if dec.Detection != nil || det.calls != 0 {
		t.Fatalf("detection = %+v after %d calls, want classifier skipped", dec.Detection, det.calls)
	}
}

func TestSubmit_UserLimitRejects(t *testing.T) {
	var deps Deps
	_, _, wr := fixture(&deps)
	clock := testkit.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc := New(deps, Config{UserCap: 2, IPCap: 10}, WithClock(clock.Now))

	c := domain.CandidateReport{Description: "x", Category: issuedom.CategoryOther, UserKey: "user:a", IPKey: "ip:b"}
	for i := 0; i < 2; i++ {
		if dec, _ := svc.Submit(context.Background(), c); !dec.Accepted {
			t.Fatalf("submit %d: %+v, want accepted", i, dec)
		}
	}

	dec, err := svc.Submit(context.Background(), c)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if dec.Accepted || dec.Stage != domain.StageRateChecked {
		t.Fatalf("decision = %+v, want rejection at rate check", dec)
	}
	if dec.Rejection == nil || dec.Rejection.Reason != domain.RejectRateLimited {
		t.Fatalf("rejection = %+v, want rate_limited", dec.Rejection)
	}
	if dec.Rejection.RetryAfter != time.Hour {
		t.Fatalf("retry after = %v, want 1h", dec.Rejection.RetryAfter)
	}
	if wr.calls != 2 {
		t.Fatalf("writer calls = %d, want the rejected submission not persisted", wr.calls)
	}

	clock.Advance(time.Hour + time.Second)
	if dec, _ := svc.Submit(context.Background(), c); !dec.Accepted {
		t.Fatalf("after window: %+v, want accepted again", dec)
	}
}

func TestSubmit_IPLimitRejectsAcrossUsers(t *testing.T) {
	var deps Deps
	fixture(&deps)
	svc := New(deps, Config{UserCap: 5, IPCap: 2})

	for _, user := range []string{"user:a", "user:b"} {
		c := domain.CandidateReport{Description: "x", Category: issuedom.CategoryOther, UserKey: user, IPKey: "ip:shared"}
		if dec, _ := svc.Submit(context.Background(), c); !dec.Accepted {
			t.Fatalf("submit as %s: %+v, want accepted", user, dec)
		}
	}

	dec, _ := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "x", Category: issuedom.CategoryOther, UserKey: "user:c", IPKey: "ip:shared",
	})
	if dec.Accepted || dec.Rejection == nil || dec.Rejection.Reason != domain.RejectRateLimited {
		t.Fatalf("decision = %+v, want shared-address rejection", dec)
	}
}

func TestSubmit_OversizedUploadRejects(t *testing.T) {
	var deps Deps
	det, _, wr := fixture(&deps)
	svc := New(deps, Config{Image: imaging.Config{MaxBytes: 16}})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "x", Category: issuedom.CategoryVandalism,
		Image:   testJPEG(t),
		UserKey: "user:a", IPKey: "ip:b",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if dec.Accepted || dec.Stage != domain.StageValidated {
		t.Fatalf("decision = %+v, want rejection at validation", dec)
	}
	if dec.Rejection == nil || dec.Rejection.Reason != domain.RejectTooLarge {
		t.Fatalf("rejection = %+v, want too_large", dec.Rejection)
	}
	if det.calls != 0 || wr.calls != 0 {
		t.Fatalf("detector calls = %d, writer calls = %d, want rejected upload to go no further", det.calls, wr.calls)
	}
}

func TestSubmit_CorruptUploadRejects(t *testing.T) {
	var deps Deps
	fixture(&deps)
	svc := New(deps, Config{})

	garbage := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x13}, 64)...)
	dec, _ := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "x", Category: issuedom.CategoryVandalism,
		Image: garbage, DeclaredType: "image/jpeg",
		UserKey: "user:a", IPKey: "ip:b",
	})
	if dec.Accepted || dec.Rejection == nil || dec.Rejection.Reason != domain.RejectCorruptImage {
		t.Fatalf("decision = %+v, want corrupt_image rejection", dec)
	}
}

func TestSubmit_DegradedAnnotationsStillAccept(t *testing.T) {
	var deps Deps
	det, chk, _ := fixture(&deps)
	det.result = detectdom.Result{Verdict: detectdom.VerdictNegative, Detections: []detectdom.Detection{}, Degraded: true}
	chk.outcome = dedupdom.Outcome{Degraded: true}
	svc := New(deps, Config{})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "x", Category: issuedom.CategoryFlooding,
		Latitude: ptr(19.0), Longitude: ptr(72.8),
		Image: testJPEG(t), DeclaredType: "image/jpeg",
		UserKey: "user:a", IPKey: "ip:b",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !dec.Accepted {
		t.Fatalf("decision = %+v, want degraded annotations to not block acceptance", dec)
	}
	if dec.Detection == nil || !dec.Detection.Degraded || dec.Dedup == nil || !dec.Dedup.Degraded {
		t.Fatalf("decision = %+v, want degraded flags surfaced", dec)
	}
}

func TestSubmit_StoreFailureIsAnError(t *testing.T) {
	var deps Deps
	_, _, wr := fixture(&deps)
	wr.err = errors.New("pool exhausted")
	svc := New(deps, Config{})

	dec, err := svc.Submit(context.Background(), domain.CandidateReport{
		Description: "x", Category: issuedom.CategoryOther, UserKey: "user:a", IPKey: "ip:b",
	})
	if err == nil {
		t.Fatal("want insert failure surfaced as an error")
	}
	if dec.Accepted {
		t.Fatalf("decision = %+v, want not accepted", dec)
	}
}
