package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, subject, fullName string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      subject,
		"fullName": fullName,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type fakeSubmitter struct {
	input  ports.SubmitPredictionInput
	result *domain.Submission
	err    error
}

func (s *fakeSubmitter) Submit(_ context.Context, input ports.SubmitPredictionInput) (*domain.Submission, error) {
	s.input = input
	return s.result, s.err
}

type fakeManager struct {
	submission *domain.Submission
	record     *domain.PredictionRecord
	records    []domain.PredictionRecord
	deletedID  string
	err        error
}

func (m *fakeManager) UpdateSubmission(_ context.Context, _ string, _ ports.SubmissionPatch) (*domain.Submission, error) {
	return m.submission, m.err
}

func (m *fakeManager) DeleteSubmission(_ context.Context, submissionID string) error {
	m.deletedID = submissionID
	return m.err
}

func (m *fakeManager) GetRecordByPatient(_ context.Context, _ string) (*domain.PredictionRecord, error) {
	return m.record, m.err
}

func (m *fakeManager) GetSubmission(_ context.Context, _ string) (*domain.Submission, error) {
	return m.submission, m.err
}

func (m *fakeManager) ListRecords(_ context.Context) ([]domain.PredictionRecord, error) {
	return m.records, m.err
}

func newPredictionsRouter(submitter *fakeSubmitter, manager *fakeManager) *PredictionsRouter {
	return NewPredictionsRouter(submitter, manager, NewTokenVerifier(testSecret), nil, 4, 1<<20)
}

func multipartSubmission(t *testing.T, fileCount int) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for range fileCount {
		part, err := writer.CreateFormFile("files", "scan.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte{0x89, 0x50, 0x4e, 0x47}); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.WriteField("fileName", "head-series"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.WriteField("notes", "baseline"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestSubmitEndpointForwardsClaimsAndFiles(t *testing.T) {
	submitter := &fakeSubmitter{result: &domain.Submission{ID: "s1", Number: 1}}
	router := newPredictionsRouter(submitter, &fakeManager{})

	body, contentType := multipartSubmission(t, 2)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "d1", "Dr. Ana Ruiz"))
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if submitter.input.PatientID != "p1" {
		t.Fatalf("expected patient id from path, got %q", submitter.input.PatientID)
	}
	if submitter.input.Doctor.ID != "d1" || submitter.input.Doctor.FullName != "Dr. Ana Ruiz" {
		t.Fatalf("claims not forwarded: %+v", submitter.input.Doctor)
	}
	if len(submitter.input.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(submitter.input.Images))
	}
	if submitter.input.FileName != "head-series" {
		t.Fatalf("expected fileName field, got %q", submitter.input.FileName)
	}
	if len(submitter.input.Notes) != 1 || submitter.input.Notes[0] != "baseline" {
		t.Fatalf("expected notes field, got %v", submitter.input.Notes)
	}
	if submitter.input.AuthToken == "" {
		t.Fatal("expected raw token forwarded for the inference call")
	}

	var payload domain.Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "s1" {
		t.Fatalf("expected submission in response, got %+v", payload)
	}
}

func TestSubmitEndpointPrefersDoctorIDClaim(t *testing.T) {
	submitter := &fakeSubmitter{result: &domain.Submission{ID: "s1", Number: 1}}
	router := newPredictionsRouter(submitter, &fakeManager{})

	claims := jwt.MapClaims{
		"doctorId": "d42",
		"sub":      "account-9",
		"fullName": "Dr. Ana Ruiz",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	body, contentType := multipartSubmission(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if submitter.input.Doctor.ID != "d42" {
		t.Fatalf("expected doctorId claim to win over sub, got %q", submitter.input.Doctor.ID)
	}
}

func TestSubmitEndpointRejectsMissingToken(t *testing.T) {
	router := newPredictionsRouter(&fakeSubmitter{}, &fakeManager{})

	body, contentType := multipartSubmission(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubmitEndpointRejectsForgedToken(t *testing.T) {
	router := newPredictionsRouter(&fakeSubmitter{}, &fakeManager{})

	claims := jwt.MapClaims{"sub": "d1"}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	body, contentType := multipartSubmission(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubmitEndpointRequiresFiles(t *testing.T) {
	router := newPredictionsRouter(&fakeSubmitter{}, &fakeManager{})

	body, contentType := multipartSubmission(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "d1", "Dr. Ana Ruiz"))
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitEndpointMapsInferenceTimeout(t *testing.T) {
	submitter := &fakeSubmitter{err: domain.WrapError(domain.ErrInferenceTimeout, "submit prediction", domain.ErrInferenceTimeout)}
	router := newPredictionsRouter(submitter, &fakeManager{})

	body, contentType := multipartSubmission(t, 1)
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/p1", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "d1", "Dr. Ana Ruiz"))
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	manager := &fakeManager{err: domain.WrapError(domain.ErrNotFound, "get prediction record", domain.ErrNotFound)}
	router := newPredictionsRouter(&fakeSubmitter{}, manager)

	req := httptest.NewRequest(http.MethodGet, "/v1/predictions/unknown", nil)
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteSubmissionReturnsNoContent(t *testing.T) {
	manager := &fakeManager{}
	router := newPredictionsRouter(&fakeSubmitter{}, manager)

	req := httptest.NewRequest(http.MethodDelete, "/v1/predictions/submissions/s1", nil)
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if manager.deletedID != "s1" {
		t.Fatalf("expected delete of s1, got %q", manager.deletedID)
	}
}

func TestUpdateSubmissionPatch(t *testing.T) {
	manager := &fakeManager{submission: &domain.Submission{ID: "s1", FileName: "renamed"}}
	router := newPredictionsRouter(&fakeSubmitter{}, manager)

	req := httptest.NewRequest(http.MethodPatch, "/v1/predictions/submissions/s1",
		bytes.NewBufferString(`{"fileName":"renamed"}`))
	rec := httptest.NewRecorder()

	router.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
