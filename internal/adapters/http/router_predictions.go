package httpadapter

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
	"github.com/medscanlab/neuroscan/internal/observability/metrics"
)

// PredictionsRouter is the HTTP surface of the prediction service.
type PredictionsRouter struct {
	submitter ports.PredictionSubmitter
	manager   ports.PredictionManager
	verifier  *TokenVerifier
	metrics   *metrics.HTTPServerMetrics

	maxImages       int
	maxBytesPerFile int64
}

func NewPredictionsRouter(
	submitter ports.PredictionSubmitter,
	manager ports.PredictionManager,
	verifier *TokenVerifier,
	m *metrics.HTTPServerMetrics,
	maxImages int,
	maxBytesPerFile int64,
) *PredictionsRouter {
	if maxImages <= 0 {
		maxImages = 16
	}
	if maxBytesPerFile <= 0 {
		maxBytesPerFile = 10 << 20
	}
	return &PredictionsRouter{
		submitter:       submitter,
		manager:         manager,
		verifier:        verifier,
		metrics:         m,
		maxImages:       maxImages,
		maxBytesPerFile: maxBytesPerFile,
	}
}

func (rt *PredictionsRouter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /v1/predictions", rt.listRecords)
	mux.HandleFunc("POST /v1/predictions/{patientID}", rt.submit)
	mux.HandleFunc("GET /v1/predictions/{patientID}", rt.getRecord)
	mux.HandleFunc("GET /v1/predictions/submissions/{submissionID}", rt.getSubmission)
	mux.HandleFunc("PATCH /v1/predictions/submissions/{submissionID}", rt.updateSubmission)
	mux.HandleFunc("DELETE /v1/predictions/submissions/{submissionID}", rt.deleteSubmission)
	return mux
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *PredictionsRouter) submit(w http.ResponseWriter, r *http.Request) {
	doctor, rawToken, err := rt.verifier.FromRequest(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	maxBody := rt.maxBytesPerFile*int64(rt.maxImages) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "multipart field 'files' is required")
		return
	}
	if len(files) > rt.maxImages {
		writeError(w, http.StatusBadRequest, "too many images in one submission")
		return
	}

	images := make([]ports.ImageUpload, 0, len(files))
	for _, header := range files {
		image, err := readUpload(header, rt.maxBytesPerFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		images = append(images, image)
	}

	input := ports.SubmitPredictionInput{
		PatientID: r.PathValue("patientID"),
		AuthToken: rawToken,
		Doctor:    doctor,
		FileName:  r.FormValue("fileName"),
		Notes:     r.MultipartForm.Value["notes"],
		Images:    images,
	}

	start := time.Now()
	submission, err := rt.submitter.Submit(r.Context(), input)
	if rt.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		rt.metrics.RecordSubmission("predictions", status, len(images), time.Since(start))
		if domain.IsKind(err, domain.ErrInferenceTimeout) {
			rt.metrics.RecordInferenceTimeout("predictions")
		}
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submission)
}

func readUpload(header *multipart.FileHeader, maxBytes int64) (ports.ImageUpload, error) {
	if header.Size > maxBytes {
		return ports.ImageUpload{}, errors.New("image exceeds the per-file size limit")
	}

	file, err := header.Open()
	if err != nil {
		return ports.ImageUpload{}, errors.New("unreadable multipart file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return ports.ImageUpload{}, errors.New("unreadable multipart file")
	}
	if int64(len(data)) > maxBytes {
		return ports.ImageUpload{}, errors.New("image exceeds the per-file size limit")
	}

	return ports.ImageUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (rt *PredictionsRouter) listRecords(w http.ResponseWriter, r *http.Request) {
	records, err := rt.manager.ListRecords(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *PredictionsRouter) getRecord(w http.ResponseWriter, r *http.Request) {
	record, err := rt.manager.GetRecordByPatient(r.Context(), r.PathValue("patientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *PredictionsRouter) getSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := rt.manager.GetSubmission(r.Context(), r.PathValue("submissionID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

func (rt *PredictionsRouter) updateSubmission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileName *string   `json:"fileName"`
		Notes    *[]string `json:"notes"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := ports.SubmissionPatch{FileName: body.FileName, Notes: body.Notes}
	submission, err := rt.manager.UpdateSubmission(r.Context(), r.PathValue("submissionID"), patch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

func (rt *PredictionsRouter) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := rt.manager.DeleteSubmission(r.Context(), r.PathValue("submissionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
