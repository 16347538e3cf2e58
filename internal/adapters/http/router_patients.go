package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// PatientsRouter is the HTTP surface of the patient service.
type PatientsRouter struct {
	directory ports.PatientDirectory
}

func NewPatientsRouter(directory ports.PatientDirectory) *PatientsRouter {
	return &PatientsRouter{directory: directory}
}

func (rt *PatientsRouter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /v1/patients", rt.create)
	mux.HandleFunc("GET /v1/patients", rt.list)
	mux.HandleFunc("GET /v1/patients/{patientID}", rt.get)
	mux.HandleFunc("PATCH /v1/patients/{patientID}", rt.update)
	mux.HandleFunc("DELETE /v1/patients/{patientID}", rt.remove)
	return mux
}

func decodeJSONBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

type patientBody struct {
	FullName  *string `json:"fullName"`
	Gender    *string `json:"gender"`
	BirthDate *string `json:"birthDate"`
}

func (rt *PatientsRouter) create(w http.ResponseWriter, r *http.Request) {
	var body patientBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patient, err := rt.directory.Create(r.Context(), ports.PatientInput{
		FullName:  body.FullName,
		Gender:    body.Gender,
		BirthDate: body.BirthDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (rt *PatientsRouter) list(w http.ResponseWriter, r *http.Request) {
	patients, err := rt.directory.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (rt *PatientsRouter) get(w http.ResponseWriter, r *http.Request) {
	patient, err := rt.directory.GetByID(r.Context(), r.PathValue("patientID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (rt *PatientsRouter) update(w http.ResponseWriter, r *http.Request) {
	var body patientBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patient, err := rt.directory.Update(r.Context(), r.PathValue("patientID"), ports.PatientInput{
		FullName:  body.FullName,
		Gender:    body.Gender,
		BirthDate: body.BirthDate,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (rt *PatientsRouter) remove(w http.ResponseWriter, r *http.Request) {
	if err := rt.directory.Delete(r.Context(), r.PathValue("patientID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
