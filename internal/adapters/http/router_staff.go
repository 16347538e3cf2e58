package httpadapter

import (
	"net/http"

	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// StaffRouter is the HTTP surface of the staff service.
type StaffRouter struct {
	directory ports.StaffDirectory
}

func NewStaffRouter(directory ports.StaffDirectory) *StaffRouter {
	return &StaffRouter{directory: directory}
}

func (rt *StaffRouter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("POST /v1/staff", rt.create)
	mux.HandleFunc("GET /v1/staff/{staffID}", rt.get)
	mux.HandleFunc("PATCH /v1/staff/{staffID}", rt.rename)
	return mux
}

func (rt *StaffRouter) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := rt.directory.Create(r.Context(), body.FullName, body.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (rt *StaffRouter) get(w http.ResponseWriter, r *http.Request) {
	member, err := rt.directory.GetByID(r.Context(), r.PathValue("staffID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (rt *StaffRouter) rename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FullName string `json:"fullName"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	member, err := rt.directory.Rename(r.Context(), r.PathValue("staffID"), body.FullName)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}
