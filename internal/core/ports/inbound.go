package ports

import (
	"context"

	"github.com/medscanlab/neuroscan/internal/core/domain"
)

// Submitter identifies the staff member making a submission, taken from the
// verified bearer token.
type Submitter struct {
	ID       string
	FullName string
}

// ImageUpload is one raw image attached to a submission.
type ImageUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmitPredictionInput is the full input of one fan-out/fan-in submission.
type SubmitPredictionInput struct {
	PatientID string
	AuthToken string
	Doctor    Submitter
	FileName  string
	Notes     []string
	Images    []ImageUpload
}

// PredictionSubmitter is the inbound contract of the fan-out/fan-in
// orchestrator: exactly one persisted submission per successful call.
type PredictionSubmitter interface {
	Submit(ctx context.Context, input SubmitPredictionInput) (*domain.Submission, error)
}

// SubmissionPatch carries the editable submission fields.
type SubmissionPatch struct {
	FileName *string
	Notes    *[]string
}

// PredictionManager covers the non-orchestrated submission operations.
type PredictionManager interface {
	UpdateSubmission(ctx context.Context, submissionID string, patch SubmissionPatch) (*domain.Submission, error)
	DeleteSubmission(ctx context.Context, submissionID string) error
	GetRecordByPatient(ctx context.Context, patientID string) (*domain.PredictionRecord, error)
	GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error)
	ListRecords(ctx context.Context) ([]domain.PredictionRecord, error)
}

// PatientInput is the patient service's create/update payload.
type PatientInput struct {
	FullName  *string
	Gender    *string
	BirthDate *string
}

// PatientDirectory is the inbound contract of the patient service's own
// CRUD paths, each of which also emits the matching lifecycle event.
type PatientDirectory interface {
	Create(ctx context.Context, input PatientInput) (*domain.Patient, error)
	Update(ctx context.Context, id string, input PatientInput) (*domain.Patient, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Patient, error)
	List(ctx context.Context) ([]domain.Patient, error)
}

// StaffDirectory is the inbound contract of the staff service's profile
// paths; renames fan out as staff-edited events.
type StaffDirectory interface {
	Create(ctx context.Context, fullName, email string) (*domain.StaffMember, error)
	Rename(ctx context.Context, id, fullName string) (*domain.StaffMember, error)
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}
