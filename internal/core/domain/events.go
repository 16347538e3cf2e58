package domain

import "time"

// Bus topics. Delivery is at-least-once and unordered; consumers must
// tolerate duplicates and out-of-order arrival.
const (
	TopicStaffEdited       = "staff-edited"
	TopicPatientCreated    = "patient-created"
	TopicPatientUpdated    = "patient-updated"
	TopicPatientDeleted    = "patient-deleted"
	TopicPredictionCreated = "prediction-created"
	TopicPredictionUpdated = "prediction-updated"
	TopicPredictionDeleted = "prediction-deleted"
)

type StaffEditedEvent struct {
	StaffID  string `json:"staffId"`
	FullName string `json:"fullName"`
}

type PatientCreatedEvent struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Gender    string    `json:"gender"`
	BirthDate time.Time `json:"birthDate"`
}

// PatientUpdatedEvent carries only the fields that actually changed; nil
// means "leave untouched" on the consuming side.
type PatientUpdatedEvent struct {
	ID        string     `json:"id"`
	FullName  *string    `json:"fullName,omitempty"`
	Gender    *string    `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// Changes lists the modified snapshot fields keyed by field name.
func (e PatientUpdatedEvent) Changes() map[string]any {
	changes := map[string]any{}
	if e.FullName != nil {
		changes["fullName"] = *e.FullName
	}
	if e.Gender != nil {
		changes["gender"] = *e.Gender
	}
	if e.BirthDate != nil {
		changes["birthDate"] = *e.BirthDate
	}
	return changes
}

type PatientDeletedEvent struct {
	ID string `json:"id"`
}

type PredictionCreatedEvent struct {
	PatientID  string              `json:"patientId"`
	DoctorID   string              `json:"doctorId"`
	DoctorName string              `json:"doctorName"`
	Thumbnail  SubmissionThumbnail `json:"thumbnail"`
}

// ThumbnailPatch is the partial thumbnail carried by prediction-updated.
type ThumbnailPatch struct {
	ID       string  `json:"id"`
	FileName *string `json:"fileName,omitempty"`
}

type PredictionUpdatedEvent struct {
	PatientID string         `json:"patientId"`
	DoctorID  string         `json:"doctorId"`
	Thumbnail ThumbnailPatch `json:"thumbnail"`
}

type PredictionDeletedEvent struct {
	PatientID    string `json:"patientId"`
	DoctorID     string `json:"doctorId"`
	PredictionID string `json:"predictionId"`
}

// InferenceReply is the asynchronous answer published by the inference
// endpoint on the per-submission correlation subject.
type InferenceReply struct {
	Index      int         `json:"index"`
	Percentage Percentages `json:"percentage"`
}

// InferenceReplySubject names the correlation subject of one in-flight
// submission. Keying by submission id keeps concurrent submissions for the
// same patient from reading each other's replies.
func InferenceReplySubject(submissionID string) string {
	return "inference.replies." + submissionID
}
