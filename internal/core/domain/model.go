package domain

import "time"

// Percentages is one classification result over the four tumor classes.
// The values are mutually related probabilities produced by the model.
type Percentages struct {
	Glioma     float64 `json:"glioma"`
	Meningioma float64 `json:"meningioma"`
	NoTumor    float64 `json:"noTumor"`
	Pituitary  float64 `json:"pituitary"`
}

// ImageResult is the classification of a single image within a submission.
type ImageResult struct {
	ImageIndex  int         `json:"imageIndex"`
	ImageURL    string      `json:"imageUrl"`
	Percentages Percentages `json:"percentages"`
}

// Submission is one persisted prediction request covering one or more images.
type Submission struct {
	ID          string        `json:"id"`
	Number      int           `json:"number"`
	DoctorID    string        `json:"doctorId"`
	DoctorName  string        `json:"doctorName"`
	CreatedAt   time.Time     `json:"createdAt"`
	Results     []ImageResult `json:"results"`
	ResultsMean Percentages   `json:"resultsMean"`
	FileName    string        `json:"fileName"`
	Notes       []string      `json:"notes"`
}

// PatientSummary is the denormalized patient snapshot embedded in a
// prediction record. It is mutated only by patient lifecycle events.
type PatientSummary struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Gender    string    `json:"gender"`
	BirthDate time.Time `json:"birthDate"`
}

// PredictionRecord is the prediction service's document: one per patient,
// created on patient-created, holding every submission for that patient.
type PredictionRecord struct {
	ID          string         `json:"id"`
	Patient     PatientSummary `json:"patient"`
	Submissions []Submission   `json:"submissions"`
}

// SubmissionThumbnail is the trimmed projection of a submission embedded in
// staff and patient documents.
type SubmissionThumbnail struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	CreatedAt time.Time `json:"createdAt"`
	Number    int       `json:"number"`
	ImageURL  string    `json:"imageUrl"`
}

// PredictionRef ties an embedded thumbnail to its patient and submitter.
type PredictionRef struct {
	PatientID  string              `json:"patientId"`
	DoctorID   string              `json:"doctorId"`
	DoctorName string              `json:"doctorName"`
	Thumbnail  SubmissionThumbnail `json:"thumbnail"`
}

// Patient is the patient service's own document.
type Patient struct {
	ID          string          `json:"id"`
	FullName    string          `json:"fullName"`
	Gender      string          `json:"gender"`
	BirthDate   time.Time       `json:"birthDate"`
	Predictions []PredictionRef `json:"predictions"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// StaffMember is the staff service's own document.
type StaffMember struct {
	ID          string          `json:"id"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Predictions []PredictionRef `json:"predictions"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Thumbnail builds the projection of a submission that gets mirrored into
// staff and patient documents.
func (s Submission) Thumbnail() SubmissionThumbnail {
	thumbnail := SubmissionThumbnail{
		ID:        s.ID,
		FileName:  s.FileName,
		CreatedAt: s.CreatedAt,
		Number:    s.Number,
	}
	if len(s.Results) > 0 {
		thumbnail.ImageURL = s.Results[0].ImageURL
	}
	return thumbnail
}
