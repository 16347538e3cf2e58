package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// PatientDirectoryUseCase owns the patient documents and fans every
// mutation out as a lifecycle event.
type PatientDirectoryUseCase struct {
	store  ports.DocumentStore
	bus    ports.EventBus
	logger *slog.Logger
}

func NewPatientDirectoryUseCase(store ports.DocumentStore, bus ports.EventBus, logger *slog.Logger) *PatientDirectoryUseCase {
	return &PatientDirectoryUseCase{store: store, bus: bus, logger: logger}
}

func (uc *PatientDirectoryUseCase) Create(ctx context.Context, input ports.PatientInput) (*domain.Patient, error) {
	const op = "create patient"

	if input.FullName == nil || *input.FullName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("full name is required"))
	}

	now := time.Now().UTC()
	patient := domain.Patient{
		ID:          uuid.NewString(),
		FullName:    *input.FullName,
		Predictions: []domain.PredictionRef{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Gender != nil {
		patient.Gender = *input.Gender
	}
	if input.BirthDate != nil {
		birthDate, err := parseBirthDate(*input.BirthDate)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, err)
		}
		patient.BirthDate = birthDate
	}

	if err := uc.store.InsertOne(ctx, ports.CollectionPatients, patient); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	event := domain.PatientCreatedEvent{
		ID:        patient.ID,
		FullName:  patient.FullName,
		Gender:    patient.Gender,
		BirthDate: patient.BirthDate,
	}
	if err := uc.bus.Publish(ctx, domain.TopicPatientCreated, event); err != nil {
		uc.logger.Error("publish_patient_created_failed", "patient_id", patient.ID, "error", err)
	}

	return &patient, nil
}

func (uc *PatientDirectoryUseCase) Update(ctx context.Context, id string, input ports.PatientInput) (*domain.Patient, error) {
	const op = "update patient"

	event := domain.PatientUpdatedEvent{ID: id}
	fields := map[string]any{}
	if input.FullName != nil {
		if *input.FullName == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("full name cannot be empty"))
		}
		fields["fullName"] = *input.FullName
		event.FullName = input.FullName
	}
	if input.Gender != nil {
		fields["gender"] = *input.Gender
		event.Gender = input.Gender
	}
	if input.BirthDate != nil {
		birthDate, err := parseBirthDate(*input.BirthDate)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, op, err)
		}
		fields["birthDate"] = birthDate
		event.BirthDate = &birthDate
	}
	if len(fields) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("empty patch"))
	}
	fields["updatedAt"] = time.Now().UTC()

	var patient domain.Patient
	filter := ports.Filter{Eq: map[string]any{"id": id}}
	if err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPatients, filter, ports.Update{Set: fields}, &patient); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	if err := uc.bus.Publish(ctx, domain.TopicPatientUpdated, event); err != nil {
		uc.logger.Error("publish_patient_updated_failed", "patient_id", id, "error", err)
	}

	return &patient, nil
}

func (uc *PatientDirectoryUseCase) Delete(ctx context.Context, id string) error {
	const op = "delete patient"

	filter := ports.Filter{Eq: map[string]any{"id": id}}
	affected, err := uc.store.DeleteOne(ctx, ports.CollectionPatients, filter)
	if err != nil {
		return domain.WrapError(kindOf(err), op, err)
	}
	if affected == 0 {
		// Already gone; consumers were notified the first time.
		return nil
	}

	if err := uc.bus.Publish(ctx, domain.TopicPatientDeleted, domain.PatientDeletedEvent{ID: id}); err != nil {
		uc.logger.Error("publish_patient_deleted_failed", "patient_id", id, "error", err)
	}
	return nil
}

func (uc *PatientDirectoryUseCase) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var patient domain.Patient
	filter := ports.Filter{Eq: map[string]any{"id": id}}
	if err := uc.store.FindOne(ctx, ports.CollectionPatients, filter, &patient); err != nil {
		return nil, domain.WrapError(kindOf(err), "get patient", err)
	}
	return &patient, nil
}

func (uc *PatientDirectoryUseCase) List(ctx context.Context) ([]domain.Patient, error) {
	var patients []domain.Patient
	if err := uc.store.FindAll(ctx, ports.CollectionPatients, ports.Filter{}, &patients); err != nil {
		return nil, domain.WrapError(kindOf(err), "list patients", err)
	}
	if patients == nil {
		patients = []domain.Patient{}
	}
	return patients, nil
}

func parseBirthDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable birth date %q", raw)
}
