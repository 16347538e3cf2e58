package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// StaffSyncUseCase keeps the prediction thumbnails embedded in staff
// documents in step with prediction and patient lifecycle events.
type StaffSyncUseCase struct {
	store  ports.DocumentStore
	logger *slog.Logger
}

func NewStaffSyncUseCase(store ports.DocumentStore, logger *slog.Logger) *StaffSyncUseCase {
	return &StaffSyncUseCase{store: store, logger: logger}
}

func (uc *StaffSyncUseCase) HandlePredictionCreated(ctx context.Context, payload []byte) error {
	var event domain.PredictionCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode prediction-created: %w", err)
	}

	ref := domain.PredictionRef{
		PatientID:  event.PatientID,
		DoctorID:   event.DoctorID,
		DoctorName: event.DoctorName,
		Thumbnail:  event.Thumbnail,
	}

	filter := ports.Filter{Eq: map[string]any{"id": event.DoctorID}}
	update := ports.Update{Push: map[string]any{"predictions": ref}}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionStaff, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		uc.logger.Warn("prediction_created_for_unknown_staff", "doctor_id", event.DoctorID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("push staff thumbnail: %w", err)
	}
	return nil
}

func (uc *StaffSyncUseCase) HandlePredictionUpdated(ctx context.Context, payload []byte) error {
	var event domain.PredictionUpdatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode prediction-updated: %w", err)
	}
	if event.Thumbnail.FileName == nil {
		return nil
	}

	filter := ports.Filter{Eq: map[string]any{"id": event.DoctorID}}
	update := ports.Update{
		SetMatched: []ports.MatchedSet{{
			Array: "predictions",
			Match: ports.Filter{Eq: map[string]any{"thumbnail.id": event.Thumbnail.ID}},
			Set:   map[string]any{"thumbnail.fileName": *event.Thumbnail.FileName},
		}},
	}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionStaff, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("patch staff thumbnail: %w", err)
	}
	return nil
}

func (uc *StaffSyncUseCase) HandlePredictionDeleted(ctx context.Context, payload []byte) error {
	var event domain.PredictionDeletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode prediction-deleted: %w", err)
	}

	filter := ports.Filter{Eq: map[string]any{"id": event.DoctorID}}
	update := ports.Update{
		Pull: map[string]ports.Filter{
			"predictions": {Eq: map[string]any{"thumbnail.id": event.PredictionID}},
		},
	}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionStaff, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull staff thumbnail: %w", err)
	}
	return nil
}

func (uc *StaffSyncUseCase) HandlePatientDeleted(ctx context.Context, payload []byte) error {
	var event domain.PatientDeletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode patient-deleted: %w", err)
	}

	// Every staff member who submitted for this patient loses the refs.
	filter := ports.Filter{
		Elem: map[string]ports.Filter{
			"predictions": {Eq: map[string]any{"patientId": event.ID}},
		},
	}
	update := ports.Update{
		Pull: map[string]ports.Filter{
			"predictions": {Eq: map[string]any{"patientId": event.ID}},
		},
	}
	if _, err := uc.store.UpdateMany(ctx, ports.CollectionStaff, filter, update); err != nil {
		return fmt.Errorf("pull staff thumbnails for patient: %w", err)
	}
	return nil
}
