package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// PatientSyncUseCase keeps the prediction thumbnails embedded in patient
// documents in step with prediction and staff lifecycle events.
type PatientSyncUseCase struct {
	store  ports.DocumentStore
	logger *slog.Logger
}

func NewPatientSyncUseCase(store ports.DocumentStore, logger *slog.Logger) *PatientSyncUseCase {
	return &PatientSyncUseCase{store: store, logger: logger}
}

func (uc *PatientSyncUseCase) HandlePredictionCreated(ctx context.Context, payload []byte) error {
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

	filter := ports.Filter{Eq: map[string]any{"id": event.PatientID}}
	update := ports.Update{Push: map[string]any{"predictions": ref}}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPatients, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		uc.logger.Warn("prediction_created_for_unknown_patient", "patient_id", event.PatientID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("push patient thumbnail: %w", err)
	}
	return nil
}

func (uc *PatientSyncUseCase) HandlePredictionUpdated(ctx context.Context, payload []byte) error {
	var event domain.PredictionUpdatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode prediction-updated: %w", err)
	}
	if event.Thumbnail.FileName == nil {
		return nil
	}

	filter := ports.Filter{Eq: map[string]any{"id": event.PatientID}}
	update := ports.Update{
		SetMatched: []ports.MatchedSet{{
			Array: "predictions",
			Match: ports.Filter{Eq: map[string]any{"thumbnail.id": event.Thumbnail.ID}},
			Set:   map[string]any{"thumbnail.fileName": *event.Thumbnail.FileName},
		}},
	}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPatients, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("patch patient thumbnail: %w", err)
	}
	return nil
}

func (uc *PatientSyncUseCase) HandlePredictionDeleted(ctx context.Context, payload []byte) error {
	var event domain.PredictionDeletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode prediction-deleted: %w", err)
	}

	filter := ports.Filter{Eq: map[string]any{"id": event.PatientID}}
	update := ports.Update{
		Pull: map[string]ports.Filter{
			"predictions": {Eq: map[string]any{"thumbnail.id": event.PredictionID}},
		},
	}
	err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPatients, filter, update, nil)
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull patient thumbnail: %w", err)
	}
	return nil
}

func (uc *PatientSyncUseCase) HandleStaffEdited(ctx context.Context, payload []byte) error {
	var event domain.StaffEditedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode staff-edited: %w", err)
	}

	filter := ports.Filter{
		Elem: map[string]ports.Filter{
			"predictions": {Eq: map[string]any{"doctorId": event.StaffID}},
		},
	}
	update := ports.Update{
		SetMatched: []ports.MatchedSet{{
			Array: "predictions",
			Match: ports.Filter{Eq: map[string]any{"doctorId": event.StaffID}},
			Set:   map[string]any{"doctorName": event.FullName},
		}},
	}
	if _, err := uc.store.UpdateMany(ctx, ports.CollectionPatients, filter, update); err != nil {
		return fmt.Errorf("patch submitter name in patient refs: %w", err)
	}
	return nil
}
