package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// PredictionSyncUseCase applies patient and staff lifecycle events to the
// prediction records. Handlers are idempotent: duplicates and events for
// documents that no longer exist resolve to a no-op.
type PredictionSyncUseCase struct {
	store   ports.DocumentStore
	storage ports.ObjectStorage
	logger  *slog.Logger
}

func NewPredictionSyncUseCase(store ports.DocumentStore, storage ports.ObjectStorage, logger *slog.Logger) *PredictionSyncUseCase {
	return &PredictionSyncUseCase{
		store:   store,
		storage: storage,
		logger:  logger,
	}
}

func (uc *PredictionSyncUseCase) HandlePatientCreated(ctx context.Context, payload []byte) error {
	var event domain.PatientCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode patient-created: %w", err)
	}
	if event.ID == "" {
		return fmt.Errorf("patient-created without patient id")
	}

	filter := ports.Filter{Eq: map[string]any{"patient.id": event.ID}}
	err := uc.store.FindOne(ctx, ports.CollectionPredictions, filter, &domain.PredictionRecord{})
	if err == nil {
		// Redelivery of an event we already applied.
		return nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return fmt.Errorf("check existing record: %w", err)
	}

	record := domain.PredictionRecord{
		ID: uuid.NewString(),
		Patient: domain.PatientSummary{
			ID:        event.ID,
			FullName:  event.FullName,
			Gender:    event.Gender,
			BirthDate: event.BirthDate,
		},
		Submissions: []domain.Submission{},
	}
	if err := uc.store.InsertOne(ctx, ports.CollectionPredictions, record); err != nil {
		return fmt.Errorf("insert prediction record: %w", err)
	}

	uc.logger.Info("prediction_record_created", "patient_id", event.ID, "record_id", record.ID)
	return nil
}

func (uc *PredictionSyncUseCase) HandlePatientUpdated(ctx context.Context, payload []byte) error {
	var event domain.PatientUpdatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode patient-updated: %w", err)
	}

	changes := event.Changes()
	if len(changes) == 0 {
		return nil
	}

	fields := make(map[string]any, len(changes))
	for name, value := range changes {
		fields["patient."+name] = value
	}

	filter := ports.Filter{Eq: map[string]any{"patient.id": event.ID}}
	affected, err := uc.store.UpdateMany(ctx, ports.CollectionPredictions, filter, ports.Update{Set: fields})
	if err != nil {
		return fmt.Errorf("patch patient snapshot: %w", err)
	}
	if affected == 0 {
		uc.logger.Warn("patient_updated_without_record", "patient_id", event.ID)
	}
	return nil
}

func (uc *PredictionSyncUseCase) HandlePatientDeleted(ctx context.Context, payload []byte) error {
	var event domain.PatientDeletedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode patient-deleted: %w", err)
	}

	filter := ports.Filter{Eq: map[string]any{"patient.id": event.ID}}
	if _, err := uc.store.DeleteOne(ctx, ports.CollectionPredictions, filter); err != nil {
		return fmt.Errorf("delete prediction record: %w", err)
	}

	if err := uc.storage.DeletePrefix(ctx, PatientMediaDir(event.ID)); err != nil {
		uc.logger.Warn("patient_media_cleanup_failed", "patient_id", event.ID, "error", err)
	}
	return nil
}

func (uc *PredictionSyncUseCase) HandleStaffEdited(ctx context.Context, payload []byte) error {
	var event domain.StaffEditedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode staff-edited: %w", err)
	}

	filter := ports.Filter{
		Elem: map[string]ports.Filter{
			"submissions": {Eq: map[string]any{"doctorId": event.StaffID}},
		},
	}
	update := ports.Update{
		SetMatched: []ports.MatchedSet{{
			Array: "submissions",
			Match: ports.Filter{Eq: map[string]any{"doctorId": event.StaffID}},
			Set:   map[string]any{"doctorName": event.FullName},
		}},
	}
	if _, err := uc.store.UpdateMany(ctx, ports.CollectionPredictions, filter, update); err != nil {
		return fmt.Errorf("patch submitter name: %w", err)
	}
	return nil
}
