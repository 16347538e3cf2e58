package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// ManagePredictionsUseCase covers the read and edit paths over persisted
// submissions. Edits are single atomic array mutations; the matching
// lifecycle event goes out after the write lands.
type ManagePredictionsUseCase struct {
	store   ports.DocumentStore
	storage ports.ObjectStorage
	bus     ports.EventBus
	logger  *slog.Logger
}

func NewManagePredictionsUseCase(
	store ports.DocumentStore,
	storage ports.ObjectStorage,
	bus ports.EventBus,
	logger *slog.Logger,
) *ManagePredictionsUseCase {
	return &ManagePredictionsUseCase{
		store:   store,
		storage: storage,
		bus:     bus,
		logger:  logger,
	}
}

func submissionFilter(submissionID string) ports.Filter {
	return ports.Filter{
		Elem: map[string]ports.Filter{
			"submissions": {Eq: map[string]any{"id": submissionID}},
		},
	}
}

func (uc *ManagePredictionsUseCase) UpdateSubmission(ctx context.Context, submissionID string, patch ports.SubmissionPatch) (*domain.Submission, error) {
	const op = "update submission"

	if patch.FileName == nil && patch.Notes == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("empty patch"))
	}

	fields := map[string]any{}
	if patch.FileName != nil {
		fields["fileName"] = *patch.FileName
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}

	update := ports.Update{
		SetMatched: []ports.MatchedSet{{
			Array: "submissions",
			Match: ports.Filter{Eq: map[string]any{"id": submissionID}},
			Set:   fields,
		}},
	}

	var record domain.PredictionRecord
	if err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPredictions, submissionFilter(submissionID), update, &record); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	submission := findSubmission(record, submissionID)
	if submission == nil {
		return nil, domain.WrapError(domain.ErrNotFound, op, errors.New("submission missing after update"))
	}

	if patch.FileName != nil {
		event := domain.PredictionUpdatedEvent{
			PatientID: record.Patient.ID,
			DoctorID:  submission.DoctorID,
			Thumbnail: domain.ThumbnailPatch{
				ID:       submissionID,
				FileName: patch.FileName,
			},
		}
		if err := uc.bus.Publish(ctx, domain.TopicPredictionUpdated, event); err != nil {
			uc.logger.Error("publish_prediction_updated_failed",
				"submission_id", submissionID,
				"error", err,
			)
		}
	}

	return submission, nil
}

func (uc *ManagePredictionsUseCase) DeleteSubmission(ctx context.Context, submissionID string) error {
	const op = "delete submission"

	var record domain.PredictionRecord
	err := uc.store.FindOne(ctx, ports.CollectionPredictions, submissionFilter(submissionID), &record)
	if domain.IsKind(err, domain.ErrNotFound) {
		// Already gone; deleting twice is not an error.
		return nil
	}
	if err != nil {
		return domain.WrapError(kindOf(err), op, err)
	}

	submission := findSubmission(record, submissionID)
	if submission == nil {
		return nil
	}

	update := ports.Update{
		Pull: map[string]ports.Filter{
			"submissions": {Eq: map[string]any{"id": submissionID}},
		},
	}
	if err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPredictions, submissionFilter(submissionID), update, nil); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil
		}
		return domain.WrapError(kindOf(err), op, err)
	}

	if err := uc.storage.DeletePrefix(ctx, SubmissionDir(record.Patient.ID, submissionID)); err != nil {
		uc.logger.Warn("submission_media_cleanup_failed",
			"submission_id", submissionID,
			"patient_id", record.Patient.ID,
			"error", err,
		)
	}

	event := domain.PredictionDeletedEvent{
		PatientID:    record.Patient.ID,
		DoctorID:     submission.DoctorID,
		PredictionID: submissionID,
	}
	if err := uc.bus.Publish(ctx, domain.TopicPredictionDeleted, event); err != nil {
		uc.logger.Error("publish_prediction_deleted_failed",
			"submission_id", submissionID,
			"error", err,
		)
	}

	return nil
}

func (uc *ManagePredictionsUseCase) GetRecordByPatient(ctx context.Context, patientID string) (*domain.PredictionRecord, error) {
	const op = "get prediction record"

	var record domain.PredictionRecord
	filter := ports.Filter{Eq: map[string]any{"patient.id": patientID}}
	if err := uc.store.FindOne(ctx, ports.CollectionPredictions, filter, &record); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}
	return &record, nil
}

func (uc *ManagePredictionsUseCase) GetSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	const op = "get submission"

	var record domain.PredictionRecord
	if err := uc.store.FindOne(ctx, ports.CollectionPredictions, submissionFilter(submissionID), &record); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	submission := findSubmission(record, submissionID)
	if submission == nil {
		return nil, domain.WrapError(domain.ErrNotFound, op, errors.New("submission not in matched record"))
	}
	return submission, nil
}

func (uc *ManagePredictionsUseCase) ListRecords(ctx context.Context) ([]domain.PredictionRecord, error) {
	var records []domain.PredictionRecord
	if err := uc.store.FindAll(ctx, ports.CollectionPredictions, ports.Filter{}, &records); err != nil {
		return nil, domain.WrapError(kindOf(err), "list prediction records", err)
	}
	if records == nil {
		records = []domain.PredictionRecord{}
	}
	return records, nil
}

func findSubmission(record domain.PredictionRecord, submissionID string) *domain.Submission {
	for i := range record.Submissions {
		if record.Submissions[i].ID == submissionID {
			return &record.Submissions[i]
		}
	}
	return nil
}
