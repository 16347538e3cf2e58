package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// SubmitPredictionUseCase runs the full submission pipeline: concurrent image
// uploads, fan-out of inference requests, fan-in of the asynchronous replies
// on the per-submission correlation subject, aggregation and a single atomic
// append to the patient's prediction record.
type SubmitPredictionUseCase struct {
	store     ports.DocumentStore
	storage   ports.ObjectStorage
	inference ports.InferenceClient
	replies   ports.ReplyListener
	bus       ports.EventBus
	logger    *slog.Logger

	waitTimeout      time.Duration
	cleanupOnFailure bool
}

func NewSubmitPredictionUseCase(
	store ports.DocumentStore,
	storage ports.ObjectStorage,
	inference ports.InferenceClient,
	replies ports.ReplyListener,
	bus ports.EventBus,
	logger *slog.Logger,
	waitTimeout time.Duration,
	cleanupOnFailure bool,
) *SubmitPredictionUseCase {
	if waitTimeout <= 0 {
		waitTimeout = 2 * time.Minute
	}
	return &SubmitPredictionUseCase{
		store:            store,
		storage:          storage,
		inference:        inference,
		replies:          replies,
		bus:              bus,
		logger:           logger,
		waitTimeout:      waitTimeout,
		cleanupOnFailure: cleanupOnFailure,
	}
}

func (uc *SubmitPredictionUseCase) Submit(ctx context.Context, input ports.SubmitPredictionInput) (*domain.Submission, error) {
	const op = "submit prediction"

	if input.PatientID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("patient id is required"))
	}
	if len(input.Images) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("at least one image is required"))
	}

	recordFilter := ports.Filter{Eq: map[string]any{"patient.id": input.PatientID}}

	// Unknown patients fail here, before any blob or inference work. The
	// count itself is read again right before the append; by then other
	// submissions may have landed during the reply wait.
	if _, err := uc.store.ArrayLength(ctx, ports.CollectionPredictions, recordFilter, "submissions"); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	submissionID := uuid.NewString()
	createdAt := time.Now().UTC()

	urls, err := uc.uploadImages(ctx, input, submissionID)
	if err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	stream, err := uc.replies.Listen(ctx, domain.InferenceReplySubject(submissionID))
	if err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(domain.ErrUpstream, op, err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			uc.logger.Warn("reply_stream_close_failed",
				"submission_id", submissionID,
				"error", closeErr,
			)
		}
	}()

	if err := uc.requestInference(ctx, input, submissionID); err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	percentages, err := uc.collectReplies(ctx, stream, submissionID, len(input.Images))
	if err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	results := make([]domain.ImageResult, len(input.Images))
	for i := range input.Images {
		results[i] = domain.ImageResult{
			ImageIndex:  i,
			ImageURL:    urls[i],
			Percentages: percentages[i],
		}
	}

	// The count read here and the append below are still two statements, so
	// two racing submissions can observe the same count; callers treat
	// Number as advisory.
	priorCount, err := uc.store.ArrayLength(ctx, ports.CollectionPredictions, recordFilter, "submissions")
	if err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	summary, err := domain.SummarizeResults(priorCount, results)
	if err != nil {
		return nil, err
	}

	submission := domain.Submission{
		ID:          submissionID,
		Number:      summary.Number,
		DoctorID:    input.Doctor.ID,
		DoctorName:  input.Doctor.FullName,
		CreatedAt:   createdAt,
		Results:     summary.Results,
		ResultsMean: summary.ResultsMean,
		FileName:    input.FileName,
		Notes:       input.Notes,
	}
	if submission.Notes == nil {
		submission.Notes = []string{}
	}

	update := ports.Update{Push: map[string]any{"submissions": submission}}
	if err := uc.store.FindOneAndUpdate(ctx, ports.CollectionPredictions, recordFilter, update, nil); err != nil {
		uc.cleanup(ctx, input.PatientID, submissionID)
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	event := domain.PredictionCreatedEvent{
		PatientID:  input.PatientID,
		DoctorID:   input.Doctor.ID,
		DoctorName: input.Doctor.FullName,
		Thumbnail:  submission.Thumbnail(),
	}
	if err := uc.bus.Publish(ctx, domain.TopicPredictionCreated, event); err != nil {
		// The submission is already persisted; the thumbnail copies converge
		// on the next event for this patient.
		uc.logger.Error("publish_prediction_created_failed",
			"submission_id", submissionID,
			"patient_id", input.PatientID,
			"error", err,
		)
	}

	return &submission, nil
}

func (uc *SubmitPredictionUseCase) uploadImages(ctx context.Context, input ports.SubmitPredictionInput, submissionID string) ([]string, error) {
	urls := make([]string, len(input.Images))

	g, gctx := errgroup.WithContext(ctx)
	for i, image := range input.Images {
		g.Go(func() error {
			path := SubmissionImagePath(input.PatientID, submissionID, i)
			url, err := uc.storage.Save(gctx, path, image.ContentType, image.Data, map[string]string{
				"patientId":    input.PatientID,
				"submissionId": submissionID,
				"doctorId":     input.Doctor.ID,
			})
			if err != nil {
				return fmt.Errorf("upload image %d: %w", i, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (uc *SubmitPredictionUseCase) requestInference(ctx context.Context, input ports.SubmitPredictionInput, submissionID string) error {
	subject := domain.InferenceReplySubject(submissionID)

	g, gctx := errgroup.WithContext(ctx)
	for i := range input.Images {
		g.Go(func() error {
			path := SubmissionImagePath(input.PatientID, submissionID, i)
			if err := uc.inference.RequestPrediction(gctx, input.AuthToken, subject, path, i); err != nil {
				return fmt.Errorf("request prediction for image %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (uc *SubmitPredictionUseCase) collectReplies(ctx context.Context, stream ports.ReplyStream, submissionID string, expected int) (map[int]domain.Percentages, error) {
	collected := make(map[int]domain.Percentages, expected)

	timer := time.NewTimer(uc.waitTimeout)
	defer timer.Stop()

	for len(collected) < expected {
		select {
		case reply := <-stream.C():
			if reply.Index < 0 || reply.Index >= expected {
				uc.logger.Warn("inference_reply_index_out_of_range",
					"submission_id", submissionID,
					"index", reply.Index,
				)
				continue
			}
			if _, seen := collected[reply.Index]; seen {
				uc.logger.Warn("inference_reply_duplicate",
					"submission_id", submissionID,
					"index", reply.Index,
				)
				continue
			}
			collected[reply.Index] = reply.Percentage
		case <-timer.C:
			return nil, domain.WrapError(domain.ErrInferenceTimeout, "collect inference replies",
				fmt.Errorf("got %d of %d replies within %s", len(collected), expected, uc.waitTimeout))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return collected, nil
}

func (uc *SubmitPredictionUseCase) cleanup(ctx context.Context, patientID, submissionID string) {
	if !uc.cleanupOnFailure {
		return
	}
	prefix := SubmissionDir(patientID, submissionID)
	if err := uc.storage.DeletePrefix(context.WithoutCancel(ctx), prefix); err != nil {
		uc.logger.Warn("submission_cleanup_failed",
			"submission_id", submissionID,
			"prefix", prefix,
			"error", err,
		)
	}
}

// SubmissionDir is the blob directory holding one submission's images.
func SubmissionDir(patientID, submissionID string) string {
	return fmt.Sprintf("media/patients/%s/predictions/%s", patientID, submissionID)
}

// SubmissionImagePath names the blob of one image within a submission.
func SubmissionImagePath(patientID, submissionID string, index int) string {
	return fmt.Sprintf("%s/prediction-%s-%d", SubmissionDir(patientID, submissionID), submissionID, index)
}

// PatientMediaDir is the blob directory holding every submission of one
// patient.
func PatientMediaDir(patientID string) string {
	return fmt.Sprintf("media/patients/%s", patientID)
}

func kindOf(err error) error {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrInvalidInput,
		domain.ErrUnauthorized,
		domain.ErrInferenceTimeout,
		domain.ErrTemporary,
		domain.ErrUpstream,
	} {
		if domain.IsKind(err, kind) {
			return kind
		}
	}
	return domain.ErrUpstream
}
