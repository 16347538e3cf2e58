package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// StaffDirectoryUseCase owns the staff documents. Renames fan out as
// staff-edited so every embedded submitter name converges.
type StaffDirectoryUseCase struct {
	store  ports.DocumentStore
	bus    ports.EventBus
	logger *slog.Logger
}

func NewStaffDirectoryUseCase(store ports.DocumentStore, bus ports.EventBus, logger *slog.Logger) *StaffDirectoryUseCase {
	return &StaffDirectoryUseCase{store: store, bus: bus, logger: logger}
}

func (uc *StaffDirectoryUseCase) Create(ctx context.Context, fullName, email string) (*domain.StaffMember, error) {
	const op = "create staff member"

	if fullName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("full name is required"))
	}
	if email == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("email is required"))
	}

	now := time.Now().UTC()
	member := domain.StaffMember{
		ID:          uuid.NewString(),
		FullName:    fullName,
		Email:       email,
		Predictions: []domain.PredictionRef{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.store.InsertOne(ctx, ports.CollectionStaff, member); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}
	return &member, nil
}

func (uc *StaffDirectoryUseCase) Rename(ctx context.Context, id, fullName string) (*domain.StaffMember, error) {
	const op = "rename staff member"

	if fullName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, errors.New("full name is required"))
	}

	var member domain.StaffMember
	filter := ports.Filter{Eq: map[string]any{"id": id}}
	update := ports.Update{Set: map[string]any{
		"fullName":  fullName,
		"updatedAt": time.Now().UTC(),
	}}
	if err := uc.store.FindOneAndUpdate(ctx, ports.CollectionStaff, filter, update, &member); err != nil {
		return nil, domain.WrapError(kindOf(err), op, err)
	}

	event := domain.StaffEditedEvent{StaffID: id, FullName: fullName}
	if err := uc.bus.Publish(ctx, domain.TopicStaffEdited, event); err != nil {
		uc.logger.Error("publish_staff_edited_failed", "staff_id", id, "error", err)
	}

	return &member, nil
}

func (uc *StaffDirectoryUseCase) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	var member domain.StaffMember
	filter := ports.Filter{Eq: map[string]any{"id": id}}
	if err := uc.store.FindOne(ctx, ports.CollectionStaff, filter, &member); err != nil {
		return nil, domain.WrapError(kindOf(err), "get staff member", err)
	}
	return &member, nil
}
