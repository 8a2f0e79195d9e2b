package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/queue"
	"github.com/iliyamo/pill-dispenser/internal/repository"
	"github.com/iliyamo/pill-dispenser/internal/validation"
)

// MsgDispenserDeleted confirms a successful delete.
const MsgDispenserDeleted = "Dispenser successfully deleted"

// DispenserService implements the owner-scoped dispenser, container and
// schedule operations.  Each call takes the owner explicitly; a dispenser
// belonging to someone else is indistinguishable from a missing one.
// Dispenser endpoints report only the first violated rule.
type DispenserService struct {
	dispensers DispenserStore
	containers ContainerStore
	events     queue.Publisher
	log        *slog.Logger
}

// NewDispenserService wires the stores and the event publisher.  A nil
// publisher disables events.
func NewDispenserService(dispensers DispenserStore, containers ContainerStore, events queue.Publisher) *DispenserService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &DispenserService{
		dispensers: dispensers,
		containers: containers,
		events:     events,
		log:        slog.Default().With("component", "dispenser"),
	}
}

// RegisterDispenser validates the request and creates the dispenser with
// one placeholder container per slot of its size class.
func (s *DispenserService) RegisterDispenser(ctx context.Context, ownerID uint64, name, serialID string) (*model.Dispenser, error) {
	nd, v, err := validation.DispenserRegistration(ctx, s.dispensers, ownerID, name, serialID)
	if err != nil {
		return nil, fmt.Errorf("registration lookup: %w", err)
	}
	if !v.OK() {
		return nil, invalidFirst(v)
	}

	d := &model.Dispenser{OwnerID: ownerID, Name: nd.Name, SerialID: nd.SerialID, Size: nd.Size}
	initial := d.InitialContainers()
	if cv := validation.ContainerSet(d, initial); !cv.OK() {
		return nil, invalidFirst(cv)
	}
	d.Containers = initial

	if err := s.dispensers.Create(ctx, d, model.MaxDispensersPerOwner); err != nil {
		return nil, conflictOr(err, "create dispenser")
	}
	s.log.Info("dispenser registered", "owner_id", ownerID, "dispenser_id", d.ID, "size", d.Size.Label())

	ev := queue.NewDispenserEvent(queue.EventDispenserRegistered, ownerID, d.ID, d.Name)
	ev.SerialID = d.SerialID
	queue.PublishQuietly(s.events, ev)
	return d, nil
}

// GetDispenser loads one of the owner's dispensers by name.
func (s *DispenserService) GetDispenser(ctx context.Context, ownerID uint64, name string) (*model.Dispenser, error) {
	d, err := s.dispensers.GetByOwnerAndName(ctx, ownerID, strings.TrimSpace(name))
	if err != nil {
		return nil, notFoundOr(err, "load dispenser")
	}
	return d, nil
}

// ListDispensers returns all of the owner's dispensers with their trees.
func (s *DispenserService) ListDispensers(ctx context.Context, ownerID uint64) ([]*model.Dispenser, error) {
	ds, err := s.dispensers.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list dispensers: %w", err)
	}
	return ds, nil
}

// RenameDispenser gives the owner's dispenser currentName the name newName.
func (s *DispenserService) RenameDispenser(ctx context.Context, ownerID uint64, currentName, newName string) (*model.Dispenser, error) {
	d, err := s.GetDispenser(ctx, ownerID, currentName)
	if err != nil {
		return nil, err
	}
	name, v, err := validation.DispenserRename(ctx, s.dispensers, ownerID, newName)
	if err != nil {
		return nil, fmt.Errorf("rename lookup: %w", err)
	}
	if !v.OK() {
		return nil, invalidFirst(v)
	}
	if err := s.dispensers.Rename(ctx, d.ID, ownerID, name); err != nil {
		return nil, conflictOr(err, "rename dispenser")
	}
	previous := d.Name
	d.Name = name
	s.log.Info("dispenser renamed", "owner_id", ownerID, "dispenser_id", d.ID)

	ev := queue.NewDispenserEvent(queue.EventDispenserRenamed, ownerID, d.ID, d.Name)
	ev.PreviousName = previous
	queue.PublishQuietly(s.events, ev)
	return d, nil
}

// DeleteDispenser removes the owner's dispenser and everything under it.
func (s *DispenserService) DeleteDispenser(ctx context.Context, ownerID uint64, name string) (string, error) {
	name = strings.TrimSpace(name)
	id, err := s.dispensers.DeleteByOwnerAndName(ctx, ownerID, name)
	if err != nil {
		return "", notFoundOr(err, "delete dispenser")
	}
	s.log.Info("dispenser deleted", "owner_id", ownerID, "dispenser_id", id)
	queue.PublishQuietly(s.events, queue.NewDispenserEvent(queue.EventDispenserDeleted, ownerID, id, name))
	return MsgDispenserDeleted, nil
}

// UpdatePillName changes the pill loaded in one slot.
func (s *DispenserService) UpdatePillName(ctx context.Context, ownerID uint64, dispenserName string, slot int, pillName string) (*model.Container, error) {
	d, c, err := s.resolveContainer(ctx, ownerID, dispenserName, slot)
	if err != nil {
		return nil, err
	}
	name, v := validation.PillName(pillName)
	if !v.OK() {
		return nil, invalidFirst(v)
	}
	if err := s.containers.UpdatePillName(ctx, c.ID, name); err != nil {
		return nil, notFoundOr(err, "update pill name")
	}
	c.PillName = name

	ev := queue.NewDispenserEvent(queue.EventContainerPillUpdated, ownerID, d.ID, d.Name)
	ev.SlotNumber, ev.PillName = c.SlotNumber, name
	queue.PublishQuietly(s.events, ev)
	return c, nil
}

// ReplaceContainerSchedule swaps the whole schedule of one slot for
// entries, optionally renaming the pill in the same transaction.  An
// empty entries list clears the schedule.  On any failure the previous
// schedule is left untouched.
func (s *DispenserService) ReplaceContainerSchedule(ctx context.Context, ownerID uint64, dispenserName string, slot int, pillName *string, entries []validation.ScheduleInput) (*model.Container, error) {
	d, c, err := s.resolveContainer(ctx, ownerID, dispenserName, slot)
	if err != nil {
		return nil, err
	}
	var newName *string
	if pillName != nil {
		name, v := validation.PillName(*pillName)
		if !v.OK() {
			return nil, invalidFirst(v)
		}
		newName = &name
	}
	parsed, v := validation.ScheduleEntries(entries)
	if !v.OK() {
		return nil, invalidFirst(v)
	}
	if err := s.containers.ReplaceSchedules(ctx, c.ID, newName, parsed); err != nil {
		if errors.Is(err, repository.ErrDuplicateSchedule) {
			return nil, &ConflictError{Message: validation.MsgScheduleExists}
		}
		return nil, notFoundOr(err, "replace schedules")
	}

	updated, err := s.containers.GetBySlot(ctx, d.ID, slot)
	if err != nil {
		return nil, notFoundOr(err, "reload container")
	}
	s.log.Info("schedule replaced", "owner_id", ownerID, "container_id", updated.ID, "entries", len(parsed))

	ev := queue.NewDispenserEvent(queue.EventContainerScheduleReplaced, ownerID, d.ID, d.Name)
	ev.SlotNumber, ev.PillName, ev.ScheduleCount = updated.SlotNumber, updated.PillName, len(updated.Schedules)
	queue.PublishQuietly(s.events, ev)
	return updated, nil
}

func (s *DispenserService) resolveContainer(ctx context.Context, ownerID uint64, dispenserName string, slot int) (*model.Dispenser, *model.Container, error) {
	d, err := s.dispensers.GetByOwnerAndName(ctx, ownerID, strings.TrimSpace(dispenserName))
	if err != nil {
		return nil, nil, notFoundOr(err, "load dispenser")
	}
	c, err := s.containers.GetBySlot(ctx, d.ID, slot)
	if err != nil {
		return nil, nil, notFoundOr(err, "load container")
	}
	return d, c, nil
}

// notFoundOr translates repository lookup misses into NotFoundError and
// wraps anything else.
func notFoundOr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrDispenserNotFound):
		return &NotFoundError{Message: validation.MsgDispenserNotFound}
	case errors.Is(err, repository.ErrContainerNotFound):
		return &NotFoundError{Message: validation.MsgContainerNotFound}
	case errors.Is(err, repository.ErrUserNotFound):
		return &NotFoundError{Message: validation.MsgUserNotFound}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conflictOr translates storage uniqueness and quota errors raised after
// validation passed into ConflictError carrying the rule's message.
func conflictOr(err error, op string) error {
	switch {
	case errors.Is(err, repository.ErrDuplicateSerial):
		return &ConflictError{Message: validation.MsgSerialTaken}
	case errors.Is(err, repository.ErrDuplicateName):
		return &ConflictError{Message: validation.MsgNameTaken}
	case errors.Is(err, repository.ErrQuotaExceeded):
		return &ConflictError{Message: validation.MsgQuotaExceeded}
	case errors.Is(err, repository.ErrDuplicateSlot):
		return &ConflictError{Message: validation.MsgSlotTaken}
	}
	return notFoundOr(err, op)
}
