package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// AgendaService covers direct appointment bookkeeping: manual bookings,
// cancellations and listings. Conflict-driven mutations live in Resolver.
type AgendaService struct {
	Store     Store
	Conflicts *ConflictService
	Bus       *events.Bus
	Logger    zerolog.Logger
}

// Create books an appointment after checking the target box is free for the
// whole window.
func (s *AgendaService) Create(ctx context.Context, a models.Appointment) (models.Appointment, error) {
	if a.End <= a.Start {
		return models.Appointment{}, fmt.Errorf("%w: empty or inverted window %s-%s", apperr.ErrValidation, a.Start, a.End)
	}
	if _, err := s.Store.GetBox(ctx, a.BoxID); err != nil {
		return models.Appointment{}, fmt.Errorf("box %d: %w", a.BoxID, err)
	}

	busy, err := s.Conflicts.HasOverlap(ctx, a.BoxID, a.Date, a.Start, a.End, nil)
	if err != nil {
		return models.Appointment{}, err
	}
	if busy {
		return models.Appointment{}, fmt.Errorf("%w: box %d already booked in %s-%s", apperr.ErrConflict, a.BoxID, a.Start, a.End)
	}

	a.Enabled = true
	id, err := s.Store.CreateAppointment(ctx, a)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	a.ID = id

	s.Logger.Info().Int64("appointment_id", id).Int("box_id", a.BoxID).Msg("appointment created")
	if s.Bus != nil {
		s.Bus.Publish(events.AgendaCreated, map[string]any{
			"appointment_id": id,
			"box_id":         a.BoxID,
			"date":           a.Date.Format("2006-01-02"),
		})
	}
	return a, nil
}

func (s *AgendaService) Delete(ctx context.Context, id int64) error {
	appt, err := s.Store.GetAppointment(ctx, id)
	if err != nil {
		return fmt.Errorf("appointment %d: %w", id, err)
	}
	if err := s.Store.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}

	s.Logger.Info().Int64("appointment_id", id).Int("box_id", appt.BoxID).Msg("appointment deleted")
	if s.Bus != nil {
		s.Bus.Publish(events.AgendaDeleted, map[string]any{
			"appointment_id": id,
			"box_id":         appt.BoxID,
			"date":           appt.Date.Format("2006-01-02"),
		})
	}
	return nil
}

func (s *AgendaService) List(ctx context.Context, from, to time.Time, boxID int) ([]models.Appointment, error) {
	return s.Store.ListAppointments(ctx, from, to, boxID)
}

// SetBoxState flips a box between enabled and disabled.
func (s *AgendaService) SetBoxState(ctx context.Context, boxID int, state string) (models.Box, error) {
	switch state {
	case "enabled", "disabled":
	default:
		return models.Box{}, fmt.Errorf("%w: state must be enabled or disabled", apperr.ErrValidation)
	}
	if err := s.Store.UpdateBoxState(ctx, boxID, state); err != nil {
		return models.Box{}, fmt.Errorf("box %d: %w", boxID, err)
	}
	box, err := s.Store.GetBox(ctx, boxID)
	if err != nil {
		return models.Box{}, err
	}

	s.Logger.Info().Int("box_id", boxID).Str("state", state).Msg("box state changed")
	if s.Bus != nil {
		s.Bus.Publish(events.BoxStateChanged, map[string]any{
			"box_id": boxID,
			"state":  state,
		})
	}
	return box, nil
}
