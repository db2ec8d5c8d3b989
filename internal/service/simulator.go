package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/staging"
)

// Simulator implements the two-step bulk upload: validate and stage, then
// confirm. Nothing touches the database until the confirm step, and staged
// batches expire on their own if never confirmed.
type Simulator struct {
	Store     Store
	Conflicts *ConflictService
	Staging   *staging.Store
	Bus       *events.Bus
	Logger    zerolog.Logger
}

// ValidateAndStage splits the uploaded rows into approved and rejected.
// A row is rejected when it overlaps an existing appointment or an earlier
// approved row of the same upload. Approved rows are staged under a fresh
// session id for later confirmation.
func (s *Simulator) ValidateAndStage(ctx context.Context, actor string, rows []models.Appointment) (staging.Batch, error) {
	if len(rows) == 0 {
		return staging.Batch{}, fmt.Errorf("%w: empty upload", apperr.ErrValidation)
	}

	var approved, rejected []models.Appointment
	for _, row := range rows {
		if row.End <= row.Start {
			row.Notes = appendReason(row.Notes, "empty or inverted window")
			rejected = append(rejected, row)
			continue
		}

		busy, err := s.Conflicts.HasOverlap(ctx, row.BoxID, row.Date, row.Start, row.End, nil)
		if err != nil {
			return staging.Batch{}, fmt.Errorf("validate row box %d: %w", row.BoxID, err)
		}
		if busy {
			row.Notes = appendReason(row.Notes, "overlaps an existing appointment")
			rejected = append(rejected, row)
			continue
		}

		clash := false
		for _, prev := range approved {
			if row.Overlaps(prev) {
				clash = true
				break
			}
		}
		if clash {
			row.Notes = appendReason(row.Notes, "overlaps another row in this upload")
			rejected = append(rejected, row)
			continue
		}
		approved = append(approved, row)
	}

	batch := s.Staging.Put(actor, approved, rejected)
	s.Logger.Info().Str("session_id", batch.SessionID).Str("actor", actor).
		Int("approved", len(approved)).Int("rejected", len(rejected)).Msg("upload staged")
	return batch, nil
}

// Confirm persists the approved rows of a staged session. The session is
// consumed even when the insert fails, matching the one-shot semantics of
// the upload flow; the caller re-uploads on failure.
func (s *Simulator) Confirm(ctx context.Context, sessionID string) (int64, error) {
	batch, ok := s.Staging.Take(sessionID)
	if !ok {
		return 0, fmt.Errorf("%w: session %s not found or expired", apperr.ErrNotFound, sessionID)
	}
	if len(batch.Approved) == 0 {
		return 0, nil
	}

	inserted, err := s.Store.BulkInsertAppointments(ctx, batch.Approved)
	if err != nil {
		return 0, fmt.Errorf("confirm session %s: %w", sessionID, err)
	}

	s.Logger.Info().Str("session_id", sessionID).Int64("inserted", inserted).Msg("upload confirmed")
	if s.Bus != nil {
		s.Bus.Publish(events.AgendaBulkCreated, map[string]any{
			"count":  inserted,
			"source": "simulator",
		})
	}
	return inserted, nil
}

func appendReason(notes, reason string) string {
	if notes == "" {
		return "rejected: " + reason
	}
	return notes + "; rejected: " + reason
}
