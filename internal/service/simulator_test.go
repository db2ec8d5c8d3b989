package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/staging"
)

func newTestSimulator(store *fakeStore) *Simulator {
	return &Simulator{
		Store:     store,
		Conflicts: &ConflictService{Store: store, Logger: zerolog.Nop()},
		Staging:   staging.NewStore(time.Minute),
		Bus:       events.NewBus(),
		Logger:    zerolog.Nop(),
	}
}

func TestValidateAndStageSplitsRows(t *testing.T) {
	store := newFakeStore()
	store.addBox(models.Box{ID: 1, State: "enabled"})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})

	sim := newTestSimulator(store)
	rows := []models.Appointment{
		{BoxID: 1, Date: testDay, Start: mins(9, 30), End: mins(10, 30)}, // clashes with existing
		{BoxID: 1, Date: testDay, Start: mins(11, 0), End: mins(12, 0)}, // free
		{BoxID: 1, Date: testDay, Start: mins(11, 30), End: mins(12, 30)}, // clashes with previous row
		{BoxID: 1, Date: testDay, Start: mins(13, 0), End: mins(13, 0)}, // empty window
	}

	batch, err := sim.ValidateAndStage(context.Background(), "tester", rows)
	if err != nil {
		t.Fatalf("ValidateAndStage: %v", err)
	}
	if len(batch.Approved) != 1 || len(batch.Rejected) != 3 {
		t.Fatalf("expected 1 approved / 3 rejected, got %d/%d", len(batch.Approved), len(batch.Rejected))
	}
	if batch.Approved[0].Start != mins(11, 0) {
		t.Fatalf("wrong row approved: %+v", batch.Approved[0])
	}
	for _, r := range batch.Rejected {
		if !strings.Contains(r.Notes, "rejected:") {
			t.Fatalf("rejected row missing reason: %+v", r)
		}
	}
	// nothing persisted before confirmation
	if len(store.appts) != 1 {
		t.Fatalf("staging must not write to the store, got %d rows", len(store.appts))
	}
}

func TestValidateAndStageRejectsEmptyUpload(t *testing.T) {
	sim := newTestSimulator(newFakeStore())
	_, err := sim.ValidateAndStage(context.Background(), "tester", nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfirmPersistsOnce(t *testing.T) {
	store := newFakeStore()
	store.addBox(models.Box{ID: 1, State: "enabled"})

	sim := newTestSimulator(store)
	var published []events.Event
	sim.Bus.Subscribe(events.AgendaBulkCreated, func(e events.Event) { published = append(published, e) })

	batch, err := sim.ValidateAndStage(context.Background(), "tester", []models.Appointment{
		{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)},
	})
	if err != nil {
		t.Fatalf("ValidateAndStage: %v", err)
	}

	inserted, err := sim.Confirm(context.Background(), batch.SessionID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if inserted != 1 || len(store.appts) != 1 {
		t.Fatalf("expected 1 inserted row, got %d", inserted)
	}
	if len(published) != 1 {
		t.Fatalf("expected bulk created event, got %d", len(published))
	}

	// the session is consumed, confirming twice fails
	if _, err := sim.Confirm(context.Background(), batch.SessionID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on second confirm, got %v", err)
	}
}

func TestConfirmUnknownSession(t *testing.T) {
	sim := newTestSimulator(newFakeStore())
	if _, err := sim.Confirm(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
