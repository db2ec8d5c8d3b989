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
)

func newTestResolver(store *fakeStore) *Resolver {
	return &Resolver{
		Store:     store,
		Conflicts: &ConflictService{Store: store, Logger: zerolog.Nop()},
		Bus:       events.NewBus(),
		Weights:   DefaultWeights(),
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testDay.Add(12 * time.Hour) },
	}
}

func seedConflict(store *fakeStore) (models.Appointment, models.Appointment) {
	store.addBox(models.Box{ID: 1, State: "enabled", Corridor: "A", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	a := store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})
	b := store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 30), End: mins(10, 30)})
	return a, b
}

func TestResolveClusterRequiresTwoAppointments(t *testing.T) {
	store := newFakeStore()
	seedConflict(store)

	r := newTestResolver(store)
	_, err := r.ResolveCluster(context.Background(), []int64{1})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict error for a single appointment, got %v", err)
	}
}

func TestResolveClusterRanksByScore(t *testing.T) {
	store := newFakeStore()
	a, b := seedConflict(store)
	// same corridor and matching principal type, should rank first
	store.addBox(models.Box{ID: 2, State: "enabled", Corridor: "A", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	// different corridor, same type
	store.addBox(models.Box{ID: 3, State: "enabled", Corridor: "B", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})

	r := newTestResolver(store)
	res, err := r.ResolveCluster(context.Background(), []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ResolveCluster: %v", err)
	}

	if res.Conflict.Start != mins(9, 0) || res.Conflict.End != mins(10, 30) {
		t.Fatalf("unexpected cluster span %s-%s", res.Conflict.Start, res.Conflict.End)
	}
	if len(res.BestOptions) != 2 {
		t.Fatalf("expected 2 best options, got %d", len(res.BestOptions))
	}
	if res.BestOptions[0].Box.ID != 2 {
		t.Fatalf("expected box 2 first, got box %d", res.BestOptions[0].Box.ID)
	}
	if res.BestOptions[0].Score <= res.BestOptions[1].Score {
		t.Fatalf("expected corridor match to outrank, scores %v vs %v",
			res.BestOptions[0].Score, res.BestOptions[1].Score)
	}
	if res.Stats.BestScore != res.BestOptions[0].Score {
		t.Fatalf("stats best score mismatch")
	}
}

func TestResolveClusterEmergencyOptions(t *testing.T) {
	store := newFakeStore()
	a, b := seedConflict(store)
	store.addBox(models.Box{ID: 2, State: "disabled", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	store.addBox(models.Box{ID: 3, State: "enabled", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	// box 3 is busy during the cluster window
	store.addAppt(models.Appointment{BoxID: 3, Date: testDay, Start: mins(9, 0), End: mins(11, 0)})

	r := newTestResolver(store)
	res, err := r.ResolveCluster(context.Background(), []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ResolveCluster: %v", err)
	}

	if res.Stats.Occupied != 1 || res.Stats.Disabled != 1 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if len(res.EmergencyOptions) != 2 {
		t.Fatalf("expected 2 emergency options, got %d", len(res.EmergencyOptions))
	}
	// disabled options precede occupied ones
	if res.EmergencyOptions[0].Box.ID != 2 || res.EmergencyOptions[1].Box.ID != 3 {
		t.Fatalf("unexpected emergency ordering %+v", res.EmergencyOptions)
	}
	if res.EmergencyOptions[1].Score != occupiedPenalty {
		t.Fatalf("expected occupied penalty, got %v", res.EmergencyOptions[1].Score)
	}
}

func TestResolveClusterMedicPreference(t *testing.T) {
	store := newFakeStore()
	medicID := 42
	store.addBox(models.Box{ID: 1, State: "enabled", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	a := store.addAppt(models.Appointment{BoxID: 1, MedicID: &medicID, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})
	b := store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 30), End: mins(10, 30)})

	store.addBox(models.Box{ID: 2, State: "enabled", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	store.addBox(models.Box{ID: 3, State: "enabled", Types: []models.BoxType{{ID: 7, Name: "dental", Principal: true}}})
	// the medic used box 2 last week
	store.addAppt(models.Appointment{BoxID: 2, MedicID: &medicID, Date: testDay.AddDate(0, 0, -7), Start: mins(9, 0), End: mins(10, 0)})

	r := newTestResolver(store)
	res, err := r.ResolveCluster(context.Background(), []int64{a.ID, b.ID})
	if err != nil {
		t.Fatalf("ResolveCluster: %v", err)
	}
	if res.BestOptions[0].Box.ID != 2 {
		t.Fatalf("expected preferred box 2 first, got %d", res.BestOptions[0].Box.ID)
	}
}

func TestApplyChange(t *testing.T) {
	store := newFakeStore()
	a, _ := seedConflict(store)
	store.addBox(models.Box{ID: 2, State: "enabled"})

	r := newTestResolver(store)
	var published []events.Event
	r.Bus.Subscribe(events.AgendaReassigned, func(e events.Event) { published = append(published, e) })

	result, err := r.ApplyChange(context.Background(), a.ID, 2, "tester", "moving out of conflict")
	if err != nil {
		t.Fatalf("ApplyChange: %v", err)
	}
	if result.PreviousBoxID != 1 || result.NewBoxID != 2 {
		t.Fatalf("unexpected change result %+v", result)
	}

	moved, _ := store.GetAppointment(context.Background(), a.ID)
	if moved.BoxID != 2 {
		t.Fatalf("appointment not moved, box %d", moved.BoxID)
	}
	if !strings.Contains(moved.Notes, "BOX REASSIGNMENT") || !strings.Contains(moved.Notes, "tester") {
		t.Fatalf("audit block missing from notes: %q", moved.Notes)
	}

	if len(published) != 1 {
		t.Fatalf("expected 1 reassignment event, got %d", len(published))
	}
	if published[0].Details["previous_box_id"] != 1 || published[0].Details["new_box_id"] != 2 {
		t.Fatalf("unexpected event details %+v", published[0].Details)
	}
}

func TestApplyChangeRejectsBusyDestination(t *testing.T) {
	store := newFakeStore()
	a, _ := seedConflict(store)
	store.addBox(models.Box{ID: 2, State: "enabled"})
	store.addAppt(models.Appointment{BoxID: 2, Date: testDay, Start: mins(9, 30), End: mins(10, 30)})

	r := newTestResolver(store)
	_, err := r.ApplyChange(context.Background(), a.ID, 2, "tester", "")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}

	unchanged, _ := store.GetAppointment(context.Background(), a.ID)
	if unchanged.BoxID != 1 {
		t.Fatalf("appointment must not move on conflict, box %d", unchanged.BoxID)
	}
}

func TestApplyChangeUnknownAppointment(t *testing.T) {
	store := newFakeStore()
	seedConflict(store)

	r := newTestResolver(store)
	_, err := r.ApplyChange(context.Background(), 999, 1, "tester", "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
