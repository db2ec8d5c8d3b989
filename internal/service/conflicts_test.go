package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

var testDay = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func mins(h, m int) models.Minutes {
	return models.Minutes(h*60 + m)
}

func TestFindConflictPairs(t *testing.T) {
	store := newFakeStore()
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 30), End: mins(10, 30)})
	// touching endpoints, not a conflict
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(10, 30), End: mins(11, 0)})
	// other box, same window, not a conflict
	store.addAppt(models.Appointment{BoxID: 2, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}
	pairs, err := svc.FindConflictPairs(context.Background(), testDay, testDay)
	if err != nil {
		t.Fatalf("FindConflictPairs: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].BoxID != 1 || pairs[0].First.Start != mins(9, 0) || pairs[0].Second.Start != mins(9, 30) {
		t.Fatalf("unexpected pair %+v", pairs[0])
	}
}

func TestFindConflictPairsChain(t *testing.T) {
	store := newFakeStore()
	// three mutually chained appointments yield two adjacent pairs
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(11, 0)})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(10, 0), End: mins(12, 0)})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(11, 30), End: mins(13, 0)})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}
	pairs, err := svc.FindConflictPairs(context.Background(), testDay, testDay)
	if err != nil {
		t.Fatalf("FindConflictPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
}

func TestHasOverlapExcludesIDs(t *testing.T) {
	store := newFakeStore()
	a := store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}
	busy, err := svc.HasOverlap(context.Background(), 1, testDay, mins(9, 0), mins(10, 0), []int64{a.ID})
	if err != nil {
		t.Fatalf("HasOverlap: %v", err)
	}
	if busy {
		t.Fatal("expected no overlap when the only appointment is excluded")
	}

	busy, err = svc.HasOverlap(context.Background(), 1, testDay, mins(9, 30), mins(11, 0), nil)
	if err != nil {
		t.Fatalf("HasOverlap: %v", err)
	}
	if !busy {
		t.Fatal("expected overlap")
	}
}

func TestFindFreeBoxesSkipsOccupiedAndDisabled(t *testing.T) {
	store := newFakeStore()
	store.addBox(models.Box{ID: 1, State: "enabled"})
	store.addBox(models.Box{ID: 2, State: "enabled"})
	store.addBox(models.Box{ID: 3, State: "disabled"})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}
	free, err := svc.FindFreeBoxes(context.Background(), testDay, mins(9, 0), mins(10, 0), nil, nil, false)
	if err != nil {
		t.Fatalf("FindFreeBoxes: %v", err)
	}
	if len(free) != 1 || free[0].ID != 2 {
		t.Fatalf("expected only box 2 free, got %+v", free)
	}

	free, err = svc.FindFreeBoxes(context.Background(), testDay, mins(9, 0), mins(10, 0), nil, nil, true)
	if err != nil {
		t.Fatalf("FindFreeBoxes: %v", err)
	}
	if len(free) != 2 {
		t.Fatalf("expected boxes 2 and 3 with disabled included, got %+v", free)
	}
}

func TestFindFreeBoxesTypeFilterFallback(t *testing.T) {
	store := newFakeStore()
	store.addBox(models.Box{ID: 1, State: "enabled", Types: []models.BoxType{{ID: 7, Name: "dental"}}})
	store.addBox(models.Box{ID: 2, State: "enabled"})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}

	free, err := svc.FindFreeBoxes(context.Background(), testDay, mins(9, 0), mins(10, 0), nil, []int{7}, false)
	if err != nil {
		t.Fatalf("FindFreeBoxes: %v", err)
	}
	if len(free) != 1 || free[0].ID != 1 {
		t.Fatalf("expected only the matching box, got %+v", free)
	}

	// no box carries type 99, so the filter is dropped
	free, err = svc.FindFreeBoxes(context.Background(), testDay, mins(9, 0), mins(10, 0), nil, []int{99}, false)
	if err != nil {
		t.Fatalf("FindFreeBoxes: %v", err)
	}
	if len(free) != 2 {
		t.Fatalf("expected fallback to all free boxes, got %+v", free)
	}
}

func TestConflictStats(t *testing.T) {
	store := newFakeStore()
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 0), End: mins(10, 0)})
	store.addAppt(models.Appointment{BoxID: 1, Date: testDay, Start: mins(9, 30), End: mins(10, 30)})
	nextDay := testDay.AddDate(0, 0, 1)
	store.addAppt(models.Appointment{BoxID: 1, Date: nextDay, Start: mins(9, 0), End: mins(10, 0)})

	svc := &ConflictService{Store: store, Logger: zerolog.Nop()}
	stats, err := svc.Stats(context.Background(), testDay, nextDay)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPairs != 1 {
		t.Fatalf("expected 1 total pair, got %d", stats.TotalPairs)
	}
	if len(stats.Days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(stats.Days))
	}
	if stats.Days[0].Appointments != 2 || stats.Days[0].ConflictPairs != 1 {
		t.Fatalf("unexpected first day stats %+v", stats.Days[0])
	}
	if stats.Days[1].ConflictPairs != 0 {
		t.Fatalf("expected no pairs on second day, got %+v", stats.Days[1])
	}
}
