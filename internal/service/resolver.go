package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/events"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// Weights are the scorer's per-criterion multipliers. They come from
// configuration, not per-call magic numbers.
type Weights struct {
	SameCorridor    float64
	DailyLoad       float64
	HistoricalUse   float64
	PrincipalType   float64
	SecondaryType   float64
	ContinuousAvail float64
	MedicPreference float64
}

func DefaultWeights() Weights {
	return Weights{
		SameCorridor:    15,
		DailyLoad:       3,
		HistoricalUse:   2,
		PrincipalType:   25,
		SecondaryType:   10,
		ContinuousAvail: 7,
		MedicPreference: 12,
	}
}

const (
	occupiedPenalty = -1000.0
	disabledPenalty = -100.0
	scoreFloor      = -500.0

	preferenceWindowDays = 30
	nearbyWindowMinutes  = 120
)

// Resolver scores alternative boxes for a conflict cluster and commits
// reassignments with a recheck-then-write guard.
type Resolver struct {
	Store     Store
	Conflicts *ConflictService
	Bus       *events.Bus
	Weights   Weights
	Logger    zerolog.Logger

	// Now is swappable for tests; zero value means time.Now.
	Now func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveCluster evaluates every candidate box for a cluster of conflicting
// appointments and returns ranked recommendations.
func (r *Resolver) ResolveCluster(ctx context.Context, appointmentIDs []int64) (models.Resolution, error) {
	cluster, err := r.Store.ListAppointmentsByIDs(ctx, appointmentIDs)
	if err != nil {
		return models.Resolution{}, fmt.Errorf("load cluster: %w", err)
	}
	if len(cluster) < 2 {
		return models.Resolution{}, fmt.Errorf("%w: at least 2 conflicting appointments required", apperr.ErrConflict)
	}

	date := cluster[0].Date
	start, end := clusterSpan(cluster)

	principalIDs, secondaryIDs, principalNames, secondaryNames, boxes, err := r.requiredTypes(ctx, cluster)
	if err != nil {
		return models.Resolution{}, err
	}

	candidates, err := r.candidateBoxes(ctx, boxes, principalIDs, secondaryIDs)
	if err != nil {
		return models.Resolution{}, err
	}

	var (
		scored   []models.ScoredBox
		enabled  []models.ScoredBox
		disabled []models.ScoredBox
		occupied []models.ScoredBox
	)
	for _, box := range candidates {
		sb, err := r.scoreBox(ctx, box, cluster, date, start, end, appointmentIDs, principalIDs, secondaryIDs)
		if err != nil {
			return models.Resolution{}, err
		}
		scored = append(scored, sb)
		switch {
		case sb.Occupied:
			occupied = append(occupied, sb)
		case !sb.Enabled:
			disabled = append(disabled, sb)
		case sb.Score > scoreFloor:
			enabled = append(enabled, sb)
		}
	}

	byScore := func(list []models.ScoredBox) {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
	}
	byScore(scored)
	byScore(enabled)
	byScore(disabled)
	byScore(occupied)

	var recommendations []models.ScoredBox
	for _, sb := range scored {
		if sb.Score > scoreFloor {
			recommendations = append(recommendations, sb)
		}
	}

	medics, err := r.clusterMedics(ctx, cluster)
	if err != nil {
		return models.Resolution{}, err
	}

	res := models.Resolution{
		Conflict: models.ConflictSummary{
			Date:          date,
			Start:         start,
			End:           end,
			DurationHours: float64(end-start) / 60,
			Appointments:  cluster,
			Boxes:         boxes,
			Medics:        medics,
			PrincipalTags: principalNames,
			SecondaryTags: secondaryNames,
		},
		Recommendations:  recommendations,
		BestOptions:      firstN(enabled, 5),
		EmergencyOptions: append(firstN(disabled, 3), firstN(occupied, 2)...),
		Stats: models.ResolutionStats{
			Evaluated:    len(scored),
			EnabledCount: len(enabled),
			Disabled:     len(disabled),
			Occupied:     len(occupied),
		},
	}
	if len(enabled) > 0 {
		res.Stats.BestScore = enabled[0].Score
		var sum float64
		for _, sb := range enabled {
			sum += sb.Score
		}
		res.Stats.AverageScore = round1(sum / float64(len(enabled)))
	}
	return res, nil
}

func (r *Resolver) scoreBox(ctx context.Context, box models.Box, cluster []models.Appointment, date time.Time, start, end models.Minutes, excludeIDs []int64, principalIDs, secondaryIDs []int) (models.ScoredBox, error) {
	// Hard availability first: a box that is busy during the exact cluster
	// span never enters the primary recommendation set.
	busy, err := r.Conflicts.HasOverlap(ctx, box.ID, date, start, end, excludeIDs)
	if err != nil {
		return models.ScoredBox{}, err
	}
	if busy {
		return models.ScoredBox{
			Box:   box,
			Score: occupiedPenalty,
			Criteria: []models.Criterion{{
				Name:     "box occupied",
				Points:   occupiedPenalty,
				Detail:   fmt.Sprintf("box busy during the conflict window (%s - %s)", start, end),
				Category: "penalty",
			}},
			Occupied: true,
		}, nil
	}

	var (
		score    float64
		criteria []models.Criterion
	)
	add := func(name string, points float64, detail, category string) {
		score += points
		criteria = append(criteria, models.Criterion{Name: name, Points: round1(points), Detail: detail, Category: category})
	}

	if box.Disabled() {
		add("box disabled", disabledPenalty, fmt.Sprintf("state: %s", box.State), "penalty")
	}

	dailyLoad, err := r.Store.CountAppointments(ctx, box.ID, date)
	if err != nil {
		return models.ScoredBox{}, err
	}
	add("daily load", float64(10-min(dailyLoad, 10))*r.Weights.DailyLoad,
		fmt.Sprintf("%d appointments this day", dailyLoad), "efficiency")

	originalBox := cluster[0].BoxID
	if origin, err := r.Store.GetBox(ctx, originalBox); err == nil && origin.Corridor != "" && origin.Corridor == box.Corridor {
		add("same corridor", r.Weights.SameCorridor, fmt.Sprintf("corridor %s", box.Corridor), "location")
	}

	medicIDs := clusterMedicIDs(cluster)
	if len(medicIDs) > 0 {
		historical, err := r.Store.CountMedicUsage(ctx, box.ID, medicIDs, time.Time{})
		if err != nil {
			return models.ScoredBox{}, err
		}
		add("historical use", float64(min(historical, 10))*r.Weights.HistoricalUse,
			fmt.Sprintf("%d previous uses by the involved medics", historical), "preference")

		since := r.now().AddDate(0, 0, -preferenceWindowDays)
		recent, err := r.Store.CountMedicUsage(ctx, box.ID, medicIDs, since)
		if err != nil {
			return models.ScoredBox{}, err
		}
		add("medic preference (30 days)", float64(min(recent, 10))*r.Weights.MedicPreference/10,
			fmt.Sprintf("%d recent uses", min(recent, 10)), "preference")
	}

	principalMatches, secondaryMatches := typeMatches(box, principalIDs, secondaryIDs)
	if principalMatches > 0 {
		add("principal type match", float64(principalMatches)*r.Weights.PrincipalType,
			fmt.Sprintf("%d compatible principal type(s)", principalMatches), "compatibility")
	}
	if secondaryMatches > 0 {
		add("secondary type match", float64(secondaryMatches)*r.Weights.SecondaryType,
			fmt.Sprintf("%d compatible secondary type(s)", secondaryMatches), "compatibility")
	}

	availability, err := r.continuousAvailability(ctx, box.ID, date, start, end)
	if err != nil {
		return models.ScoredBox{}, err
	}
	add("continuous availability", float64(availability)*r.Weights.ContinuousAvail/5,
		fmt.Sprintf("schedule flexibility %d/5", availability), "efficiency")

	return models.ScoredBox{
		Box:       box,
		Score:     round1(score),
		Criteria:  criteria,
		Enabled:   !box.Disabled(),
		Available: true,
	}, nil
}

// continuousAvailability counts bookings within ±2h of the window, clipped
// to the day, and maps fewer neighbors to a higher 0..5 value.
func (r *Resolver) continuousAvailability(ctx context.Context, boxID int, date time.Time, start, end models.Minutes) (int, error) {
	before := start - nearbyWindowMinutes
	if before < 0 {
		before = 0
	}
	after := end + nearbyWindowMinutes
	if after > 24*60 {
		after = 24 * 60
	}
	nearby, err := r.Store.ListOverlapping(ctx, boxID, date, before, after, nil)
	if err != nil {
		return 0, err
	}
	v := 5 - len(nearby)
	if v < 0 {
		v = 0
	}
	return v, nil
}

// ApplyChange moves an appointment to a new box. Availability is rechecked
// at commit time because a recommendation can go stale between scoring and
// commit; that recheck is the only guard, there is no lock across scoring.
func (r *Resolver) ApplyChange(ctx context.Context, appointmentID int64, destBoxID int, actor, comment string) (models.ChangeResult, error) {
	appt, err := r.Store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return models.ChangeResult{}, fmt.Errorf("appointment %d: %w", appointmentID, err)
	}
	dest, err := r.Store.GetBox(ctx, destBoxID)
	if err != nil {
		return models.ChangeResult{}, fmt.Errorf("box %d: %w", destBoxID, err)
	}

	busy, err := r.Conflicts.HasOverlap(ctx, dest.ID, appt.Date, appt.Start, appt.End, []int64{appt.ID})
	if err != nil {
		return models.ChangeResult{}, err
	}
	if busy {
		return models.ChangeResult{}, fmt.Errorf("%w: destination box %d is no longer available in the exact window", apperr.ErrConflict, dest.ID)
	}

	changedAt := r.now().UTC()
	window := fmt.Sprintf("%s - %s", appt.Start, appt.End)
	audit := fmt.Sprintf("\n\n--- BOX REASSIGNMENT ---\nChanged at: %s\nActor: %s\nPrevious box: %d\nNew box: %d\nWindow: %s\nComment: %s\n--- END ---\n",
		changedAt.Format("2006-01-02 15:04"), actor, appt.BoxID, dest.ID, window, comment)

	if err := r.Store.UpdateAppointmentBox(ctx, appt.ID, dest.ID, appt.Notes+audit); err != nil {
		return models.ChangeResult{}, fmt.Errorf("persist reassignment: %w", err)
	}

	r.Logger.Info().
		Int64("appointment_id", appt.ID).
		Int("previous_box", appt.BoxID).
		Int("new_box", dest.ID).
		Str("actor", actor).
		Msg("reassignment applied")

	if r.Bus != nil {
		r.Bus.Publish(events.AgendaReassigned, map[string]any{
			"appointment_id":  appt.ID,
			"previous_box_id": appt.BoxID,
			"new_box_id":      dest.ID,
			"date":            appt.Date.Format("2006-01-02"),
		})
	}

	return models.ChangeResult{
		AppointmentID: appt.ID,
		PreviousBoxID: appt.BoxID,
		NewBoxID:      dest.ID,
		ChangedAt:     changedAt,
		Window:        window,
		Comment:       comment,
	}, nil
}

// candidateBoxes selects every box except the ones already involved in the
// conflict. Occupied and disabled boxes stay in, the scorer penalizes them
// and routes them into the emergency lists. Boxes sharing a type with the
// originals are preferred; when none match, all boxes are evaluated.
func (r *Resolver) candidateBoxes(ctx context.Context, originals []models.Box, principalIDs, secondaryIDs []int) ([]models.Box, error) {
	all, err := r.Store.ListBoxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}
	involved := map[int]bool{}
	for _, b := range originals {
		involved[b.ID] = true
	}

	wanted := map[int]bool{}
	for _, id := range principalIDs {
		wanted[id] = true
	}
	for _, id := range secondaryIDs {
		wanted[id] = true
	}

	var candidates, matching []models.Box
	for _, b := range all {
		if involved[b.ID] {
			continue
		}
		candidates = append(candidates, b)
		for _, t := range b.Types {
			if wanted[t.ID] {
				matching = append(matching, b)
				break
			}
		}
	}
	if len(wanted) > 0 && len(matching) > 0 {
		return matching, nil
	}
	return candidates, nil
}

func (r *Resolver) requiredTypes(ctx context.Context, cluster []models.Appointment) (principalIDs, secondaryIDs []int, principalNames, secondaryNames []string, boxes []models.Box, err error) {
	seenBox := map[int]bool{}
	seenPrincipal := map[int]bool{}
	seenSecondary := map[int]bool{}
	for _, a := range cluster {
		if seenBox[a.BoxID] {
			continue
		}
		seenBox[a.BoxID] = true
		box, err := r.Store.GetBox(ctx, a.BoxID)
		if err != nil {
			return nil, nil, nil, nil, nil, fmt.Errorf("box %d: %w", a.BoxID, err)
		}
		boxes = append(boxes, box)
		for _, t := range box.Types {
			if t.Principal {
				if !seenPrincipal[t.ID] {
					seenPrincipal[t.ID] = true
					principalIDs = append(principalIDs, t.ID)
					principalNames = append(principalNames, t.Name)
				}
			} else if !seenSecondary[t.ID] {
				seenSecondary[t.ID] = true
				secondaryIDs = append(secondaryIDs, t.ID)
				secondaryNames = append(secondaryNames, t.Name)
			}
		}
	}
	return principalIDs, secondaryIDs, principalNames, secondaryNames, boxes, nil
}

func (r *Resolver) clusterMedics(ctx context.Context, cluster []models.Appointment) ([]models.Medic, error) {
	ids := clusterMedicIDs(cluster)
	if len(ids) == 0 {
		return nil, nil
	}
	medics, err := r.Store.ListMedicsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list medics: %w", err)
	}
	return medics, nil
}

func clusterSpan(cluster []models.Appointment) (models.Minutes, models.Minutes) {
	start, end := cluster[0].Start, cluster[0].End
	for _, a := range cluster[1:] {
		if a.Start < start {
			start = a.Start
		}
		if a.End > end {
			end = a.End
		}
	}
	return start, end
}

func clusterMedicIDs(cluster []models.Appointment) []int {
	seen := map[int]bool{}
	var ids []int
	for _, a := range cluster {
		if a.MedicID != nil && !seen[*a.MedicID] {
			seen[*a.MedicID] = true
			ids = append(ids, *a.MedicID)
		}
	}
	return ids
}

func typeMatches(box models.Box, principalIDs, secondaryIDs []int) (int, int) {
	principal := map[int]bool{}
	for _, id := range principalIDs {
		principal[id] = true
	}
	secondary := map[int]bool{}
	for _, id := range secondaryIDs {
		secondary[id] = true
	}
	var p, s int
	for _, t := range box.Types {
		if t.Principal && principal[t.ID] {
			p++
		}
		if !t.Principal && secondary[t.ID] {
			s++
		}
	}
	return p, s
}

func firstN(list []models.ScoredBox, n int) []models.ScoredBox {
	if len(list) > n {
		list = list[:n]
	}
	return append([]models.ScoredBox{}, list...)
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int(v*10-0.5)) / 10
	}
	return float64(int(v*10+0.5)) / 10
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
