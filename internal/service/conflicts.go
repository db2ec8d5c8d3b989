package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// ConflictService detects topes (same box, same date, overlapping windows)
// and answers availability queries.
type ConflictService struct {
	Store  Store
	Logger zerolog.Logger
}

// HasOverlap reports whether any non-excluded appointment on the box/date
// overlaps [start, end). Used as an availability probe and as the pre-commit
// guard for reassignments.
func (s *ConflictService) HasOverlap(ctx context.Context, boxID int, date time.Time, start, end models.Minutes, excludeIDs []int64) (bool, error) {
	overlapping, err := s.Store.ListOverlapping(ctx, boxID, date, start, end, excludeIDs)
	if err != nil {
		return false, fmt.Errorf("overlap probe box %d: %w", boxID, err)
	}
	return len(overlapping) > 0, nil
}

// FindConflictPairs scans all appointments in the date range grouped by
// (box, date), sorted by start, and reports each adjacent overlapping pair.
// Chains of overlaps yield one pair per neighbor, so the result is a
// multiset of pairs rather than disjoint clusters.
func (s *ConflictService) FindConflictPairs(ctx context.Context, from, to time.Time) ([]models.ConflictPair, error) {
	appts, err := s.Store.ListAppointments(ctx, from, to, 0)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	type groupKey struct {
		boxID int
		date  string
	}
	groups := map[groupKey][]models.Appointment{}
	var order []groupKey
	for _, a := range appts {
		k := groupKey{boxID: a.BoxID, date: a.Date.Format("2006-01-02")}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	var pairs []models.ConflictPair
	for _, k := range order {
		group := groups[k]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Start == group[j].Start {
				return group[i].ID < group[j].ID
			}
			return group[i].Start < group[j].Start
		})
		for i := 1; i < len(group); i++ {
			if group[i-1].End > group[i].Start {
				pairs = append(pairs, models.ConflictPair{
					BoxID:  k.boxID,
					Date:   group[i].Date,
					First:  group[i-1],
					Second: group[i],
				})
			}
		}
	}
	return pairs, nil
}

// FindFreeBoxes returns boxes with no overlapping appointment in the window.
// Disabled boxes are excluded unless includeDisabled is set (the scorer asks
// for them to build its emergency options). When requiredTypeIDs matches no
// free box, the filter is dropped and all free boxes are returned.
func (s *ConflictService) FindFreeBoxes(ctx context.Context, date time.Time, start, end models.Minutes, excludeIDs []int64, requiredTypeIDs []int, includeDisabled bool) ([]models.Box, error) {
	overlapping, err := s.Store.ListOverlappingAllBoxes(ctx, date, start, end, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("occupied boxes: %w", err)
	}
	occupied := map[int]bool{}
	for _, a := range overlapping {
		occupied[a.BoxID] = true
	}

	boxes, err := s.Store.ListBoxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list boxes: %w", err)
	}

	var free []models.Box
	for _, b := range boxes {
		if occupied[b.ID] {
			continue
		}
		if b.Disabled() && !includeDisabled {
			continue
		}
		free = append(free, b)
	}

	if len(requiredTypeIDs) == 0 {
		return free, nil
	}

	wanted := map[int]bool{}
	for _, id := range requiredTypeIDs {
		wanted[id] = true
	}
	var matching []models.Box
	for _, b := range free {
		for _, t := range b.Types {
			if wanted[t.ID] {
				matching = append(matching, b)
				break
			}
		}
	}
	if len(matching) == 0 {
		s.Logger.Debug().Ints("required_types", requiredTypeIDs).Msg("no free box matches required types, falling back to all free boxes")
		return free, nil
	}
	return matching, nil
}

type DayConflictStats struct {
	Date          time.Time `json:"date"`
	Appointments  int       `json:"appointments"`
	ConflictPairs int       `json:"conflict_pairs"`
}

type ConflictStats struct {
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
	Days       []DayConflictStats `json:"days"`
	TotalPairs int                `json:"total_pairs"`
}

// Stats aggregates per-day appointment totals and conflicting pair counts
// over a date range.
func (s *ConflictService) Stats(ctx context.Context, from, to time.Time) (ConflictStats, error) {
	appts, err := s.Store.ListAppointments(ctx, from, to, 0)
	if err != nil {
		return ConflictStats{}, fmt.Errorf("list appointments: %w", err)
	}
	pairs, err := s.FindConflictPairs(ctx, from, to)
	if err != nil {
		return ConflictStats{}, err
	}

	totals := map[string]*DayConflictStats{}
	var order []string
	for _, a := range appts {
		day := a.Date.Format("2006-01-02")
		if _, ok := totals[day]; !ok {
			totals[day] = &DayConflictStats{Date: a.Date}
			order = append(order, day)
		}
		totals[day].Appointments++
	}
	for _, p := range pairs {
		day := p.Date.Format("2006-01-02")
		if st, ok := totals[day]; ok {
			st.ConflictPairs++
		}
	}

	sort.Strings(order)
	stats := ConflictStats{From: from, To: to, TotalPairs: len(pairs)}
	for _, day := range order {
		stats.Days = append(stats.Days, *totals[day])
	}
	return stats, nil
}
