package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/inventory"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
)

const (
	underusedThreshold  = 5
	overloadedThreshold = 40
)

// DashboardService serves precomputed occupancy snapshots per reporting
// period. Snapshots live in memory with a TTL; invalidation drops them all
// and regenerates the common periods in the background so the next read is
// warm again.
type DashboardService struct {
	Store     Store
	Inventory inventory.Provider
	Logger    zerolog.Logger
	TTL       time.Duration
	OpenHour  int
	CloseHour int

	// Now is swappable for tests; zero value means time.Now.
	Now func() time.Time

	mu        sync.Mutex
	snapshots map[string]models.Snapshot
}

func (d *DashboardService) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *DashboardService) operatingMinutes() int {
	return (d.CloseHour - d.OpenHour) * 60
}

// GetSnapshot returns the cached snapshot for the period, computing a fresh
// one when none exists or the cached one has expired.
func (d *DashboardService) GetSnapshot(ctx context.Context, period string) (models.Snapshot, error) {
	if !validPeriod(period) {
		return models.Snapshot{}, fmt.Errorf("%w: unknown period %q", apperr.ErrValidation, period)
	}

	d.mu.Lock()
	if snap, ok := d.snapshots[period]; ok && d.now().Before(snap.ExpiresAt) {
		d.mu.Unlock()
		return snap, nil
	}
	d.mu.Unlock()

	snap, err := d.compute(ctx, period)
	if err != nil {
		return models.Snapshot{}, err
	}

	d.mu.Lock()
	if d.snapshots == nil {
		d.snapshots = make(map[string]models.Snapshot)
	}
	d.snapshots[period] = snap
	d.mu.Unlock()
	return snap, nil
}

// Invalidate drops every cached snapshot and regenerates the day, week and
// month periods asynchronously. Year is left cold; it is expensive and its
// staleness tolerance is high.
func (d *DashboardService) Invalidate(reason string, details map[string]any) {
	d.mu.Lock()
	d.snapshots = make(map[string]models.Snapshot)
	d.mu.Unlock()
	d.Logger.Info().Str("reason", reason).Fields(details).Msg("dashboard cache invalidated")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, period := range []string{PeriodDay, PeriodWeek, PeriodMonth} {
			if _, err := d.GetSnapshot(ctx, period); err != nil {
				d.Logger.Error().Err(err).Str("period", period).Msg("background snapshot regeneration failed")
			}
		}
	}()
}

func validPeriod(period string) bool {
	switch period {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

// periodRange returns the half-open [from, to) window for the period. Weeks
// start on Monday.
func (d *DashboardService) periodRange(period string) (time.Time, time.Time) {
	now := d.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case PeriodWeek:
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		monday := day.AddDate(0, 0, -(weekday - 1))
		return monday, monday.AddDate(0, 0, 7)
	case PeriodMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0)
	case PeriodYear:
		first := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(1, 0, 0)
	default:
		return day, day.AddDate(0, 0, 1)
	}
}

func (d *DashboardService) compute(ctx context.Context, period string) (models.Snapshot, error) {
	started := d.now()
	from, to := d.periodRange(period)

	appts, err := d.Store.ListAppointments(ctx, from, to.AddDate(0, 0, -1), 0)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("list appointments: %w", err)
	}
	boxes, err := d.Store.ListBoxes(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("list boxes: %w", err)
	}

	snap := models.Snapshot{
		Period:     period,
		From:       from,
		To:         to,
		TotalBoxes: len(boxes),
	}

	boxMeta := map[int]models.Box{}
	for _, b := range boxes {
		boxMeta[b.ID] = b
	}

	usage := map[int]*models.BoxUsage{}
	type dayKey struct {
		boxID int
		day   string
	}
	perDay := map[dayKey][]models.Appointment{}

	amStart := models.Minutes(d.OpenHour * 60)
	noon := models.Minutes(13 * 60)
	pmEnd := models.Minutes(d.CloseHour * 60)

	var totalMinutes int
	for _, a := range appts {
		snap.TotalAppointments++
		if a.IsMedical {
			snap.Medical++
		} else {
			snap.NonMedical++
		}
		dur := int(a.End - a.Start)
		totalMinutes += dur

		u, ok := usage[a.BoxID]
		if !ok {
			meta := boxMeta[a.BoxID]
			u = &models.BoxUsage{BoxID: a.BoxID, Corridor: meta.Corridor, State: meta.State}
			usage[a.BoxID] = u
		}
		u.Appointments++
		u.Minutes += dur

		if a.Start >= amStart && a.End <= noon {
			snap.MorningCount++
		} else if a.Start >= noon && a.End <= pmEnd {
			snap.AfternoonCount++
		}

		k := dayKey{boxID: a.BoxID, day: a.Date.Format("2006-01-02")}
		perDay[k] = append(perDay[k], a)
	}

	if snap.TotalAppointments > 0 {
		snap.AvgDurationMin = round1(float64(totalMinutes) / float64(snap.TotalAppointments))
	}

	days := int(to.Sub(from).Hours() / 24)
	if capacity := len(boxes) * days * d.operatingMinutes(); capacity > 0 {
		snap.OccupancyPct = round1(float64(totalMinutes) / float64(capacity) * 100)
	}

	// Dead hours are gaps between consecutive bookings of the same box on
	// the same day. Back-to-back and overlapping bookings contribute nothing.
	var deadMinutes int
	for _, group := range perDay {
		sort.Slice(group, func(i, j int) bool { return group[i].Start < group[j].Start })
		for i := 1; i < len(group); i++ {
			if gap := int(group[i].Start - group[i-1].End); gap > 0 {
				deadMinutes += gap
			}
		}
	}
	snap.DeadHours = round1(float64(deadMinutes) / 60)

	for _, u := range usage {
		snap.Ranking = append(snap.Ranking, *u)
	}
	sort.Slice(snap.Ranking, func(i, j int) bool {
		if snap.Ranking[i].Appointments == snap.Ranking[j].Appointments {
			return snap.Ranking[i].BoxID < snap.Ranking[j].BoxID
		}
		return snap.Ranking[i].Appointments > snap.Ranking[j].Appointments
	})
	if len(snap.Ranking) > 0 {
		snap.MostUsedBox = snap.Ranking[0]
		snap.LeastUsedBox = snap.Ranking[len(snap.Ranking)-1]
	}

	snap.TypeStats = typeStats(boxes)

	alerts, err := d.alerts(ctx, boxes, usage)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Alerts = alerts

	trend, err := d.trend(ctx, period, from)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.Trend = trend

	snap.CreatedAt = d.now()
	snap.ExpiresAt = snap.CreatedAt.Add(d.TTL)
	snap.ComputeMS = d.now().Sub(started).Milliseconds()

	d.Logger.Debug().Str("period", period).Int64("compute_ms", snap.ComputeMS).
		Int("appointments", snap.TotalAppointments).Msg("snapshot computed")
	return snap, nil
}

func typeStats(boxes []models.Box) []models.TypeUsage {
	byName := map[string]*models.TypeUsage{}
	var order []string
	for _, b := range boxes {
		for _, t := range b.Types {
			u, ok := byName[t.Name]
			if !ok {
				u = &models.TypeUsage{Name: t.Name}
				byName[t.Name] = u
				order = append(order, t.Name)
			}
			u.TotalBoxes++
			if t.Principal {
				u.PrincipalBoxes++
			}
		}
	}
	sort.Strings(order)
	stats := make([]models.TypeUsage, 0, len(order))
	for _, name := range order {
		stats = append(stats, *byName[name])
	}
	return stats
}

// alerts flags underused and overloaded boxes in the window and surfaces
// non-operational implement counts from the inventory service. An inventory
// failure degrades to usage alerts only.
func (d *DashboardService) alerts(ctx context.Context, boxes []models.Box, usage map[int]*models.BoxUsage) ([]models.Alert, error) {
	var alerts []models.Alert
	for _, b := range boxes {
		count := 0
		if u, ok := usage[b.ID]; ok {
			count = u.Appointments
		}
		switch {
		case count > overloadedThreshold:
			alerts = append(alerts, models.Alert{
				Kind:        "overloaded",
				BoxID:       b.ID,
				Title:       fmt.Sprintf("Box %d overloaded", b.ID),
				Description: fmt.Sprintf("%d appointments in the period", count),
				Severity:    "high",
				Value:       count,
			})
		case count < underusedThreshold && !b.Disabled():
			alerts = append(alerts, models.Alert{
				Kind:        "underused",
				BoxID:       b.ID,
				Title:       fmt.Sprintf("Box %d underused", b.ID),
				Description: fmt.Sprintf("only %d appointments in the period", count),
				Severity:    "low",
				Value:       count,
			})
		}
	}

	if d.Inventory != nil {
		broken, err := d.Inventory.NonOperational(ctx)
		if err != nil {
			d.Logger.Warn().Err(err).Msg("inventory lookup failed, skipping implement alerts")
			return alerts, nil
		}
		ids := make([]int, 0, len(broken))
		for id := range broken {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			if broken[id] == 0 {
				continue
			}
			alerts = append(alerts, models.Alert{
				Kind:        "inventory",
				BoxID:       id,
				Title:       fmt.Sprintf("Box %d has non-operational implements", id),
				Description: fmt.Sprintf("%d implement(s) out of service", broken[id]),
				Severity:    "medium",
				Value:       broken[id],
			})
		}
	}
	return alerts, nil
}

// trend returns appointment totals for preceding windows of the same size:
// 7 days for day, 4 weeks for week, 6 months for month. The year period has
// no trend series.
func (d *DashboardService) trend(ctx context.Context, period string, from time.Time) ([]int, error) {
	var windows [][2]time.Time
	switch period {
	case PeriodDay:
		for i := 6; i >= 0; i-- {
			start := from.AddDate(0, 0, -i)
			windows = append(windows, [2]time.Time{start, start.AddDate(0, 0, 1)})
		}
	case PeriodWeek:
		for i := 3; i >= 0; i-- {
			start := from.AddDate(0, 0, -7*i)
			windows = append(windows, [2]time.Time{start, start.AddDate(0, 0, 7)})
		}
	case PeriodMonth:
		for i := 5; i >= 0; i-- {
			start := from.AddDate(0, -i, 0)
			windows = append(windows, [2]time.Time{start, start.AddDate(0, 1, 0)})
		}
	default:
		return nil, nil
	}

	trend := make([]int, 0, len(windows))
	for _, w := range windows {
		n, err := d.Store.CountAppointmentsBetween(ctx, w[0], w[1].AddDate(0, 0, -1))
		if err != nil {
			return nil, fmt.Errorf("trend window %s: %w", w[0].Format("2006-01-02"), err)
		}
		trend = append(trend, n)
	}
	return trend, nil
}
