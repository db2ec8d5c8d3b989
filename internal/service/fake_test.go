package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// fakeStore is an in-memory Store used across the service tests.
type fakeStore struct {
	appts  map[int64]models.Appointment
	boxes  map[int]models.Box
	medics map[int]models.Medic
	nextID int64

	failBulk   bool
	bulkCalls  int
	existCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		appts:  make(map[int64]models.Appointment),
		boxes:  make(map[int]models.Box),
		medics: make(map[int]models.Medic),
	}
}

func (f *fakeStore) addBox(b models.Box) {
	f.boxes[b.ID] = b
}

func (f *fakeStore) addAppt(a models.Appointment) models.Appointment {
	if a.ID == 0 {
		f.nextID++
		a.ID = f.nextID
	} else if a.ID > f.nextID {
		f.nextID = a.ID
	}
	f.appts[a.ID] = a
	return a
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

// dayOf truncates a timestamp to midnight, mirroring the DATE column the
// real store filters on.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (f *fakeStore) GetAppointment(ctx context.Context, id int64) (models.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return models.Appointment{}, apperr.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListAppointments(ctx context.Context, from, to time.Time, boxID int) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, a := range f.appts {
		if day := dayOf(a.Date); day.Before(from) || day.After(to) {
			continue
		}
		if boxID > 0 && a.BoxID != boxID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].BoxID != out[j].BoxID {
			return out[i].BoxID < out[j].BoxID
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (f *fakeStore) ListAppointmentsByIDs(ctx context.Context, ids []int64) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, id := range ids {
		if a, ok := f.appts[id]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (f *fakeStore) ListOverlapping(ctx context.Context, boxID int, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error) {
	excluded := map[int64]bool{}
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []models.Appointment
	for _, a := range f.appts {
		if a.BoxID != boxID || !sameDay(a.Date, date) || excluded[a.ID] {
			continue
		}
		if a.Start < end && start < a.End {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOverlappingAllBoxes(ctx context.Context, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error) {
	excluded := map[int64]bool{}
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []models.Appointment
	for _, a := range f.appts {
		if !sameDay(a.Date, date) || excluded[a.ID] {
			continue
		}
		if a.Start < end && start < a.End {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CountAppointments(ctx context.Context, boxID int, date time.Time) (int, error) {
	n := 0
	for _, a := range f.appts {
		if a.BoxID == boxID && sameDay(a.Date, date) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountMedicUsage(ctx context.Context, boxID int, medicIDs []int, since time.Time) (int, error) {
	wanted := map[int]bool{}
	for _, id := range medicIDs {
		wanted[id] = true
	}
	n := 0
	for _, a := range f.appts {
		if a.BoxID != boxID || a.MedicID == nil || !wanted[*a.MedicID] {
			continue
		}
		if !since.IsZero() && a.Date.Before(since) {
			continue
		}
		n++
	}
	return n, nil
}

func (f *fakeStore) CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, a := range f.appts {
		if day := dayOf(a.Date); !day.Before(from) && !day.After(to) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateAppointment(ctx context.Context, a models.Appointment) (int64, error) {
	return f.addAppt(a).ID, nil
}

func (f *fakeStore) DeleteAppointment(ctx context.Context, id int64) error {
	if _, ok := f.appts[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(f.appts, id)
	return nil
}

func (f *fakeStore) UpdateAppointmentBox(ctx context.Context, id int64, boxID int, notes string) error {
	a, ok := f.appts[id]
	if !ok {
		return apperr.ErrNotFound
	}
	a.BoxID = boxID
	a.Notes = notes
	f.appts[id] = a
	return nil
}

func (f *fakeStore) ExistsAppointment(ctx context.Context, medicID *int, boxID int, date time.Time, start, end models.Minutes) (bool, error) {
	f.existCalls++
	for _, a := range f.appts {
		if a.BoxID != boxID || !sameDay(a.Date, date) || a.Start != start || a.End != end {
			continue
		}
		if (a.MedicID == nil) != (medicID == nil) {
			continue
		}
		if medicID == nil || *a.MedicID == *medicID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) BulkInsertAppointments(ctx context.Context, appts []models.Appointment) (int64, error) {
	f.bulkCalls++
	if f.failBulk {
		return 0, errors.New("bulk insert failed")
	}
	for _, a := range appts {
		f.addAppt(a)
	}
	return int64(len(appts)), nil
}

func (f *fakeStore) GetBox(ctx context.Context, id int) (models.Box, error) {
	b, ok := f.boxes[id]
	if !ok {
		return models.Box{}, apperr.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) ListBoxes(ctx context.Context) ([]models.Box, error) {
	var out []models.Box
	for _, b := range f.boxes {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateBoxState(ctx context.Context, id int, state string) error {
	b, ok := f.boxes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	b.State = state
	f.boxes[id] = b
	return nil
}

func (f *fakeStore) ListMedicsByIDs(ctx context.Context, ids []int) ([]models.Medic, error) {
	var out []models.Medic
	for _, id := range ids {
		if m, ok := f.medics[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
