package service

import (
	"context"
	"time"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

// Store is the persistence surface the scheduling services depend on.
// *db.Store implements it; tests substitute an in-memory fake.
type Store interface {
	GetAppointment(ctx context.Context, id int64) (models.Appointment, error)
	ListAppointments(ctx context.Context, from, to time.Time, boxID int) ([]models.Appointment, error)
	ListAppointmentsByIDs(ctx context.Context, ids []int64) ([]models.Appointment, error)
	ListOverlapping(ctx context.Context, boxID int, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error)
	ListOverlappingAllBoxes(ctx context.Context, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error)
	CountAppointments(ctx context.Context, boxID int, date time.Time) (int, error)
	CountMedicUsage(ctx context.Context, boxID int, medicIDs []int, since time.Time) (int, error)
	CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error)
	CreateAppointment(ctx context.Context, a models.Appointment) (int64, error)
	DeleteAppointment(ctx context.Context, id int64) error
	UpdateAppointmentBox(ctx context.Context, id int64, boxID int, notes string) error
	ExistsAppointment(ctx context.Context, medicID *int, boxID int, date time.Time, start, end models.Minutes) (bool, error)
	BulkInsertAppointments(ctx context.Context, appts []models.Appointment) (int64, error)
	GetBox(ctx context.Context, id int) (models.Box, error)
	ListBoxes(ctx context.Context) ([]models.Box, error)
	UpdateBoxState(ctx context.Context, id int, state string) error
	ListMedicsByIDs(ctx context.Context, ids []int) ([]models.Medic, error)
}
