package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adrean-github/Proyecto-Yggdrasil/internal/apperr"
	"github.com/adrean-github/Proyecto-Yggdrasil/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const appointmentColumns = `id, idbox, idmedico, fecha, inicio_min, fin_min, habilitada, esmedica, responsable, observaciones`

func scanAppointment(row pgx.Row) (models.Appointment, error) {
	var (
		a       models.Appointment
		medicID *int
		start   int
		end     int
	)
	if err := row.Scan(&a.ID, &a.BoxID, &medicID, &a.Date, &start, &end, &a.Enabled, &a.IsMedical, &a.Responsible, &a.Notes); err != nil {
		return models.Appointment{}, err
	}
	a.MedicID = medicID
	a.Start = models.Minutes(start)
	a.End = models.Minutes(end)
	return a, nil
}

func (s *Store) collectAppointments(ctx context.Context, query string, args ...any) ([]models.Appointment, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (models.Appointment, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM agendabox WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Appointment{}, apperr.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAppointments(ctx context.Context, from, to time.Time, boxID int) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM agendabox WHERE fecha >= $1 AND fecha <= $2`
	args := []any{from, to}
	if boxID > 0 {
		args = append(args, boxID)
		query += fmt.Sprintf(" AND idbox = $%d", len(args))
	}
	query += " ORDER BY fecha, idbox, inicio_min"
	return s.collectAppointments(ctx, query, args...)
}

func (s *Store) ListAppointmentsByIDs(ctx context.Context, ids []int64) ([]models.Appointment, error) {
	return s.collectAppointments(ctx,
		`SELECT `+appointmentColumns+` FROM agendabox WHERE id = ANY($1) ORDER BY inicio_min`, ids)
}

// ListOverlapping returns appointments on one box and date overlapping the
// half-open window [start, end). This query is on the hot path of every
// conflict check.
func (s *Store) ListOverlapping(ctx context.Context, boxID int, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error) {
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	return s.collectAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM agendabox
		WHERE idbox = $1 AND fecha = $2 AND inicio_min < $3 AND fin_min > $4 AND id <> ALL($5)
		ORDER BY inicio_min`,
		boxID, date, int(end), int(start), excludeIDs)
}

// ListOverlappingAllBoxes is the same window probe across every box, used to
// derive the occupied-box set for availability queries.
func (s *Store) ListOverlappingAllBoxes(ctx context.Context, date time.Time, start, end models.Minutes, excludeIDs []int64) ([]models.Appointment, error) {
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}
	return s.collectAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM agendabox
		WHERE fecha = $1 AND inicio_min < $2 AND fin_min > $3 AND id <> ALL($4)
		ORDER BY idbox, inicio_min`,
		date, int(end), int(start), excludeIDs)
}

func (s *Store) CountAppointments(ctx context.Context, boxID int, date time.Time) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agendabox WHERE idbox = $1 AND fecha = $2`, boxID, date).Scan(&n)
	return n, err
}

// CountMedicUsage counts appointments by the given medics on a box. A zero
// since counts all history; otherwise only dates on or after it.
func (s *Store) CountMedicUsage(ctx context.Context, boxID int, medicIDs []int, since time.Time) (int, error) {
	if len(medicIDs) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM agendabox WHERE idbox = $1 AND idmedico = ANY($2)`
	args := []any{boxID, medicIDs}
	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(" AND fecha >= $%d", len(args))
	}
	var n int
	err := s.Pool.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *Store) CountAppointmentsBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agendabox WHERE fecha >= $1 AND fecha <= $2`, from, to).Scan(&n)
	return n, err
}

func (s *Store) CreateAppointment(ctx context.Context, a models.Appointment) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO agendabox (idbox, idmedico, fecha, inicio_min, fin_min, habilitada, esmedica, responsable, observaciones)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		a.BoxID, a.MedicID, a.Date, int(a.Start), int(a.End), a.Enabled, a.IsMedical, a.Responsible, a.Notes).Scan(&id)
	return id, err
}

func (s *Store) DeleteAppointment(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM agendabox WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// UpdateAppointmentBox moves an appointment to a new box and replaces its
// notes in one transaction.
func (s *Store) UpdateAppointmentBox(ctx context.Context, id int64, boxID int, notes string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE agendabox SET idbox = $1, observaciones = $2 WHERE id = $3`, boxID, notes, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

// ExistsAppointment checks for a row with identical (medic, box, date,
// window), the ingestion loop's store-level duplicate probe.
func (s *Store) ExistsAppointment(ctx context.Context, medicID *int, boxID int, date time.Time, start, end models.Minutes) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM agendabox WHERE idbox = $1 AND fecha = $2 AND inicio_min = $3 AND fin_min = $4 AND idmedico `
	args := []any{boxID, date, int(start), int(end)}
	if medicID == nil {
		query += `IS NULL)`
	} else {
		args = append(args, *medicID)
		query += fmt.Sprintf(`= $%d)`, len(args))
	}
	var exists bool
	err := s.Pool.QueryRow(ctx, query, args...).Scan(&exists)
	return exists, err
}

func (s *Store) BulkInsertAppointments(ctx context.Context, appts []models.Appointment) (int64, error) {
	rows := make([][]any, 0, len(appts))
	for _, a := range appts {
		rows = append(rows, []any{a.BoxID, a.MedicID, a.Date, int(a.Start), int(a.End), a.Enabled, a.IsMedical, a.Responsible, a.Notes})
	}
	return s.Pool.CopyFrom(ctx, pgx.Identifier{"agendabox"},
		[]string{"idbox", "idmedico", "fecha", "inicio_min", "fin_min", "habilitada", "esmedica", "responsable", "observaciones"},
		pgx.CopyFromRows(rows))
}

func (s *Store) GetBox(ctx context.Context, id int) (models.Box, error) {
	var b models.Box
	err := s.Pool.QueryRow(ctx,
		`SELECT idbox, COALESCE(estado, ''), COALESCE(pasillo, ''), COALESCE(comentario, '') FROM box WHERE idbox = $1`, id).
		Scan(&b.ID, &b.State, &b.Corridor, &b.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Box{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Box{}, err
	}
	types, err := s.listBoxTypes(ctx, []int{id})
	if err != nil {
		return models.Box{}, err
	}
	b.Types = types[id]
	return b, nil
}

func (s *Store) ListBoxes(ctx context.Context) ([]models.Box, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT idbox, COALESCE(estado, ''), COALESCE(pasillo, ''), COALESCE(comentario, '') FROM box ORDER BY idbox`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Box
	ids := []int{}
	for rows.Next() {
		var b models.Box
		if err := rows.Scan(&b.ID, &b.State, &b.Corridor, &b.Comment); err != nil {
			return nil, err
		}
		out = append(out, b)
		ids = append(ids, b.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	types, err := s.listBoxTypes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Types = types[out[i].ID]
	}
	return out, nil
}

func (s *Store) listBoxTypes(ctx context.Context, boxIDs []int) (map[int][]models.BoxType, error) {
	if len(boxIDs) == 0 {
		return map[int][]models.BoxType{}, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT bt.idbox, t.idtipobox, COALESCE(t.tipo, ''), COALESCE(bt.principal, false)
		FROM boxtipobox bt
		JOIN tipobox t ON t.idtipobox = bt.idtipobox
		WHERE bt.idbox = ANY($1)
		ORDER BY bt.idbox, t.idtipobox`, boxIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int][]models.BoxType{}
	for rows.Next() {
		var (
			boxID int
			bt    models.BoxType
		)
		if err := rows.Scan(&boxID, &bt.ID, &bt.Name, &bt.Principal); err != nil {
			return nil, err
		}
		out[boxID] = append(out[boxID], bt)
	}
	return out, rows.Err()
}

func (s *Store) UpdateBoxState(ctx context.Context, id int, state string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE box SET estado = $1 WHERE idbox = $2`, strings.TrimSpace(state), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) ListMedicsByIDs(ctx context.Context, ids []int) ([]models.Medic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT idmedico, COALESCE(nombre, ''), idespecialidad FROM medico WHERE idmedico = ANY($1) ORDER BY idmedico`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Medic
	for rows.Next() {
		var m models.Medic
		if err := rows.Scan(&m.ID, &m.Name, &m.SpecialtyID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
