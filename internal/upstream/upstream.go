package upstream

import (
	"context"
	"time"
)

const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Record is one appointment delta from the external system of record.
// Field names follow the upstream wire format.
type Record struct {
	ID      int64  `json:"id"`
	MedicID int    `json:"idMedico"`
	BoxID   int    `json:"idBox"`
	Date    string `json:"fecha"`
	Start   string `json:"horaInicio"`
	End     string `json:"horaFin"`
	Action  string `json:"accion"`
}

// Client pulls appointment deltas changed since a given instant. Upstream
// is polled, never pushed.
type Client interface {
	FetchChangedSince(ctx context.Context, since time.Time) ([]Record, error)
}
