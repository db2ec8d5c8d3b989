package inventory

import "context"

// Provider reports per-box counts of non-operational implements. Consulted
// read-only by the dashboard alert generator.
type Provider interface {
	NonOperational(ctx context.Context) (map[int]int, error)
}
