package inventory

import "context"

// MockProvider returns a fixed map. Used when INVENTORY_URL is not set.
type MockProvider struct {
	Broken map[int]int
}

func (m MockProvider) NonOperational(ctx context.Context) (map[int]int, error) {
	return m.Broken, nil
}
