package upstream

import (
	"context"
	"time"
)

// MockClient serves a fixed set of records once, then empty responses.
// Used when UPSTREAM_URL is not configured.
type MockClient struct {
	Records []Record
	served  bool
}

func (m *MockClient) FetchChangedSince(ctx context.Context, since time.Time) ([]Record, error) {
	if m.served {
		return nil, nil
	}
	m.served = true
	return m.Records, nil
}
