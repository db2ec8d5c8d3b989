package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func (h HTTPClient) FetchChangedSince(ctx context.Context, since time.Time) ([]Record, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 15 * time.Second}
	}

	url := fmt.Sprintf("%s/modificados-desde/%s/", h.BaseURL, since.Format("2006-01-02T15:04:05"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream responded %d", resp.StatusCode)
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}
